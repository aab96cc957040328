package domain

import "time"

// TriggerReason records how a ticket qualified.
type TriggerReason string

const (
	TriggerDirectMatch       TriggerReason = "direct-match"
	TriggerEndUserReplyChain TriggerReason = "end-user-reply-chain"
)

// HistoryEntry is one immutable processing outcome.
type HistoryEntry struct {
	ID               string         `json:"id"`
	TicketID         int64          `json:"ticket_id"`
	Timestamp        time.Time      `json:"timestamp"`
	ViewName         string         `json:"view_name"`
	Phrase           string         `json:"phrase"`
	PreviousStatus   TicketStatus   `json:"previous_status"`
	TriggerReason    TriggerReason  `json:"trigger_reason"`
	TriggerCommentID int64          `json:"trigger_comment_id"`
	LatestCommentID  int64          `json:"latest_comment_id"`
	DryRun           bool           `json:"dry_run"`
	UpdatedFields    map[string]any `json:"updated_fields,omitempty"`
}
