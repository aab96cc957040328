package dto

import (
	"strings"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// SelectViewsRequest chooses the views to monitor.
type SelectViewsRequest struct {
	ViewIDs []int64 `json:"view_ids"`
}

// IntervalRequest sets the poll interval.
type IntervalRequest struct {
	Seconds float64 `json:"seconds"`
}

// ToggleRequest flips a boolean setting (dry run, verbose logging).
type ToggleRequest struct {
	Enabled *bool `json:"enabled"`
}

// TestTicketsRequest lists tickets to run through the processor. IDs may be
// numbers or strings; Input is free text separated by commas or whitespace.
type TestTicketsRequest struct {
	TicketIDs []any  `json:"ticket_ids"`
	Input     string `json:"input"`
}

// Inputs merges both forms in request order.
func (r TestTicketsRequest) Inputs() []any {
	out := append([]any(nil), r.TicketIDs...)
	for _, field := range strings.FieldsFunc(r.Input, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\n' || r == '\t'
	}) {
		out = append(out, field)
	}
	return out
}

// PreferencesRequest updates display preferences; nil fields are kept.
type PreferencesRequest struct {
	FieldVisibility *domain.FieldVisibility `json:"field_visibility"`
	ViewsHidden     *bool                   `json:"views_hidden"`
}

// ViewResponse is one entry in the view catalog.
type ViewResponse struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Group    string `json:"group"`
	Selected bool   `json:"selected"`
}
