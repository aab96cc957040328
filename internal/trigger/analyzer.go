package trigger

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

// UserLookup resolves comment authors.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
}

// Analysis is the outcome of inspecting a ticket's thread.
type Analysis struct {
	Matches       bool
	Phrase        string
	TriggerReason domain.TriggerReason
	// Comment is the comment that carried the phrase.
	Comment       *domain.Comment
	LatestComment *domain.Comment
	// Fallback is set when a role lookup failed and the newest comment was
	// matched directly instead.
	Fallback bool
}

// Analyzer decides whether a ticket's comment thread should trigger.
type Analyzer struct {
	users            UserLookup
	phrases          []string
	lowered          []string
	requiredAuthorID int64
	logger           *zap.Logger
}

// NewAnalyzer builds an analyzer. An empty phrase list uses DefaultPhrases.
func NewAnalyzer(users UserLookup, phrases []string, requiredAuthorID int64, logger *zap.Logger) *Analyzer {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &Analyzer{
		users:            users,
		phrases:          phrases,
		lowered:          lowered,
		requiredAuthorID: requiredAuthorID,
		logger:           logger,
	}
}

// Phrases returns the active phrase list.
func (a *Analyzer) Phrases() []string {
	return append([]string(nil), a.phrases...)
}

// RequiredAuthorID is the only author whose comments may trigger.
func (a *Analyzer) RequiredAuthorID() int64 {
	return a.requiredAuthorID
}

// AnalyzeLatestComment inspects comments ordered newest first.
//
// A staff-authored newest comment is matched directly. An end-user newest
// comment walks back past further end-user comments to the first staff
// comment and matches only that one.
func (a *Analyzer) AnalyzeLatestComment(ctx context.Context, comments []domain.Comment) Analysis {
	if len(comments) == 0 {
		return Analysis{}
	}
	latest := &comments[0]
	roles := make(map[int64]domain.Role)

	switch a.resolveRole(ctx, roles, latest.AuthorID) {
	case domain.RoleAgent, domain.RoleAdmin:
		phrase, ok := a.CheckTriggerPhrases(*latest)
		return Analysis{
			Matches:       ok,
			Phrase:        phrase,
			TriggerReason: domain.TriggerDirectMatch,
			Comment:       latest,
			LatestComment: latest,
		}

	case domain.RoleEndUser:
		for i := 1; i < len(comments); i++ {
			c := &comments[i]
			switch a.resolveRole(ctx, roles, c.AuthorID) {
			case domain.RoleAgent, domain.RoleAdmin:
				phrase, ok := a.CheckTriggerPhrases(*c)
				if !ok {
					return Analysis{LatestComment: latest}
				}
				return Analysis{
					Matches:       true,
					Phrase:        phrase,
					TriggerReason: domain.TriggerEndUserReplyChain,
					Comment:       c,
					LatestComment: latest,
				}
			case domain.RoleEndUser, domain.RoleOther:
				continue
			case domain.RoleUnresolved:
				return a.fallback(latest)
			}
		}
		return Analysis{LatestComment: latest}

	case domain.RoleOther:
		return Analysis{LatestComment: latest}

	default:
		return a.fallback(latest)
	}
}

// CheckTriggerPhrases is a case-insensitive substring match against the
// phrase list, accepted only for the required author.
func (a *Analyzer) CheckTriggerPhrases(c domain.Comment) (string, bool) {
	body := strings.ToLower(c.Body)
	for i, p := range a.lowered {
		if !strings.Contains(body, p) {
			continue
		}
		if c.AuthorID != a.requiredAuthorID {
			a.logger.Debug("trigger phrase from non-required author skipped",
				zap.Int64("comment_id", c.ID),
				zap.Int64("author_id", c.AuthorID),
				zap.Int64("required_author_id", a.requiredAuthorID),
				zap.String("phrase", a.phrases[i]))
			continue
		}
		return a.phrases[i], true
	}
	return "", false
}

// fallback matches the newest comment directly after a failed role lookup.
func (a *Analyzer) fallback(latest *domain.Comment) Analysis {
	phrase, ok := a.CheckTriggerPhrases(*latest)
	return Analysis{
		Matches:       ok,
		Phrase:        phrase,
		TriggerReason: domain.TriggerDirectMatch,
		Comment:       latest,
		LatestComment: latest,
		Fallback:      true,
	}
}

func (a *Analyzer) resolveRole(ctx context.Context, cache map[int64]domain.Role, authorID int64) domain.Role {
	if r, ok := cache[authorID]; ok {
		return r
	}
	user, err := a.users.GetUser(ctx, authorID)
	if err != nil {
		a.logger.Warn("author role lookup failed, falling back to direct match",
			zap.Int64("author_id", authorID),
			zap.Error(err))
		return domain.RoleUnresolved
	}
	r := domain.ParseRole(user.Role)
	cache[authorID] = r
	return r
}
