package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/rumi-monitor/internal/domain"
)

const (
	requiredAgent = int64(100)
	otherAgent    = int64(200)
	customer      = int64(300)
	adminUser     = int64(400)
	lightAgent    = int64(500)
)

type stubUsers struct {
	roles   map[int64]string
	fail    map[int64]bool
	lookups []int64
}

func (s *stubUsers) GetUser(_ context.Context, id int64) (domain.User, error) {
	s.lookups = append(s.lookups, id)
	if s.fail[id] {
		return domain.User{}, errors.New("lookup failed")
	}
	return domain.User{ID: id, Role: s.roles[id]}, nil
}

func newStubUsers() *stubUsers {
	return &stubUsers{
		roles: map[int64]string{
			requiredAgent: "agent",
			otherAgent:    "agent",
			customer:      "end-user",
			adminUser:     "admin",
			lightAgent:    "light-agent",
		},
		fail: map[int64]bool{},
	}
}

func comment(id, author int64, body string) domain.Comment {
	return domain.Comment{ID: id, AuthorID: author, Body: body}
}

func TestEmptyThreadDoesNotMatch(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, requiredAgent, nil)
	if got := a.AnalyzeLatestComment(context.Background(), nil); got.Matches {
		t.Fatalf("got %+v", got)
	}
}

func TestEndUserReplyToRequiredAgentMatches(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, requiredAgent, nil)
	comments := []domain.Comment{
		comment(2, customer, "ok thanks"),
		comment(1, requiredAgent, "Hello, we checked. Waiting for your reply. Regards"),
	}

	got := a.AnalyzeLatestComment(context.Background(), comments)
	if !got.Matches {
		t.Fatal("expected match")
	}
	if got.TriggerReason != domain.TriggerEndUserReplyChain {
		t.Errorf("TriggerReason = %s", got.TriggerReason)
	}
	if got.Phrase != "Waiting for your reply" {
		t.Errorf("Phrase = %q", got.Phrase)
	}
	if got.Comment.ID != 1 || got.LatestComment.ID != 2 {
		t.Errorf("comment = %d, latest = %d", got.Comment.ID, got.LatestComment.ID)
	}
}

func TestNonRequiredAuthorDoesNotMatch(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, requiredAgent, nil)
	comments := []domain.Comment{comment(1, otherAgent, "...Waiting for your reply...")}

	if got := a.AnalyzeLatestComment(context.Background(), comments); got.Matches {
		t.Fatalf("got %+v, want no match", got)
	}
}

func TestStaffNewestCommentIgnoresOlderComments(t *testing.T) {
	users := newStubUsers()
	a := NewAnalyzer(users, nil, requiredAgent, nil)
	comments := []domain.Comment{
		comment(3, adminUser, "Closing the loop internally"),
		comment(2, requiredAgent, "Waiting for your reply"),
		comment(1, customer, "help"),
	}

	got := a.AnalyzeLatestComment(context.Background(), comments)
	if got.Matches {
		t.Fatalf("got %+v, want no match", got)
	}
	if len(users.lookups) != 1 {
		t.Errorf("lookups = %v, want only the newest author", users.lookups)
	}
}

func TestAdminRequiredAuthorMatchesDirectly(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, adminUser, nil)
	got := a.AnalyzeLatestComment(context.Background(), []domain.Comment{
		comment(1, adminUser, "WE ARE AWAITING YOUR RESPONSE"),
	})
	if !got.Matches || got.TriggerReason != domain.TriggerDirectMatch {
		t.Fatalf("got %+v", got)
	}
}

func TestWalkStopsAtFirstStaffComment(t *testing.T) {
	users := newStubUsers()
	a := NewAnalyzer(users, nil, requiredAgent, nil)
	comments := []domain.Comment{
		comment(5, customer, "any update?"),
		comment(4, customer, "hello?"),
		comment(3, otherAgent, "Looking into it"),
		comment(2, requiredAgent, "Waiting for your reply"),
	}

	got := a.AnalyzeLatestComment(context.Background(), comments)
	if got.Matches {
		t.Fatalf("got %+v, walk must not look past the first staff comment", got)
	}
	for _, id := range users.lookups {
		if id == requiredAgent {
			t.Error("required agent's older comment was consulted")
		}
	}
}

func TestWalkSkipsConsecutiveEndUserComments(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, requiredAgent, nil)
	comments := []domain.Comment{
		comment(4, customer, "?"),
		comment(3, lightAgent, "side note"),
		comment(2, customer, "sent the file"),
		comment(1, requiredAgent, "نحتاج إلى مزيد من المعلومات لمتابعة طلبك"),
	}

	got := a.AnalyzeLatestComment(context.Background(), comments)
	if !got.Matches || got.Comment.ID != 1 {
		t.Fatalf("got %+v", got)
	}
	if got.TriggerReason != domain.TriggerEndUserReplyChain {
		t.Errorf("TriggerReason = %s", got.TriggerReason)
	}
}

func TestWalkWithoutStaffCommentDoesNotMatch(t *testing.T) {
	a := NewAnalyzer(newStubUsers(), nil, requiredAgent, nil)
	comments := []domain.Comment{
		comment(2, customer, "Waiting for your reply"),
		comment(1, customer, "first"),
	}
	if got := a.AnalyzeLatestComment(context.Background(), comments); got.Matches {
		t.Fatalf("got %+v", got)
	}
}

func TestLookupFailureFallsBackToNewestComment(t *testing.T) {
	users := newStubUsers()
	users.fail[otherAgent] = true
	a := NewAnalyzer(users, nil, requiredAgent, nil)

	// The walk hits an unresolvable author; the fallback re-examines the
	// newest comment, not the one being walked.
	comments := []domain.Comment{
		comment(3, customer, "thanks"),
		comment(2, otherAgent, "x"),
		comment(1, requiredAgent, "Waiting for your reply"),
	}
	got := a.AnalyzeLatestComment(context.Background(), comments)
	if got.Matches || !got.Fallback {
		t.Fatalf("got %+v, want fallback no-match", got)
	}

	users.fail[requiredAgent] = true
	got = a.AnalyzeLatestComment(context.Background(), []domain.Comment{
		comment(9, requiredAgent, "Waiting for your reply"),
	})
	if !got.Matches || !got.Fallback || got.TriggerReason != domain.TriggerDirectMatch {
		t.Fatalf("got %+v, want fallback direct match", got)
	}
}

func TestPhraseOrderIsTieBreak(t *testing.T) {
	phrases := []string{"second thing", "first thing"}
	a := NewAnalyzer(newStubUsers(), phrases, requiredAgent, nil)

	phrase, ok := a.CheckTriggerPhrases(comment(1, requiredAgent, "first thing then second thing"))
	if !ok || phrase != "second thing" {
		t.Fatalf("phrase = %q, ok = %v", phrase, ok)
	}
}
