package service

import (
	"context"
	"errors"
	"testing"

	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/events"
	"github.com/spec-kit/rumi-monitor/internal/helpdesk"
)

func TestProcessTicketMovesToPending(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(12, domain.TicketStatusOpen, domain.TicketPriorityNormal)

	res, err := fx.processor.ProcessTicket(context.Background(), "12", "Support")
	if err != nil {
		t.Fatalf("ProcessTicket: %v", err)
	}
	if !res.Processed || res.Result == nil || res.Result.Hypothetical {
		t.Fatalf("result = %+v", res)
	}
	if fx.api.updateCount() != 1 || fx.api.updates[0].fields["status"] != "pending" {
		t.Fatalf("updates = %+v", fx.api.updates)
	}
	if _, ok := fx.api.updates[0].fields["priority"]; ok {
		t.Error("priority must only change in marker views")
	}

	entries, _ := fx.history.List(context.Background())
	if len(entries) != 1 {
		t.Fatalf("history = %d", len(entries))
	}
	e := entries[0]
	if e.TicketID != 12 || e.PreviousStatus != domain.TicketStatusOpen || e.Phrase != triggerPhrase ||
		e.TriggerReason != domain.TriggerDirectMatch || e.TriggerCommentID != 121 || e.DryRun {
		t.Errorf("entry = %+v", e)
	}
	if !fx.processor.Processed().Has(12) {
		t.Error("ticket not added to processed set")
	}
	if got := fx.eventTypes(); len(got) != 1 || got[0] != events.EventTicketProcessed {
		t.Errorf("events = %v", got)
	}
}

func TestProcessTicketAlreadyPendingIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(5, domain.TicketStatusPending, domain.TicketPriorityNormal)

	res, err := fx.processor.ProcessTicket(context.Background(), 5, "Support")
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed || res.Reason != ReasonAlreadyPending {
		t.Fatalf("result = %+v", res)
	}
	if fx.api.updateCount() != 0 {
		t.Error("no update expected")
	}
	if entries, _ := fx.history.List(context.Background()); len(entries) != 0 {
		t.Error("no history expected")
	}
}

func TestProcessTicketNoMatch(t *testing.T) {
	fx := newFixture(t)
	fx.api.tickets[8] = domain.Ticket{ID: 8, Status: domain.TicketStatusOpen}
	fx.api.comments[8] = []domain.Comment{{ID: 80, AuthorID: requiredAgent, Body: "Resolved, thanks"}}

	res, err := fx.processor.ProcessTicket(context.Background(), int64(8), "Support")
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed || res.Reason != ReasonNoMatch {
		t.Fatalf("result = %+v", res)
	}
}

func TestProcessTicketInvalidInput(t *testing.T) {
	fx := newFixture(t)
	for _, input := range []any{nil, "abc", -4, 0, struct{}{}} {
		res, err := fx.processor.ProcessTicket(context.Background(), input, "Support")
		if err != nil {
			t.Fatalf("%v: unexpected error %v", input, err)
		}
		if res.Processed || res.Reason != ReasonInvalidInput {
			t.Errorf("%v: result = %+v", input, res)
		}
	}
}

func TestProcessTicketDryRunSkipsMutation(t *testing.T) {
	fx := newFixture(t)
	fx.processor.SetDryRun(true)
	fx.api.addTriggered(21, domain.TicketStatusOpen, domain.TicketPriorityUrgent)

	res, err := fx.processor.ProcessTicket(context.Background(), domain.Ticket{ID: 21}, "SSOC - Egypt Tier 1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Processed || !res.Result.Hypothetical {
		t.Fatalf("result = %+v", res)
	}
	if res.Result.Fields["status"] != "pending" || res.Result.Fields["priority"] != "normal" {
		t.Errorf("fields = %v", res.Result.Fields)
	}
	if fx.api.updateCount() != 0 {
		t.Error("dry run must not call update")
	}
	if !res.Result.Entry.DryRun || !fx.processor.Processed().Has(21) {
		t.Errorf("entry = %+v", res.Result.Entry)
	}
}

func TestProcessTicketDowngradesElevatedPriorityInMarkerView(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(30, domain.TicketStatusOpen, domain.TicketPriorityHigh)
	fx.api.addTriggered(31, domain.TicketStatusOpen, domain.TicketPriorityLow)

	if _, err := fx.processor.ProcessTicket(context.Background(), 30, "SSOC - GCC Escalations"); err != nil {
		t.Fatal(err)
	}
	if _, err := fx.processor.ProcessTicket(context.Background(), 31, "SSOC - GCC Escalations"); err != nil {
		t.Fatal(err)
	}
	if got := fx.api.updates[0].fields["priority"]; got != "normal" {
		t.Errorf("high priority not downgraded: %v", fx.api.updates[0].fields)
	}
	if _, ok := fx.api.updates[1].fields["priority"]; ok {
		t.Errorf("low priority must stay: %v", fx.api.updates[1].fields)
	}
}

func TestProcessTicketStatusFetchIsBestEffort(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(40, domain.TicketStatusOpen, domain.TicketPriorityUrgent)
	fx.api.getErr = errors.New("timeout")

	res, err := fx.processor.ProcessTicket(context.Background(), 40, "SSOC - Egypt")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Processed || res.Result.Entry.PreviousStatus != domain.TicketStatusUnknown {
		t.Fatalf("result = %+v", res)
	}
	if _, ok := fx.api.updates[0].fields["priority"]; ok {
		t.Error("priority unknown, only status should be updated")
	}
}

func TestProcessTicketUpdateErrorPropagates(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(50, domain.TicketStatusOpen, domain.TicketPriorityNormal)
	fx.api.updateErr = &helpdesk.AuthTokenMissingError{Tried: []string{"page-metadata"}}

	_, err := fx.processor.ProcessTicket(context.Background(), 50, "Support")
	var tm *helpdesk.AuthTokenMissingError
	if !errors.As(err, &tm) {
		t.Fatalf("err = %v", err)
	}
	if fx.processor.Processed().Has(50) {
		t.Error("failed update must not mark ticket processed")
	}
}

func TestProcessTicketSkipsTicketAlreadyProcessed(t *testing.T) {
	fx := newFixture(t)
	fx.processor.SetDryRun(true)
	fx.api.addTriggered(13, domain.TicketStatusOpen, domain.TicketPriorityNormal)

	if res, err := fx.processor.ProcessTicket(context.Background(), 13, "Support"); err != nil || !res.Processed {
		t.Fatalf("first run = %+v, %v", res, err)
	}
	res, err := fx.processor.ProcessTicket(context.Background(), "#13", ManualTestView)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed || res.Reason != ReasonAlreadyProcessed {
		t.Fatalf("second run = %+v", res)
	}
	if entries, _ := fx.history.List(context.Background()); len(entries) != 1 {
		t.Errorf("history = %d entries, want 1", len(entries))
	}

	fx.processor.Processed().Reset()
	if res, _ := fx.processor.ProcessTicket(context.Background(), 13, ManualTestView); !res.Processed {
		t.Errorf("after reset = %+v", res)
	}
}

func TestProcessTicketConcurrentCallsForSameTicket(t *testing.T) {
	fx := newFixture(t)
	fx.api.addTriggered(14, domain.TicketStatusOpen, domain.TicketPriorityNormal)
	fx.api.gate = make(chan struct{})
	fx.api.entered = make(chan struct{}, 1)

	type outcome struct {
		res ProcessResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fx.processor.ProcessTicket(context.Background(), 14, "Support")
		done <- outcome{res, err}
	}()
	<-fx.api.entered

	res, err := fx.processor.ProcessTicket(context.Background(), "14", ManualTestView)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed || res.Reason != ReasonInProgress {
		t.Fatalf("concurrent run = %+v", res)
	}

	close(fx.api.gate)
	first := <-done
	if first.err != nil || !first.res.Processed {
		t.Fatalf("first run = %+v, %v", first.res, first.err)
	}
	if fx.api.updateCount() != 1 {
		t.Errorf("updates = %d, want 1", fx.api.updateCount())
	}
}
