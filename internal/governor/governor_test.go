package governor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spec-kit/rumi-monitor/internal/clock"
)

func newTestGovernor(limit, threshold int) (*Governor, *clock.FakeClock) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return New(Config{RateLimitPerMinute: limit, CircuitThreshold: threshold}, clk), clk
}

func TestBudgetIsHalfTheRateLimit(t *testing.T) {
	g, _ := newTestGovernor(10, 3)
	if g.Budget() != 5 {
		t.Fatalf("Budget = %d, want 5", g.Budget())
	}
	for i := 0; i < 4; i++ {
		if !g.Acquire() {
			t.Fatalf("Acquire %d refused", i)
		}
	}
	if !g.MayProceed() {
		t.Fatal("MayProceed false with budget left")
	}
	if g.RemainingBudget() != 1 {
		t.Fatalf("RemainingBudget = %d", g.RemainingBudget())
	}
	if !g.Acquire() {
		t.Fatal("last slot refused")
	}
	if g.MayProceed() || g.Acquire() {
		t.Fatal("MayProceed true after budget spent")
	}
	if g.RemainingBudget() != 0 {
		t.Fatalf("RemainingBudget = %d", g.RemainingBudget())
	}
}

func TestWindowRolloverResetsCallsAndErrors(t *testing.T) {
	g, clk := newTestGovernor(10, 3)
	for i := 0; i < 5; i++ {
		g.Acquire()
	}
	g.RecordFailure(FailureServer)

	clk.Advance(time.Minute)

	if !g.MayProceed() {
		t.Fatal("MayProceed false after rollover")
	}
	if g.ConsecutiveErrors() != 0 {
		t.Fatalf("ConsecutiveErrors = %d after rollover", g.ConsecutiveErrors())
	}
}

func TestWaitDurationFloor(t *testing.T) {
	g, clk := newTestGovernor(10, 3)
	clk.Advance(58 * time.Second)
	if got := g.WaitDuration(); got != 5*time.Second {
		t.Fatalf("WaitDuration = %s, want floor 5s", got)
	}

	g2, clk2 := newTestGovernor(10, 3)
	clk2.Advance(10 * time.Second)
	if got := g2.WaitDuration(); got != 50*time.Second {
		t.Fatalf("WaitDuration = %s, want 50s", got)
	}
}

func TestOnlyServerFailuresCount(t *testing.T) {
	g, _ := newTestGovernor(100, 2)

	g.RecordFailure(FailureRateLimited)
	g.RecordFailure(FailureClient)
	if g.ConsecutiveErrors() != 0 {
		t.Fatalf("ConsecutiveErrors = %d, want 0", g.ConsecutiveErrors())
	}

	if g.RecordFailure(FailureServer) {
		t.Fatal("tripped after one failure")
	}
	if !g.RecordFailure(FailureServer) {
		t.Fatal("expected trip at threshold")
	}
	if !g.Tripped() || g.MayProceed() {
		t.Fatal("tripped governor must halt")
	}

	g.ResetErrors()
	if g.Tripped() || !g.MayProceed() {
		t.Fatal("ResetErrors did not close breaker")
	}
}

func TestSuccessClearsConsecutiveErrors(t *testing.T) {
	g, _ := newTestGovernor(100, 3)
	g.RecordFailure(FailureServer)
	g.RecordFailure(FailureServer)
	g.RecordSuccess()
	if g.ConsecutiveErrors() != 0 {
		t.Fatalf("ConsecutiveErrors = %d", g.ConsecutiveErrors())
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]FailureKind{
		429: FailureRateLimited,
		400: FailureClient,
		404: FailureClient,
		500: FailureServer,
		503: FailureServer,
	}
	for status, want := range cases {
		if got := ClassifyStatus(status); got != want {
			t.Errorf("ClassifyStatus(%d) = %s, want %s", status, got, want)
		}
	}
}

func TestAcquireNeverExceedsBudgetUnderContention(t *testing.T) {
	g, clk := newTestGovernor(10, 3)

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire() {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()
	if granted != 5 {
		t.Fatalf("granted = %d, want budget 5", granted)
	}
	if g.Snapshot().Calls != 5 {
		t.Fatalf("Calls = %d", g.Snapshot().Calls)
	}

	clk.Advance(time.Minute)
	if !g.Acquire() {
		t.Fatal("Acquire refused after rollover")
	}
}
