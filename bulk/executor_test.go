package bulk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"dealgate/ledger"
)

func TestRun_MixedOutcomes(t *testing.T) {
	actions := &fakeActions{
		failures: map[string]error{"nonexistent": ledger.ErrEntryNotFound},
	}
	exec := NewExecutor(actions, &fakeListings{exists: true})

	op, err := exec.Run(context.Background(), KindAuthorize, "l1", []string{"a", "b", "nonexistent"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := op.Snapshot()
	if snap.Total != 3 || snap.Completed != 3 {
		t.Fatalf("expected 3/3 completed, got %+v", snap)
	}
	if snap.Succeeded != 2 || snap.Failed != 1 {
		t.Fatalf("expected 2 succeeded 1 failed, got %+v", snap)
	}
	if len(snap.Failures) != 1 || snap.Failures[0].Target != "nonexistent" {
		t.Fatalf("expected failure naming nonexistent, got %+v", snap.Failures)
	}
	if !strings.Contains(snap.Failures[0].Message, "not found") {
		t.Errorf("expected failure message from item error, got %q", snap.Failures[0].Message)
	}
	if !snap.Done {
		t.Errorf("expected done")
	}
}

func TestRun_EmptyInput(t *testing.T) {
	exec := NewExecutor(&fakeActions{}, &fakeListings{exists: true})

	op, err := exec.Run(context.Background(), KindDecline, "l1", nil, "pass")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := op.Snapshot()
	if snap.Total != 0 || snap.Completed != 0 || !snap.Done {
		t.Fatalf("expected empty completed operation, got %+v", snap)
	}
}

func TestRun_DuplicateTargetsAttemptedIndependently(t *testing.T) {
	actions := &fakeActions{}
	exec := NewExecutor(actions, &fakeListings{exists: true})

	op, err := exec.Run(context.Background(), KindAuthorize, "l1", []string{"a", "a", "a"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := op.Snapshot()
	if snap.Succeeded != 3 || snap.Failed != 0 || snap.Completed != 3 {
		t.Fatalf("expected 3 idempotent successes, got %+v", snap)
	}
	if actions.calls["a"] != 3 {
		t.Fatalf("expected 3 attempts on a, got %d", actions.calls["a"])
	}
}

func TestRun_UnknownKind(t *testing.T) {
	exec := NewExecutor(&fakeActions{}, &fakeListings{exists: true})

	if _, err := exec.Run(context.Background(), Kind("promote"), "l1", []string{"a"}, ""); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestRun_ListingMissingIsBatchLevel(t *testing.T) {
	exec := NewExecutor(&fakeActions{}, &fakeListings{exists: false})

	if _, err := exec.Run(context.Background(), KindAuthorize, "nope", []string{"a"}, ""); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestRun_DeclinePassesReason(t *testing.T) {
	actions := &fakeActions{}
	exec := NewExecutor(actions, &fakeListings{exists: true})

	if _, err := exec.Run(context.Background(), KindDecline, "l1", []string{"a"}, "budget withdrawn"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actions.lastReason != "budget withdrawn" {
		t.Fatalf("expected reason forwarded, got %q", actions.lastReason)
	}
}

func TestSnapshot_ConsistentUnderConcurrency(t *testing.T) {
	targets := make([]string, 500)
	for i := range targets {
		targets[i] = "buyer"
	}

	actions := &fakeActions{}
	exec := NewExecutor(actions, &fakeListings{exists: true}).WithFanOut(16)

	op, err := exec.Start(context.Background(), KindAuthorize, "l1", targets, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Poll aggressively while workers run; every observation must be
	// internally consistent.
	for !op.Done() {
		snap := op.Snapshot()
		if snap.Completed > snap.Total {
			t.Fatalf("completed %d exceeds total %d", snap.Completed, snap.Total)
		}
		if snap.Succeeded+snap.Failed > snap.Completed {
			t.Fatalf("outcomes %d exceed completed %d", snap.Succeeded+snap.Failed, snap.Completed)
		}
	}
	op.Wait()

	final := op.Snapshot()
	if final.Succeeded+final.Failed != final.Total {
		t.Fatalf("expected outcomes to cover total, got %+v", final)
	}
}

type fakeActions struct {
	mu         sync.Mutex
	calls      map[string]int
	failures   map[string]error
	lastReason string
}

func (f *fakeActions) record(buyerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[buyerID]++
	if err, ok := f.failures[buyerID]; ok {
		return err
	}
	return nil
}

func (f *fakeActions) Authorize(ctx context.Context, listingID, buyerID string) (ledger.Entry, error) {
	if err := f.record(buyerID); err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{ListingID: listingID, BuyerID: buyerID, AuthStatus: ledger.AuthAuthorized}, nil
}

func (f *fakeActions) Decline(ctx context.Context, listingID, buyerID, reason string) (ledger.Entry, error) {
	f.mu.Lock()
	f.lastReason = reason
	f.mu.Unlock()
	if err := f.record(buyerID); err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{ListingID: listingID, BuyerID: buyerID, AuthStatus: ledger.AuthDeclined}, nil
}

type fakeListings struct {
	exists bool
}

func (f *fakeListings) Exists(ctx context.Context, listingID string) (bool, error) {
	return f.exists, nil
}
