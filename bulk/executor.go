// Package bulk applies a single decision across many targets with per-target
// failure accounting. One bad target never blocks the rest of the batch; the
// aggregate counts are a commutative reduction over independent per-item
// outcomes, so the processing order does not matter.
package bulk

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"dealgate/ledger"
)

// Kind selects the per-item decision a bulk run applies.
type Kind string

const (
	KindAuthorize Kind = "authorize"
	KindDecline   Kind = "decline"
)

var (
	// ErrUnknownKind signals an operation kind the executor cannot dispatch.
	ErrUnknownKind = errors.New("bulk: unknown operation kind")
	// ErrListingNotFound rejects a batch whose listing does not exist.
	ErrListingNotFound = errors.New("bulk: listing not found")
)

// LedgerActions is the slice of the ledger service the executor dispatches to.
type LedgerActions interface {
	Authorize(ctx context.Context, listingID, buyerID string) (ledger.Entry, error)
	Decline(ctx context.Context, listingID, buyerID, reason string) (ledger.Entry, error)
}

// ListingChecker validates the batch-level input before any item runs.
type ListingChecker interface {
	Exists(ctx context.Context, listingID string) (bool, error)
}

// ItemFunc is one independent per-target operation. Errors are captured into
// the operation's failure list, never propagated to the batch caller.
type ItemFunc func(ctx context.Context, target string) error

// Executor fans batch decisions out over a bounded worker pool. Each item
// holds only its own buyer's row lock, so concurrent items need no
// coordination beyond the per-buyer serialization the ledger already does.
type Executor struct {
	actions  LedgerActions
	listings ListingChecker
	fanOut   int
}

func NewExecutor(actions LedgerActions, listings ListingChecker) *Executor {
	return &Executor{
		actions:  actions,
		listings: listings,
		fanOut:   8,
	}
}

// WithFanOut bounds the number of concurrently running items.
func (e *Executor) WithFanOut(n int) *Executor {
	if n > 0 {
		e.fanOut = n
	}
	return e
}

// Run applies the decision to every buyer and returns the completed
// operation. Batch-level input problems (unknown kind, missing listing) are
// returned directly; per-item failures are in the operation's failure list.
func (e *Executor) Run(ctx context.Context, kind Kind, listingID string, buyerIDs []string, reason string) (*Operation, error) {
	op, err := e.Start(ctx, kind, listingID, buyerIDs, reason)
	if err != nil {
		return nil, err
	}
	op.Wait()
	return op, nil
}

// Start validates the batch input, kicks off the workers and returns the
// operation immediately as a pollable progress handle.
func (e *Executor) Start(ctx context.Context, kind Kind, listingID string, buyerIDs []string, reason string) (*Operation, error) {
	item, err := e.itemFor(kind, listingID, reason)
	if err != nil {
		return nil, err
	}

	if e.listings != nil {
		exists, err := e.listings.Exists(ctx, listingID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrListingNotFound
		}
	}

	return e.Execute(ctx, buyerIDs, item), nil
}

// Execute is the generic batch loop, reused by any best-effort bulk flow.
func (e *Executor) Execute(ctx context.Context, targets []string, item ItemFunc) *Operation {
	op := newOperation(len(targets))

	go func() {
		defer op.finish()

		g := &errgroup.Group{}
		g.SetLimit(e.fanOut)

		for _, target := range targets {
			target := target
			g.Go(func() error {
				if err := item(ctx, target); err != nil {
					op.recordFailure(target, err)
				} else {
					op.recordSuccess()
				}
				return nil
			})
		}

		g.Wait()
	}()

	return op
}

func (e *Executor) itemFor(kind Kind, listingID, reason string) (ItemFunc, error) {
	switch kind {
	case KindAuthorize:
		return func(ctx context.Context, buyerID string) error {
			_, err := e.actions.Authorize(ctx, listingID, buyerID)
			return err
		}, nil
	case KindDecline:
		return func(ctx context.Context, buyerID string) error {
			_, err := e.actions.Decline(ctx, listingID, buyerID, reason)
			return err
		}, nil
	default:
		return nil, ErrUnknownKind
	}
}
