package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealgate/bulk"
	"dealgate/funnel"
	"dealgate/ledger"
)

var responses = []ledger.Response{
	ledger.ResponseInterested,
	ledger.ResponseInterestedConditions,
	ledger.ResponsePassed,
}

// Responder overwrites random buyers' responses, last write wins.
func Responder(ctx context.Context, svc *ledger.Service, listingID string, buyers []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		buyer := buyers[rand.Intn(len(buyers))]
		resp := responses[rand.Intn(len(responses))]
		if _, err := svc.RecordResponse(ctx, listingID, buyer, resp, "stress"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("responder: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(15)) * time.Millisecond)
	}
}

// Authorizer races Decliner over the same buyers. A declined buyer is a legal
// loss, anything else is a harness failure.
func Authorizer(ctx context.Context, svc *ledger.Service, listingID string, buyers []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		buyer := buyers[rand.Intn(len(buyers))]
		if _, err := svc.Authorize(ctx, listingID, buyer); err != nil && !errors.Is(err, ledger.ErrDeclinedTerminal) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("authorizer: %w", err)
		}
		time.Sleep(time.Duration(5+rand.Intn(20)) * time.Millisecond)
	}
}

// Decliner declines a random buyer now and then. Repeats are idempotent.
func Decliner(ctx context.Context, svc *ledger.Service, listingID string, buyers []string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		if rand.Intn(4) == 0 {
			buyer := buyers[rand.Intn(len(buyers))]
			if _, err := svc.Decline(ctx, listingID, buyer, "stress decline"); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("decliner: %w", err)
			}
		}
		time.Sleep(time.Duration(30+rand.Intn(50)) * time.Millisecond)
	}
}

// NDARunner pushes random buyers down the NDA path. Gating rejections are
// expected under contention; only unexpected errors surface.
func NDARunner(ctx context.Context, svc *ledger.Service, listingID string, buyers []string, stop <-chan struct{}) error {
	expected := func(err error) bool {
		return errors.Is(err, ledger.ErrNotAuthorized) ||
			errors.Is(err, ledger.ErrNDANotSent) ||
			errors.Is(err, ledger.ErrDeclinedTerminal)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		buyer := buyers[rand.Intn(len(buyers))]
		if _, err := svc.SendNDA(ctx, listingID, buyer); err != nil && !expected(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("nda send: %w", err)
		}
		if _, err := svc.ConfirmNDASigned(ctx, listingID, buyer); err != nil && !expected(err) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("nda confirm: %w", err)
		}
		time.Sleep(time.Duration(10+rand.Intn(30)) * time.Millisecond)
	}
}

// BulkRunner fires small batches of authorize and decline decisions. Per-item
// failures are absorbed by the operation; only batch-level errors surface.
func BulkRunner(ctx context.Context, exec *bulk.Executor, listingID string, buyers []string, stop <-chan struct{}) error {
	kinds := []bulk.Kind{bulk.KindAuthorize, bulk.KindDecline}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n := 1 + rand.Intn(len(buyers))
		batch := make([]string, n)
		for i := range batch {
			batch[i] = buyers[rand.Intn(len(buyers))]
		}
		op, err := exec.Run(ctx, kinds[rand.Intn(len(kinds))], listingID, batch, "bulk stress")
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("bulk run: %w", err)
		}
		snap := op.Snapshot()
		if snap.Completed != snap.Total || !snap.Done {
			return fmt.Errorf("bulk run: incomplete operation %+v", snap)
		}
		time.Sleep(time.Duration(100+rand.Intn(200)) * time.Millisecond)
	}
}

// FunnelReader polls the aggregate counts and checks the monotone chain on
// every read. The chain must hold at any instant, not just at quiescence.
func FunnelReader(ctx context.Context, pool *pgxpool.Pool, listingID string, stop <-chan struct{}) error {
	agg := funnel.New(pool)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		c, err := agg.Compute(ctx, listingID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("funnel read: %w", err)
		}
		if c.InDataRoom > c.NDASigned || c.NDASigned > c.Authorized ||
			c.Authorized > c.Distributed ||
			c.Interested > c.Responded || c.Responded > c.Distributed {
			return fmt.Errorf("funnel chain violated: %+v", c)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}
