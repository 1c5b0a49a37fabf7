// Package funnel derives buyer-progress counts for a listing. Counts are
// recomputed from ledger state on every call, with no cached counters, so they
// can never drift from the source of truth. Cost is O(recipients), which is
// fine at the hundreds-of-buyers scale a listing sees.
package funnel

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Counts is the ordered set of funnel-stage totals. For every listing
// InDataRoom <= NDASigned <= Authorized <= Distributed and
// Interested <= Responded <= Distributed. Authorization does not require a
// prior response, so Authorized and Responded are not ordered relative to
// each other.
type Counts struct {
	Distributed int `json:"distributed"`
	Responded   int `json:"responded"`
	Interested  int `json:"interested"`
	Authorized  int `json:"authorized"`
	NDASigned   int `json:"ndaSigned"`
	InDataRoom  int `json:"inDataRoom"`
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so a caller that
// needs the counts inside a transaction gets a consistent snapshot for free.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Aggregator computes funnel counts from the recipient and ledger tables.
type Aggregator struct {
	q Querier
}

func New(q Querier) *Aggregator {
	return &Aggregator{q: q}
}

// Compute returns the six funnel counts for the listing. Recipients pending
// account resolution are de-duplicated by email instead of buyer id.
func (a *Aggregator) Compute(ctx context.Context, listingID string) (Counts, error) {
	const query = `
		SELECT
			(SELECT COUNT(DISTINCT COALESCE(r.buyer_id::text, r.email))
			 FROM recipients r
			 JOIN distributions d ON d.id = r.distribution_id
			 WHERE d.listing_id = $1) AS distributed,
			COUNT(*) FILTER (WHERE e.response <> 'not_responded') AS responded,
			COUNT(*) FILTER (WHERE e.response IN ('interested','interested_with_conditions')) AS interested,
			COUNT(*) FILTER (WHERE e.auth_status = 'authorized') AS authorized,
			COUNT(*) FILTER (WHERE e.nda_status = 'signed') AS nda_signed,
			COUNT(*) FILTER (WHERE e.auth_status = 'authorized' AND e.nda_status = 'signed') AS in_data_room
		FROM ledger_entries e
		WHERE e.listing_id = $1
	`

	var c Counts
	err := a.q.QueryRow(ctx, query, listingID).Scan(
		&c.Distributed,
		&c.Responded,
		&c.Interested,
		&c.Authorized,
		&c.NDASigned,
		&c.InDataRoom,
	)
	if err != nil {
		return Counts{}, fmt.Errorf("funnel: compute: %w", err)
	}
	return c, nil
}
