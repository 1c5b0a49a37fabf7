package listing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGDealRecorder is the default DealCreator: it writes the closed deal into
// the local deals table. Deployments that hand conversion to a remote
// deal-creation service swap in their own DealCreator.
type PGDealRecorder struct {
	pool *pgxpool.Pool
}

func NewDealRecorder(pool *pgxpool.Pool) *PGDealRecorder {
	return &PGDealRecorder{pool: pool}
}

// CreateDeal inserts the durable deal record and returns its identifier. The
// unique constraint on listing_id makes a second conversion attempt for the
// same listing fail loudly instead of creating a duplicate deal.
func (r *PGDealRecorder) CreateDeal(ctx context.Context, params DealParams) (string, error) {
	const query = `
		INSERT INTO deals (listing_id, winning_buyer_id, notes)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	var id string
	if err := r.pool.QueryRow(ctx, query, params.ListingID, params.WinningBuyerID, params.Notes).Scan(&id); err != nil {
		return "", fmt.Errorf("listing: record deal: %w", err)
	}
	return id, nil
}

var _ DealCreator = (*PGDealRecorder)(nil)
