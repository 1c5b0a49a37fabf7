package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Repository defines the data access the ledger service requires. Both reads
// take the entry's row lock so every mutation on the same (listing, buyer)
// pair serializes on it.
type Repository interface {
	GetForUpdate(ctx context.Context, tx pgx.Tx, listingID, buyerID string) (Entry, error)
	Save(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error)
}

// PGRepository implements Repository against the ledger_entries table.
type PGRepository struct{}

func NewRepository() *PGRepository {
	return &PGRepository{}
}

const entryColumns = `listing_id, buyer_id, response::text, message, responded_at, auth_status::text, decline_reason, nda_status::text, updated_at`

// GetForUpdate fetches the entry and holds its row lock for the transaction.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, listingID, buyerID string) (Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ledger_entries
		WHERE listing_id = $1 AND buyer_id = $2
		FOR UPDATE
	`, entryColumns)

	entry, err := scanEntry(tx.QueryRow(ctx, query, listingID, buyerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("ledger: get for update: %w", err)
	}
	return entry, nil
}

// Save writes every mutable column of the entry back.
func (r *PGRepository) Save(ctx context.Context, tx pgx.Tx, entry Entry) (Entry, error) {
	query := fmt.Sprintf(`
		UPDATE ledger_entries
		SET response = $3::buyer_response,
		    message = $4,
		    responded_at = $5,
		    auth_status = $6::auth_status,
		    decline_reason = $7,
		    nda_status = $8::nda_status,
		    updated_at = get_tx_timestamp()
		WHERE listing_id = $1 AND buyer_id = $2
		RETURNING %s
	`, entryColumns)

	saved, err := scanEntry(tx.QueryRow(ctx, query,
		entry.ListingID,
		entry.BuyerID,
		entry.Response,
		entry.Message,
		entry.RespondedAt,
		entry.AuthStatus,
		entry.DeclineReason,
		entry.NDAStatus,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, fmt.Errorf("ledger: save entry: %w", err)
	}
	return saved, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	return e, row.Scan(
		&e.ListingID,
		&e.BuyerID,
		&e.Response,
		&e.Message,
		&e.RespondedAt,
		&e.AuthStatus,
		&e.DeclineReason,
		&e.NDAStatus,
		&e.UpdatedAt,
	)
}

// Ensure PGRepository keeps satisfying Repository.
var _ Repository = (*PGRepository)(nil)

// Querier is the read-side query surface shared by pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Reader serves lock-free ledger reads straight off the pool.
type Reader struct {
	q Querier
}

func NewReader(q Querier) *Reader {
	return &Reader{q: q}
}

// EntriesForListing lists every ledger entry for a listing. No locking is
// involved; callers get a point-in-time view.
func (r *Reader) EntriesForListing(ctx context.Context, listingID string) ([]Entry, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM ledger_entries
		WHERE listing_id = $1
	`, entryColumns)

	rows, err := r.q.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, 8)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ListingID,
			&e.BuyerID,
			&e.Response,
			&e.Message,
			&e.RespondedAt,
			&e.AuthStatus,
			&e.DeclineReason,
			&e.NDAStatus,
			&e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate entries: %w", err)
	}
	return out, nil
}
