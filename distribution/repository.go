package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested distribution does not exist.
	ErrNotFound = errors.New("distribution: not found")
	// ErrListingNotFound signals the target listing does not exist.
	ErrListingNotFound = errors.New("distribution: listing not found")
	// ErrDuplicateRecipient signals the email is already a recipient of the
	// distribution.
	ErrDuplicateRecipient = errors.New("distribution: already a recipient")
)

// Repository defines the data access the registry service requires.
type Repository interface {
	ListingExists(ctx context.Context, tx pgx.Tx, listingID string) (bool, error)
	Insert(ctx context.Context, tx pgx.Tx, listingID string, listingType ListingType) (Distribution, error)
	Get(ctx context.Context, id string) (Distribution, error)
	AddRecipient(ctx context.Context, tx pgx.Tx, distributionID string, buyerID *string, email string) (Recipient, error)
	SeedLedgerEntry(ctx context.Context, tx pgx.Tx, listingID, buyerID string) error
	CreateInvitation(ctx context.Context, tx pgx.Tx, email string) error
	ListByListing(ctx context.Context, listingID string) ([]Distribution, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) ListingExists(ctx context.Context, tx pgx.Tx, listingID string) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, listingID).Scan(&exists); err != nil {
		return false, fmt.Errorf("distribution: check listing: %w", err)
	}
	return exists, nil
}

func (r *PGRepository) Insert(ctx context.Context, tx pgx.Tx, listingID string, listingType ListingType) (Distribution, error) {
	const query = `
		INSERT INTO distributions (listing_id, listing_type)
		VALUES ($1, $2::listing_type)
		RETURNING id, listing_id, listing_type::text, created_at
	`

	var d Distribution
	err := tx.QueryRow(ctx, query, listingID, listingType).
		Scan(&d.ID, &d.ListingID, &d.ListingType, &d.CreatedAt)
	if err != nil {
		return Distribution{}, fmt.Errorf("distribution: insert: %w", err)
	}
	return d, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Distribution, error) {
	const query = `
		SELECT id, listing_id, listing_type::text, created_at
		FROM distributions
		WHERE id = $1
	`

	var d Distribution
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&d.ID, &d.ListingID, &d.ListingType, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Distribution{}, ErrNotFound
		}
		return Distribution{}, fmt.Errorf("distribution: get: %w", err)
	}
	return d, nil
}

// AddRecipient inserts the recipient row. A duplicate is reported as
// ErrDuplicateRecipient via the empty RETURNING set instead of a unique
// violation, so the surrounding transaction stays usable and the caller can
// keep inserting the rest of the batch.
func (r *PGRepository) AddRecipient(ctx context.Context, tx pgx.Tx, distributionID string, buyerID *string, email string) (Recipient, error) {
	const query = `
		INSERT INTO recipients (distribution_id, buyer_id, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (distribution_id, email) DO NOTHING
		RETURNING id, distribution_id, buyer_id, email, delivered_at
	`

	var rec Recipient
	err := tx.QueryRow(ctx, query, distributionID, buyerID, email).
		Scan(&rec.ID, &rec.DistributionID, &rec.BuyerID, &rec.Email, &rec.DeliveredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipient{}, ErrDuplicateRecipient
		}
		return Recipient{}, fmt.Errorf("distribution: add recipient: %w", err)
	}
	return rec, nil
}

// SeedLedgerEntry creates the buyer's ledger entry if none exists yet. This is
// the only writer that may create ledger rows; every other component only
// transitions existing ones.
func (r *PGRepository) SeedLedgerEntry(ctx context.Context, tx pgx.Tx, listingID, buyerID string) error {
	const query = `
		INSERT INTO ledger_entries (listing_id, buyer_id)
		VALUES ($1, $2)
		ON CONFLICT (listing_id, buyer_id) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, listingID, buyerID); err != nil {
		return fmt.Errorf("distribution: seed ledger entry: %w", err)
	}
	return nil
}

func (r *PGRepository) CreateInvitation(ctx context.Context, tx pgx.Tx, email string) error {
	const query = `
		INSERT INTO invitations (email)
		VALUES ($1)
		ON CONFLICT (email) DO NOTHING
	`
	if _, err := tx.Exec(ctx, query, email); err != nil {
		return fmt.Errorf("distribution: create invitation: %w", err)
	}
	return nil
}

// ListByListing returns every distribution for a listing with its recipients.
// No ordering is guaranteed; consumers sort if they need to.
func (r *PGRepository) ListByListing(ctx context.Context, listingID string) ([]Distribution, error) {
	const query = `
		SELECT id, listing_id, listing_type::text, created_at
		FROM distributions
		WHERE listing_id = $1
	`

	rows, err := r.pool.Query(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("distribution: list: %w", err)
	}
	defer rows.Close()

	list := []Distribution{}
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.ID, &d.ListingID, &d.ListingType, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("distribution: scan: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("distribution: iterate: %w", err)
	}

	const recipientQuery = `
		SELECT id, distribution_id, buyer_id, email, delivered_at
		FROM recipients
		WHERE distribution_id = $1
	`
	for i := range list {
		recRows, err := r.pool.Query(ctx, recipientQuery, list[i].ID)
		if err != nil {
			return nil, fmt.Errorf("distribution: list recipients: %w", err)
		}
		recipients := []Recipient{}
		for recRows.Next() {
			var rec Recipient
			if err := recRows.Scan(&rec.ID, &rec.DistributionID, &rec.BuyerID, &rec.Email, &rec.DeliveredAt); err != nil {
				recRows.Close()
				return nil, fmt.Errorf("distribution: scan recipient: %w", err)
			}
			recipients = append(recipients, rec)
		}
		recRows.Close()
		if err := recRows.Err(); err != nil {
			return nil, fmt.Errorf("distribution: iterate recipients: %w", err)
		}
		list[i].Recipients = recipients
	}

	return list, nil
}

var _ Repository = (*PGRepository)(nil)
