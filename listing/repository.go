package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested listing does not exist.
var ErrNotFound = errors.New("listing: not found")

// Repository defines the data access the progression controller requires.
type Repository interface {
	Insert(ctx context.Context, sellerID string, listingType Type) (Listing, error)
	Get(ctx context.Context, id string) (Listing, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error)
	UpdatePhase(ctx context.Context, tx pgx.Tx, id string, phase Phase) (Listing, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const listingColumns = `id, seller_id, type::text, phase::text, created_at, updated_at`

func (r *PGRepository) Insert(ctx context.Context, sellerID string, listingType Type) (Listing, error) {
	query := fmt.Sprintf(`
		INSERT INTO listings (seller_id, type)
		VALUES ($1, $2::listing_type)
		RETURNING %s
	`, listingColumns)

	l, err := scanListing(r.pool.QueryRow(ctx, query, sellerID, listingType))
	if err != nil {
		return Listing{}, fmt.Errorf("listing: insert: %w", err)
	}
	return l, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1`, listingColumns)

	l, err := scanListing(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get: %w", err)
	}
	return l, nil
}

func (r *PGRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM listings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("listing: check exists: %w", err)
	}
	return exists, nil
}

// GetForUpdate holds the listing's row lock so phase transitions serialize.
func (r *PGRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error) {
	query := fmt.Sprintf(`SELECT %s FROM listings WHERE id = $1 FOR UPDATE`, listingColumns)

	l, err := scanListing(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: get for update: %w", err)
	}
	return l, nil
}

func (r *PGRepository) UpdatePhase(ctx context.Context, tx pgx.Tx, id string, phase Phase) (Listing, error) {
	query := fmt.Sprintf(`
		UPDATE listings
		SET phase = $2::deal_phase,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
		RETURNING %s
	`, listingColumns)

	l, err := scanListing(tx.QueryRow(ctx, query, id, phase))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrNotFound
		}
		return Listing{}, fmt.Errorf("listing: update phase: %w", err)
	}
	return l, nil
}

func scanListing(row pgx.Row) (Listing, error) {
	var l Listing
	return l, row.Scan(
		&l.ID,
		&l.SellerID,
		&l.Type,
		&l.Phase,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
}

var _ Repository = (*PGRepository)(nil)
