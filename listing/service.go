package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"dealgate/funnel"
	"dealgate/ledger"
)

var (
	// ErrNoAuthorizedBuyer signals an advance with zero authorized buyers.
	ErrNoAuthorizedBuyer = errors.New("listing: no authorized buyer")
	// ErrPhase signals a progression call from the wrong phase.
	ErrPhase = errors.New("listing: wrong phase for transition")
	// ErrBuyerNotAuthorized signals a conversion for a buyer who is not authorized.
	ErrBuyerNotAuthorized = errors.New("listing: winning buyer not authorized")
	// ErrNDAUnsigned signals a conversion for a buyer whose NDA is not signed.
	ErrNDAUnsigned = errors.New("listing: winning buyer nda not signed")
	// ErrSellerRequired signals a create call without a seller id.
	ErrSellerRequired = errors.New("listing: seller id required")
	// ErrInvalidType signals an unknown listing type.
	ErrInvalidType = errors.New("listing: invalid type")
)

// DealCreator is the external collaborator that materialises the durable deal
// record. The controller validates eligibility and invokes it exactly once per
// successful conversion; cancellation and timeout policy belong to the caller.
type DealCreator interface {
	CreateDeal(ctx context.Context, params DealParams) (string, error)
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type funnelFunc func(ctx context.Context, q funnel.Querier, listingID string) (funnel.Counts, error)

// Service gates listing phase transitions and performs the terminal
// conversion of a winning buyer into a closed deal.
type Service struct {
	pool        TxBeginner
	repo        Repository
	entries     ledger.Repository
	deals       DealCreator
	funnelCount funnelFunc
}

func NewService(pool TxBeginner, repo Repository, entries ledger.Repository, deals DealCreator) *Service {
	if entries == nil {
		entries = ledger.NewRepository()
	}
	return &Service{
		pool:    pool,
		repo:    repo,
		entries: entries,
		deals:   deals,
		funnelCount: func(ctx context.Context, q funnel.Querier, listingID string) (funnel.Counts, error) {
			return funnel.New(q).Compute(ctx, listingID)
		},
	}
}

// WithFunnel overrides the funnel computation, for tests.
func (s *Service) WithFunnel(fn func(ctx context.Context, q funnel.Querier, listingID string) (funnel.Counts, error)) *Service {
	s.funnelCount = fn
	return s
}

// Create marks a seller's deal draft for sale, opening the distributed phase.
func (s *Service) Create(ctx context.Context, sellerID string, listingType Type) (Listing, error) {
	if sellerID == "" {
		return Listing{}, ErrSellerRequired
	}
	if listingType != TypePublic && listingType != TypePrivate {
		return Listing{}, fmt.Errorf("%w %q", ErrInvalidType, listingType)
	}
	return s.repo.Insert(ctx, sellerID, listingType)
}

// Get returns the listing by id.
func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	return s.repo.Get(ctx, id)
}

// Exists reports whether the listing exists.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.repo.Exists(ctx, id)
}

// AdvanceToActiveDD moves distributed -> active_dd once at least one buyer is
// authorized. The funnel is read inside the same transaction that locks the
// listing row, so the precondition check sees a consistent snapshot.
func (s *Service) AdvanceToActiveDD(ctx context.Context, listingID string) (Listing, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Listing{}, fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if l.Phase != PhaseDistributed {
		return Listing{}, fmt.Errorf("%w: %s", ErrPhase, l.Phase)
	}

	counts, err := s.funnelCount(ctx, tx, listingID)
	if err != nil {
		return Listing{}, err
	}
	if counts.Authorized < 1 {
		return Listing{}, ErrNoAuthorizedBuyer
	}

	updated, err := s.repo.UpdatePhase(ctx, tx, listingID, PhaseActiveDD)
	if err != nil {
		return Listing{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Listing{}, fmt.Errorf("listing: commit advance: %w", err)
	}

	return updated, nil
}

// ConvertToDeal performs the terminal conversion. The winning buyer's ledger
// row is re-read under its row lock immediately before the deal-creation
// collaborator is invoked, so a racing decline either lands before the check
// and fails the conversion, or waits until the conversion commits.
func (s *Service) ConvertToDeal(ctx context.Context, listingID, winningBuyerID, notes string) (string, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("listing: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	l, err := s.repo.GetForUpdate(ctx, tx, listingID)
	if err != nil {
		return "", err
	}
	if l.Phase != PhaseActiveDD {
		return "", fmt.Errorf("%w: %s", ErrPhase, l.Phase)
	}

	entry, err := s.entries.GetForUpdate(ctx, tx, listingID, winningBuyerID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return "", ErrBuyerNotAuthorized
		}
		return "", err
	}
	if entry.AuthStatus != ledger.AuthAuthorized {
		return "", ErrBuyerNotAuthorized
	}
	if entry.NDAStatus != ledger.NDASigned {
		return "", ErrNDAUnsigned
	}

	dealID, err := s.deals.CreateDeal(ctx, DealParams{
		ListingID:      listingID,
		WinningBuyerID: winningBuyerID,
		Notes:          notes,
	})
	if err != nil {
		return "", fmt.Errorf("listing: create deal: %w", err)
	}

	if _, err := s.repo.UpdatePhase(ctx, tx, listingID, PhaseConverted); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("listing: commit conversion: %w", err)
	}

	return dealID, nil
}
