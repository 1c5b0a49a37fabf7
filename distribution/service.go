package distribution

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"

	"dealgate/account"
)

var (
	// ErrEmptyRecipients signals a create call with no recipients.
	ErrEmptyRecipients = errors.New("distribution: recipient list is empty")
	// ErrInvalidListingType signals an unknown listing type.
	ErrInvalidListingType = errors.New("distribution: invalid listing type")
)

// AccountDirectory is the slice of the account repository the registry needs
// to resolve recipients.
type AccountDirectory interface {
	GetUserByID(ctx context.Context, userID string) (account.User, error)
	GetBuyerByEmail(ctx context.Context, email string) (account.User, error)
}

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service owns the set of recipients a listing is sent to.
type Service struct {
	pool     TxBeginner
	repo     Repository
	accounts AccountDirectory
}

func NewService(pool TxBeginner, repo Repository, accounts AccountDirectory) *Service {
	return &Service{
		pool:     pool,
		repo:     repo,
		accounts: accounts,
	}
}

// Create builds a distribution from already-resolved buyer account ids and
// seeds a ledger entry for each recipient that does not have one yet. The
// whole batch commits or fails as one transaction.
func (s *Service) Create(ctx context.Context, listingID string, listingType ListingType, recipientIDs []string) (Distribution, error) {
	if len(recipientIDs) == 0 {
		return Distribution{}, ErrEmptyRecipients
	}
	if listingType != ListingPublic && listingType != ListingPrivate {
		return Distribution{}, ErrInvalidListingType
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Distribution{}, fmt.Errorf("distribution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	exists, err := s.repo.ListingExists(ctx, tx, listingID)
	if err != nil {
		return Distribution{}, err
	}
	if !exists {
		return Distribution{}, ErrListingNotFound
	}

	dist, err := s.repo.Insert(ctx, tx, listingID, listingType)
	if err != nil {
		return Distribution{}, err
	}

	for _, buyerID := range recipientIDs {
		buyer, err := s.accounts.GetUserByID(ctx, buyerID)
		if err != nil {
			if errors.Is(err, account.ErrUserNotFound) {
				return Distribution{}, fmt.Errorf("distribution: recipient %s: %w", buyerID, account.ErrUserNotFound)
			}
			return Distribution{}, err
		}
		if buyer.Role != account.RoleBuyer {
			return Distribution{}, fmt.Errorf("distribution: recipient %s is not a buyer account", buyerID)
		}

		rec, err := s.repo.AddRecipient(ctx, tx, dist.ID, &buyer.ID, buyer.Email)
		if err != nil {
			if errors.Is(err, ErrDuplicateRecipient) {
				continue
			}
			return Distribution{}, err
		}
		dist.Recipients = append(dist.Recipients, rec)

		if err := s.repo.SeedLedgerEntry(ctx, tx, listingID, buyer.ID); err != nil {
			return Distribution{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Distribution{}, fmt.Errorf("distribution: commit tx: %w", err)
	}

	return dist, nil
}

// AddRecipientsByEmail appends recipients to an existing distribution,
// best-effort per email. Malformed addresses, duplicate recipients and other
// per-email failures land in the returned error list instead of aborting the
// batch; the call only fails wholesale when the distribution itself is
// missing. Emails with no matching buyer account get a pending invitation.
func (s *Service) AddRecipientsByEmail(ctx context.Context, distributionID string, emails []string) (AddResult, error) {
	dist, err := s.repo.Get(ctx, distributionID)
	if err != nil {
		return AddResult{}, err
	}

	result := AddResult{Added: []Recipient{}, Errors: []EmailError{}}

	for _, raw := range emails {
		email := strings.TrimSpace(strings.ToLower(raw))
		if _, err := mail.ParseAddress(email); err != nil {
			result.Errors = append(result.Errors, EmailError{Email: raw, Reason: "malformed address"})
			continue
		}

		rec, err := s.addOne(ctx, dist, email)
		if err != nil {
			result.Errors = append(result.Errors, EmailError{Email: email, Reason: reasonFor(err)})
			continue
		}
		result.Added = append(result.Added, rec)
	}

	return result, nil
}

// addOne runs a single email's resolution and insert in its own transaction so
// one failure never poisons the rest of the batch.
func (s *Service) addOne(ctx context.Context, dist Distribution, email string) (Recipient, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Recipient{}, fmt.Errorf("distribution: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var buyerID *string
	buyer, err := s.accounts.GetBuyerByEmail(ctx, email)
	switch {
	case err == nil:
		buyerID = &buyer.ID
	case errors.Is(err, account.ErrUserNotFound):
		if err := s.repo.CreateInvitation(ctx, tx, email); err != nil {
			return Recipient{}, err
		}
	default:
		return Recipient{}, err
	}

	rec, err := s.repo.AddRecipient(ctx, tx, dist.ID, buyerID, email)
	if err != nil {
		return Recipient{}, err
	}

	if buyerID != nil {
		if err := s.repo.SeedLedgerEntry(ctx, tx, dist.ListingID, *buyerID); err != nil {
			return Recipient{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Recipient{}, fmt.Errorf("distribution: commit tx: %w", err)
	}

	return rec, nil
}

// List returns every distribution for the listing, order unspecified.
func (s *Service) List(ctx context.Context, listingID string) ([]Distribution, error) {
	return s.repo.ListByListing(ctx, listingID)
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrDuplicateRecipient):
		return "already a recipient"
	default:
		return err.Error()
	}
}
