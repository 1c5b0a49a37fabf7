package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service applies buyer response and authorization transitions. Every mutation
// runs in its own transaction holding the entry's row lock, so concurrent
// calls touching the same (listing, buyer) pair resolve to exactly one winner
// and the loser observes the post-transition state.
type Service struct {
	pool TxBeginner
	repo Repository
	now  func() time.Time
}

func NewService(pool TxBeginner, repo Repository) *Service {
	if repo == nil {
		repo = NewRepository()
	}
	return &Service{
		pool: pool,
		repo: repo,
		now:  time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RecordResponse overwrites the buyer's response in place, last write wins.
// No history is retained and the authorization state is untouched.
func (s *Service) RecordResponse(ctx context.Context, listingID, buyerID string, response Response, message string) (Entry, error) {
	if !validResponse(response) {
		return Entry{}, ErrInvalidResponse
	}
	return s.mutate(ctx, listingID, buyerID, func(e Entry) (Entry, error) {
		e.Response = response
		e.Message = message
		at := s.now()
		e.RespondedAt = &at
		return e, nil
	})
}

// Authorize transitions pending -> authorized. Repeating it on an authorized
// buyer succeeds silently; a declined buyer is rejected.
func (s *Service) Authorize(ctx context.Context, listingID, buyerID string) (Entry, error) {
	return s.mutate(ctx, listingID, buyerID, applyAuthorize)
}

// Decline transitions pending|authorized -> declined. The reason is stored
// verbatim; an omitted reason is kept as the empty string.
func (s *Service) Decline(ctx context.Context, listingID, buyerID, reason string) (Entry, error) {
	return s.mutate(ctx, listingID, buyerID, func(e Entry) (Entry, error) {
		return applyDecline(e, reason), nil
	})
}

// SendNDA marks the NDA as sent for an authorized buyer.
func (s *Service) SendNDA(ctx context.Context, listingID, buyerID string) (Entry, error) {
	return s.mutate(ctx, listingID, buyerID, applySendNDA)
}

// ConfirmNDASigned marks an out-for-signature NDA as signed.
func (s *Service) ConfirmNDASigned(ctx context.Context, listingID, buyerID string) (Entry, error) {
	return s.mutate(ctx, listingID, buyerID, applyConfirmNDASigned)
}

func (s *Service) mutate(ctx context.Context, listingID, buyerID string, apply func(Entry) (Entry, error)) (Entry, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.repo.GetForUpdate(ctx, tx, listingID, buyerID)
	if err != nil {
		return Entry{}, err
	}

	next, err := apply(entry)
	if err != nil {
		return Entry{}, err
	}

	saved, err := s.repo.Save(ctx, tx, next)
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, fmt.Errorf("ledger: commit tx: %w", err)
	}

	return saved, nil
}
