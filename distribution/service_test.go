package distribution

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dealgate/account"
)

func TestCreate_EmptyRecipients(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{}, &fakeAccounts{})

	if _, err := svc.Create(context.Background(), "l1", ListingPrivate, nil); !errors.Is(err, ErrEmptyRecipients) {
		t.Fatalf("expected ErrEmptyRecipients, got %v", err)
	}
}

func TestCreate_UnknownListing(t *testing.T) {
	svc := NewService(&fakePool{}, &fakeRepo{listingMissing: true}, &fakeAccounts{})

	if _, err := svc.Create(context.Background(), "nope", ListingPrivate, []string{"b1"}); !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestCreate_SeedsLedgerEntries(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	accounts := &fakeAccounts{users: map[string]account.User{
		"b1": {ID: "b1", Email: "a@example.com", Role: account.RoleBuyer},
		"b2": {ID: "b2", Email: "b@example.com", Role: account.RoleBuyer},
	}}
	svc := NewService(pool, repo, accounts)

	dist, err := svc.Create(context.Background(), "l1", ListingPublic, []string{"b1", "b2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(dist.Recipients))
	}
	if len(repo.seeded) != 2 {
		t.Fatalf("expected 2 ledger seeds, got %d", len(repo.seeded))
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestCreate_SkipsRepeatedRecipientID(t *testing.T) {
	pool := &fakePool{}
	repo := &fakeRepo{}
	accounts := &fakeAccounts{users: map[string]account.User{
		"b1": {ID: "b1", Email: "a@example.com", Role: account.RoleBuyer},
		"b2": {ID: "b2", Email: "b@example.com", Role: account.RoleBuyer},
	}}
	svc := NewService(pool, repo, accounts)

	dist, err := svc.Create(context.Background(), "l1", ListingPrivate, []string{"b1", "b1", "b2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(dist.Recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d: %+v", len(dist.Recipients), dist.Recipients)
	}
	if len(repo.seeded) != 2 {
		t.Fatalf("expected 2 ledger seeds, got %v", repo.seeded)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit despite repeated id")
	}
}

func TestCreate_RejectsNonBuyerAccount(t *testing.T) {
	accounts := &fakeAccounts{users: map[string]account.User{
		"s1": {ID: "s1", Email: "seller@example.com", Role: account.RoleSeller},
	}}
	svc := NewService(&fakePool{}, &fakeRepo{}, accounts)

	if _, err := svc.Create(context.Background(), "l1", ListingPrivate, []string{"s1"}); err == nil {
		t.Fatal("expected error for non-buyer recipient")
	}
}

func TestAddRecipientsByEmail_BestEffort(t *testing.T) {
	repo := &fakeRepo{
		dist:       Distribution{ID: "d1", ListingID: "l1", ListingType: ListingPrivate},
		duplicates: map[string]bool{"dup@example.com": true},
	}
	accounts := &fakeAccounts{byEmail: map[string]account.User{
		"known@example.com": {ID: "b1", Email: "known@example.com", Role: account.RoleBuyer},
		"dup@example.com":   {ID: "b2", Email: "dup@example.com", Role: account.RoleBuyer},
	}}
	svc := NewService(&fakePool{}, repo, accounts)

	result, err := svc.AddRecipientsByEmail(context.Background(), "d1", []string{
		"known@example.com",
		"not-an-email",
		"dup@example.com",
		"new@example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Added) != 2 {
		t.Fatalf("expected 2 added, got %d: %+v", len(result.Added), result.Added)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d: %+v", len(result.Errors), result.Errors)
	}

	reasons := map[string]string{}
	for _, e := range result.Errors {
		reasons[e.Email] = e.Reason
	}
	if reasons["not-an-email"] != "malformed address" {
		t.Errorf("unexpected reason for malformed email: %q", reasons["not-an-email"])
	}
	if reasons["dup@example.com"] != "already a recipient" {
		t.Errorf("unexpected reason for duplicate: %q", reasons["dup@example.com"])
	}

	// The unknown email got an invitation instead of a buyer link.
	if len(repo.invited) != 1 || repo.invited[0] != "new@example.com" {
		t.Errorf("expected invitation for new@example.com, got %v", repo.invited)
	}
	// Only the resolved buyer seeded a ledger entry.
	if len(repo.seeded) != 1 || repo.seeded[0] != "b1" {
		t.Errorf("expected ledger seed for b1 only, got %v", repo.seeded)
	}
}

func TestAddRecipientsByEmail_DistributionMissing(t *testing.T) {
	repo := &fakeRepo{getErr: ErrNotFound}
	svc := NewService(&fakePool{}, repo, &fakeAccounts{})

	if _, err := svc.AddRecipientsByEmail(context.Background(), "nope", []string{"a@example.com"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeRepo struct {
	listingMissing bool
	dist           Distribution
	getErr         error
	duplicates     map[string]bool

	recipients []Recipient
	seeded     []string
	invited    []string
}

func (f *fakeRepo) ListingExists(ctx context.Context, tx pgx.Tx, listingID string) (bool, error) {
	return !f.listingMissing, nil
}

func (f *fakeRepo) Insert(ctx context.Context, tx pgx.Tx, listingID string, listingType ListingType) (Distribution, error) {
	return Distribution{ID: "d1", ListingID: listingID, ListingType: listingType}, nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (Distribution, error) {
	if f.getErr != nil {
		return Distribution{}, f.getErr
	}
	return f.dist, nil
}

func (f *fakeRepo) AddRecipient(ctx context.Context, tx pgx.Tx, distributionID string, buyerID *string, email string) (Recipient, error) {
	if f.duplicates[email] {
		return Recipient{}, ErrDuplicateRecipient
	}
	for _, rec := range f.recipients {
		if rec.DistributionID == distributionID && rec.Email == email {
			return Recipient{}, ErrDuplicateRecipient
		}
	}
	rec := Recipient{ID: email, DistributionID: distributionID, BuyerID: buyerID, Email: email}
	f.recipients = append(f.recipients, rec)
	return rec, nil
}

func (f *fakeRepo) SeedLedgerEntry(ctx context.Context, tx pgx.Tx, listingID, buyerID string) error {
	f.seeded = append(f.seeded, buyerID)
	return nil
}

func (f *fakeRepo) CreateInvitation(ctx context.Context, tx pgx.Tx, email string) error {
	f.invited = append(f.invited, email)
	return nil
}

func (f *fakeRepo) ListByListing(ctx context.Context, listingID string) ([]Distribution, error) {
	return []Distribution{f.dist}, nil
}

type fakeAccounts struct {
	users   map[string]account.User
	byEmail map[string]account.User
}

func (f *fakeAccounts) GetUserByID(ctx context.Context, userID string) (account.User, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return account.User{}, account.ErrUserNotFound
}

func (f *fakeAccounts) GetBuyerByEmail(ctx context.Context, email string) (account.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return account.User{}, account.ErrUserNotFound
}

type fakePool struct {
	tx fakeTx
}

func (f *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	f.tx = fakeTx{}
	return &f.tx, nil
}

type fakeTx struct {
	rolled    bool
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("fakeTx does not support nested transactions")
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolled = true
	return nil
}

func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (f *fakeTx) LargeObjects() pgx.LargeObjects {
	panic("not implemented")
}

func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (f *fakeTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not implemented")
}

func (f *fakeTx) Conn() *pgx.Conn {
	return nil
}
