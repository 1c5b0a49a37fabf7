package listing

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"dealgate/funnel"
	"dealgate/ledger"
)

func newTestService(repo *fakeListingRepo, entries *fakeEntries, deals *fakeDealCreator, authorized int) (*Service, *fakePool) {
	pool := &fakePool{}
	svc := NewService(pool, repo, entries, deals).WithFunnel(
		func(ctx context.Context, q funnel.Querier, listingID string) (funnel.Counts, error) {
			return funnel.Counts{Authorized: authorized}, nil
		})
	return svc, pool
}

func TestCreate_Validation(t *testing.T) {
	svc, _ := newTestService(&fakeListingRepo{}, &fakeEntries{}, &fakeDealCreator{}, 0)

	if _, err := svc.Create(context.Background(), "", TypePrivate); !errors.Is(err, ErrSellerRequired) {
		t.Fatalf("expected ErrSellerRequired, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "s1", Type("timeshare")); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
}

func TestAdvanceToActiveDD_RequiresAuthorizedBuyer(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseDistributed}}
	svc, pool := newTestService(repo, &fakeEntries{}, &fakeDealCreator{}, 0)

	if _, err := svc.AdvanceToActiveDD(context.Background(), "l1"); !errors.Is(err, ErrNoAuthorizedBuyer) {
		t.Fatalf("expected ErrNoAuthorizedBuyer, got %v", err)
	}
	if pool.tx.committed {
		t.Errorf("expected no commit")
	}
}

func TestAdvanceToActiveDD_Succeeds(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseDistributed}}
	svc, pool := newTestService(repo, &fakeEntries{}, &fakeDealCreator{}, 1)

	l, err := svc.AdvanceToActiveDD(context.Background(), "l1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Phase != PhaseActiveDD {
		t.Fatalf("expected active_dd, got %s", l.Phase)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestAdvanceToActiveDD_WrongPhase(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseConverted}}
	svc, _ := newTestService(repo, &fakeEntries{}, &fakeDealCreator{}, 5)

	if _, err := svc.AdvanceToActiveDD(context.Background(), "l1"); !errors.Is(err, ErrPhase) {
		t.Fatalf("expected ErrPhase, got %v", err)
	}
}

func signedEntry() ledger.Entry {
	return ledger.Entry{
		ListingID:  "l1",
		BuyerID:    "winner",
		AuthStatus: ledger.AuthAuthorized,
		NDAStatus:  ledger.NDASigned,
	}
}

func TestConvertToDeal_Succeeds(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseActiveDD}}
	deals := &fakeDealCreator{dealID: "deal-42"}
	entries := &fakeEntries{entry: signedEntry()}
	svc, pool := newTestService(repo, entries, deals, 1)

	dealID, err := svc.ConvertToDeal(context.Background(), "l1", "winner", "closed")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dealID != "deal-42" {
		t.Fatalf("expected deal-42, got %q", dealID)
	}
	if deals.calls != 1 {
		t.Fatalf("expected deal creator invoked exactly once, got %d", deals.calls)
	}
	if repo.lastPhase != PhaseConverted {
		t.Fatalf("expected phase converted, got %s", repo.lastPhase)
	}
	if !pool.tx.committed {
		t.Errorf("expected commit")
	}
}

func TestConvertToDeal_RequiresActiveDD(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseDistributed}}
	deals := &fakeDealCreator{}
	svc, _ := newTestService(repo, &fakeEntries{entry: signedEntry()}, deals, 1)

	if _, err := svc.ConvertToDeal(context.Background(), "l1", "winner", ""); !errors.Is(err, ErrPhase) {
		t.Fatalf("expected ErrPhase, got %v", err)
	}
	if deals.calls != 0 {
		t.Errorf("expected no deal creation")
	}
}

func TestConvertToDeal_BuyerNotAuthorized(t *testing.T) {
	entry := signedEntry()
	entry.AuthStatus = ledger.AuthPending
	entry.NDAStatus = ledger.NDANotSent

	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseActiveDD}}
	deals := &fakeDealCreator{}
	svc, _ := newTestService(repo, &fakeEntries{entry: entry}, deals, 1)

	if _, err := svc.ConvertToDeal(context.Background(), "l1", "winner", ""); !errors.Is(err, ErrBuyerNotAuthorized) {
		t.Fatalf("expected ErrBuyerNotAuthorized, got %v", err)
	}
	if deals.calls != 0 {
		t.Errorf("expected no deal creation")
	}
}

func TestConvertToDeal_NDAUnsigned(t *testing.T) {
	entry := signedEntry()
	entry.NDAStatus = ledger.NDASent

	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseActiveDD}}
	deals := &fakeDealCreator{}
	svc, _ := newTestService(repo, &fakeEntries{entry: entry}, deals, 1)

	if _, err := svc.ConvertToDeal(context.Background(), "l1", "winner", ""); !errors.Is(err, ErrNDAUnsigned) {
		t.Fatalf("expected ErrNDAUnsigned even though authorized, got %v", err)
	}
	if deals.calls != 0 {
		t.Errorf("expected no deal creation")
	}
}

func TestConvertToDeal_UnknownBuyer(t *testing.T) {
	repo := &fakeListingRepo{listing: Listing{ID: "l1", Phase: PhaseActiveDD}}
	entries := &fakeEntries{getErr: ledger.ErrEntryNotFound}
	svc, _ := newTestService(repo, entries, &fakeDealCreator{}, 1)

	if _, err := svc.ConvertToDeal(context.Background(), "l1", "stranger", ""); !errors.Is(err, ErrBuyerNotAuthorized) {
		t.Fatalf("expected ErrBuyerNotAuthorized, got %v", err)
	}
}

type fakeListingRepo struct {
	listing   Listing
	lastPhase Phase
}

func (f *fakeListingRepo) Insert(ctx context.Context, sellerID string, listingType Type) (Listing, error) {
	return Listing{ID: "new", SellerID: sellerID, Type: listingType, Phase: PhaseDistributed}, nil
}

func (f *fakeListingRepo) Get(ctx context.Context, id string) (Listing, error) {
	return f.listing, nil
}

func (f *fakeListingRepo) Exists(ctx context.Context, id string) (bool, error) {
	return true, nil
}

func (f *fakeListingRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (Listing, error) {
	return f.listing, nil
}

func (f *fakeListingRepo) UpdatePhase(ctx context.Context, tx pgx.Tx, id string, phase Phase) (Listing, error) {
	f.lastPhase = phase
	l := f.listing
	l.Phase = phase
	return l, nil
}

type fakeEntries struct {
	entry  ledger.Entry
	getErr error
}

func (f *fakeEntries) GetForUpdate(ctx context.Context, tx pgx.Tx, listingID, buyerID string) (ledger.Entry, error) {
	if f.getErr != nil {
		return ledger.Entry{}, f.getErr
	}
	return f.entry, nil
}

func (f *fakeEntries) Save(ctx context.Context, tx pgx.Tx, entry ledger.Entry) (ledger.Entry, error) {
	return entry, nil
}

type fakeDealCreator struct {
	dealID string
	calls  int
}

func (f *fakeDealCreator) CreateDeal(ctx context.Context, params DealParams) (string, error) {
	f.calls++
	return f.dealID, nil
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
