package referral

import (
	"context"
	"math"
	"testing"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

const techID int64 = 999

type stubUserStore struct {
	users    map[int64]pgrepo.UserRecord
	balances map[int64]float64
}

func (s *stubUserStore) FindByID(_ context.Context, userID int64) (pgrepo.UserRecord, error) {
	user, ok := s.users[userID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return user, nil
}

func (s *stubUserStore) IncrementRostBalance(_ context.Context, userID int64, delta float64) error {
	if s.balances == nil {
		s.balances = make(map[int64]float64)
	}
	s.balances[userID] += delta
	return nil
}

type stubPullStore struct {
	created []pgrepo.PullTransactionRecord
}

func (s *stubPullStore) Create(_ context.Context, rec pgrepo.PullTransactionRecord) (pgrepo.PullTransactionRecord, error) {
	rec.ID = int64(len(s.created) + 1)
	s.created = append(s.created, rec)
	return rec, nil
}

// chain builds buyer -> L1 -> L2 -> L3 with the given ancestor IDs; a zero
// ID truncates the chain at that level.
func chain(ancestorIDs ...int64) (*stubUserStore, pgrepo.UserRecord) {
	store := &stubUserStore{users: make(map[int64]pgrepo.UserRecord)}

	buyer := pgrepo.UserRecord{ID: 1, TgUserID: 1001}
	var prevID int64
	for _, id := range ancestorIDs {
		if id == 0 {
			break
		}
		ref := id
		if prevID == 0 {
			buyer.ReferrerID = &ref
		} else {
			prev := store.users[prevID]
			prev.ReferrerID = &ref
			store.users[prevID] = prev
		}
		store.users[id] = pgrepo.UserRecord{ID: id, TgUserID: 1000 + id}
		prevID = id
	}

	return store, buyer
}

func newTestService(users *stubUserStore, pulls *stubPullStore) *Service {
	return NewService(Dependencies{Users: users, Pulls: pulls})
}

func paid(payouts []Payout, userID int64) float64 {
	for _, p := range payouts {
		if p.UserID == userID {
			return p.Amount
		}
	}
	return 0
}

func TestPayFullChain(t *testing.T) {
	users, buyer := chain(2, 3, 4)
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	payouts, err := svc.Pay(context.Background(), techID, buyer, 10, 77)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	if len(payouts) != 3 {
		t.Fatalf("expected 3 payouts, got %d", len(payouts))
	}
	if got := paid(payouts, 2); got != 7 {
		t.Fatalf("level 1: got %v want 7", got)
	}
	if got := paid(payouts, 3); got != 2 {
		t.Fatalf("level 2: got %v want 2", got)
	}
	if got := paid(payouts, 4); got != 1 {
		t.Fatalf("level 3: got %v want 1", got)
	}

	var total float64
	for _, p := range payouts {
		total += p.Amount
	}
	if math.Abs(total-10) > 1e-6 {
		t.Fatalf("cascade overpaid: total %v", total)
	}
}

func TestPayTechAtLevelOneTakesAllAndStops(t *testing.T) {
	users, buyer := chain(techID, 3, 4)
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	payouts, err := svc.Pay(context.Background(), techID, buyer, 10, 77)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	if len(payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(payouts))
	}
	if got := paid(payouts, techID); got != 10 {
		t.Fatalf("tech account: got %v want 10", got)
	}
	if users.balances[3] != 0 || users.balances[4] != 0 {
		t.Fatal("levels past the tech account must not be paid")
	}
}

func TestPayTechAtLevelTwoTakesThirtyAndStops(t *testing.T) {
	users, buyer := chain(2, techID, 4)
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	payouts, err := svc.Pay(context.Background(), techID, buyer, 10, 77)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	if len(payouts) != 2 {
		t.Fatalf("expected 2 payouts, got %d", len(payouts))
	}
	if got := paid(payouts, 2); got != 7 {
		t.Fatalf("level 1: got %v want 7", got)
	}
	if got := paid(payouts, techID); got != 3 {
		t.Fatalf("tech at level 2: got %v want 3", got)
	}
	if users.balances[4] != 0 {
		t.Fatal("level 3 must not be paid after the tech short-circuit")
	}
}

func TestPayShortChainSkipsMissingLevels(t *testing.T) {
	users, buyer := chain(2)
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	payouts, err := svc.Pay(context.Background(), techID, buyer, 10, 77)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}

	if len(payouts) != 1 {
		t.Fatalf("expected 1 payout, got %d", len(payouts))
	}
	if got := paid(payouts, 2); got != 7 {
		t.Fatalf("level 1: got %v want 7", got)
	}
}

func TestPayNoReferrer(t *testing.T) {
	users := &stubUserStore{users: map[int64]pgrepo.UserRecord{}}
	buyer := pgrepo.UserRecord{ID: 1}
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	payouts, err := svc.Pay(context.Background(), techID, buyer, 10, 77)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(payouts) != 0 {
		t.Fatalf("expected no payouts, got %d", len(payouts))
	}
	if len(pulls.created) != 0 {
		t.Fatalf("expected no ledger rows, got %d", len(pulls.created))
	}
}

func TestPayRecordsLedgerRowsAndBalances(t *testing.T) {
	users, buyer := chain(2, 3, 4)
	pulls := &stubPullStore{}
	svc := newTestService(users, pulls)

	if _, err := svc.Pay(context.Background(), techID, buyer, 10, 77); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if len(pulls.created) != 3 {
		t.Fatalf("expected 3 ledger rows, got %d", len(pulls.created))
	}
	for _, rec := range pulls.created {
		if rec.Type != enums.PullReferral {
			t.Fatalf("unexpected pull type: %s", rec.Type)
		}
		if rec.Currency != enums.CurrencyROST {
			t.Fatalf("unexpected currency: %s", rec.Currency)
		}
		if rec.OriginID == nil || *rec.OriginID != 77 {
			t.Fatal("origin transaction not referenced")
		}
		if rec.ReceiverID == nil {
			t.Fatal("receiver not set")
		}
		if users.balances[*rec.ReceiverID] != rec.Price {
			t.Fatalf("balance increment mismatch for user %d", *rec.ReceiverID)
		}
	}
}
