package cashbox

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

const techTgID int64 = 555

type stubUserStore struct {
	tech       pgrepo.UserRecord
	rostDeltas map[int64]float64
}

func (s *stubUserStore) FindByTgID(_ context.Context, tgUserID int64) (pgrepo.UserRecord, error) {
	if tgUserID == s.tech.TgUserID {
		return s.tech, nil
	}
	return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
}

func (s *stubUserStore) IncrementRostBalance(_ context.Context, userID int64, delta float64) error {
	if s.rostDeltas == nil {
		s.rostDeltas = make(map[int64]float64)
	}
	s.rostDeltas[userID] += delta
	return nil
}

type stubTxStore struct {
	activeIDs []int64
	invested  map[int64]float64
}

func (s *stubTxStore) ActiveUserIDs(_ context.Context) ([]int64, error) {
	return s.activeIDs, nil
}

func (s *stubTxStore) SumByUserAndType(_ context.Context, userID int64, txType enums.TransactionType) (float64, error) {
	if txType == enums.TransactionInvest {
		return s.invested[userID], nil
	}
	return 0, nil
}

type stubPullStore struct {
	poolSum  float64
	received map[int64]float64

	created        []pgrepo.PullTransactionRecord
	failOnReceiver int64
}

func (s *stubPullStore) Create(_ context.Context, rec pgrepo.PullTransactionRecord) (pgrepo.PullTransactionRecord, error) {
	if s.failOnReceiver != 0 && rec.ReceiverID != nil && *rec.ReceiverID == s.failOnReceiver {
		return pgrepo.PullTransactionRecord{}, errors.New("store unavailable")
	}
	rec.ID = int64(len(s.created) + 1)
	rec.CreatedAt = time.Now()
	s.created = append(s.created, rec)
	return rec, nil
}

func (s *stubPullStore) SumByTypeSince(_ context.Context, pullType enums.PullTransactionType, _ time.Time) (float64, error) {
	if pullType == enums.PullCashBox {
		return s.poolSum, nil
	}
	return 0, nil
}

func (s *stubPullStore) SumByTypeAndReceiver(_ context.Context, pullType enums.PullTransactionType, receiverID int64) (float64, error) {
	if pullType == enums.PullCashBoxTopup {
		return s.received[receiverID], nil
	}
	return 0, nil
}

func (s *stubPullStore) ExistsByTypeSince(_ context.Context, pullType enums.PullTransactionType, _ time.Time) (bool, error) {
	for _, rec := range s.created {
		if rec.Type == pullType {
			return true, nil
		}
	}
	return false, nil
}

type stubScheduler struct {
	pending map[string]bool
	removes int
	adds    int
	delay   time.Duration
}

func newStubScheduler() *stubScheduler {
	return &stubScheduler{pending: make(map[string]bool)}
}

func (s *stubScheduler) AddJob(_ context.Context, _ map[string]any, delay time.Duration, jobID string) (string, error) {
	s.adds++
	s.delay = delay
	s.pending[jobID] = true
	return jobID, nil
}

func (s *stubScheduler) RemoveJob(_ context.Context, jobID string) error {
	s.removes++
	delete(s.pending, jobID)
	return nil
}

func (s *stubScheduler) HasJob(_ context.Context, jobID string) (bool, error) {
	return s.pending[jobID], nil
}

type fixture struct {
	users *stubUserStore
	txs   *stubTxStore
	pulls *stubPullStore
	queue *stubScheduler
	job   *Job
}

func newFixture(poolSum float64, invested, received map[int64]float64, activeIDs []int64) *fixture {
	f := &fixture{
		users: &stubUserStore{tech: pgrepo.UserRecord{ID: 50, TgUserID: techTgID}},
		txs:   &stubTxStore{activeIDs: activeIDs, invested: invested},
		pulls: &stubPullStore{poolSum: poolSum, received: received},
		queue: newStubScheduler(),
	}
	f.job = NewJob(Dependencies{
		Users:           f.users,
		Txs:             f.txs,
		Pulls:           f.pulls,
		Queue:           f.queue,
		TechAccountTgID: techTgID,
		Period:          24 * time.Hour,
	})
	return f
}

func (f *fixture) payoutRows() []pgrepo.PullTransactionRecord {
	var rows []pgrepo.PullTransactionRecord
	for _, rec := range f.pulls.created {
		if rec.Type == enums.PullCashBoxTopup {
			rows = append(rows, rec)
		}
	}
	return rows
}

func TestSplitPoolEvenShares(t *testing.T) {
	payouts, surplus := splitPool(30, []int64{1, 2, 3}, map[int64]float64{1: 100, 2: 100, 3: 100})

	if surplus != 0 {
		t.Fatalf("surplus: got %v want 0", surplus)
	}
	for id := int64(1); id <= 3; id++ {
		if payouts[id] != 10 {
			t.Fatalf("user %d: got %v want 10", id, payouts[id])
		}
	}
}

func TestSplitPoolCappedUserRedistributes(t *testing.T) {
	payouts, surplus := splitPool(30, []int64{1, 2, 3}, map[int64]float64{1: 5, 2: 100, 3: 100})

	if payouts[1] != 5 {
		t.Fatalf("capped user: got %v want 5", payouts[1])
	}
	if payouts[2] != 12.5 || payouts[3] != 12.5 {
		t.Fatalf("uncapped users: got %v/%v want 12.5/12.5", payouts[2], payouts[3])
	}
	if surplus != 0 {
		t.Fatalf("surplus: got %v want 0", surplus)
	}

	var total float64
	for _, amount := range payouts {
		total += amount
	}
	if math.Abs(total-30) > 1e-6 {
		t.Fatalf("pool not conserved: paid %v of 30", total)
	}
}

func TestSplitPoolCascadingCaps(t *testing.T) {
	// share 10 caps user1 at 2; new share 14 caps user2 at 12; user3
	// absorbs the rest.
	payouts, surplus := splitPool(30, []int64{1, 2, 3}, map[int64]float64{1: 2, 2: 12, 3: 100})

	if payouts[1] != 2 || payouts[2] != 12 || payouts[3] != 16 {
		t.Fatalf("payouts: got %v/%v/%v want 2/12/16", payouts[1], payouts[2], payouts[3])
	}
	if surplus != 0 {
		t.Fatalf("surplus: got %v want 0", surplus)
	}
}

func TestSplitPoolAllCappedReturnsSurplus(t *testing.T) {
	payouts, surplus := splitPool(30, []int64{1, 2}, map[int64]float64{1: 3, 2: 4})

	if payouts[1] != 3 || payouts[2] != 4 {
		t.Fatalf("payouts: got %v/%v want 3/4", payouts[1], payouts[2])
	}
	if math.Abs(surplus-23) > 1e-6 {
		t.Fatalf("surplus: got %v want 23", surplus)
	}
}

func TestSplitPoolNeverExceedsCap(t *testing.T) {
	caps := map[int64]float64{1: 1, 2: 7, 3: 19, 4: 4}
	payouts, surplus := splitPool(100, []int64{1, 2, 3, 4}, caps)

	var total float64
	for id, amount := range payouts {
		if amount > caps[id]+1e-6 {
			t.Fatalf("user %d paid %v over cap %v", id, amount, caps[id])
		}
		total += amount
	}
	if math.Abs(total+surplus-100) > 1e-5 {
		t.Fatalf("pool not conserved: paid %v surplus %v", total, surplus)
	}
}

func TestRunDistributesAndRearms(t *testing.T) {
	f := newFixture(30,
		map[int64]float64{1: 5, 2: 1000, 3: 1000},
		nil,
		[]int64{1, 2, 3})

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := f.payoutRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 payout rows, got %d", len(rows))
	}
	if f.users.rostDeltas[1] != 5 || f.users.rostDeltas[2] != 12.5 || f.users.rostDeltas[3] != 12.5 {
		t.Fatalf("balance deltas: %v", f.users.rostDeltas)
	}
	for _, rec := range rows {
		if rec.Currency != enums.CurrencyROST {
			t.Fatalf("payout currency: %s", rec.Currency)
		}
	}

	if f.queue.removes != 1 || f.queue.adds != 1 {
		t.Fatalf("re-arm: removes %d adds %d", f.queue.removes, f.queue.adds)
	}
	if f.queue.delay != 24*time.Hour {
		t.Fatalf("re-arm delay: %v", f.queue.delay)
	}
	if !f.queue.pending[JobID] {
		t.Fatal("trigger not pending after run")
	}
}

func TestRunSecondInvocationDeclines(t *testing.T) {
	f := newFixture(30,
		map[int64]float64{1: 1000, 2: 1000, 3: 1000},
		nil,
		[]int64{1, 2, 3})

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	rowsAfterFirst := len(f.pulls.created)
	deltasAfterFirst := map[int64]float64{}
	for id, delta := range f.users.rostDeltas {
		deltasAfterFirst[id] = delta
	}

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(f.pulls.created) != rowsAfterFirst {
		t.Fatal("second run within the period must not write payout rows")
	}
	for id, delta := range f.users.rostDeltas {
		if deltasAfterFirst[id] != delta {
			t.Fatalf("second run mutated balance of user %d", id)
		}
	}
	if f.queue.adds != 2 {
		t.Fatal("declined run must still re-arm")
	}
}

func TestRunAllCappedRoutesSurplusToTechAccount(t *testing.T) {
	f := newFixture(30,
		map[int64]float64{1: 0, 2: 0},
		nil,
		[]int64{1, 2})

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var techRow *pgrepo.PullTransactionRecord
	for i, rec := range f.pulls.created {
		if rec.Type == enums.PullCashBoxTopupTechAcc {
			techRow = &f.pulls.created[i]
		}
	}
	if techRow == nil {
		t.Fatal("expected a tech account top-up row")
	}
	if math.Abs(techRow.Price-30) > 1e-6 {
		t.Fatalf("tech surplus: got %v want 30", techRow.Price)
	}
	if techRow.ReceiverID == nil || *techRow.ReceiverID != f.users.tech.ID {
		t.Fatal("surplus not routed to the tech account")
	}
	if math.Abs(f.users.rostDeltas[f.users.tech.ID]-30) > 1e-6 {
		t.Fatalf("tech balance delta: %v", f.users.rostDeltas[f.users.tech.ID])
	}
}

func TestRunContinuesPastFailedUser(t *testing.T) {
	f := newFixture(30,
		map[int64]float64{1: 1000, 2: 1000, 3: 1000},
		nil,
		[]int64{1, 2, 3})
	f.pulls.failOnReceiver = 2

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	rows := f.payoutRows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 payout rows, got %d", len(rows))
	}
	if f.users.rostDeltas[2] != 0 {
		t.Fatal("failed user must not receive a balance increment")
	}
	if f.users.rostDeltas[1] != 10 || f.users.rostDeltas[3] != 10 {
		t.Fatalf("surviving payouts: %v", f.users.rostDeltas)
	}
}

func TestRunCapsSubtractAlreadyReceived(t *testing.T) {
	// user1 invested 20 and already received 15, so only 5 of room is left.
	f := newFixture(30,
		map[int64]float64{1: 20, 2: 1000, 3: 1000},
		map[int64]float64{1: 15},
		[]int64{1, 2, 3})

	if err := f.job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if f.users.rostDeltas[1] != 5 {
		t.Fatalf("user1 payout: got %v want 5", f.users.rostDeltas[1])
	}
	if f.users.rostDeltas[2] != 12.5 || f.users.rostDeltas[3] != 12.5 {
		t.Fatalf("redistributed payouts: %v", f.users.rostDeltas)
	}
}

func TestEnsureArmed(t *testing.T) {
	f := newFixture(0, nil, nil, nil)

	if err := f.job.EnsureArmed(context.Background()); err != nil {
		t.Fatalf("ensure armed: %v", err)
	}
	if f.queue.adds != 1 {
		t.Fatal("trigger not armed on empty queue")
	}

	if err := f.job.EnsureArmed(context.Background()); err != nil {
		t.Fatalf("ensure armed again: %v", err)
	}
	if f.queue.adds != 1 {
		t.Fatal("pending trigger must not be re-armed")
	}
}
