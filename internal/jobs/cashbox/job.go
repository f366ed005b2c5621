package cashbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

// QueueName and JobID identify the single periodic trigger. The fixed ID
// makes remove-then-add keep at most one trigger pending.
const (
	QueueName = "cashbox"
	JobID     = "1"
)

var ErrTechAccountMissing = errors.New("tech account not found")

type UserStore interface {
	FindByTgID(ctx context.Context, tgUserID int64) (pgrepo.UserRecord, error)
	IncrementRostBalance(ctx context.Context, userID int64, delta float64) error
}

type TransactionStore interface {
	ActiveUserIDs(ctx context.Context) ([]int64, error)
	SumByUserAndType(ctx context.Context, userID int64, txType enums.TransactionType) (float64, error)
}

type PullTransactionStore interface {
	Create(ctx context.Context, rec pgrepo.PullTransactionRecord) (pgrepo.PullTransactionRecord, error)
	SumByTypeSince(ctx context.Context, pullType enums.PullTransactionType, since time.Time) (float64, error)
	SumByTypeAndReceiver(ctx context.Context, pullType enums.PullTransactionType, receiverID int64) (float64, error)
	ExistsByTypeSince(ctx context.Context, pullType enums.PullTransactionType, since time.Time) (bool, error)
}

type Scheduler interface {
	AddJob(ctx context.Context, payload map[string]any, delay time.Duration, jobID string) (string, error)
	RemoveJob(ctx context.Context, jobID string) error
	HasJob(ctx context.Context, jobID string) (bool, error)
}

// Job distributes the accumulated cashbox pool across all active users
// once per period, honoring per-user accrual caps and re-arming its own
// trigger.
type Job struct {
	users UserStore
	txs   TransactionStore
	pulls PullTransactionStore
	queue Scheduler

	techAccountTgID int64
	period          time.Duration
	now             func() time.Time
	logger          *zap.Logger
}

type Dependencies struct {
	Users UserStore
	Txs   TransactionStore
	Pulls PullTransactionStore
	Queue Scheduler

	TechAccountTgID int64
	Period          time.Duration
	Logger          *zap.Logger
}

func NewJob(deps Dependencies) *Job {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	period := deps.Period
	if period <= 0 {
		period = 24 * time.Hour
	}

	return &Job{
		users:           deps.Users,
		txs:             deps.Txs,
		pulls:           deps.Pulls,
		queue:           deps.Queue,
		techAccountTgID: deps.TechAccountTgID,
		period:          period,
		now:             time.Now,
		logger:          logger,
	}
}

// Run executes one payout cycle. Whatever happens, the next trigger is
// re-armed: the guard makes a duplicate invocation within one period a
// logged no-op, so a crash anywhere after the first payout row is safe to
// recover by simply running again.
func (j *Job) Run(ctx context.Context) error {
	if j.users == nil || j.txs == nil || j.pulls == nil {
		return fmt.Errorf("cashbox dependencies are not configured")
	}

	defer func() {
		if err := j.Arm(ctx); err != nil {
			j.logger.Error("re-arm cashbox trigger failed", zap.Error(err))
		}
	}()

	windowStart := j.now().Add(-j.period)

	done, err := j.alreadyPaid(ctx, windowStart)
	if err != nil {
		return err
	}
	if done {
		j.logger.Info("cashbox payout declined: already paid this period")
		return nil
	}

	poolSum, err := j.pulls.SumByTypeSince(ctx, enums.PullCashBox, windowStart)
	if err != nil {
		return fmt.Errorf("sum cashbox pool: %w", err)
	}
	if poolSum <= 0 {
		j.logger.Info("cashbox payout skipped: empty pool")
		return nil
	}

	activeIDs, err := j.txs.ActiveUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list active users: %w", err)
	}
	if len(activeIDs) == 0 {
		j.logger.Info("cashbox payout skipped: no active users")
		return nil
	}

	caps, err := j.remainingCaps(ctx, activeIDs)
	if err != nil {
		return err
	}

	payouts, surplus := splitPool(poolSum, activeIDs, caps)

	var paidTotal float64
	var paidUsers int
	for _, userID := range activeIDs {
		amount := payouts[userID]
		if amount <= 0 {
			continue
		}
		if err := j.payUser(ctx, userID, amount); err != nil {
			// The user stays unpaid for this period; the guard row already
			// written for another user keeps the run from repeating.
			j.logger.Error("cashbox payout failed for user",
				zap.Int64("user_id", userID), zap.Error(err))
			continue
		}
		paidTotal += amount
		paidUsers++
	}

	if surplus > 0 {
		if err := j.absorbSurplus(ctx, surplus); err != nil {
			j.logger.Error("cashbox surplus absorption failed", zap.Error(err))
		}
	}

	j.logger.Info("cashbox payout distributed",
		zap.Float64("pool", poolSum),
		zap.Int("users", paidUsers),
		zap.Float64("paid", paidTotal),
		zap.Float64("surplus", surplus))

	return nil
}

// Arm replaces the pending trigger with one delayed a full period.
func (j *Job) Arm(ctx context.Context) error {
	if j.queue == nil {
		return fmt.Errorf("scheduler queue is nil")
	}

	if err := j.queue.RemoveJob(ctx, JobID); err != nil {
		return err
	}
	if _, err := j.queue.AddJob(ctx, map[string]any{"job": QueueName}, j.period, JobID); err != nil {
		return err
	}

	return nil
}

// EnsureArmed arms the trigger only when none is pending; called on
// startup so a restart never double-schedules or loses the cycle.
func (j *Job) EnsureArmed(ctx context.Context) error {
	if j.queue == nil {
		return fmt.Errorf("scheduler queue is nil")
	}

	pending, err := j.queue.HasJob(ctx, JobID)
	if err != nil {
		return err
	}
	if pending {
		return nil
	}

	_, err = j.queue.AddJob(ctx, map[string]any{"job": QueueName}, j.period, JobID)
	return err
}

// alreadyPaid keys the idempotency guard on ledger contents. The tech
// top-up row counts too: an all-capped run writes no per-user rows.
func (j *Job) alreadyPaid(ctx context.Context, windowStart time.Time) (bool, error) {
	paid, err := j.pulls.ExistsByTypeSince(ctx, enums.PullCashBoxTopup, windowStart)
	if err != nil {
		return false, fmt.Errorf("check payout guard: %w", err)
	}
	if paid {
		return true, nil
	}

	absorbed, err := j.pulls.ExistsByTypeSince(ctx, enums.PullCashBoxTopupTechAcc, windowStart)
	if err != nil {
		return false, fmt.Errorf("check payout guard: %w", err)
	}

	return absorbed, nil
}

// remainingCaps computes each user's accrual room: lifetime investment
// minus everything the cashbox has already paid them, floored at zero.
func (j *Job) remainingCaps(ctx context.Context, userIDs []int64) (map[int64]float64, error) {
	caps := make(map[int64]float64, len(userIDs))
	for _, userID := range userIDs {
		invested, err := j.txs.SumByUserAndType(ctx, userID, enums.TransactionInvest)
		if err != nil {
			return nil, fmt.Errorf("sum investments for user %d: %w", userID, err)
		}
		reinvested, err := j.txs.SumByUserAndType(ctx, userID, enums.TransactionReinvest)
		if err != nil {
			return nil, fmt.Errorf("sum reinvestments for user %d: %w", userID, err)
		}
		received, err := j.pulls.SumByTypeAndReceiver(ctx, enums.PullCashBoxTopup, userID)
		if err != nil {
			return nil, fmt.Errorf("sum received payouts for user %d: %w", userID, err)
		}

		room := invested + reinvested - received
		if room < 0 {
			room = 0
		}
		caps[userID] = room
	}

	return caps, nil
}

func (j *Job) payUser(ctx context.Context, userID int64, amount float64) error {
	receiver := userID
	if _, err := j.pulls.Create(ctx, pgrepo.PullTransactionRecord{
		ReceiverID: &receiver,
		Type:       enums.PullCashBoxTopup,
		Price:      amount,
		Currency:   enums.CurrencyROST,
	}); err != nil {
		return err
	}

	return j.users.IncrementRostBalance(ctx, userID, amount)
}

// absorbSurplus routes the unallocatable remainder to the tech account so
// the pool is always fully conserved even when every user is capped.
func (j *Job) absorbSurplus(ctx context.Context, surplus float64) error {
	tech, err := j.users.FindByTgID(ctx, j.techAccountTgID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrTechAccountMissing
		}
		return fmt.Errorf("load tech account: %w", err)
	}

	receiver := tech.ID
	if _, err := j.pulls.Create(ctx, pgrepo.PullTransactionRecord{
		ReceiverID: &receiver,
		Type:       enums.PullCashBoxTopupTechAcc,
		Price:      surplus,
		Currency:   enums.CurrencyROST,
	}); err != nil {
		return err
	}

	return j.users.IncrementRostBalance(ctx, tech.ID, surplus)
}

// splitPool divides the pool evenly across the candidates, then keeps
// folding capped users' shortfall into the remaining candidates' share
// until nobody is capped. Every round removes at least one user, so the
// loop runs at most len(ids) times. When everyone caps out the leftover
// comes back as surplus.
func splitPool(pool float64, ids []int64, caps map[int64]float64) (map[int64]float64, float64) {
	payouts := make(map[int64]float64, len(ids))
	if pool <= 0 || len(ids) == 0 {
		return payouts, rules.RoundDecimals(pool)
	}

	remaining := append([]int64(nil), ids...)
	share := pool / float64(len(remaining))

	for {
		var capped, uncapped []int64
		for _, id := range remaining {
			if caps[id] < share {
				capped = append(capped, id)
			} else {
				uncapped = append(uncapped, id)
			}
		}

		if len(capped) == 0 {
			for _, id := range uncapped {
				payouts[id] = rules.RoundDecimals(share)
			}
			return payouts, 0
		}

		var surplus float64
		for _, id := range capped {
			payouts[id] = rules.RoundDecimals(caps[id])
			surplus += share - caps[id]
		}

		if len(uncapped) == 0 {
			return payouts, rules.RoundDecimals(surplus)
		}

		share += surplus / float64(len(uncapped))
		remaining = uncapped
	}
}
