package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
)

// PullTransactionRepo is the append-only ledger of pool credits and pool
// payouts.
type PullTransactionRepo struct {
	pool *pgxpool.Pool
}

type PullTransactionRecord struct {
	ID         int64
	OriginID   *int64
	ReceiverID *int64
	Type       enums.PullTransactionType
	Price      float64
	Currency   enums.CurrencyType
	CreatedAt  time.Time
}

func NewPullTransactionRepo(pool *pgxpool.Pool) *PullTransactionRepo {
	return &PullTransactionRepo{pool: pool}
}

func (r *PullTransactionRepo) Create(ctx context.Context, rec PullTransactionRecord) (PullTransactionRecord, error) {
	if r.pool == nil {
		return PullTransactionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if rec.Type == "" || rec.Currency == "" {
		return PullTransactionRecord{}, fmt.Errorf("invalid pull transaction payload")
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO pull_transactions (origin_id, receiver_id, type, price, currency_type, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id, origin_id, receiver_id, type, price, currency_type, created_at
`, rec.OriginID, rec.ReceiverID, rec.Type, rec.Price, rec.Currency)

	var out PullTransactionRecord
	if err := row.Scan(
		&out.ID,
		&out.OriginID,
		&out.ReceiverID,
		&out.Type,
		&out.Price,
		&out.Currency,
		&out.CreatedAt,
	); err != nil {
		return PullTransactionRecord{}, fmt.Errorf("create pull transaction: %w", err)
	}

	return out, nil
}

// SumByTypeSince sums all pull transactions of a type created at or after
// the window start.
func (r *PullTransactionRepo) SumByTypeSince(ctx context.Context, pullType enums.PullTransactionType, since time.Time) (float64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var sum float64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(price), 0)
FROM pull_transactions
WHERE type = $1
  AND created_at >= $2
`, pullType, since).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum pull transactions by type: %w", err)
	}

	return sum, nil
}

func (r *PullTransactionRepo) SumByTypeAndReceiver(ctx context.Context, pullType enums.PullTransactionType, receiverID int64) (float64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if receiverID <= 0 {
		return 0, nil
	}

	var sum float64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(price), 0)
FROM pull_transactions
WHERE type = $1
  AND receiver_id = $2
`, pullType, receiverID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum pull transactions by type and receiver: %w", err)
	}

	return sum, nil
}

// UserBusinessPoolSum sums the business-pool credits produced by a user's
// own investments. Business credits carry no receiver; ownership follows
// the origin transaction.
func (r *PullTransactionRepo) UserBusinessPoolSum(ctx context.Context, userID int64) (float64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return 0, nil
	}

	var sum float64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(p.price), 0)
FROM pull_transactions p
JOIN transactions t ON t.id = p.origin_id
WHERE p.type = $1
  AND t.user_id = $2
`, enums.PullBusiness, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum user business pool: %w", err)
	}

	return sum, nil
}

// ExistsByTypeSince reports whether any pull transaction of the type exists
// inside the window; the cashbox job keys its idempotency guard on this.
func (r *PullTransactionRepo) ExistsByTypeSince(ctx context.Context, pullType enums.PullTransactionType, since time.Time) (bool, error) {
	if r.pool == nil {
		return false, fmt.Errorf("postgres pool is nil")
	}

	var exists bool
	err := r.pool.QueryRow(ctx, `
SELECT EXISTS (
	SELECT 1
	FROM pull_transactions
	WHERE type = $1
	  AND created_at >= $2
)
`, pullType, since).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pull transactions in window: %w", err)
	}

	return exists, nil
}
