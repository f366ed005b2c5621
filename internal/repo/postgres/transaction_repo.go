package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
)

// TransactionRepo is the append-only ledger of user-attributed events.
// Rows are never updated or deleted; every derived figure is a sum over
// them.
type TransactionRepo struct {
	pool *pgxpool.Pool
}

type TransactionRecord struct {
	ID         int64
	UserID     int64
	ReceiverID *int64
	Type       enums.TransactionType
	Price      float64
	Currency   enums.CurrencyType
	CreatedAt  time.Time
}

func NewTransactionRepo(pool *pgxpool.Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

func (r *TransactionRepo) Create(ctx context.Context, rec TransactionRecord) (TransactionRecord, error) {
	if r.pool == nil {
		return TransactionRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if rec.UserID <= 0 || rec.Type == "" || rec.Currency == "" {
		return TransactionRecord{}, fmt.Errorf("invalid transaction payload")
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO transactions (user_id, receiver_id, type, price, currency_type, created_at)
VALUES ($1, $2, $3, $4, $5, NOW())
RETURNING id, user_id, receiver_id, type, price, currency_type, created_at
`, rec.UserID, rec.ReceiverID, rec.Type, rec.Price, rec.Currency)

	var out TransactionRecord
	if err := row.Scan(
		&out.ID,
		&out.UserID,
		&out.ReceiverID,
		&out.Type,
		&out.Price,
		&out.Currency,
		&out.CreatedAt,
	); err != nil {
		return TransactionRecord{}, fmt.Errorf("create transaction: %w", err)
	}

	return out, nil
}

func (r *TransactionRepo) SumByUserAndType(ctx context.Context, userID int64, txType enums.TransactionType) (float64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return 0, nil
	}

	var sum float64
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(price), 0)
FROM transactions
WHERE user_id = $1
  AND type = $2
`, userID, txType).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum transactions by user and type: %w", err)
	}

	return sum, nil
}

// ActiveUserIDs lists every user with at least one investment transaction,
// the candidate set for the cashbox payout.
func (r *TransactionRepo) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}

	rows, err := r.pool.Query(ctx, `
SELECT DISTINCT user_id
FROM transactions
WHERE type = $1
ORDER BY user_id
`, enums.TransactionInvest)
	if err != nil {
		return nil, fmt.Errorf("list active user ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active user ids: %w", err)
	}

	return ids, nil
}
