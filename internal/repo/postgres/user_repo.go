package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

type UserRecord struct {
	ID              int64
	TgUserID        int64
	Username        string
	ReferrerID      *int64
	Email           string
	PublicKey       string
	PrivateKeyHash  string
	AcceptedTerms   bool
	HasFundedWallet bool
	WalletBalance   float64
	RostBalance     float64
	CreatedAt       time.Time
}

type ReferralCounts struct {
	Level1 int64
	Level2 int64
	Level3 int64
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

const userColumns = `
	id,
	tg_user_id,
	username,
	referrer_id,
	email,
	public_key,
	private_key_hash,
	accepted_terms,
	has_funded_wallet,
	wallet_balance,
	rost_balance,
	created_at`

func (r *UserRepo) FindByTgID(ctx context.Context, tgUserID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if tgUserID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid tg_user_id")
	}

	return r.findOne(ctx, `WHERE tg_user_id = $1`, tgUserID)
}

func (r *UserRepo) FindByID(ctx context.Context, userID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return UserRecord{}, ErrUserNotFound
	}

	return r.findOne(ctx, `WHERE id = $1`, userID)
}

func (r *UserRepo) FindByUsername(ctx context.Context, username string) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	username = strings.TrimSpace(strings.TrimPrefix(username, "@"))
	if username == "" {
		return UserRecord{}, ErrUserNotFound
	}

	return r.findOne(ctx, `WHERE lower(username) = lower($1)`, username)
}

func (r *UserRepo) FindByPublicKey(ctx context.Context, publicKey string) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	publicKey = strings.TrimSpace(publicKey)
	if publicKey == "" {
		return UserRecord{}, ErrUserNotFound
	}

	return r.findOne(ctx, `WHERE lower(public_key) = lower($1)`, publicKey)
}

func (r *UserRepo) findOne(ctx context.Context, where string, arg any) (UserRecord, error) {
	row := r.pool.QueryRow(ctx, `
SELECT`+userColumns+`
FROM users
`+where, arg)

	user, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("find user: %w", err)
	}

	return user, nil
}

// UpsertByTgID registers a user or refreshes the username of an existing
// one. The referrer is assigned exactly once: a later upsert never replaces
// an already-set referrer_id, which keeps the referrer graph a forest.
func (r *UserRepo) UpsertByTgID(ctx context.Context, tgUserID int64, username string, referrerID *int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if tgUserID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid tg_user_id")
	}

	row := r.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, referrer_id, created_at, updated_at)
VALUES ($1, $2, $3, NOW(), NOW())
ON CONFLICT (tg_user_id) DO UPDATE SET
	username = CASE WHEN EXCLUDED.username <> '' THEN EXCLUDED.username ELSE users.username END,
	referrer_id = COALESCE(users.referrer_id, EXCLUDED.referrer_id),
	updated_at = NOW()
RETURNING`+userColumns, tgUserID, strings.TrimSpace(username), referrerID)

	user, err := scanUserRow(row)
	if err != nil {
		return UserRecord{}, fmt.Errorf("upsert user by tg_user_id: %w", err)
	}

	return user, nil
}

func (r *UserRepo) SetAcceptedTerms(ctx context.Context, tgUserID int64) error {
	return r.exec(ctx, `
UPDATE users
SET accepted_terms = TRUE, updated_at = NOW()
WHERE tg_user_id = $1
`, "set accepted_terms", tgUserID)
}

func (r *UserRepo) SetWallet(ctx context.Context, tgUserID int64, publicKey, privateKeyHash string) error {
	if strings.TrimSpace(publicKey) == "" || strings.TrimSpace(privateKeyHash) == "" {
		return fmt.Errorf("wallet keys are required")
	}

	return r.exec(ctx, `
UPDATE users
SET public_key = $2, private_key_hash = $3, updated_at = NOW()
WHERE tg_user_id = $1
`, "set user wallet", tgUserID, strings.TrimSpace(publicKey), privateKeyHash)
}

func (r *UserRepo) SetEmail(ctx context.Context, tgUserID int64, email string) error {
	return r.exec(ctx, `
UPDATE users
SET email = $2, updated_at = NOW()
WHERE tg_user_id = $1
`, "set user email", tgUserID, strings.TrimSpace(email))
}

func (r *UserRepo) SetHasFundedWallet(ctx context.Context, userID int64, funded bool) error {
	return r.exec(ctx, `
UPDATE users
SET has_funded_wallet = $2, updated_at = NOW()
WHERE id = $1
`, "set has_funded_wallet", userID, funded)
}

// IncrementWalletBalance adjusts the USDT balance in place. Balance fields
// are only ever mutated through these increments, never through
// read-then-write, so concurrent flows cannot lose updates.
func (r *UserRepo) IncrementWalletBalance(ctx context.Context, userID int64, delta float64) error {
	return r.exec(ctx, `
UPDATE users
SET wallet_balance = wallet_balance + $2, updated_at = NOW()
WHERE id = $1
`, "increment wallet_balance", userID, delta)
}

func (r *UserRepo) IncrementRostBalance(ctx context.Context, userID int64, delta float64) error {
	return r.exec(ctx, `
UPDATE users
SET rost_balance = rost_balance + $2, updated_at = NOW()
WHERE id = $1
`, "increment rost_balance", userID, delta)
}

// MoveWalletBalance debits the sender and credits the receiver in one
// transaction so a crash between the two updates cannot lose money.
func (r *UserRepo) MoveWalletBalance(ctx context.Context, senderID, receiverID int64, amount float64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	return WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
UPDATE users
SET wallet_balance = wallet_balance - $2, updated_at = NOW()
WHERE id = $1
`, senderID, amount); err != nil {
			return fmt.Errorf("debit sender balance: %w", err)
		}

		if _, err := tx.Exec(ctx, `
UPDATE users
SET wallet_balance = wallet_balance + $2, updated_at = NOW()
WHERE id = $1
`, receiverID, amount); err != nil {
			return fmt.Errorf("credit receiver balance: %w", err)
		}

		return nil
	})
}

func (r *UserRepo) CountRostHolders(ctx context.Context) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*)
FROM users
WHERE rost_balance > 0
`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count rost holders: %w", err)
	}

	return count, nil
}

// ReferralLevelCounts returns how many users sit at each of the three
// referral levels below the given user.
func (r *UserRepo) ReferralLevelCounts(ctx context.Context, userID int64) (ReferralCounts, error) {
	if r.pool == nil {
		return ReferralCounts{}, fmt.Errorf("postgres pool is nil")
	}

	var counts ReferralCounts
	err := r.pool.QueryRow(ctx, `
WITH RECURSIVE referrals AS (
	SELECT id, 1 AS level
	FROM users
	WHERE referrer_id = $1
	UNION ALL
	SELECT u.id, ref.level + 1
	FROM users u
	JOIN referrals ref ON u.referrer_id = ref.id
	WHERE ref.level < 3
)
SELECT
	COUNT(*) FILTER (WHERE level = 1),
	COUNT(*) FILTER (WHERE level = 2),
	COUNT(*) FILTER (WHERE level = 3)
FROM referrals
`, userID).Scan(&counts.Level1, &counts.Level2, &counts.Level3)
	if err != nil {
		return ReferralCounts{}, fmt.Errorf("count referral levels: %w", err)
	}

	return counts, nil
}

// FirstLineActiveReferralsCount counts direct referrals that have at least
// one investment transaction.
func (r *UserRepo) FirstLineActiveReferralsCount(ctx context.Context, userID int64) (int64, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}

	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(DISTINCT u.id)
FROM users u
JOIN transactions t ON t.user_id = u.id AND t.type = 'INVEST'
WHERE u.referrer_id = $1
`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count first-line active referrals: %w", err)
	}

	return count, nil
}

func (r *UserRepo) exec(ctx context.Context, sql, op string, args ...any) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}

	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func scanUserRow(row pgx.Row) (UserRecord, error) {
	var user UserRecord
	if err := row.Scan(
		&user.ID,
		&user.TgUserID,
		&user.Username,
		&user.ReferrerID,
		&user.Email,
		&user.PublicKey,
		&user.PrivateKeyHash,
		&user.AcceptedTerms,
		&user.HasFundedWallet,
		&user.WalletBalance,
		&user.RostBalance,
		&user.CreatedAt,
	); err != nil {
		return UserRecord{}, err
	}
	return user, nil
}
