package invest

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
	referralsvc "github.com/mr4pson/prostable-tg-bot/internal/services/referral"
)

var (
	ErrAmountNotInteger    = errors.New("amount must be a positive integer")
	ErrAmountBelowMinimum  = errors.New("amount below minimum")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrTechAccountInvest   = errors.New("tech account cannot invest")
	ErrTechAccountMissing  = errors.New("tech account not found")
)

type UserStore interface {
	FindByTgID(ctx context.Context, tgUserID int64) (pgrepo.UserRecord, error)
	IncrementWalletBalance(ctx context.Context, userID int64, delta float64) error
	IncrementRostBalance(ctx context.Context, userID int64, delta float64) error
}

type TransactionStore interface {
	Create(ctx context.Context, rec pgrepo.TransactionRecord) (pgrepo.TransactionRecord, error)
}

type PullTransactionStore interface {
	Create(ctx context.Context, rec pgrepo.PullTransactionRecord) (pgrepo.PullTransactionRecord, error)
}

type ReferralPayer interface {
	Pay(ctx context.Context, techAccountID int64, buyer pgrepo.UserRecord, pool float64, originID int64) ([]referralsvc.Payout, error)
}

// Service turns one incoming payment into the full set of ledger entries:
// the buyer's transaction, the business and cashbox pool credits, the
// referral cascade, and the balance debits.
type Service struct {
	users     UserStore
	txs       TransactionStore
	pulls     PullTransactionStore
	referrals ReferralPayer

	techAccountTgID int64
	minAmount       float64
	logger          *zap.Logger
}

type Dependencies struct {
	Users     UserStore
	Txs       TransactionStore
	Pulls     PullTransactionStore
	Referrals ReferralPayer

	TechAccountTgID int64
	MinAmount       float64
	Logger          *zap.Logger
}

// Result reports the amounts a single investment produced.
type Result struct {
	Transaction    pgrepo.TransactionRecord
	Rate           float64
	TokenAmount    float64
	BusinessCredit float64
	CashboxCredit  float64
	ReferralPool   float64
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	minAmount := deps.MinAmount
	if minAmount <= 0 {
		minAmount = 100
	}

	return &Service{
		users:           deps.Users,
		txs:             deps.Txs,
		pulls:           deps.Pulls,
		referrals:       deps.Referrals,
		techAccountTgID: deps.TechAccountTgID,
		minAmount:       minAmount,
		logger:          logger,
	}
}

// Invest converts a USDT deposit into ROST pool credits. The buyer pays
// from the wallet balance and the transaction is denominated in USDT.
func (s *Service) Invest(ctx context.Context, buyer pgrepo.UserRecord, amount float64) (Result, error) {
	return s.run(ctx, buyer, amount, enums.TransactionInvest)
}

// Reinvest converts already-held ROST back into the pools. The buyer pays
// from the token balance and the transaction is denominated in ROST.
func (s *Service) Reinvest(ctx context.Context, buyer pgrepo.UserRecord, amount float64) (Result, error) {
	return s.run(ctx, buyer, amount, enums.TransactionReinvest)
}

func (s *Service) run(ctx context.Context, buyer pgrepo.UserRecord, amount float64, txType enums.TransactionType) (Result, error) {
	if s.users == nil || s.txs == nil || s.pulls == nil || s.referrals == nil {
		return Result{}, fmt.Errorf("invest dependencies are not configured")
	}

	if buyer.TgUserID == s.techAccountTgID {
		return Result{}, ErrTechAccountInvest
	}
	if amount <= 0 || amount != math.Trunc(amount) {
		return Result{}, ErrAmountNotInteger
	}
	if amount < s.minAmount {
		return Result{}, ErrAmountBelowMinimum
	}

	sourceBalance := buyer.WalletBalance
	if txType == enums.TransactionReinvest {
		sourceBalance = buyer.RostBalance
	}
	if amount > sourceBalance {
		return Result{}, ErrInsufficientBalance
	}

	tech, err := s.users.FindByTgID(ctx, s.techAccountTgID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return Result{}, ErrTechAccountMissing
		}
		return Result{}, fmt.Errorf("load tech account: %w", err)
	}

	rate := rules.EmissionMultiplier(tech.RostBalance)
	tokenAmount := rules.RoundDecimals(amount / rate)

	currency := enums.CurrencyUSDT
	if txType == enums.TransactionReinvest {
		currency = enums.CurrencyROST
	}

	tx, err := s.txs.Create(ctx, pgrepo.TransactionRecord{
		UserID:   buyer.ID,
		Type:     txType,
		Price:    tokenAmount,
		Currency: currency,
	})
	if err != nil {
		return Result{}, fmt.Errorf("record %s transaction: %w", txType, err)
	}

	// 50% business, 40% cashbox, 10% referral. Each figure is rounded from
	// tokenAmount directly so rounding never compounds.
	businessCredit := rules.RoundDecimals(tokenAmount / 2)
	cashboxCredit := rules.RoundDecimals(tokenAmount * 0.4)
	referralPool := rules.RoundDecimals(tokenAmount * 0.1)

	originID := tx.ID
	if _, err := s.pulls.Create(ctx, pgrepo.PullTransactionRecord{
		OriginID: &originID,
		Type:     enums.PullBusiness,
		Price:    businessCredit,
		Currency: enums.CurrencyROST,
	}); err != nil {
		return Result{}, fmt.Errorf("record business pool credit: %w", err)
	}

	if _, err := s.pulls.Create(ctx, pgrepo.PullTransactionRecord{
		OriginID: &originID,
		Type:     enums.PullCashBox,
		Price:    cashboxCredit,
		Currency: enums.CurrencyROST,
	}); err != nil {
		return Result{}, fmt.Errorf("record cashbox pool credit: %w", err)
	}

	if _, err := s.referrals.Pay(ctx, tech.ID, buyer, referralPool, tx.ID); err != nil {
		return Result{}, fmt.Errorf("pay referral cascade: %w", err)
	}

	if txType == enums.TransactionReinvest {
		err = s.users.IncrementRostBalance(ctx, buyer.ID, -amount)
	} else {
		err = s.users.IncrementWalletBalance(ctx, buyer.ID, -amount)
	}
	if err != nil {
		return Result{}, fmt.Errorf("debit buyer balance: %w", err)
	}

	// Emission: tokens handed to the pools leave the reserve.
	if err := s.users.IncrementRostBalance(ctx, tech.ID, -tokenAmount); err != nil {
		return Result{}, fmt.Errorf("debit tech reserve: %w", err)
	}

	s.logger.Info("investment split",
		zap.Int64("user_id", buyer.ID),
		zap.String("type", string(txType)),
		zap.Float64("amount", amount),
		zap.Float64("rate", rate),
		zap.Float64("token_amount", tokenAmount))

	return Result{
		Transaction:    tx,
		Rate:           rate,
		TokenAmount:    tokenAmount,
		BusinessCredit: businessCredit,
		CashboxCredit:  cashboxCredit,
		ReferralPool:   referralPool,
	}, nil
}
