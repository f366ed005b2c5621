package stats

import (
	"context"
	"errors"
	"fmt"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

var ErrTechAccountMissing = errors.New("tech account not found")

type UserStore interface {
	FindByTgID(ctx context.Context, tgUserID int64) (pgrepo.UserRecord, error)
	CountRostHolders(ctx context.Context) (int64, error)
}

type TransactionStore interface {
	SumByUserAndType(ctx context.Context, userID int64, txType enums.TransactionType) (float64, error)
}

type PullTransactionStore interface {
	SumByTypeAndReceiver(ctx context.Context, pullType enums.PullTransactionType, receiverID int64) (float64, error)
	UserBusinessPoolSum(ctx context.Context, userID int64) (float64, error)
}

// Service computes every dashboard figure from ledger sums. Nothing here is
// cached; the ledger rows are the single source of truth.
type Service struct {
	users UserStore
	txs   TransactionStore
	pulls PullTransactionStore

	techAccountTgID int64
	maxEmission     float64
}

type Dependencies struct {
	Users UserStore
	Txs   TransactionStore
	Pulls PullTransactionStore

	TechAccountTgID int64
	MaxEmission     float64
}

// ProgramOverview backs the main menu header.
type ProgramOverview struct {
	Rate          float64
	MaxEmission   float64
	NextRateRaise float64
	HolderCount   int64
}

// UserBalances backs the payments balance menu.
type UserBalances struct {
	InvestedSum     float64
	CashboxReceived float64
	ReferralSum     float64
	BusinessPool    float64
	BusinessBonus   rules.BonusTier
}

func NewService(deps Dependencies) *Service {
	return &Service{
		users:           deps.Users,
		txs:             deps.Txs,
		pulls:           deps.Pulls,
		techAccountTgID: deps.TechAccountTgID,
		maxEmission:     deps.MaxEmission,
	}
}

func (s *Service) Overview(ctx context.Context) (ProgramOverview, error) {
	if s.users == nil {
		return ProgramOverview{}, fmt.Errorf("user store is nil")
	}

	tech, err := s.users.FindByTgID(ctx, s.techAccountTgID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ProgramOverview{}, ErrTechAccountMissing
		}
		return ProgramOverview{}, err
	}

	holders, err := s.users.CountRostHolders(ctx)
	if err != nil {
		return ProgramOverview{}, err
	}

	return ProgramOverview{
		Rate:          rules.EmissionMultiplier(tech.RostBalance),
		MaxEmission:   s.maxEmission,
		NextRateRaise: rules.NextRateRaise(tech.RostBalance),
		HolderCount:   holders,
	}, nil
}

// InvestedSum is the user's lifetime contribution: invest plus reinvest.
func (s *Service) InvestedSum(ctx context.Context, userID int64) (float64, error) {
	if s.txs == nil {
		return 0, fmt.Errorf("transaction store is nil")
	}

	invested, err := s.txs.SumByUserAndType(ctx, userID, enums.TransactionInvest)
	if err != nil {
		return 0, err
	}
	reinvested, err := s.txs.SumByUserAndType(ctx, userID, enums.TransactionReinvest)
	if err != nil {
		return 0, err
	}

	return rules.RoundDecimals(invested + reinvested), nil
}

func (s *Service) CashboxReceived(ctx context.Context, userID int64) (float64, error) {
	if s.pulls == nil {
		return 0, fmt.Errorf("pull transaction store is nil")
	}
	return s.pulls.SumByTypeAndReceiver(ctx, enums.PullCashBoxTopup, userID)
}

func (s *Service) ReferralReceived(ctx context.Context, userID int64) (float64, error) {
	if s.pulls == nil {
		return 0, fmt.Errorf("pull transaction store is nil")
	}
	return s.pulls.SumByTypeAndReceiver(ctx, enums.PullReferral, userID)
}

func (s *Service) BusinessPool(ctx context.Context, userID int64) (float64, rules.BonusTier, error) {
	if s.pulls == nil {
		return 0, rules.BonusTier{}, fmt.Errorf("pull transaction store is nil")
	}

	sum, err := s.pulls.UserBusinessPoolSum(ctx, userID)
	if err != nil {
		return 0, rules.BonusTier{}, err
	}

	return sum, rules.BusinessBonus(sum), nil
}

// Balances aggregates every per-user figure the payments menu renders.
func (s *Service) Balances(ctx context.Context, userID int64) (UserBalances, error) {
	invested, err := s.InvestedSum(ctx, userID)
	if err != nil {
		return UserBalances{}, fmt.Errorf("sum investments: %w", err)
	}
	cashbox, err := s.CashboxReceived(ctx, userID)
	if err != nil {
		return UserBalances{}, fmt.Errorf("sum cashbox payouts: %w", err)
	}
	referral, err := s.ReferralReceived(ctx, userID)
	if err != nil {
		return UserBalances{}, fmt.Errorf("sum referral payouts: %w", err)
	}
	business, bonus, err := s.BusinessPool(ctx, userID)
	if err != nil {
		return UserBalances{}, fmt.Errorf("sum business pool: %w", err)
	}

	return UserBalances{
		InvestedSum:     invested,
		CashboxReceived: cashbox,
		ReferralSum:     referral,
		BusinessPool:    business,
		BusinessBonus:   bonus,
	}, nil
}
