package referral

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

const maxCascadeDepth = 3

type UserStore interface {
	FindByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
	IncrementRostBalance(ctx context.Context, userID int64, delta float64) error
}

type PullTransactionStore interface {
	Create(ctx context.Context, rec pgrepo.PullTransactionRecord) (pgrepo.PullTransactionRecord, error)
}

// Service walks the buyer's referrer chain and splits the referral pool
// across at most three ancestor levels.
type Service struct {
	users  UserStore
	pulls  PullTransactionStore
	logger *zap.Logger
}

type Dependencies struct {
	Users  UserStore
	Pulls  PullTransactionStore
	Logger *zap.Logger
}

// Payout is one paid cascade level.
type Payout struct {
	UserID int64
	Amount float64
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		users:  deps.Users,
		pulls:  deps.Pulls,
		logger: logger,
	}
}

// Pay distributes the referral pool up the buyer's referrer chain. Level 1
// takes 70%, level 2 takes 20%, level 3 takes 10%. When the tech account
// sits at level 1 it takes the whole pool and the cascade stops; at level 2
// it takes 30% and the cascade stops. A missing level is simply not paid,
// its share is never redirected.
func (s *Service) Pay(ctx context.Context, techAccountID int64, buyer pgrepo.UserRecord, pool float64, originID int64) ([]Payout, error) {
	if s.users == nil || s.pulls == nil {
		return nil, fmt.Errorf("referral dependencies are not configured")
	}
	if pool <= 0 {
		return nil, nil
	}

	var payouts []Payout

	current := buyer
	for level := 1; level <= maxCascadeDepth; level++ {
		if current.ReferrerID == nil {
			break
		}

		ancestor, err := s.users.FindByID(ctx, *current.ReferrerID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrUserNotFound) {
				break
			}
			return payouts, fmt.Errorf("resolve referral level %d: %w", level, err)
		}

		share, terminal := levelShare(level, ancestor.ID == techAccountID)
		amount := rules.RoundDecimals(pool * share)

		if err := s.payLevel(ctx, ancestor.ID, amount, originID); err != nil {
			return payouts, fmt.Errorf("pay referral level %d: %w", level, err)
		}

		payouts = append(payouts, Payout{UserID: ancestor.ID, Amount: amount})
		s.logger.Info("referral payout",
			zap.Int64("user_id", ancestor.ID),
			zap.Int("level", level),
			zap.Float64("amount", amount))

		if terminal {
			break
		}
		current = ancestor
	}

	return payouts, nil
}

func (s *Service) payLevel(ctx context.Context, userID int64, amount float64, originID int64) error {
	origin := originID
	receiver := userID

	if _, err := s.pulls.Create(ctx, pgrepo.PullTransactionRecord{
		OriginID:   &origin,
		ReceiverID: &receiver,
		Type:       enums.PullReferral,
		Price:      amount,
		Currency:   enums.CurrencyROST,
	}); err != nil {
		return err
	}

	return s.users.IncrementRostBalance(ctx, userID, amount)
}

// levelShare returns the pool fraction for the level and whether the
// cascade stops after paying it. The tech account short-circuits the walk:
// 100% at level 1, 30% at level 2.
func levelShare(level int, isTechAccount bool) (float64, bool) {
	switch level {
	case 1:
		if isTechAccount {
			return 1.0, true
		}
		return 0.7, false
	case 2:
		if isTechAccount {
			return 0.3, true
		}
		return 0.2, false
	default:
		return 0.1, true
	}
}
