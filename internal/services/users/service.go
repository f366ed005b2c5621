package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

var (
	ErrValidation       = errors.New("validation error")
	ErrUserNotFound     = errors.New("user not found")
	ErrReferrerNotFound = errors.New("referrer not found")
	ErrWalletExists     = errors.New("wallet already exists")
)

type UserStore interface {
	FindByTgID(ctx context.Context, tgUserID int64) (pgrepo.UserRecord, error)
	FindByUsername(ctx context.Context, username string) (pgrepo.UserRecord, error)
	UpsertByTgID(ctx context.Context, tgUserID int64, username string, referrerID *int64) (pgrepo.UserRecord, error)
	SetAcceptedTerms(ctx context.Context, tgUserID int64) error
	SetWallet(ctx context.Context, tgUserID int64, publicKey, privateKeyHash string) error
	SetEmail(ctx context.Context, tgUserID int64, email string) error
	CountRostHolders(ctx context.Context) (int64, error)
	ReferralLevelCounts(ctx context.Context, userID int64) (pgrepo.ReferralCounts, error)
	FirstLineActiveReferralsCount(ctx context.Context, userID int64) (int64, error)
}

// WalletFactory creates a fresh keypair; the address is stored, the private
// key is shown to the user exactly once.
type WalletFactory interface {
	NewWallet() (address, privateKey string, err error)
}

// StreamRegistrar subscribes a wallet address with the indexing provider so
// its first top-up arrives as a webhook.
type StreamRegistrar interface {
	Register(ctx context.Context, address string) error
}

type Service struct {
	users   UserStore
	wallets WalletFactory
	streams StreamRegistrar
	logger  *zap.Logger
}

type Dependencies struct {
	Users   UserStore
	Wallets WalletFactory
	Streams StreamRegistrar
	Logger  *zap.Logger
}

// ReferralSummary backs the referral menu.
type ReferralSummary struct {
	Counts          pgrepo.ReferralCounts
	FirstLineActive int64
}

// Wallet is the result of wallet creation. PrivateKey is never persisted in
// the clear; only the bcrypt hash lands in the store.
type Wallet struct {
	Address    string
	PrivateKey string
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		users:   deps.Users,
		wallets: deps.Wallets,
		streams: deps.Streams,
		logger:  logger,
	}
}

// Register creates a user from a referral link, or refreshes an existing
// one. referrerTgID of 0 means no referral link; registration still
// proceeds so the tech account and legacy users keep working, but a
// non-zero referrer must resolve.
func (s *Service) Register(ctx context.Context, tgUserID int64, username string, referrerTgID int64) (pgrepo.UserRecord, error) {
	if s.users == nil {
		return pgrepo.UserRecord{}, fmt.Errorf("user store is nil")
	}
	if tgUserID <= 0 {
		return pgrepo.UserRecord{}, ErrValidation
	}

	var referrerID *int64
	if referrerTgID > 0 && referrerTgID != tgUserID {
		referrer, err := s.users.FindByTgID(ctx, referrerTgID)
		if err != nil {
			if errors.Is(err, pgrepo.ErrUserNotFound) {
				return pgrepo.UserRecord{}, ErrReferrerNotFound
			}
			return pgrepo.UserRecord{}, fmt.Errorf("resolve referrer: %w", err)
		}
		referrerID = &referrer.ID
	}

	user, err := s.users.UpsertByTgID(ctx, tgUserID, username, referrerID)
	if err != nil {
		return pgrepo.UserRecord{}, err
	}

	s.logger.Info("user registered",
		zap.Int64("tg_user_id", tgUserID),
		zap.Bool("has_referrer", referrerID != nil))

	return user, nil
}

func (s *Service) FindByTgID(ctx context.Context, tgUserID int64) (pgrepo.UserRecord, error) {
	if s.users == nil {
		return pgrepo.UserRecord{}, fmt.Errorf("user store is nil")
	}

	user, err := s.users.FindByTgID(ctx, tgUserID)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return pgrepo.UserRecord{}, ErrUserNotFound
		}
		return pgrepo.UserRecord{}, err
	}

	return user, nil
}

func (s *Service) FindByUsername(ctx context.Context, username string) (pgrepo.UserRecord, error) {
	if s.users == nil {
		return pgrepo.UserRecord{}, fmt.Errorf("user store is nil")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return pgrepo.UserRecord{}, ErrUserNotFound
		}
		return pgrepo.UserRecord{}, err
	}

	return user, nil
}

func (s *Service) AcceptTerms(ctx context.Context, tgUserID int64) error {
	if s.users == nil {
		return fmt.Errorf("user store is nil")
	}

	if err := s.users.SetAcceptedTerms(ctx, tgUserID); err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	return nil
}

// CreateWallet generates a keypair, persists the address and the bcrypt
// hash of the private key, and registers the address for top-up webhooks.
// Returns the raw private key for one-time delivery to the user.
func (s *Service) CreateWallet(ctx context.Context, tgUserID int64) (Wallet, error) {
	if s.users == nil || s.wallets == nil {
		return Wallet{}, fmt.Errorf("wallet dependencies are not configured")
	}

	user, err := s.FindByTgID(ctx, tgUserID)
	if err != nil {
		return Wallet{}, err
	}
	if user.PublicKey != "" {
		return Wallet{}, ErrWalletExists
	}

	address, privateKey, err := s.wallets.NewWallet()
	if err != nil {
		return Wallet{}, fmt.Errorf("generate wallet: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(privateKey), bcrypt.DefaultCost)
	if err != nil {
		return Wallet{}, fmt.Errorf("hash private key: %w", err)
	}

	if err := s.users.SetWallet(ctx, tgUserID, address, string(hash)); err != nil {
		return Wallet{}, err
	}

	if s.streams != nil {
		if err := s.streams.Register(ctx, address); err != nil {
			// The wallet itself is usable; the stream can be registered
			// again before the first top-up.
			s.logger.Warn("register wallet stream failed",
				zap.Int64("tg_user_id", tgUserID), zap.Error(err))
		}
	}

	s.logger.Info("wallet created", zap.Int64("tg_user_id", tgUserID))

	return Wallet{Address: address, PrivateKey: privateKey}, nil
}

func (s *Service) SetEmail(ctx context.Context, tgUserID int64, email string) error {
	if s.users == nil {
		return fmt.Errorf("user store is nil")
	}

	email = strings.TrimSpace(email)
	if !isValidEmail(email) {
		return ErrValidation
	}

	if err := s.users.SetEmail(ctx, tgUserID, email); err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	return nil
}

func (s *Service) HolderCount(ctx context.Context) (int64, error) {
	if s.users == nil {
		return 0, fmt.Errorf("user store is nil")
	}
	return s.users.CountRostHolders(ctx)
}

func (s *Service) Referrals(ctx context.Context, userID int64) (ReferralSummary, error) {
	if s.users == nil {
		return ReferralSummary{}, fmt.Errorf("user store is nil")
	}

	counts, err := s.users.ReferralLevelCounts(ctx, userID)
	if err != nil {
		return ReferralSummary{}, err
	}
	active, err := s.users.FirstLineActiveReferralsCount(ctx, userID)
	if err != nil {
		return ReferralSummary{}, err
	}

	return ReferralSummary{Counts: counts, FirstLineActive: active}, nil
}

func isValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t")
}
