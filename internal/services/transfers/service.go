package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/enums"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrWalletNotFound      = errors.New("wallet address is not registered")
	ErrRecipientNotFound   = errors.New("recipient not found")
	ErrRecipientNoWallet   = errors.New("recipient has no wallet")
	ErrSenderNoWallet      = errors.New("sender has no wallet")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

type UserStore interface {
	FindByPublicKey(ctx context.Context, publicKey string) (pgrepo.UserRecord, error)
	FindByUsername(ctx context.Context, username string) (pgrepo.UserRecord, error)
	IncrementWalletBalance(ctx context.Context, userID int64, delta float64) error
	MoveWalletBalance(ctx context.Context, senderID, receiverID int64, amount float64) error
	SetHasFundedWallet(ctx context.Context, userID int64, funded bool) error
}

type TransactionStore interface {
	Create(ctx context.Context, rec pgrepo.TransactionRecord) (pgrepo.TransactionRecord, error)
}

// TransferSubmitter pushes value movements to the chain. Settlement is
// asynchronous; the ledger is written when the indexer reports the event
// back through a webhook.
type TransferSubmitter interface {
	SubmitTransfer(ctx context.Context, fromAddress, toAddress string, amount float64) error
	TopupGas(ctx context.Context, address string) error
}

type StreamRegistrar interface {
	Register(ctx context.Context, address string) error
	Remove(ctx context.Context, address string) error
}

// Service records wallet top-ups and peer transfers reported by the
// indexer, and submits outgoing transfers.
type Service struct {
	users     UserStore
	txs       TransactionStore
	submitter TransferSubmitter
	streams   StreamRegistrar
	logger    *zap.Logger
}

type Dependencies struct {
	Users     UserStore
	Txs       TransactionStore
	Submitter TransferSubmitter
	Streams   StreamRegistrar
	Logger    *zap.Logger
}

type TopupResult struct {
	User         pgrepo.UserRecord
	Transaction  pgrepo.TransactionRecord
	FirstFunding bool
}

type TransferResult struct {
	Sender      pgrepo.UserRecord
	Receiver    pgrepo.UserRecord
	Transaction pgrepo.TransactionRecord
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		users:     deps.Users,
		txs:       deps.Txs,
		submitter: deps.Submitter,
		streams:   deps.Streams,
		logger:    logger,
	}
}

// RecordTopup books a confirmed deposit to the wallet that received it.
// The first top-up marks the wallet funded and requests a gas top-up so
// the user can move the money later.
func (s *Service) RecordTopup(ctx context.Context, address string, amount float64) (TopupResult, error) {
	if s.users == nil || s.txs == nil {
		return TopupResult{}, fmt.Errorf("transfer dependencies are not configured")
	}

	address = strings.TrimSpace(address)
	if address == "" || amount <= 0 {
		return TopupResult{}, ErrValidation
	}

	user, err := s.users.FindByPublicKey(ctx, address)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return TopupResult{}, ErrWalletNotFound
		}
		return TopupResult{}, fmt.Errorf("resolve wallet: %w", err)
	}

	tx, err := s.txs.Create(ctx, pgrepo.TransactionRecord{
		UserID:   user.ID,
		Type:     enums.TransactionTopup,
		Price:    amount,
		Currency: enums.CurrencyUSDT,
	})
	if err != nil {
		return TopupResult{}, fmt.Errorf("record topup transaction: %w", err)
	}

	if err := s.users.IncrementWalletBalance(ctx, user.ID, amount); err != nil {
		return TopupResult{}, fmt.Errorf("credit wallet balance: %w", err)
	}

	firstFunding := !user.HasFundedWallet
	if firstFunding {
		if err := s.users.SetHasFundedWallet(ctx, user.ID, true); err != nil {
			return TopupResult{}, fmt.Errorf("mark wallet funded: %w", err)
		}
		if s.submitter != nil {
			if err := s.submitter.TopupGas(ctx, user.PublicKey); err != nil {
				s.logger.Warn("gas topup request failed",
					zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}
	}

	s.removeStream(ctx, address)

	s.logger.Info("wallet topup recorded",
		zap.Int64("user_id", user.ID), zap.Float64("amount", amount))

	return TopupResult{User: user, Transaction: tx, FirstFunding: firstFunding}, nil
}

// RecordTransfer books a confirmed on-chain transfer between two program
// wallets: one TRANSFER row, the sender debited, the receiver credited.
func (s *Service) RecordTransfer(ctx context.Context, fromAddress, toAddress string, amount float64) (TransferResult, error) {
	if s.users == nil || s.txs == nil {
		return TransferResult{}, fmt.Errorf("transfer dependencies are not configured")
	}

	fromAddress = strings.TrimSpace(fromAddress)
	toAddress = strings.TrimSpace(toAddress)
	if fromAddress == "" || toAddress == "" || amount <= 0 {
		return TransferResult{}, ErrValidation
	}

	sender, err := s.users.FindByPublicKey(ctx, fromAddress)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return TransferResult{}, ErrWalletNotFound
		}
		return TransferResult{}, fmt.Errorf("resolve sender wallet: %w", err)
	}

	receiver, err := s.users.FindByPublicKey(ctx, toAddress)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return TransferResult{}, ErrWalletNotFound
		}
		return TransferResult{}, fmt.Errorf("resolve receiver wallet: %w", err)
	}

	receiverID := receiver.ID
	tx, err := s.txs.Create(ctx, pgrepo.TransactionRecord{
		UserID:     sender.ID,
		ReceiverID: &receiverID,
		Type:       enums.TransactionTransfer,
		Price:      amount,
		Currency:   enums.CurrencyUSDT,
	})
	if err != nil {
		return TransferResult{}, fmt.Errorf("record transfer transaction: %w", err)
	}

	if err := s.users.MoveWalletBalance(ctx, sender.ID, receiver.ID, amount); err != nil {
		return TransferResult{}, fmt.Errorf("move wallet balance: %w", err)
	}

	s.removeStream(ctx, fromAddress)

	s.logger.Info("transfer recorded",
		zap.Int64("sender_id", sender.ID),
		zap.Int64("receiver_id", receiver.ID),
		zap.Float64("amount", amount))

	return TransferResult{Sender: sender, Receiver: receiver, Transaction: tx}, nil
}

// SubmitTransfer validates an internal transfer and hands it to the chain
// submitter. The ledger entry is written later, when the transfer webhook
// confirms the movement.
func (s *Service) SubmitTransfer(ctx context.Context, sender pgrepo.UserRecord, recipientUsername string, amount float64) (pgrepo.UserRecord, error) {
	if s.users == nil || s.submitter == nil {
		return pgrepo.UserRecord{}, fmt.Errorf("transfer dependencies are not configured")
	}

	if amount <= 0 {
		return pgrepo.UserRecord{}, ErrValidation
	}
	if sender.PublicKey == "" {
		return pgrepo.UserRecord{}, ErrSenderNoWallet
	}
	if amount > sender.WalletBalance {
		return pgrepo.UserRecord{}, ErrInsufficientBalance
	}

	recipient, err := s.users.FindByUsername(ctx, recipientUsername)
	if err != nil {
		if errors.Is(err, pgrepo.ErrUserNotFound) {
			return pgrepo.UserRecord{}, ErrRecipientNotFound
		}
		return pgrepo.UserRecord{}, fmt.Errorf("resolve recipient: %w", err)
	}
	if recipient.ID == sender.ID {
		return pgrepo.UserRecord{}, ErrValidation
	}
	if recipient.PublicKey == "" {
		return pgrepo.UserRecord{}, ErrRecipientNoWallet
	}

	// The sender's stream was dropped after its last event; re-register it
	// so the indexer reports this transfer back.
	if s.streams != nil {
		if err := s.streams.Register(ctx, sender.PublicKey); err != nil {
			s.logger.Warn("register sender stream failed",
				zap.Int64("user_id", sender.ID), zap.Error(err))
		}
	}

	if err := s.submitter.SubmitTransfer(ctx, sender.PublicKey, recipient.PublicKey, amount); err != nil {
		return pgrepo.UserRecord{}, fmt.Errorf("submit transfer: %w", err)
	}

	s.logger.Info("transfer submitted",
		zap.Int64("sender_id", sender.ID),
		zap.Int64("recipient_id", recipient.ID),
		zap.Float64("amount", amount))

	return recipient, nil
}

func (s *Service) removeStream(ctx context.Context, address string) {
	if s.streams == nil {
		return
	}
	if err := s.streams.Remove(ctx, address); err != nil {
		s.logger.Warn("remove wallet stream failed",
			zap.String("address", address), zap.Error(err))
	}
}
