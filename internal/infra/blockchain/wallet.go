package blockchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

// WalletFactory generates secp256k1 keypairs for user wallets.
type WalletFactory struct{}

func NewWalletFactory() *WalletFactory {
	return &WalletFactory{}
}

// NewWallet returns the checksummed address and the hex-encoded private
// key. The caller owns delivering the key to the user and hashing it for
// storage.
func (WalletFactory) NewWallet() (string, string, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return "", "", fmt.Errorf("generate wallet key: %w", err)
	}

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	privateKey := hexutil.Encode(crypto.FromECDSA(key))

	return address, privateKey, nil
}

// LogSubmitter stands in for the custodial chain submitter: it only logs
// the requested movement. Settlement is observed through the indexer
// webhooks regardless of how the submission happens.
type LogSubmitter struct {
	logger *zap.Logger
}

func NewLogSubmitter(logger *zap.Logger) *LogSubmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSubmitter{logger: logger}
}

func (s *LogSubmitter) SubmitTransfer(ctx context.Context, fromAddress, toAddress string, amount float64) error {
	s.logger.Info("transfer submission requested",
		zap.String("from", fromAddress),
		zap.String("to", toAddress),
		zap.Float64("amount", amount))

	_ = ctx
	return nil
}

func (s *LogSubmitter) TopupGas(ctx context.Context, address string) error {
	s.logger.Info("gas topup requested", zap.String("address", address))

	_ = ctx
	return nil
}
