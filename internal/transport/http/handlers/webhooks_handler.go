package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/domain/rules"
	"github.com/mr4pson/prostable-tg-bot/internal/transport/http/dto"
	httperrors "github.com/mr4pson/prostable-tg-bot/internal/transport/http/errors"

	transferssvc "github.com/mr4pson/prostable-tg-bot/internal/services/transfers"
)

type TransferService interface {
	RecordTopup(ctx context.Context, address string, amount float64) (transferssvc.TopupResult, error)
	RecordTransfer(ctx context.Context, fromAddress, toAddress string, amount float64) (transferssvc.TransferResult, error)
}

// Notifier pushes chat messages to users affected by a webhook.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type WebhooksHandler struct {
	transfers TransferService
	notifier  Notifier
	logger    *zap.Logger
}

func NewWebhooksHandler(transfers TransferService, notifier Notifier, logger *zap.Logger) *WebhooksHandler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WebhooksHandler{
		transfers: transfers,
		notifier:  notifier,
		logger:    logger,
	}
}

func (h *WebhooksHandler) WalletTopup(w http.ResponseWriter, r *http.Request) {
	var req dto.WalletTopupWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{
			Code: "bad_request", Message: "invalid json body",
		})
		return
	}

	result, err := h.transfers.RecordTopup(r.Context(), req.Address, req.Amount)
	if err != nil {
		h.writeTransferError(w, err)
		return
	}

	h.notify(r.Context(), result.User.TgUserID, fmt.Sprintf(
		"Ваш кошелек пополнен на *%s USDT*.",
		rules.FormatAmount(req.Amount)))

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{Status: "ok"})
}

func (h *WebhooksHandler) UsdtTransfer(w http.ResponseWriter, r *http.Request) {
	var req dto.UsdtTransferWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{
			Code: "bad_request", Message: "invalid json body",
		})
		return
	}

	result, err := h.transfers.RecordTransfer(r.Context(), req.FromAddress, req.ToAddress, req.Amount)
	if err != nil {
		h.writeTransferError(w, err)
		return
	}

	amount := rules.FormatAmount(req.Amount)
	h.notify(r.Context(), result.Sender.TgUserID, fmt.Sprintf(
		"Перевод *%s USDT* пользователю @%s выполнен.",
		amount, result.Receiver.Username))
	h.notify(r.Context(), result.Receiver.TgUserID, fmt.Sprintf(
		"Вы получили *%s USDT* от @%s.",
		amount, result.Sender.Username))

	httperrors.Write(w, http.StatusOK, dto.WebhookResponse{Status: "ok"})
}

func (h *WebhooksHandler) writeTransferError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, transferssvc.ErrValidation):
		httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{
			Code: "validation_error", Message: "invalid webhook payload",
		})
	case errors.Is(err, transferssvc.ErrWalletNotFound):
		httperrors.Write(w, http.StatusNotFound, httperrors.APIError{
			Code: "wallet_not_found", Message: "wallet address is not registered",
		})
	default:
		h.logger.Error("webhook processing failed", zap.Error(err))
		httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{
			Code: "internal_error", Message: "internal error",
		})
	}
}

func (h *WebhooksHandler) notify(ctx context.Context, chatID int64, text string) {
	if h.notifier == nil || chatID == 0 {
		return
	}
	if err := h.notifier.SendText(ctx, chatID, text); err != nil {
		h.logger.Warn("webhook notification failed",
			zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
