package apiapp

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/transport/http/handlers"
)

type Dependencies struct {
	TransferService handlers.TransferService
	Notifier        handlers.Notifier
	WebhookSecret   string
	Logger          *zap.Logger
}

func RegisterRoutes(r chi.Router, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler()
	webhooksHandler := handlers.NewWebhooksHandler(deps.TransferService, deps.Notifier, deps.Logger)

	r.Get("/health", healthHandler.Handle)

	r.Group(func(g chi.Router) {
		g.Use(WebhookAuthMiddleware(deps.WebhookSecret, deps.Logger))
		g.Post("/transactions/wallet-topup-webhook", webhooksHandler.WalletTopup)
		g.Post("/transactions/usdt-transfer-webhook", webhooksHandler.UsdtTransfer)
	})
}
