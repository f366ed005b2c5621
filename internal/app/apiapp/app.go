package apiapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/config"
	"github.com/mr4pson/prostable-tg-bot/internal/infra/blockchain"
	"github.com/mr4pson/prostable-tg-bot/internal/infra/streams"
	"github.com/mr4pson/prostable-tg-bot/internal/infra/telegram"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
	redrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/redis"
	transferssvc "github.com/mr4pson/prostable-tg-bot/internal/services/transfers"
	"github.com/mr4pson/prostable-tg-bot/internal/transport/http/handlers"
)

// App is the webhook-ingestion server: it receives indexer reports,
// records them in the ledger, and notifies the affected users.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	server     *http.Server
	postgres   *pgxpool.Pool
	redis      *goredis.Client
	httpRouter http.Handler
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	r := chi.NewRouter()
	ApplyMiddlewares(r, log)

	var pool *pgxpool.Pool
	if p, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN); err != nil {
		log.Warn("postgres init failed, continuing in degraded mode", zap.Error(err))
	} else {
		pool = p
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)

	userRepo := pgrepo.NewUserRepo(pool)
	txRepo := pgrepo.NewTransactionRepo(pool)

	streamsClient := streams.NewClient(cfg.Streams.BaseURL, cfg.Streams.APIKey, cfg.Streams.Timeout, log)
	submitter := blockchain.NewLogSubmitter(log)

	transferService := transferssvc.NewService(transferssvc.Dependencies{
		Users:     userRepo,
		Txs:       txRepo,
		Submitter: submitter,
		Streams:   streamsClient,
		Logger:    log,
	})

	var notifier handlers.Notifier
	if bot, err := telegram.NewBot(cfg.Bot.Token); err != nil {
		log.Warn("telegram bot init failed, webhook notifications disabled", zap.Error(err))
	} else {
		notifier = bot
	}

	RegisterRoutes(r, Dependencies{
		TransferService: transferService,
		Notifier:        notifier,
		WebhookSecret:   cfg.Webhook.Secret,
		Logger:          log,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	return &App{
		cfg:        cfg,
		logger:     log,
		server:     server,
		postgres:   pool,
		redis:      redisClient,
		httpRouter: r,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("api server started", zap.String("addr", a.cfg.HTTP.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error

	if err := a.server.Shutdown(ctx); err != nil {
		shutdownErr = err
	}
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil && shutdownErr == nil {
			shutdownErr = err
		}
	}

	return shutdownErr
}

func (a *App) Handler() http.Handler {
	return a.httpRouter
}
