package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mr4pson/prostable-tg-bot/internal/config"
	"github.com/mr4pson/prostable-tg-bot/internal/infra/blockchain"
	"github.com/mr4pson/prostable-tg-bot/internal/infra/streams"
	tginfra "github.com/mr4pson/prostable-tg-bot/internal/infra/telegram"
	"github.com/mr4pson/prostable-tg-bot/internal/jobs/cashbox"
	pgrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/postgres"
	redrepo "github.com/mr4pson/prostable-tg-bot/internal/repo/redis"
	"github.com/mr4pson/prostable-tg-bot/internal/scheduler"
	investsvc "github.com/mr4pson/prostable-tg-bot/internal/services/invest"
	referralsvc "github.com/mr4pson/prostable-tg-bot/internal/services/referral"
	statssvc "github.com/mr4pson/prostable-tg-bot/internal/services/stats"
	transferssvc "github.com/mr4pson/prostable-tg-bot/internal/services/transfers"
	userssvc "github.com/mr4pson/prostable-tg-bot/internal/services/users"
)

// App is the Telegram front end: it drives the conversation state machine
// and hosts the delayed-job worker that fires the cashbox payout.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	states    *redrepo.StateRepo
	users     *userssvc.Service
	invest    *investsvc.Service
	stats     *statssvc.Service
	transfers *transferssvc.Service

	cashboxJob *cashbox.Job
	worker     *scheduler.Worker
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}

	redisClient := redrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	states := redrepo.NewStateRepo(redisClient, cfg.Bot.StateTTL)

	userRepo := pgrepo.NewUserRepo(pool)
	txRepo := pgrepo.NewTransactionRepo(pool)
	pullRepo := pgrepo.NewPullTransactionRepo(pool)

	streamsClient := streams.NewClient(cfg.Streams.BaseURL, cfg.Streams.APIKey, cfg.Streams.Timeout, logger)
	submitter := blockchain.NewLogSubmitter(logger)
	wallets := blockchain.NewWalletFactory()

	usersService := userssvc.NewService(userssvc.Dependencies{
		Users:   userRepo,
		Wallets: wallets,
		Streams: streamsClient,
		Logger:  logger,
	})
	referralService := referralsvc.NewService(referralsvc.Dependencies{
		Users:  userRepo,
		Pulls:  pullRepo,
		Logger: logger,
	})
	investService := investsvc.NewService(investsvc.Dependencies{
		Users:           userRepo,
		Txs:             txRepo,
		Pulls:           pullRepo,
		Referrals:       referralService,
		TechAccountTgID: cfg.Program.TechAccountTgID,
		MinAmount:       cfg.Program.MinInvestAmount,
		Logger:          logger,
	})
	statsService := statssvc.NewService(statssvc.Dependencies{
		Users:           userRepo,
		Txs:             txRepo,
		Pulls:           pullRepo,
		TechAccountTgID: cfg.Program.TechAccountTgID,
		MaxEmission:     cfg.Program.MaxEmission,
	})
	transfersService := transferssvc.NewService(transferssvc.Dependencies{
		Users:     userRepo,
		Txs:       txRepo,
		Submitter: submitter,
		Streams:   streamsClient,
		Logger:    logger,
	})

	queue := scheduler.NewService(redisClient).GetQueue(cashbox.QueueName)
	cashboxJob := cashbox.NewJob(cashbox.Dependencies{
		Users:           userRepo,
		Txs:             txRepo,
		Pulls:           pullRepo,
		Queue:           queue,
		TechAccountTgID: cfg.Program.TechAccountTgID,
		Period:          cfg.Program.CashboxPeriod,
		Logger:          logger,
	})
	worker := scheduler.NewWorker(queue, func(ctx context.Context, _ scheduler.Job) error {
		return cashboxJob.Run(ctx)
	}, cfg.Program.WorkerPollInterval, logger)

	var bot *tginfra.Bot
	if strings.TrimSpace(cfg.Bot.Token) != "" {
		bot, err = tginfra.NewBot(cfg.Bot.Token)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("init telegram bot: %w", err)
		}
	} else {
		logger.Warn("BOT_TOKEN is empty, conversation listener disabled")
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		postgres:   pool,
		redis:      redisClient,
		bot:        bot,
		states:     states,
		users:      usersService,
		invest:     investService,
		stats:      statsService,
		transfers:  transfersService,
		cashboxJob: cashboxJob,
		worker:     worker,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	if err := a.cashboxJob.EnsureArmed(ctx); err != nil {
		a.logger.Warn("arm cashbox trigger failed", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- a.worker.Run(ctx)
	}()

	if a.bot != nil {
		go func() {
			errCh <- a.bot.Listen(ctx, tginfra.Handlers{
				OnCommand:  a.handleCommand,
				OnText:     a.handleText,
				OnCallback: a.handleCallback,
			})
		}()
	}

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("bot app stopped")
			return nil
		case err := <-errCh:
			if err == nil || errors.Is(err, context.Canceled) {
				continue
			}
			return err
		}
	}
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}
