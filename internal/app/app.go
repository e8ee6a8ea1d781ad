package app

import (
	"context"
	"time"

	"github.com/NasaVasa/stockpulse/internal/config"
	"github.com/NasaVasa/stockpulse/internal/delivery/httpapi"
	"github.com/NasaVasa/stockpulse/internal/delivery/telegram"
	"github.com/NasaVasa/stockpulse/internal/domain"
	"github.com/NasaVasa/stockpulse/internal/infra/alphavantage"
	"github.com/NasaVasa/stockpulse/internal/infra/db"
	"github.com/NasaVasa/stockpulse/internal/infra/events"
	"github.com/NasaVasa/stockpulse/internal/infra/log"
	"github.com/NasaVasa/stockpulse/internal/infra/notify"
	"github.com/NasaVasa/stockpulse/internal/infra/stream"
	"github.com/NasaVasa/stockpulse/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	scheduler  *usecase.Scheduler
	dispatcher *usecase.Dispatcher
	stream     *stream.TradeStream
	bot        *telegram.Bot
	httpServer *httpapi.Server
	logger     *zap.Logger
	cancel     context.CancelFunc
	cleanupFns []func() error
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := log.NewLogger(cfg.LogLevel, cfg.LogFormat, "stockpulse")
	if err != nil {
		return nil, err
	}
	a := &App{logger: logger}

	dbConn, err := db.Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.cleanupFns = append(a.cleanupFns, func() error {
		sqlDB, err := dbConn.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	alertRepo := db.NewAlertRepository(dbConn)
	auditRepo := db.NewAuditRepository(dbConn)
	quotes := alphavantage.NewClient(cfg.AlphaVantageBaseURL, cfg.AlphaVantageAPIKey, cfg.AlphaVantageTimeout, logger)

	senders, err := newSenders(cfg, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	reporters := usecase.MultiReporter{usecase.NewLogReporter(logger)}
	sinks := usecase.MultiSink{usecase.NewLogSink(logger), usecase.NewAuditSink(auditRepo)}

	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubjectPrefix, logger)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.cleanupFns = append(a.cleanupFns, publisher.Close)
		sinks = append(sinks, publisher)
	}

	var botAPI *tgbotapi.BotAPI
	if cfg.TelegramBotToken != "" {
		botAPI, err = telegram.NewAPI(cfg.TelegramBotToken)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		reporters = append(reporters, telegram.NewReporter(botAPI, cfg.TelegramOperatorChatID, logger))
	}

	cache := usecase.NewPriceCache(cfg.PriceTTL)
	states := usecase.NewAlertStateStore()
	a.dispatcher = usecase.NewDispatcher(
		senders,
		usecase.BackoffPolicy{
			MaxAttempts: cfg.NotifyMaxAttempts,
			Base:        cfg.NotifyBackoffBase,
			Max:         cfg.NotifyBackoffMax,
			Multiplier:  cfg.NotifyBackoffMultiplier,
		},
		auditRepo,
		reporters,
		logger.With(zap.String("component", "dispatcher")),
	)
	a.scheduler = usecase.NewScheduler(
		usecase.SchedulerConfig{
			Interval:          cfg.CycleInterval,
			RateLimitRequests: cfg.RateLimitRequests,
			RateLimitInterval: cfg.RateLimitInterval,
			FetchRetry: usecase.BackoffPolicy{
				MaxAttempts: cfg.FetchMaxAttempts,
				Base:        cfg.FetchBackoffBase,
				Max:         cfg.FetchBackoffMax,
				Multiplier:  2,
			},
			Workers: cfg.WorkerCount,
		},
		alertRepo,
		quotes,
		cache,
		states,
		a.dispatcher,
		sinks,
		reporters,
		logger,
	)

	if cfg.StreamURL != "" {
		tradeStream, err := stream.NewTradeStream(cfg.StreamURL, cfg.StreamToken, cfg.StreamReadTimeout, cfg.StreamReconnectWait, cache, logger)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.stream = tradeStream
		a.scheduler.SetTracker(tradeStream)
	}

	if botAPI != nil {
		handlers := telegram.NewHandlers(a.scheduler, quotes, cfg.TelegramOperatorChatID, logger)
		a.bot = telegram.NewBot(botAPI, handlers, cfg.TelegramPollTimeout)
	}

	if cfg.HTTPAddr != "" {
		a.httpServer = httpapi.NewServer(cfg.HTTPAddr, cfg.HTTPAllowedOrigins, a.scheduler, auditRepo, 3*cfg.CycleInterval, logger)
	}

	return a, nil
}

func newSenders(cfg config.Config, logger *zap.Logger) ([]domain.ChannelSender, error) {
	var senders []domain.ChannelSender
	if cfg.EmailEnabled() {
		email, err := notify.NewEmailSender(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			return nil, err
		}
		senders = append(senders, email)
	}
	if cfg.SMSEnabled() {
		senders = append(senders, notify.NewSMSSender(notify.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioFromNumber,
		}, logger))
	}
	if len(senders) == 0 {
		logger.Warn("no notification channel configured, every delivery will fail")
	}
	return senders, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("stockpulse service starting")
	ctx, a.cancel = context.WithCancel(ctx)

	if a.stream != nil {
		a.stream.Start(ctx)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	if a.httpServer != nil {
		p.Go(func(context.Context) error {
			return a.httpServer.Start()
		})
		p.Go(func(ctx context.Context) error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return a.httpServer.Shutdown(shutdownCtx)
		})
	}
	if a.bot != nil {
		p.Go(func(ctx context.Context) error {
			return a.bot.Start(ctx)
		})
	}
	p.Go(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	a.logger.Info("stockpulse service started")
	return p.Wait()
}

func (a *App) Shutdown() {
	a.logger.Info("stockpulse service shutting down")
	if a.cancel != nil {
		a.cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	if a.stream != nil {
		_ = a.stream.Close()
	}
	a.cleanup()
	_ = a.logger.Sync()
}

func (a *App) cleanup() {
	for i := len(a.cleanupFns) - 1; i >= 0; i-- {
		if err := a.cleanupFns[i](); err != nil {
			a.logger.Warn("cleanup failed", zap.Error(err))
		}
	}
	a.cleanupFns = nil
}
