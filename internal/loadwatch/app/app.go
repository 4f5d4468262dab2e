package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/conversation"
	httpapi "github.com/aussiebroadwan/loadwatch/internal/loadwatch/http"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/jobs"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/line"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/metrics"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/service"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store/drivers/postgres"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/store/drivers/sqlite"
	"github.com/aussiebroadwan/loadwatch/internal/loadwatch/telegram"
	"github.com/aussiebroadwan/loadwatch/pkg/cryptox"
	"github.com/aussiebroadwan/loadwatch/pkg/httpx"
	"github.com/aussiebroadwan/loadwatch/pkg/slogx"
	"github.com/line/line-bot-sdk-go/v7/linebot"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Application holds the loadwatch service and its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger
	loc    *time.Location

	// Core dependencies
	db       store.Store
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	redis    *redis.Client

	// Services
	registryService  *service.RegistryService
	ledgerService    *service.LedgerService
	analyticsService *service.AnalyticsService

	// Transport
	messenger    conversation.Messenger
	names        conversation.NameResolver
	conversation *conversation.Router
	webhook      http.Handler
	telegramBot  *telegram.Bot

	orchestrator *jobs.Orchestrator
	scheduler    *cron.Cron

	// HTTP server
	server *http.Server
	router *httpapi.Router

	// background cancels the telegram poller.
	background context.CancelFunc
	wg         sync.WaitGroup
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	app := &Application{
		cfg: cfg,
		loc: loc,
		logger: slogx.New(slogx.Config{
			Service: "loadwatch",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initMetrics(); err != nil {
		return nil, err
	}
	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initServices(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	if err := app.initTransport(); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initJobs()
	if err := app.initScheduler(); err != nil {
		app.closeBackends()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Migrate applies database migrations and returns.
func Migrate(cfg Config) error {
	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ApplyMigrations(); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	return nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	ctx, cancel := context.WithCancel(slogx.WithContext(context.Background(), app.logger))
	app.background = cancel

	if app.scheduler != nil {
		app.scheduler.Start()
		app.logger.Info("job scheduler started", "entries", len(app.scheduler.Entries()))
	}

	if app.telegramBot != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.telegramBot.Run(ctx, app.conversation)
		}()
	}

	app.logger.Info("loadwatch starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"transport", app.cfg.Transport,
		"database", app.cfg.DatabaseDriver,
		"timezone", app.loc.String(),
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Handler returns the HTTP handler Run serves.
func (app *Application) Handler() http.Handler {
	return app.router
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down loadwatch...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the scheduler and wait for running jobs
	if app.scheduler != nil {
		select {
		case <-app.scheduler.Stop().Done():
		case <-ctx.Done():
			app.logger.Warn("scheduled jobs still running at shutdown deadline")
		}
	}

	if app.background != nil {
		app.background()
	}
	app.wg.Wait()

	if err := app.closeBackends(); err != nil {
		return err
	}

	app.logger.Info("loadwatch stopped")
	return nil
}

func (app *Application) closeBackends() error {
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis", "error", err)
		}
	}

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}
	return nil
}

func (app *Application) initMetrics() error {
	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(app.registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	app.metrics = m
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := openStore(app.cfg)
	if err != nil {
		return err
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.DatabaseDriver)
	return nil
}

func openStore(cfg Config) (store.Store, error) {
	switch cfg.DatabaseDriver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := postgres.NewStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	default:
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DatabaseFile)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		return db, nil
	}
}

// initServices initializes all business logic services
func (app *Application) initServices() error {
	codes, err := app.cfg.Codes()
	if err != nil {
		return err
	}

	app.registryService = service.NewRegistry(app.db, codes)
	app.ledgerService = service.NewLedger(app.db, app.loc)
	app.analyticsService = &service.AnalyticsService{
		Ledger:     app.ledgerService,
		Registry:   app.registryService,
		Thresholds: app.cfg.Thresholds(),
	}
	return nil
}

// initTransport connects the configured messaging platform.
func (app *Application) initTransport() error {
	switch app.cfg.Transport {
	case "line":
		var opts []linebot.ClientOption
		if app.cfg.LineAPIEndpoint != "" {
			opts = append(opts, linebot.WithEndpointBase(app.cfg.LineAPIEndpoint))
		}
		client, err := line.New(app.cfg.LineChannelSecret, app.cfg.LineChannelAccessToken, opts...)
		if err != nil {
			return err
		}
		app.messenger = client
		app.names = conversation.NewCachedResolver(client.LookupName)
	case "telegram":
		bot, err := telegram.New(app.cfg.TelegramBotToken)
		if err != nil {
			return err
		}
		app.messenger = bot
		app.names = conversation.NewCachedResolver(bot.LookupName)
		app.telegramBot = bot
	default:
		app.messenger = logMessenger{logger: app.logger}
		app.logger.Warn("no messaging transport configured, outbound messages are only logged")
	}

	app.conversation = conversation.NewRouter(
		app.registryService,
		app.ledgerService,
		app.analyticsService,
		app.names,
		app.metrics,
	)

	if client, ok := app.messenger.(*line.Client); ok {
		app.webhook = client.WebhookHandler(app.conversation)
	}
	return nil
}

// initJobs builds the orchestrator. A reachable Redis shares job slots
// across replicas; otherwise slots are tracked in memory.
func (app *Application) initJobs() {
	var guard jobs.SlotGuard = jobs.NewMemoryGuard()

	if app.cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     app.cfg.RedisAddr,
			Password: app.cfg.RedisPassword,
			DB:       app.cfg.RedisDB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err != nil {
			app.logger.Warn("redis unavailable, using in-memory job slots", "addr", app.cfg.RedisAddr, "error", err)
			_ = client.Close()
		} else {
			app.redis = client
			guard = jobs.NewRedisGuard(client)
			app.logger.Info("redis job slot guard enabled", "addr", app.cfg.RedisAddr)
		}
	}

	app.orchestrator = &jobs.Orchestrator{
		Registry:  app.registryService,
		Ledger:    app.ledgerService,
		Analytics: app.analyticsService,
		Pusher:    app.messenger,
		Names:     app.names,
		Guard:     guard,
		Metrics:   app.metrics,
		SlotTTL:   jobs.DefaultSlotTTL,
	}
}

func (app *Application) initScheduler() error {
	if !app.cfg.Schedule.Enabled {
		app.logger.Info("job scheduler disabled")
		return nil
	}

	c, err := newScheduler(app.cfg.Schedule, app.loc, app.orchestrator, app.logger)
	if err != nil {
		return err
	}
	app.scheduler = c
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.Webhook = app.webhook
	router.WebhookLimit = httpx.RateLimitConfig{
		RequestsPerWindow: app.cfg.WebhookRateLimit,
		Window:            time.Minute,
		Burst:             max(app.cfg.WebhookRateLimit/6, 1),
	}
	router.Jobs = app.orchestrator
	if app.cfg.JobsToken != "" {
		router.JobsTokenFingerprint = cryptox.FingerprintToken(app.cfg.JobsToken)
	}
	router.Metrics = app.metrics
	router.Gatherer = app.registry
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}

// logMessenger stands in for a platform when TRANSPORT=none.
type logMessenger struct {
	logger *slog.Logger
}

func (m logMessenger) ReplyTo(ctx context.Context, token string, reply conversation.Reply) error {
	m.logger.Info("reply", slog.String("token", token), slog.String("text", reply.Text))
	return nil
}

func (m logMessenger) Push(ctx context.Context, userID, text string) error {
	m.logger.Info("push", slog.String("user_id", userID), slog.String("text", text))
	return nil
}
