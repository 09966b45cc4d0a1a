package main // Entry point package

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/allure/event-admin/internal/config"
	"github.com/allure/event-admin/internal/database"
	"github.com/allure/event-admin/internal/handler"
	"github.com/allure/event-admin/internal/queue"
	"github.com/allure/event-admin/internal/repository"
	"github.com/allure/event-admin/internal/router"
	"github.com/allure/event-admin/internal/service"
	"github.com/allure/event-admin/internal/sheets"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "apply migrations and exit")
	flag.Parse()

	cfg := config.Load() // Load environment config
	logger := log.New("allure-events")
	logger.SetLevel(logLevel(cfg.LogLevel))
	logger.SetHeader(`{"time":"${time_rfc3339}","level":"${level}","prefix":"${prefix}"}`)

	db, dialect, err := database.Open(cfg)
	if err != nil {
		logger.Fatalf("database: %v", err)
	}
	defer db.Close()
	logger.Infof("connected to %s at %s:%s/%s", dialect.Name, cfg.DBHost, cfg.DBPort, cfg.DBName)

	if *migrateOnly || cfg.DBAutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err := database.Migrate(ctx, db, dialect)
		cancel()
		if err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Info("migrations applied")
		if *migrateOnly {
			return
		}
	}

	events := repository.NewEventRepo(db, dialect)
	users := repository.NewUserRepo(db, dialect)
	tokens := repository.NewTokenRepo(db, dialect)

	auth := service.NewAuthService(users, tokens, service.AuthConfig{
		Secret:         cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	})
	seedUsers(auth, cfg.AdminUsers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pub service.Publisher = service.NopPublisher{}
	if cfg.SheetsSyncEnabled {
		pub = &service.AMQPPublisher{URL: cfg.RabbitURL, Logger: logger}
		closeRecovery := startSheetsWorker(ctx, cfg, logger)
		defer closeRecovery()
	}

	ai := service.NewAIService(service.AIConfig{
		APIKey:  cfg.OpenAIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
		Timeout: cfg.AITimeout,
		Logger:  logger,
	})
	if err := ai.CheckKey(); err != nil {
		logger.Warnf("AI extraction unavailable: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable; cache and rate limiting disabled")
	} else {
		defer rdb.Close()
	}

	dev := cfg.Development()
	e := router.New(router.Deps{
		Events:      handler.NewEventHandler(service.NewEventService(events, pub, cfg.DeleteMode == "hard", logger), dev),
		AI:          handler.NewAIHandler(ai),
		Auth:        handler.NewAuthHandler(auth, cfg.JWTSecret, dev),
		Health:      &handler.HealthHandler{DB: events, Dev: dev},
		Redis:       rdb,
		Cache:       config.LoadCacheConfig(),
		RateLimit:   config.LoadRateLimitConfig(),
		JWTSecret:   cfg.JWTSecret,
		AuthEnabled: cfg.AuthEnabled,
		CORSOrigins: cfg.CORSOrigins,
		Dev:         dev,
		Logger:      logger,
	})

	addr := ":" + cfg.Port // Address string with port
	go func() {
		logger.Infof("listening on %s (env=%s, auth=%t)", addr, cfg.Env, cfg.AuthEnabled)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}

func seedUsers(auth *service.AuthService, spec string, logger *log.Logger) {
	if spec == "" {
		return
	}
	seeds, err := service.ParseSeedUsers(spec)
	if err != nil {
		logger.Fatalf("ADMIN_USERS: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := auth.Seed(ctx, seeds)
	if err != nil {
		logger.Fatalf("seed users: %v", err)
	}
	if n > 0 {
		logger.Infof("seeded %d staff account(s)", n)
	}
}

// startSheetsWorker consumes event.saved and mirrors each event into the
// spreadsheet.  The returned func closes the recovery log.
func startSheetsWorker(ctx context.Context, cfg config.Config, logger *log.Logger) func() {
	recovery, closeFn, err := sheets.NewRecoveryLogger(cfg.SheetsRecoveryLog)
	if err != nil {
		logger.Warnf("sheets recovery log: %v; using the main log", err)
		recovery, closeFn = logger, func() error { return nil }
	}
	if !sheets.ValidateScriptURL(cfg.SheetsScriptURL) {
		logger.Warn("GOOGLE_SCRIPT_URL not set or invalid; spreadsheet sync runs in simulation mode")
	}
	client := sheets.NewClient(sheets.Options{
		Endpoint: cfg.SheetsScriptURL,
		Timeout:  cfg.SheetsTimeout,
		Recovery: recovery,
		Logger:   logger,
	})
	consumer := &queue.Consumer{
		URL:    cfg.RabbitURL,
		Handle: queue.SheetsMirror(client, logger),
		Logger: logger,
	}
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorf("sheets worker stopped: %v", err)
		}
	}()
	return func() { _ = closeFn() }
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	}
	return log.INFO
}
