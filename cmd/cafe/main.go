package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kfkafe/cafe-ops/cmd/cafe/cli"
	"github.com/kfkafe/cafe-ops/internal/app"
	"github.com/kfkafe/cafe-ops/internal/atrisk"
	"github.com/kfkafe/cafe-ops/internal/auth"
	"github.com/kfkafe/cafe-ops/internal/inventory"
	"github.com/kfkafe/cafe-ops/internal/menu"
	"github.com/kfkafe/cafe-ops/internal/observability"
	"github.com/kfkafe/cafe-ops/internal/platform/cache"
	"github.com/kfkafe/cafe-ops/internal/platform/db"
	"github.com/kfkafe/cafe-ops/internal/procurement"
	"github.com/kfkafe/cafe-ops/internal/sales"
	"github.com/kfkafe/cafe-ops/internal/shared"
	"github.com/kfkafe/cafe-ops/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		fs := flag.NewFlagSet("jobs", flag.ExitOnError)
		jsonOut := fs.Bool("json", false, "print JSON output")
		_ = fs.Parse(os.Args[2:])
		jobsCLI := cli.NewJobsCLI(redisOpts)
		code := jobsCLI.JobsCommand(ctx, cli.JobsOptions{Args: fs.Args(), JSONOutput: *jsonOut})
		if err := jobsCLI.Close(); err != nil {
			logger.Warn("jobs cli close", slog.Any("error", err))
		}
		os.Exit(code)
	}

	if err := shared.SetCurrencyLocale(cfg.CurrencyLocale); err != nil {
		logger.Error("currency locale", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()
	if err := db.Migrate(ctx, dbpool); err != nil {
		logger.Error("migrate schema", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "cafe_session", cfg.SessionTTL, cfg.IsProduction())
	auditLogger := shared.NewAuditLogger(dbpool)
	idempotencyStore := shared.NewIdempotencyStore(redisClient, cfg.IdempotencyRetention)
	guard := auth.Middleware{Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	limiter := auth.NewRedisLimiter(redisClient, cfg.LoginMaxAttempts, cfg.LoginWindow)
	authService := auth.NewService(authRepo, limiter, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager)

	atRiskCache := atrisk.NewCache(redisClient, cfg.AtRiskCacheTTL)
	atRiskService := atrisk.NewService(atrisk.NewRepository(dbpool), atRiskCache, metrics, logger)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool), auditLogger, metrics, logger)
	menuService := menu.NewService(menu.NewRepository(dbpool), auditLogger, logger)

	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	salesService := sales.NewService(sales.NewRepository(dbpool), sales.Options{
		PriceMismatch: sales.PriceMismatchPolicy(cfg.PriceMismatchPolicy),
		Orphans:       sales.OrphanPolicy(cfg.OrphanPolicy),
	}, sales.Deps{
		Stock:       inventoryService,
		Metrics:     metrics,
		Alerts:      jobClient,
		Idempotency: idempotencyStore,
		Logger:      logger,
	})
	procurementService := procurement.NewService(procurement.NewRepository(dbpool), inventoryService, auditLogger,
		procurement.Options{AllowOverDelivery: cfg.AllowOverDelivery}, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		AuthHandler:        authHandler,
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, guard),
		AtRiskHandler:      atrisk.NewHandler(logger, atRiskService, guard),
		MenuHandler:        menu.NewHandler(logger, menuService, guard),
		SalesHandler:       sales.NewHandler(logger, salesService, guard),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, guard),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
