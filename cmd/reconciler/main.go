package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kodax/deposit-reconciler/internal/admin"
	"github.com/kodax/deposit-reconciler/internal/alert"
	"github.com/kodax/deposit-reconciler/internal/chain"
	"github.com/kodax/deposit-reconciler/internal/chain/arbitrum"
	"github.com/kodax/deposit-reconciler/internal/chain/base"
	"github.com/kodax/deposit-reconciler/internal/chain/bsc"
	"github.com/kodax/deposit-reconciler/internal/chain/ethereum"
	"github.com/kodax/deposit-reconciler/internal/chain/polygon"
	"github.com/kodax/deposit-reconciler/internal/chain/solana"
	"github.com/kodax/deposit-reconciler/internal/classifier"
	"github.com/kodax/deposit-reconciler/internal/commission"
	"github.com/kodax/deposit-reconciler/internal/config"
	"github.com/kodax/deposit-reconciler/internal/credit"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
	"github.com/kodax/deposit-reconciler/internal/ledger"
	"github.com/kodax/deposit-reconciler/internal/scheduler"
	"github.com/kodax/deposit-reconciler/internal/store/postgres"
	redispkg "github.com/kodax/deposit-reconciler/internal/store/redis"
	"github.com/kodax/deposit-reconciler/internal/token"
	"github.com/kodax/deposit-reconciler/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	enabled := make([]string, 0, len(cfg.Chains))
	for ch := range cfg.Chains {
		enabled = append(enabled, string(ch))
	}
	logger.Info("starting deposit-reconciler",
		"chains", enabled,
		"scan_interval", cfg.Scan.Interval,
		"scan_workers", cfg.Scan.Workers,
		"commission_rate", cfg.Commission.Rate,
	)

	// Initialize OpenTelemetry tracing
	shutdownTracing, err := tracing.Init(context.Background(), "deposit-reconciler", cfg.Tracing.OTLPEndpoint, true)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	// Connect to PostgreSQL
	db, err := postgres.New(postgres.Config{
		URL:             cfg.DB.URL,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if cfg.DB.MigrationsDir != "" {
		if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	// Optional redis hot cache in front of the dedup ledger
	var hot ledger.HotCache
	if cfg.Redis.URL != "" {
		rc, err := redispkg.New(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rc.Close()
		hot = rc
		logger.Info("connected to redis")
	}

	userRepo := postgres.NewUserRepo(db)
	ledgerRepo := postgres.NewLedgerRepo(db)
	txnRepo := postgres.NewTransactionRepo(db)
	tokenRepo := postgres.NewTokenRepo(db)
	notificationRepo := postgres.NewNotificationRepo(db)
	cycleRepo := postgres.NewScanCycleRepo(db)

	registry, err := token.NewRegistry(cfg.Scan.TokenRegistryPath, tokenRepo, logger)
	if err != nil {
		logger.Error("failed to load token registry", "error", err)
		os.Exit(1)
	}

	adapters := make(map[model.Chain]chain.Adapter, len(cfg.Chains))
	for ch, cc := range cfg.Chains {
		switch ch {
		case model.ChainEthereum:
			adapters[ch] = ethereum.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		case model.ChainBSC:
			adapters[ch] = bsc.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		case model.ChainPolygon:
			adapters[ch] = polygon.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		case model.ChainArbitrum:
			adapters[ch] = arbitrum.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		case model.ChainBase:
			adapters[ch] = base.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		case model.ChainSolana:
			adapters[ch] = solana.NewAdapter(cc.ExplorerURL, cc.APIKey, cfg.Scan.FetchTimeout, logger)
		default:
			logger.Error("no adapter for configured chain", "chain", ch)
			os.Exit(1)
		}
	}

	alerters := []alert.Alerter{alert.NewLogAlerter(logger)}
	if cfg.Alert.WebhookURL != "" {
		alerters = append(alerters, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	alerter := alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, alerters...)

	led := ledger.New(ledgerRepo, hot, logger)
	class := classifier.New(registry, logger)
	creditSvc := credit.NewService(userRepo, txnRepo, led, alerter, logger)
	commEngine := commission.NewEngine(userRepo, txnRepo, notificationRepo, cfg.Commission.Rate, logger)

	sched := scheduler.New(
		scheduler.Config{
			Interval:     cfg.Scan.Interval,
			FetchTimeout: cfg.Scan.FetchTimeout,
			Workers:      cfg.Scan.Workers,
		},
		userRepo, adapters, class, led, creditSvc, commEngine, cycleRepo, alerter, logger,
	)

	adminSrv := admin.NewServer(sched, cycleRepo, userRepo, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runMetricsServer(gCtx, cfg.Server.MetricsPort, logger)
	})

	g.Go(func() error {
		return runHTTPServer(gCtx, "admin", cfg.Server.AdminPort, adminSrv.Handler(), logger)
	})

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("reconciler exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("reconciler shut down gracefully")
}

func runMetricsServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	return runHTTPServer(ctx, "metrics", port, mux, logger)
}

func runHTTPServer(ctx context.Context, name string, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("server shutdown error", "server", name, "error", err)
		}
	}()

	logger.Info("http server started", "server", name, "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("%s server: %w", name, err)
	}
	return nil
}
