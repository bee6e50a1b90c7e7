package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/admin"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/analytics"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/config"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/contracts"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/dispatcher"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domains"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/ingest"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/liquidation"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/scoring"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store/postgres"
	redisstream "github.com/mfahriferdiansyah/domalend-sub000/internal/store/redis"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/tracing"
)

const (
	migrationsDir = "migrations"

	dbStatsInterval         = 15 * time.Second
	consistencyInterval     = 1 * time.Hour
	serverShutdownTimeout   = 10 * time.Second
	serverReadHeaderTimeout = 10 * time.Second
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

	logger.Info("starting domalend-indexer",
		"scoring_api", cfg.Scoring.BaseURL,
		"contracts_api", cfg.Contracts.BaseURL,
		"domain_api", cfg.Resolver.BaseURL,
		"sweep_interval", cfg.Liquidation.SweepInterval,
		"auto_submit", cfg.Scoring.AutoSubmit,
		"health_port", cfg.Server.HealthPort,
	)

	shutdownTracing, err := tracing.Init(context.Background(), "domalend-indexer",
		cfg.Tracing.OTLPEndpoint, true, cfg.Tracing.SampleRatio)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.OTLPEndpoint != "" {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.OTLPEndpoint)
	}

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

	if err := db.RunMigrations(migrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	alerter := buildAlerter(cfg, logger)

	resolver := domains.NewHTTPResolver(cfg.Resolver.BaseURL, logger,
		domains.WithTimeout(cfg.Resolver.Timeout),
	)
	scorer := scoring.NewClient(cfg.Scoring.BaseURL, logger,
		scoring.WithTimeout(cfg.Scoring.Timeout),
		scoring.WithRateLimit(cfg.Scoring.RateLimit, int(cfg.Scoring.RateLimit)*2),
	)
	contractClient := contracts.NewClient(cfg.Contracts.BaseURL, logger,
		contracts.WithTimeout(cfg.Contracts.Timeout),
	)

	stores := dispatcher.Stores{
		Transactor:  db,
		Scoring:     postgres.NewScoringEventRepo(db),
		Loans:       postgres.NewLoanRepo(db),
		LoanHistory: postgres.NewLoanHistoryRepo(db),
		Pools:       postgres.NewPoolRepo(db),
		PoolHistory: postgres.NewPoolHistoryRepo(db),
		Auctions:    postgres.NewAuctionRepo(db),
		Requests:    postgres.NewLoanRequestRepo(db),
		Fundings:    postgres.NewLoanFundingRepo(db),
		Analytics:   postgres.NewDomainAnalyticsRepo(db),
		SystemLog:   postgres.NewSystemEventRepo(db),
		Batches:     postgres.NewBatchOperationRepo(db),
	}

	source := ingest.NewSource(cfg.Dispatcher.ChannelBufferSize, logger)

	dispatcherOpts := []dispatcher.Option{
		dispatcher.WithAutoSubmit(cfg.Scoring.AutoSubmit),
		dispatcher.WithLiquidationBuffer(cfg.Liquidation.BufferHours),
		dispatcher.WithRetryConfig(cfg.Dispatcher.RetryMaxAttempts,
			cfg.Dispatcher.RetryDelayInitial, cfg.Dispatcher.RetryDelayMax),
		dispatcher.WithAlerter(alerter),
	}

	var stream *redisstream.Stream
	if cfg.Redis.URL != "" {
		stream, err = redisstream.NewStream(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer stream.Close()
		dispatcherOpts = append(dispatcherOpts, dispatcher.WithEventStream(stream))
		logger.Info("redis event stream enabled")
	}

	disp := dispatcher.New(stores, source.Events(), resolver, scorer, contractClient,
		logger, dispatcherOpts...)

	monitor := liquidation.NewMonitor(stores.Loans, stores.SystemLog, contractClient,
		logger, liquidation.WithAlerter(alerter))

	aggregator := analytics.NewService(db, stores.Pools, stores.PoolHistory,
		stores.Analytics, stores.SystemLog, alerter, logger)

	adminServer := admin.NewServer(admin.Repos{
		Loans:       stores.Loans,
		LoanHistory: stores.LoanHistory,
		Pools:       stores.Pools,
		PoolHistory: stores.PoolHistory,
		Auctions:    stores.Auctions,
		Requests:    stores.Requests,
		Fundings:    stores.Fundings,
		Analytics:   stores.Analytics,
		Scoring:     stores.Scoring,
	}, logger,
		admin.WithSweepRequester(monitor),
		admin.WithAnalyticsRebuilder(aggregator),
		admin.WithPinger(db),
	)

	rateLimiter := admin.NewRateLimitMiddleware(logger)
	defer rateLimiter.Stop()

	mux := http.NewServeMux()
	mux.Handle("POST /ingest/v1/logs", source.Handler())
	mux.Handle("/", rateLimiter.Wrap(
		admin.AuditMiddleware(logger, stores.SystemLog, adminServer.Handler()),
	))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.Server.HealthPort)),
		Handler:           mux,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		// Close the ingest stream first so no new deliveries are accepted
		// while the server drains.
		source.Close()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancelShutdown()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return disp.Run(gCtx)
	})

	g.Go(func() error {
		return monitor.RunPeriodic(gCtx, cfg.Liquidation.SweepInterval)
	})

	g.Go(func() error {
		return aggregator.RunPeriodic(gCtx, consistencyInterval)
	})

	startDBStatsPump(gCtx, db, logger)

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
		logger.Error("indexer exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("indexer shut down gracefully")
}

func buildAlerter(cfg *config.Config, logger *slog.Logger) alert.Alerter {
	var channels []alert.Alerter
	if cfg.Alert.SlackWebhookURL != "" {
		channels = append(channels, alert.NewSlackAlerter(cfg.Alert.SlackWebhookURL))
	}
	if cfg.Alert.WebhookURL != "" {
		channels = append(channels, alert.NewWebhookAlerter(cfg.Alert.WebhookURL))
	}
	if len(channels) == 0 {
		return &alert.NoopAlerter{}
	}
	return alert.NewMultiAlerter(cfg.Alert.Cooldown, logger, channels...)
}

// startDBStatsPump samples sql.DB pool statistics into gauges.
func startDBStatsPump(ctx context.Context, db *postgres.DB, logger *slog.Logger) {
	go func() {
		ticker := time.NewTicker(dbStatsInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("db stats sampler stopped")
				return
			case <-ticker.C:
				stats := db.Stats()
				metrics.DBPoolOpen.Set(float64(stats.OpenConnections))
				metrics.DBPoolInUse.Set(float64(stats.InUse))
				metrics.DBPoolIdle.Set(float64(stats.Idle))
			}
		}
	}()
}
