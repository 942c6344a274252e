package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nezuni1812/bidhub/internal/api/rest"
	"github.com/nezuni1812/bidhub/internal/api/websocket"
	"github.com/nezuni1812/bidhub/internal/infrastructure/cache"
	"github.com/nezuni1812/bidhub/internal/infrastructure/config"
	"github.com/nezuni1812/bidhub/internal/infrastructure/database"
	"github.com/nezuni1812/bidhub/internal/infrastructure/events"
	"github.com/nezuni1812/bidhub/internal/infrastructure/repository"
	"github.com/nezuni1812/bidhub/internal/infrastructure/telemetry"
	"github.com/nezuni1812/bidhub/internal/metrics"
	"github.com/nezuni1812/bidhub/internal/service/bidding"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	logger, err := telemetry.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, database.Config{
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		logger.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	store := repository.NewPostgresStore(pool)

	var (
		bus       events.Bus
		snapshots *cache.PriceCache
		limiter   rest.RateLimiter
	)
	if cfg.Redis.URL != "" {
		redisClient, err := cache.NewClient(ctx, cfg.Redis)
		if err != nil {
			logger.Fatal("connect redis", zap.Error(err))
		}
		defer func() { _ = redisClient.Close() }()
		bus = events.NewRedisBus(redisClient, logger)
		snapshots = cache.NewPriceCache(redisClient, 0)
		limiter = cache.NewBidRateLimiter(redisClient, logger,
			cfg.Security.RateLimit.BidsPerWindow, cfg.Security.RateLimit.Window)
	} else {
		logger.Warn("no redis configured, using in-process event bus")
		bus = events.NewMemoryBus()
	}

	collector := metrics.NewCollector()
	publisher := events.NewPublisher(bus, snapshots, logger)
	engine := bidding.NewEngine(store, publisher, collector, logger, bidding.Config{
		ExtensionWindow:    cfg.Bidding.ExtensionWindow,
		ExtensionIncrement: cfg.Bidding.ExtensionIncrement,
		MaxExtensions:      cfg.Bidding.MaxExtensions,
		SubmitTimeout:      cfg.Bidding.SubmitTimeout,
		SweepInterval:      cfg.Bidding.SweepInterval,
		SweepBatchSize:     cfg.Bidding.SweepBatchSize,
	})
	sweeper := bidding.NewSweeper(engine, logger)
	hub := websocket.NewHub(engine, bus, logger)

	auth := rest.NewAuthenticator(cfg.Security.JWTSecret, logger)
	handler := rest.NewHandler(engine, store, snapshots, limiter, logger, cfg.Bidding.DefaultCurrency)

	mux := http.NewServeMux()
	handler.Register(mux, auth.Middleware)
	mux.Handle("GET /metrics", collector.Handler())
	mux.Handle("GET /ws", auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bidderID, ok := rest.UserID(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		hub.ServeWS(w, r, bidderID)
	})))

	root := rest.Chain(mux,
		rest.Recover(logger),
		rest.RequestLogger(logger),
		rest.Throttle(100, 200),
	)
	server := rest.NewServer(cfg.Server, root, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })

	logger.Info("bidhub started",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Fatal("shutdown with error", zap.Error(err))
	}
	logger.Info("bidhub stopped")
}
