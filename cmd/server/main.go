package main // seat service entry point

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/kiosk-seat-engine/internal/config"
	"github.com/iliyamo/kiosk-seat-engine/internal/database"
	"github.com/iliyamo/kiosk-seat-engine/internal/handler"
	"github.com/iliyamo/kiosk-seat-engine/internal/middleware"
	"github.com/iliyamo/kiosk-seat-engine/internal/queue"
	"github.com/iliyamo/kiosk-seat-engine/internal/realtime"
	"github.com/iliyamo/kiosk-seat-engine/internal/repository"
	"github.com/iliyamo/kiosk-seat-engine/internal/router"
	"github.com/iliyamo/kiosk-seat-engine/internal/service"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger("seat-engine", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatalf("seat-engine: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger) error {
	store, db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}
	for _, flight := range cfg.SeedFlights {
		created, err := repository.EnsureFlight(ctx, store, flight, repository.DefaultLayout)
		if err != nil {
			return err
		}
		if created {
			logger.Infof("seeded flight %s with the default layout", flight)
		}
	}

	// Redis is required for the redis broadcast backend and optional for
	// caching and rate limiting.
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		if cfg.BroadcastBackend == config.BroadcastRedis {
			return err
		}
		logger.Warnf("redis unavailable, cache and rate limit disabled: %v", err)
		rdb = nil
	}
	if rdb != nil {
		defer rdb.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	hub := realtime.NewHub(cfg.HubBuffer, logger)
	var bus service.Broadcaster = hub
	if cfg.BroadcastBackend == config.BroadcastRedis {
		rbus := realtime.NewRedisBus(rdb, hub, logger)
		bus = rbus
		g.Go(func() error { return rbus.Relay(gctx, nil) })
	}

	var opts []service.Option
	if cfg.AuditEnabled {
		pub := service.NewAuditPublisher(cfg.AMQPURL, cfg.AuditBuffer, logger)
		opts = append(opts, service.WithAudit(pub))
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, cfg.AuditLogDir, logger)
		g.Go(func() error { return pub.Run(gctx) })
		g.Go(func() error { return consumer.Run(gctx) })
	}

	coord := service.NewCoordinator(store, bus, cfg.LockTTL, logger, opts...)
	sweeper := service.NewSweeper(coord, cfg.SweepInterval, logger)
	g.Go(func() error { return sweeper.Run(gctx) })

	e := newEcho(cfg, logger, coord, hub, db, rdb)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Infof("listening on %s (env=%s store=%s broadcast=%s)", addr, cfg.Env, cfg.StoreDriver, cfg.BroadcastBackend)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Config) (repository.SeatStore, *sql.DB, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return repository.NewMemoryStore(), nil, nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repository.NewSeatRepo(db), db, nil
}

func newEcho(cfg config.Config, logger *log.Logger, coord *service.Coordinator, hub *realtime.Hub, db *sql.DB, rdb *redis.Client) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger = logger
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, handler.SessionHeader},
	}))

	router.RegisterRoutes(e, &handler.HealthHandler{DB: db, Redis: rdb})
	router.RegisterSeats(e, handler.NewSeatHandler(coord), router.SeatMiddleware{
		RateLimit: middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		Cache:     middleware.NewRedisCache(config.LoadCacheConfig(), rdb),
	})
	router.RegisterRealtime(e, realtime.NewEndpoint(hub, logger))
	return e
}
