package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/princekumarofficial/winsome/internal/cache"
	"github.com/princekumarofficial/winsome/internal/config"
	"github.com/princekumarofficial/winsome/internal/events"
	"github.com/princekumarofficial/winsome/internal/exchange"
	"github.com/princekumarofficial/winsome/internal/http/handlers/stats"
	"github.com/princekumarofficial/winsome/internal/http/handlers/users"
	notify "github.com/princekumarofficial/winsome/internal/http/handlers/websocket"
	"github.com/princekumarofficial/winsome/internal/http/middleware"
	"github.com/princekumarofficial/winsome/internal/multicast"
	"github.com/princekumarofficial/winsome/internal/ratelimit"
	"github.com/princekumarofficial/winsome/internal/reactor"
	"github.com/princekumarofficial/winsome/internal/reward"
	"github.com/princekumarofficial/winsome/internal/server"
	"github.com/princekumarofficial/winsome/internal/session"
	"github.com/princekumarofficial/winsome/internal/storage"
	"github.com/princekumarofficial/winsome/internal/storage/file"
	"github.com/princekumarofficial/winsome/internal/storage/memory"
	"github.com/princekumarofficial/winsome/internal/storage/objectstore"
	"github.com/princekumarofficial/winsome/internal/storage/postgres"
	"github.com/princekumarofficial/winsome/internal/websocket"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newLogger(env string) *slog.Logger {
	if env == "local" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// openBackend returns the configured snapshot backend and a function
// releasing it.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Snapshotter, func(), error) {
	switch cfg.Persistence.Backend {
	case "postgres":
		pg, err := postgres.NewPostgres(ctx, cfg.PGSQL, logger)
		if err != nil {
			return nil, nil, err
		}
		return pg, func() { pg.Close() }, nil
	case "minio":
		store, err := objectstore.New(ctx, cfg.MinIO)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return file.New(cfg.Persistence.Path), func() {}, nil
	}
}

func main() {
	// load config
	cfg := config.MustLoad()

	logger := newLogger(cfg.Env)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// persistence
	backend, closeBackend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open %s snapshot backend: %s", cfg.Persistence.Backend, err)
	}
	defer closeBackend()

	store := memory.Open(ctx, backend, logger)

	// notifications
	hub := websocket.NewHub()

	var announcer events.Announcer
	sender, err := multicast.NewSender(cfg.Multicast.IP, cfg.Multicast.Port, cfg.Multicast.TTL, logger)
	if err != nil {
		logger.Warn("Multicast announcements disabled", slog.String("error", err.Error()))
	} else {
		defer sender.Close()
		announcer = sender
	}

	publisher := events.NewEventPublisher(hub, announcer, logger)
	store.SetFollowHook(events.FollowHook(publisher, logger))

	sessions := session.NewDirectory(server.NewCredentials(store), hub, logger)

	// redis backed rate limiting and exchange-rate cache
	var (
		rdb     *redis.Client
		limits  *ratelimit.Limits
		limiter server.RateLimiter
		rates   *cache.CacheService
	)
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, limits fail open until it recovers", slog.String("error", err.Error()))
		}

		limits = ratelimit.NewLimits(rdb, map[string]int64{
			ratelimit.ActionPost:     cfg.RateLimit.Posts,
			ratelimit.ActionRate:     cfg.RateLimit.Votes,
			ratelimit.ActionComment:  cfg.RateLimit.Comments,
			ratelimit.ActionRewin:    cfg.RateLimit.Rewins,
			ratelimit.ActionRegister: cfg.RateLimit.Registers,
		})
		limiter = limits
		rates = cache.NewCacheService(rdb)
	}

	converter := exchange.NewClient(cfg.Exchange.URL, cfg.Exchange.Timeout, rates, cfg.Exchange.CacheTTL, logger)

	// request pipeline
	srv := server.New(store, sessions, limiter, converter, server.Config{
		ReadTimeout:   cfg.TCPServer.ReadTimeout,
		MaxFrame:      cfg.TCPServer.MaxFrame,
		MulticastIP:   cfg.Multicast.IP,
		MulticastPort: cfg.Multicast.Port,
		JWTSecret:     cfg.JWTSecret,
	}, logger)

	pool := server.NewPool(cfg.Workers.Size, cfg.Workers.Queue, srv, logger)

	ln, err := net.Listen("tcp", cfg.TCPServer.Address)
	if err != nil {
		log.Fatalf("failed to listen on %s: %s", cfg.TCPServer.Address, err)
	}
	poller, err := reactor.NewPoller(cfg.Reactor.Poller)
	if err != nil {
		log.Fatalf("failed to create poller: %s", err)
	}
	loop := reactor.New(ln, poller, pool, reactor.Options{OnClose: srv.Release, Logger: logger})

	// setup router
	router := http.NewServeMux()
	rlc := middleware.NewRateLimitConfig(limits, logger)

	router.HandleFunc("GET /health", stats.Health())
	router.HandleFunc("GET /stats", stats.Stats(store, sessions, hub))
	router.Handle("POST /register", rlc.RateLimitedHandler(ratelimit.ActionRegister, users.Register(store)))
	router.Handle("GET /notify", middleware.AuthMiddleware(cfg.JWTSecret, sessions)(notify.Notify(hub)))
	if rdb != nil {
		router.HandleFunc("GET /cache/stats", cache.GetCacheStats(rdb))
		router.HandleFunc("DELETE /cache", cache.ClearCache(rdb))
	}

	httpServer := &http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: router,
	}

	// Snapshots outlive the request pipeline so the final save sees every
	// committed request.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	persister := storage.NewPersister(store, backend, cfg.Persistence.Interval, logger)
	persistDone := make(chan error, 1)
	go func() { persistDone <- persister.Run(persistCtx) }()

	pool.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		return reward.NewEngine(store, publisher, cfg.Reward.AuthorPercentage, cfg.Reward.Interval, logger).Run(gctx)
	})
	g.Go(func() error {
		return session.NewSweeper(sessions, cfg.Session.SweepInterval, logger).Run(gctx)
	})
	g.Go(func() error {
		logger.Info("HTTP server started", slog.String("address", cfg.HTTPServer.Address))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", slog.String("error", err.Error()))
	}

	pool.Stop()
	stopPersist()
	if err := <-persistDone; err != nil {
		logger.Error("Failed to save final snapshot", slog.String("error", err.Error()))
	}

	logger.Info("Server stopped")
}
