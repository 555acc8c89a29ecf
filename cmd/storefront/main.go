// Command storefront runs the session gateway in front of the marketplace
// API: it keeps per-buyer cart and chat state, reconciles voucher verdicts
// and bridges the realtime push channel into conversation state.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/viemarket/storefront/internal/handlers"
	"github.com/viemarket/storefront/internal/platform/config"
	"github.com/viemarket/storefront/internal/platform/kv"
	"github.com/viemarket/storefront/internal/platform/observability"
	"github.com/viemarket/storefront/internal/platform/requestctx"
	"github.com/viemarket/storefront/internal/realtime"
	"github.com/viemarket/storefront/internal/upstream"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	fees, err := config.LoadPricingTable(cfg.Pricing.TableFile)
	if err != nil {
		logger.Fatal("failed to load pricing table", zap.Error(err))
	}

	store := sessionStore(cfg, logger)

	apiClient := upstream.NewClient(cfg.Upstream.BaseURL, callerToken,
		upstream.WithTimeout(cfg.Upstream.Timeout))

	sessions, err := handlers.NewSessionManager(handlers.SessionManagerDeps{
		API:         apiClient,
		Dialer:      realtime.WebsocketDialer{},
		RealtimeURL: cfg.Realtime.URL,
		Store:       store,
		Fees:        fees,
		Chat:        cfg.Chat,
		Logger:      logger.Named("session"),
		Now:         time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Sessions:       sessions,
		Logger:         logger.Named("http"),
		Now:            time.Now,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("storefront gateway listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	sessions.Close()
}

// callerToken forwards the bearer token of the current request to the
// marketplace API.
func callerToken(ctx context.Context) string {
	if id, ok := requestctx.IdentityFrom(ctx); ok {
		return id.Token
	}
	return ""
}

// sessionStore picks redis when configured and falls back to the in-process
// store otherwise. A failed redis ping at boot is fatal; a degraded store
// would silently lose the state it exists to keep.
func sessionStore(cfg config.Config, logger *zap.Logger) kv.Store {
	if cfg.Redis.Addr == "" {
		logger.Info("no redis configured, using in-memory session store")
		return kv.NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Fatal("redis unreachable", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}
	logger.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
	return kv.NewRedisStore(client)
}
