package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/finance-garden/admission/pkg/config"
	"github.com/finance-garden/admission/pkg/ratelimit"
	"github.com/finance-garden/admission/pkg/ratelimit/memstore"
	"github.com/finance-garden/admission/pkg/ratelimit/redisstore"
	"github.com/finance-garden/admission/pkg/ratelimit/sqlitestore"
)

var (
	configPath = flag.String("config", "admission.yaml", "Config file path")
	listen     = flag.String("listen", "", "Listen address (overrides config)")
	Version    = "dev"
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if err := cfg.Validate(); err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	logger := newLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("backend", cfg.RateLimit.Backend).Msg("admission gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	window := time.Duration(cfg.RateLimit.WindowS) * time.Second

	store, cleanup, err := buildStore(ctx, cfg, window, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize admission store")
	}
	defer cleanup()

	limiter := ratelimit.NewSlidingWindow(store,
		ratelimit.WithStoreTimeout(time.Duration(cfg.Redis.OpTimeoutMs)*time.Millisecond),
		ratelimit.WithLogger(logger),
	)
	gate := ratelimit.NewGate(limiter, cfg.RateLimit.Requests, window, cfg.RateLimit.ExemptPaths, logger)

	upstream, _ := url.Parse(cfg.Server.Upstream)
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("upstream unreachable")
		w.WriteHeader(http.StatusBadGateway)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), withRequestContext(logger), gate.Handler())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/openapi.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, openAPIDocument())
	})
	r.GET("/v1/admission/stats", requireAdmin(cfg.Server.AdminToken, logger), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"backend":  cfg.RateLimit.Backend,
			"limit":    cfg.RateLimit.Requests,
			"window_s": cfg.RateLimit.WindowS,
			"outcomes": gate.Stats(),
		})
	})
	r.NoRoute(func(c *gin.Context) {
		proxy.ServeHTTP(c.Writer, c.Request)
	})

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("listen", cfg.Server.Listen).Str("upstream", cfg.Server.Upstream).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := os.Stderr
	if cfg.JSON {
		return zerolog.New(out).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out}).Level(level).With().Timestamp().Logger()
}

// buildStore wires the configured backend and returns its release func.
func buildStore(ctx context.Context, cfg *config.GatewayConfig, window time.Duration, logger zerolog.Logger) (ratelimit.Store, func(), error) {
	switch cfg.RateLimit.Backend {
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// The limiter fails open per request, so an unreachable Redis at
			// startup degrades enforcement instead of blocking the gateway.
			logger.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, admitting all traffic until it recovers")
		}
		return redisstore.New(client), func() { _ = client.Close() }, nil

	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.RateLimit.SQLitePath), &gorm.Config{})
		if err != nil {
			return nil, nil, err
		}
		store, err := sqlitestore.New(db)
		if err != nil {
			return nil, nil, err
		}
		go sweepLoop(ctx, store, window, logger)
		return store, func() {}, nil

	default:
		return memstore.New(), func() {}, nil
	}
}

// sweepLoop clears abandoned keys from the SQLite backend once per window.
func sweepLoop(ctx context.Context, store *sqlitestore.Store, window time.Duration, logger zerolog.Logger) {
	t := time.NewTicker(window)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := store.Sweep(ctx, window); err != nil {
				logger.Warn().Err(err).Msg("admission sweep failed")
			}
		}
	}
}

func openAPIDocument() gin.H {
	return gin.H{
		"openapi": "3.0.0",
		"info": gin.H{
			"title":   "Finance Garden Admission Gateway",
			"version": Version,
		},
		"paths": gin.H{
			"/health":             gin.H{"get": gin.H{"summary": "Gateway health check"}},
			"/openapi.json":       gin.H{"get": gin.H{"summary": "This document"}},
			"/v1/admission/stats": gin.H{"get": gin.H{"summary": "Admission outcome counters (admin)"}},
		},
	}
}
