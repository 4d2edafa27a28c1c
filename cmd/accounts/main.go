package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"accounts/internal/cache"
	"accounts/internal/config"
	"accounts/internal/jobs"
	"accounts/internal/observability/logging"
	"accounts/internal/observability/metrics"
	"accounts/internal/service"
	impl "accounts/internal/service/impl"
	"accounts/internal/store"
	httpx "accounts/internal/transport/http"
	"accounts/pkg/db"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const serviceName = "accounts"

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       cfg.LogLevel,
	})
	slog.SetDefault(logger)
	logger.Info("starting service")

	metrics.MustRegister(prometheus.DefaultRegisterer, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1) DB
	gdb, err := db.OpenGorm(db.Config{
		DSN:             cfg.DatabaseURL,
		LogSQL:          cfg.DBLogSQL,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, gdb); err != nil {
			return err
		}
	}
	st := store.New(gdb, cfg.StoreTimeout)

	// 2) Cache
	var accountCache service.AccountCache = cache.Noop{}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		accountCache = cache.NewRedisAccountCache(rdb, cfg.CacheTTL)
	}

	// 3) Services
	email := impl.NewLogEmailService(logger)
	pw := impl.NewPasswordServiceBcrypt(cfg.BcryptCost, cfg.HashConcurrency)
	ts, err := impl.NewTokenServiceHS256(impl.TokenConfig{
		Issuer:        cfg.Issuer,
		Audience:      cfg.Audience,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
		AccessSecret:  []byte(cfg.AccessSecret),
		RefreshSecret: []byte(cfg.RefreshSecret),
	}, st, nil)
	if err != nil {
		return err
	}
	lockout := impl.NewLockoutTracker(st, impl.LockoutPolicy{
		MaxAttempts:  cfg.MaxLoginAttempts,
		LockDuration: cfg.LockDuration,
	}, email, nil)

	as := impl.NewAuthServiceImpl(st, pw, ts, lockout, email, nil)
	rs := impl.NewResetServiceImpl(st, pw, email, impl.ResetConfig{
		TokenTTL:         cfg.ResetTokenTTL,
		EnumerationDelay: cfg.ResetEnumerationDelay,
	}, nil)
	acs := impl.NewAccountServiceImpl(st, pw, accountCache, nil)

	// 4) HTTP
	router := httpx.NewRouter(httpx.Deps{
		Auth:          as,
		Tokens:        ts,
		Resets:        rs,
		Accounts:      acs,
		Ready:         st.Ping,
		CORSOrigins:   cfg.CORSOrigins,
		TrustProxy:    cfg.TrustProxy,
		AuthRateLimit: cfg.AuthRateLimit,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("accounts service listening", "addr", srv.Addr, "issuer", cfg.Issuer)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return jobs.NewSweeper(st.Accounts(), cfg.SweepSchedule).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
