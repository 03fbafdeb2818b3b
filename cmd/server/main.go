package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ecocleans/booking-agent/internal/auth"
	"github.com/ecocleans/booking-agent/internal/booking"
	"github.com/ecocleans/booking-agent/internal/config"
	httpserver "github.com/ecocleans/booking-agent/internal/httpserver"
	"github.com/ecocleans/booking-agent/internal/infra/storage"
	"github.com/ecocleans/booking-agent/internal/llm"
	"github.com/ecocleans/booking-agent/internal/logging"
	"github.com/ecocleans/booking-agent/internal/notify"
	"github.com/ecocleans/booking-agent/internal/ratelimit"
)

type store interface {
	booking.Store
	httpserver.BookingReader
}

func main() {
	envErr := config.LoadEnv()

	log, err := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if envErr != nil {
		log.Info("no .env file loaded", zap.Error(envErr))
	}

	cfg := config.Load(log)

	st, db, err := openStore(cfg)
	if err != nil {
		log.Fatal("open booking store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	if db != nil {
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()
	}

	channels := []notify.Channel{notify.NewEmail(cfg.ResendKey, cfg.NotifyEmailFrom, cfg.NotifyEmailTo)}
	if cfg.SMSEnabled() {
		channels = append(channels, notify.NewSMS(cfg.TwilioSID, cfg.TwilioToken, cfg.TwilioFrom, cfg.NotifySMSTo))
	}
	notifier := notify.NewMulti(log, channels...)
	gateway := booking.NewGateway(st, notifier, log)

	limiter, closeLimiter := newLimiter(cfg, log)
	defer closeLimiter()

	issuer := ""
	if cfg.SupabaseURL != "" {
		issuer = cfg.SupabaseURL + "/auth/v1"
	}

	srv := httpserver.New(httpserver.Deps{
		Config:   cfg,
		Log:      log,
		Text:     llm.NewGeminiText(cfg.GeminiKey, cfg.GeminiTextModel),
		Live:     &llm.GeminiLive{Model: cfg.GeminiLiveModel},
		Gateway:  gateway,
		Bookings: st,
		Notifier: notifier,
		Limiter:  limiter,
		Verifier: auth.NewVerifier(cfg.SupabaseJWTKey, issuer, "authenticated"),
		Tickets:  auth.NewTickets(cfg.TicketSecret),
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.HTTPAddress))
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	case sig := <-sigChan:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.CloseDialogs()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
		_ = server.Close()
	}
	if err := gateway.Wait(ctx); err != nil {
		log.Warn("pending notifications abandoned", zap.Error(err))
	}
}

func openStore(cfg config.Config) (store, *gorm.DB, error) {
	switch cfg.StoreDriver {
	case "supabase":
		s, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey)
		return s, nil, err
	case "postgres":
		db, err := storage.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return migrated(db)
	default:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return migrated(db)
	}
}

func migrated(db *gorm.DB) (store, *gorm.DB, error) {
	if err := storage.AutoMigrate(db); err != nil {
		return nil, db, fmt.Errorf("migrate: %w", err)
	}
	return storage.NewGormStore(db), db, nil
}

// newLimiter prefers Redis so replicas share one budget, and falls back to
// process memory when Redis is not configured or unreachable.
func newLimiter(cfg config.Config, log *zap.Logger) (ratelimit.Limiter, func()) {
	memory := func() (ratelimit.Limiter, func()) {
		return ratelimit.NewMemory(cfg.ChatRateLimit, cfg.ChatRateWindow), func() {}
	}
	if cfg.RedisAddr == "" {
		return memory()
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, using in-memory rate limit", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = client.Close()
		return memory()
	}
	log.Info("rate limit backed by redis", zap.String("addr", cfg.RedisAddr))
	return ratelimit.NewRedis(client, cfg.ChatRateLimit, cfg.ChatRateWindow), func() { _ = client.Close() }
}
