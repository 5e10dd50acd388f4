package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/tendant/simple-idm-profile/idm"
	"github.com/tendant/simple-idm-profile/internal/config"
	"github.com/tendant/simple-idm-profile/internal/notification"
	"github.com/tendant/simple-idm-profile/pkg/auth"
	"github.com/tendant/simple-idm-profile/pkg/platform"
	"github.com/tendant/simple-idm-profile/pkg/repository"
	"github.com/tendant/simple-idm-profile/pkg/storage"
)

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDB(repository.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := repository.Migrate(ctx, db); err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	var content platform.ContentStore = storage.Disabled{}
	if cfg.HasS3() {
		s3Store, err := storage.NewS3Store(ctx, storage.Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			BaseEndpoint:  cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			UsePathStyle:  cfg.S3UsePathStyle,
			PublicBaseURL: cfg.S3PublicBaseURL,
			PresignExpiry: cfg.S3PresignExpiry,
		})
		if err != nil {
			return err
		}
		content = s3Store
		logger.Info("avatar storage enabled", "bucket", cfg.S3Bucket)
	} else {
		logger.Warn("avatar storage disabled: S3_BUCKET not set")
	}

	var mailer auth.ResetMailer
	if cfg.HasSMTP() {
		mailer = notification.NewEmailService(notification.EmailConfig{
			Host:         cfg.SMTPHost,
			Port:         cfg.SMTPPort,
			User:         cfg.SMTPUser,
			Password:     cfg.SMTPPassword,
			From:         cfg.SMTPFrom,
			FromName:     cfg.SMTPFromName,
			ResetLinkTTL: humanDuration(cfg.ResetTokenTTL),
		})
		logger.Info("email service enabled")
	}

	svc, err := idm.New(ctx, idm.Config{
		DB:              db,
		Redis:           rdb,
		Content:         content,
		Mailer:          mailer,
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		ResetTokenTTL:   cfg.ResetTokenTTL,
		AppBaseURL:      cfg.AppBaseURL,
		Logger:          logger,
		HTTP: idm.HTTPConfig{
			CookieSecure:          cfg.CookieSecure,
			StrictEmailValidation: cfg.StrictEmailValidation,
			BlockDisposableEmail:  cfg.BlockDisposableEmail,
			FingerprintEnabled:    cfg.SessionSecurity.FingerprintEnabled,
			DetectReuseEnabled:    cfg.SessionSecurity.DetectReuseEnabled,
			RateLimit:             cfg.RateLimit,
			SecurityHeaders:       cfg.SecurityHeaders,
			Validation:            cfg.Validation,
		},
	})
	if err != nil {
		return err
	}

	handler, err := svc.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerAddr, cfg.ServerPort)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// humanDuration renders whole hours or minutes for email copy.
func humanDuration(d time.Duration) string {
	unit, n := "minute", int(d/time.Minute)
	if d >= time.Hour && d%time.Hour == 0 {
		unit, n = "hour", int(d/time.Hour)
	}
	if n != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%d %s", n, unit)
}
