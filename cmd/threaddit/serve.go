package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/emilythestrangee/threaddit/backend/internal/cache"
	"github.com/emilythestrangee/threaddit/backend/internal/database"
	"github.com/emilythestrangee/threaddit/backend/internal/repository"
	"github.com/emilythestrangee/threaddit/backend/internal/server"
)

const shutdownTimeout = 10 * time.Second

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.Migrate()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	gin.SetMode(cfg.GinMode)

	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !skipMigrate {
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	opts := server.Options{
		Config: cfg,
		DB:     db,
		Users:  repository.NewUserRepository(db.GetDB()),
		Posts:  repository.NewPostRepository(db.GetDB()),
		Logger: logger,
	}

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		defer client.Close()

		pingCtx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, reads will fall through to postgres", "addr", cfg.Redis.Addr, "error", err)
		}
		cancel()

		cached := cache.NewPostRepository(opts.Posts, client, cfg.Redis.TTL, logger)
		opts.Posts = cached
		opts.Cache = cached
		logger.Info("post cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.TTL)
	}

	srv := server.New(opts).HTTPServer()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr, "client_url", cfg.ClientURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
