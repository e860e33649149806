// Package database owns the gorm connection pool and schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/emilythestrangee/threaddit/backend/internal/config"
	"github.com/emilythestrangee/threaddit/backend/internal/models"
)

const (
	maxIdleConns    = 10
	maxOpenConns    = 100
	connMaxLifetime = time.Hour
	pingTimeout     = 5 * time.Second
)

// Service is the application's handle on postgres.
type Service interface {
	// Health pings the database and reports pool statistics. "status" is
	// always set, to "up" or "down".
	Health(ctx context.Context) map[string]string

	// Migrate creates or updates the forum tables.
	Migrate() error

	Close() error
	GetDB() *gorm.DB
}

type service struct {
	db     *gorm.DB
	name   string
	logger *slog.Logger
}

// New opens a pooled postgres connection described by cfg. gorm's own
// logging goes through log at warn level and above.
func New(cfg config.Database, log *slog.Logger) (Service, error) {
	gormLog := logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:  gormLog,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	pool, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("acquiring connection pool: %w", err)
	}
	pool.SetMaxIdleConns(maxIdleConns)
	pool.SetMaxOpenConns(maxOpenConns)
	pool.SetConnMaxLifetime(connMaxLifetime)

	log.Info("database connected", "host", cfg.Host, "name", cfg.Name)
	return &service{db: db, name: cfg.Name, logger: log}, nil
}

func (s *service) GetDB() *gorm.DB {
	return s.db
}

func (s *service) Migrate() error {
	if err := s.db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}, &models.Vote{}); err != nil {
		return fmt.Errorf("migrating forum tables: %w", err)
	}
	s.logger.Info("database schema up to date")
	return nil
}

func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	pool, err := s.db.DB()
	if err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	if err := pool.PingContext(ctx); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}

	stats := pool.Stats()
	return map[string]string{
		"status":           "up",
		"open_connections": strconv.Itoa(stats.OpenConnections),
		"in_use":           strconv.Itoa(stats.InUse),
		"idle":             strconv.Itoa(stats.Idle),
		"wait_count":       strconv.FormatInt(stats.WaitCount, 10),
	}
}

func (s *service) Close() error {
	pool, err := s.db.DB()
	if err != nil {
		return err
	}
	s.logger.Info("closing database", "name", s.name)
	return pool.Close()
}
