// Package config loads service settings from the environment.
//
// An optional .env file in the working directory is read first; variables
// already present in the process environment win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrMissingJWTSecret = errors.New("JWT_SECRET is not set")

type Config struct {
	Port          string
	ClientURL     string
	GinMode       string
	LogLevel      slog.Level
	JWTSecret     []byte
	JWTTTL        time.Duration
	AuthRateLimit int
	// TrustedProxies lists the proxy addresses or CIDRs allowed to set
	// X-Forwarded-For. Empty means client IPs come from the socket.
	TrustedProxies []string
	Database       Database
	Redis          Redis
}

type Database struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN returns DATABASE_URL when set, otherwise a keyword/value DSN built
// from the individual DB_* settings.
func (d Database) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode,
	)
}

type Redis struct {
	Addr     string
	Password string
	TTL      time.Duration
}

// Enabled reports whether a redis address was configured.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

// Load reads .env (if present) and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from the given lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Port:      get("PORT", "5000"),
		ClientURL: get("CLIENT_URL", "http://localhost:5173"),
		GinMode:   get("GIN_MODE", "release"),
		Database: Database{
			URL:      get("DATABASE_URL", ""),
			Host:     get("DB_HOST", "localhost"),
			Port:     get("DB_PORT", "5432"),
			User:     get("DB_USER", "postgres"),
			Password: get("DB_PASSWORD", ""),
			Name:     get("DB_NAME", "threaddit"),
			SSLMode:  get("DB_SSLMODE", "disable"),
		},
		Redis: Redis{
			Addr:     get("REDIS_ADDR", ""),
			Password: get("REDIS_PASSWORD", ""),
		},
	}

	secret := get("JWT_SECRET", "")
	if secret == "" {
		return nil, ErrMissingJWTSecret
	}
	cfg.JWTSecret = []byte(secret)

	var err error
	if cfg.JWTTTL, err = parseDuration("JWT_TTL", get("JWT_TTL", "72h")); err != nil {
		return nil, err
	}
	if cfg.Redis.TTL, err = parseDuration("CACHE_TTL", get("CACHE_TTL", "1m")); err != nil {
		return nil, err
	}

	limit, err := strconv.Atoi(get("AUTH_RATE_LIMIT", "20"))
	if err != nil || limit < 0 {
		return nil, fmt.Errorf("invalid AUTH_RATE_LIMIT %q", get("AUTH_RATE_LIMIT", ""))
	}
	cfg.AuthRateLimit = limit

	for _, p := range strings.Split(get("TRUSTED_PROXIES", ""), ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, _, err := net.ParseCIDR(p); err != nil && net.ParseIP(p) == nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q", p)
		}
		cfg.TrustedProxies = append(cfg.TrustedProxies, p)
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return cfg, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, value)
	}
	return d, nil
}
