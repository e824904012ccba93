// Package config loads service settings from .env, the environment and flags.
// Precedence: flags > environment > .env > defaults.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dagm95/CXinas-bakery-system/logger"
	"github.com/dagm95/CXinas-bakery-system/payroll"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Config struct {
	Port            int
	BusinessName    string
	StoreDriver     string
	SQLitePath      string
	Redis           RedisConfig
	TimeZone        string
	RefreshInterval time.Duration
	CORSOrigins     []string
	Keys            payroll.Keys
	Log             logger.Config
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	LockTTL  time.Duration
}

// Load reads .env (if present) and the environment, then applies flags
// parsed from args (normally os.Args[1:]).
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := &envReader{}
	keys := payroll.DefaultKeys()
	cfg := &Config{
		Port:            env.Int("PORT", 8080),
		BusinessName:    getEnv("BUSINESS_NAME", "Bakery"),
		StoreDriver:     getEnv("STORE_DRIVER", DriverSQLite),
		SQLitePath:      getEnv("SQLITE_PATH", "./payroll.db"),
		TimeZone:        getEnv("PAYROLL_TIMEZONE", "UTC"),
		RefreshInterval: env.Duration("REFRESH_INTERVAL", 15*time.Minute),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       env.Int("REDIS_DB", 0),
			Channel:  getEnv("REDIS_CHANNEL", "bakery:payroll:events"),
			LockTTL:  env.Duration("REDIS_LOCK_TTL", 10*time.Second),
		},
		Keys: payroll.Keys{
			Roster: getEnv("ROSTER_KEY", keys.Roster),
			Cycles: getEnv("CYCLES_KEY", keys.Cycles),
			Ledger: getEnv("LEDGER_KEY", keys.Ledger),
		},
		Log: logger.Config{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}
	if err := errors.Join(env.errs...); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("payroll-server", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "storage driver: memory, sqlite or redis")
	fs.StringVar(&cfg.SQLitePath, "db", cfg.SQLitePath, "SQLite database path")
	fs.StringVar(&cfg.Redis.Addr, "redis", cfg.Redis.Addr, "Redis address")
	fs.StringVar(&cfg.TimeZone, "tz", cfg.TimeZone, "time zone used to derive pay dates")
	fs.DurationVar(&cfg.RefreshInterval, "refresh", cfg.RefreshInterval, "status refresh interval (0 disables)")
	fs.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "log level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMemory, DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("refresh interval must not be negative")
	}
	return nil
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

// envReader parses typed variables and collects the ones that are set but
// malformed, so Load can report all of them at once.
type envReader struct {
	errs []error
}

func (r *envReader) Int(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return n
}

func (r *envReader) Duration(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: invalid duration %q", key, v))
		return fallback
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
