package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

type Server struct {
	Port            string `yaml:"port"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

type Storage struct {
	Driver string `yaml:"driver"`
}

type Postgres struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type SQLite struct {
	Path string `yaml:"path"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
}

type Quiz struct {
	TTL string `yaml:"ttl"`
}

type Events struct {
	Driver        string   `yaml:"driver"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

type Sweeper struct {
	Interval string `yaml:"interval"`
	Grace    string `yaml:"grace"`
}

type Config struct {
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
	Storage  Storage  `yaml:"storage"`
	Postgres Postgres `yaml:"postgres"`
	SQLite   SQLite   `yaml:"sqlite"`
	Redis    Redis    `yaml:"redis"`
	Quiz     Quiz     `yaml:"quiz"`
	Events   Events   `yaml:"events"`
	Sweeper  Sweeper  `yaml:"sweeper"`
}

// Load reads YAML config from path, then applies a .env file (if any) and environment
// overrides. A missing config file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key    string
		target *string
	}{
		{"PORT", &c.Server.Port},
		{"LOG_LEVEL", &c.Log.Level},
		{"STORAGE_DRIVER", &c.Storage.Driver},
		{"DATABASE_URL", &c.Postgres.URL},
		{"SQLITE_PATH", &c.SQLite.Path},
		{"REDIS_ADDR", &c.Redis.Addr},
		{"REDIS_PASSWORD", &c.Redis.Password},
		{"EVENTS_DRIVER", &c.Events.Driver},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && v != "" {
			*o.target = v
		}
	}
	if v, ok := os.LookupEnv("REDIS_DB"); ok {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok && v != "" {
		c.Events.Brokers = splitList(v)
		if c.Events.Driver == "" {
			c.Events.Driver = "kafka"
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Driver == "" {
		switch {
		case c.Postgres.URL != "":
			c.Storage.Driver = StoragePostgres
		case c.SQLite.Path != "":
			c.Storage.Driver = StorageSQLite
		default:
			c.Storage.Driver = StorageMemory
		}
	}
	if c.Storage.Driver == StorageSQLite && c.SQLite.Path == "" {
		c.SQLite.Path = "placement.db"
	}
}

// Validate rejects combinations the server cannot start with.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Postgres.URL == "" {
			return fmt.Errorf("storage driver postgres needs postgres.url or DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}

// LogLevel maps the configured level name to a slog level; unknown names mean info.
func (c Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
