package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Database DatabaseConfig `yaml:"database"`
	Cache    CacheConfig    `yaml:"cache"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Refresh  RefreshConfig  `yaml:"refresh"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `yaml:"port"`
	Host string `yaml:"host"`
}

// UpstreamConfig holds quote provider configuration
type UpstreamConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// DatabaseConfig holds cache storage configuration. Path is used by sqlite,
// the remaining fields by postgres.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// CacheConfig holds cache behaviour settings
type CacheConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Dedupe bool          `yaml:"dedupe"`
}

// RedisConfig holds the optional Redis tier configuration; an empty Addr disables it
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// KafkaConfig holds Kafka configuration; no brokers disables it
type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	RefreshTopic string   `yaml:"refresh_topic"`
	GroupID      string   `yaml:"group_id"`
}

// RefreshConfig holds the scheduled warm-up; an empty Cron disables it
type RefreshConfig struct {
	Cron    string   `yaml:"cron"`
	Symbols []string `yaml:"symbols"`
}

// Defaults returns the configuration used when nothing else is set
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Upstream: UpstreamConfig{
			BaseURL: "https://www.alphavantage.co/query",
			Timeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:   "sqlite",
			Path:     "cache.db",
			Host:     "localhost",
			Port:     "5432",
			User:     "postgres",
			Password: "postgres",
			DBName:   "stockcache",
			SSLMode:  "disable",
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Kafka: KafkaConfig{
			Topic:        "stock-cache-events",
			RefreshTopic: "stock-cache-refresh",
			GroupID:      "stock-history-cache",
		},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.Upstream.APIKey = getEnv("STOCK_API_KEY", c.Upstream.APIKey)
	c.Upstream.BaseURL = getEnv("STOCK_BASE_URL", c.Upstream.BaseURL)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.Path = getEnv("CACHE_DB", c.Database.Path)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.RefreshTopic = getEnv("KAFKA_REFRESH_TOPIC", c.Kafka.RefreshTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Refresh.Cron = getEnv("REFRESH_CRON", c.Refresh.Cron)
	c.Refresh.Symbols = getEnvList("REFRESH_SYMBOLS", c.Refresh.Symbols)

	var err error
	if c.Upstream.Timeout, err = getEnvDuration("STOCK_TIMEOUT", c.Upstream.Timeout); err != nil {
		return err
	}
	if c.Cache.TTL, err = getEnvDuration("CACHE_TTL", c.Cache.TTL); err != nil {
		return err
	}
	if v := os.Getenv("CACHE_DEDUPE"); v != "" {
		if c.Cache.Dedupe, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("invalid CACHE_DEDUPE %q: %w", v, err)
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if c.Redis.DB, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
	}
	return nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("STOCK_API_KEY is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for sqlite")
		}
	case "postgres":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if c.Refresh.Cron != "" && len(c.Refresh.Symbols) == 0 {
		return fmt.Errorf("refresh.symbols is required when refresh.cron is set")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
