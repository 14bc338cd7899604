package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `env:", prefix=SERVER_"`
	Airtable   AirtableConfig   `env:", prefix=AIRTABLE_"`
	Domain     DomainConfig     `env:", prefix=DOMAIN_"`
	Realestate RealestateConfig `env:", prefix=REALESTATE_"`
	Social     SocialConfig     `env:", prefix=SOCIAL_"`
	MySQL      MySQLConfig      `env:", prefix=MYSQL_"`
	Redis      RedisConfig      `env:", prefix=REDIS_"`
	NATS       NATSConfig       `env:", prefix=NATS_"`
	InfluxDB   InfluxConfig     `env:", prefix=INFLUXDB_"`
	Sync       SyncConfig       `env:", prefix=SYNC_"`
	Security   SecurityConfig   `env:", prefix=SECURITY_"`
	Logging    LoggingConfig    `env:", prefix=LOG_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// AirtableConfig holds destination store configuration
type AirtableConfig struct {
	BaseURL         string        `env:"BASE_URL, default=https://api.airtable.com/v0"`
	APIKey          string        `env:"API_KEY"`
	BaseID          string        `env:"BASE_ID"`
	DomainTable     string        `env:"DOMAIN_TABLE, default=Domain Listings API v2"`
	RealestateTable string        `env:"REALESTATE_TABLE, default=Realestate Listings API v2"`
	SocialTable     string        `env:"SOCIAL_TABLE, default=Social Analytics API"`
	Timeout         time.Duration `env:"TIMEOUT, default=30s"`
	RequestsPerSec  float64       `env:"REQUESTS_PER_SEC, default=5"`
}

// DomainConfig holds Domain.com.au portal configuration
type DomainConfig struct {
	APIBaseURL   string        `env:"API_BASE_URL"`
	AuthEndpoint string        `env:"AUTH_ENDPOINT, default=https://auth.domain.com.au/v1/connect/token"`
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	Timeout      time.Duration `env:"TIMEOUT, default=30s"`
}

// RealestateConfig holds realestate.com.au portal configuration
type RealestateConfig struct {
	ListingsURL    string        `env:"API_URL"`
	PerformanceURL string        `env:"PERFORMANCE_API_URL"`
	AuthEndpoint   string        `env:"AUTH_ENDPOINT"`
	ClientID       string        `env:"CLIENT_ID"`
	ClientSecret   string        `env:"CLIENT_SECRET"`
	Timeout        time.Duration `env:"TIMEOUT, default=30s"`
}

// SocialConfig holds the social analytics feed configuration
type SocialConfig struct {
	APIBaseURL  string        `env:"API_BASE_URL, default=https://graph.facebook.com/v15.0"`
	AccessToken string        `env:"ACCESS_TOKEN"`
	Timeout     time.Duration `env:"TIMEOUT, default=30s"`
}

// MySQLConfig holds MySQL configuration for run history
type MySQLConfig struct {
	Host            string        `env:"HOST, default=localhost"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE, default=pello_sync"`
	User            string        `env:"USER, default=pello"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string        `env:"HOST, default=localhost"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL           string        `env:"URL, default=nats://localhost:4222"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
}

// InfluxConfig holds InfluxDB configuration for run metrics
type InfluxConfig struct {
	URL     string        `env:"URL, default=http://localhost:8086"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=pello"`
	Bucket  string        `env:"BUCKET, default=sync_runs"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// SyncConfig holds pipeline tuning knobs
type SyncConfig struct {
	LedgerDir        string        `env:"LEDGER_DIR, default=logs"`
	MinRateLimitWait time.Duration `env:"MIN_RATE_LIMIT_WAIT, default=1s"`
	TokenTTL         time.Duration `env:"TOKEN_TTL, default=50m"`
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL, default=info"`
	Format string `env:"FORMAT, default=json"`
	Output string `env:"OUTPUT, default=stdout"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	ctx := context.Background()
	var cfg Config

	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.MySQL.Host == "" {
		return fmt.Errorf("MySQL host is required")
	}

	if c.Redis.Host == "" {
		return fmt.Errorf("Redis host is required")
	}

	if c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required")
	}

	return nil
}

// GetMySQLDSN returns MySQL DSN string
func (c *Config) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		c.MySQL.User,
		c.MySQL.Password,
		c.MySQL.Host,
		c.MySQL.Port,
		c.MySQL.Database,
	)
}

// GetRedisAddr returns Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
