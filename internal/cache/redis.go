package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// RedisClient handles Redis caching operations
type RedisClient struct {
	client *redis.Client
	logger *logrus.Entry
	cfg    *config.RedisConfig
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaxRetries:   2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{
		client: client,
		logger: logger.WithField("component", "redis"),
		cfg:    cfg,
	}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Health checks Redis health
func (rc *RedisClient) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Token operations

// GetToken returns the cached bearer token for a source, or "" on a miss.
func (rc *RedisClient) GetToken(ctx context.Context, source string) (string, error) {
	token, err := rc.client.Get(ctx, tokenKey(source)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// SetToken caches a bearer token with its remaining lifetime.
func (rc *RedisClient) SetToken(ctx context.Context, source, token string, ttl time.Duration) error {
	return rc.client.Set(ctx, tokenKey(source), token, ttl).Err()
}

// DeleteToken drops a cached bearer token.
func (rc *RedisClient) DeleteToken(ctx context.Context, source string) error {
	return rc.client.Del(ctx, tokenKey(source)).Err()
}

// Summary operations

// SetLastSummary caches the most recent run summary for a source.
func (rc *RedisClient) SetLastSummary(ctx context.Context, summary *models.SyncSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	return rc.client.Set(ctx, summaryKey(summary.Source), data, 0).Err()
}

// GetLastSummary returns the most recent run summary for a source, or nil when
// no run has completed yet.
func (rc *RedisClient) GetLastSummary(ctx context.Context, source string) (*models.SyncSummary, error) {
	data, err := rc.client.Get(ctx, summaryKey(source)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}

	var summary models.SyncSummary
	if err := json.Unmarshal([]byte(data), &summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}

	return &summary, nil
}

func tokenKey(source string) string {
	return fmt.Sprintf("sync:token:%s", source)
}

func summaryKey(source string) string {
	return fmt.Sprintf("sync:summary:%s", source)
}
