package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/dvlstreams/config"
	"github.com/c360/dvlstreams/dvl"
	"github.com/c360/dvlstreams/errors"
	"github.com/c360/dvlstreams/pkg/retry"
)

const redisPingTimeout = 5 * time.Second

// RedisStore keeps the latest report in a Redis hash, the device shadow
// layout: the full report as JSON plus a few fields readable without
// decoding.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

// OpenRedis connects to cfg.RedisAddr and checks the connection.
func OpenRedis(ctx context.Context, cfg config.ShadowConfig, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	err := retry.Do(ctx, retry.Quick(), func() error {
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrStorageUnavailable, err),
			"RedisStore", "OpenRedis", fmt.Sprintf("ping %s", cfg.RedisAddr))
	}

	return NewRedisStore(client, RedisKey(cfg), cfg.TTL, logger), nil
}

// RedisKey is the hash key for a shadow configuration, bucket:shadow:key.
func RedisKey(cfg config.ShadowConfig) string {
	return fmt.Sprintf("%s:shadow:%s", cfg.Bucket, cfg.Key)
}

// NewRedisStore wraps an existing client. A zero ttl keeps the hash forever.
func NewRedisStore(client *redis.Client, key string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default().With("component", "shadow-redis")
	}
	return &RedisStore{client: client, key: key, ttl: ttl, logger: logger}
}

// PublishReport overwrites the shadow hash.
func (s *RedisStore) PublishReport(ctx context.Context, report *dvl.VelocityReport) error {
	data, err := encode(report)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key,
		"report", data,
		"ts", report.Header.Stamp.UnixMilli(),
		"altitude", strconv.FormatFloat(report.Altitude, 'f', -1, 64),
		"velocity_valid", strconv.FormatBool(report.VelocityValid),
		"status", report.Status,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.WrapTransient(err, "RedisStore", "PublishReport", fmt.Sprintf("hset %s", s.key))
	}
	return nil
}

// Latest returns the stored report, or ErrKeyNotFound when the hash is
// missing or expired.
func (s *RedisStore) Latest(ctx context.Context) (*dvl.VelocityReport, error) {
	data, err := s.client.HGet(ctx, s.key, "report").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errors.WrapInvalid(errors.ErrKeyNotFound, "RedisStore", "Latest", fmt.Sprintf("hget %s", s.key))
		}
		return nil, errors.WrapTransient(err, "RedisStore", "Latest", fmt.Sprintf("hget %s", s.key))
	}
	return decode(data)
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
