package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/darkace1998/FlowSentry/internal/analysis"
	"github.com/darkace1998/FlowSentry/internal/logging"
)

type redisConn interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// redisTimeout bounds each Redis round trip made by Notify.
const redisTimeout = 2 * time.Second

// RedisSink publishes alerts on a Redis channel and keeps the most recent
// one under "<channel>:last".
type RedisSink struct {
	rdb     redisConn
	channel string
	ttl     time.Duration
}

// NewRedisSink connects to url and verifies the connection with PING.
func NewRedisSink(ctx context.Context, url, channel string, ttl time.Duration) (*RedisSink, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}
	logging.Default().Named("notify").Info("connected to Redis at %s, channel %s", opt.Addr, channel)
	return &RedisSink{rdb: rdb, channel: channel, ttl: ttl}, nil
}

func (s *RedisSink) Name() string { return "redis" }

// LastKey is the key holding the most recently published alert.
func (s *RedisSink) LastKey() string { return s.channel + ":last" }

// Notify publishes a and stores it as the latest alert.
func (s *RedisSink) Notify(a analysis.Alert) error {
	data, err := encode(a)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.rdb.Publish(ctx, s.channel, data).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", s.channel, err)
	}
	if err := s.rdb.Set(ctx, s.LastKey(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("storing %s: %w", s.LastKey(), err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.rdb.Close()
}
