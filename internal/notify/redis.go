package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisDeduper is a Filter shared by every API instance through Redis.
// Each key is written with SET NX and a TTL of one window.
type RedisDeduper struct {
	client redis.UniversalClient
	window time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisDeduper creates a RedisDeduper on client.
func NewRedisDeduper(client redis.UniversalClient, window time.Duration, logger *slog.Logger) *RedisDeduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisDeduper{
		client: client,
		window: window,
		prefix: "beatstore:notify:dedup:",
		logger: logger,
	}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Allow implements Filter. Redis errors let the event through.
func (d *RedisDeduper) Allow(ctx context.Context, key string) bool {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.window).Result()
	if err != nil {
		d.logger.Warn("redis dedup unavailable, allowing notification",
			slog.String("error", err.Error()),
		)
		return true
	}
	return ok
}

// Verify interface implementation at compile time.
var _ Filter = (*RedisDeduper)(nil)
