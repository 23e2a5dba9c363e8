package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sari/payments/pkg/config"
)

// Deduper remembers webhook deliveries already handled so gateway retries
// short-circuit before touching the ledger. It is an optimisation only: the
// ledger's conditional updates stay the source of idempotency.
type Deduper interface {
	// Seen reports whether key was already marked.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key for the configured TTL.
	Mark(ctx context.Context, key string) error
}

type RedisDeduper struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(rdb redis.Cmdable, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDeduper{rdb: rdb, ttl: ttl, prefix: "webhook:seen:"}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	if err := d.rdb.Set(ctx, d.prefix+key, 1, d.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// NopDeduper never reports a delivery as seen.
type NopDeduper struct{}

func (NopDeduper) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopDeduper) Mark(context.Context, string) error         { return nil }

func NewDeduper(lc fx.Lifecycle, cfg *config.Config, log *zap.SugaredLogger) (Deduper, error) {
	if cfg.Redis.Addr == "" {
		log.Infow("redis not configured, webhook de-duplication disabled")
		return NopDeduper{}, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Infow("redis connection established", "addr", cfg.Redis.Addr)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return rdb.Close()
		},
	})
	return NewRedisDeduper(rdb, time.Duration(cfg.Redis.DedupTTLSeconds)*time.Second), nil
}

var Module = fx.Options(
	fx.Provide(NewDeduper),
)
