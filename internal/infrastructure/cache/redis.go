package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"regcrawl/internal/config"
)

// Redis is a best-effort natural-key cache in front of the duplicate
// checker. An unreachable Redis degrades to a no-op: the database remains
// the source of truth for deduplication.
type Redis struct {
	client *redis.Client
	logger *log.Logger

	warnedUnavailable atomic.Bool
}

const keyTTL = 24 * time.Hour

func NewRedis(cfg config.RedisConfig, logger *log.Logger) *Redis {
	addr := fmt.Sprintf("%s:%s", strings.TrimSpace(cfg.Host), strings.TrimSpace(cfg.Port))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Printf("cache | redis unavailable, bypassing: %v", err)
		}
		_ = client.Close()
		return &Redis{client: nil, logger: logger}
	}

	return &Redis{client: client, logger: logger}
}

func (r *Redis) isUnavailable() bool {
	return r == nil || r.client == nil
}

func (r *Redis) warnUnavailableOnce(err error) {
	if r == nil || r.logger == nil {
		return
	}
	if r.warnedUnavailable.CompareAndSwap(false, true) {
		r.logger.Printf("cache | redis unavailable, bypassing: %v", err)
	}
}

func (r *Redis) Ping(ctx context.Context) error {
	if r.isUnavailable() {
		return errors.New("redis unavailable")
	}
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	if r.isUnavailable() {
		return nil
	}
	return r.client.Close()
}

// HasKey reports whether a natural key was recently confirmed to exist.
// A miss or any backend error reads as "unknown".
func (r *Redis) HasKey(ctx context.Context, crawlerType, naturalKey string) bool {
	if r.isUnavailable() {
		return false
	}
	n, err := r.client.Exists(ctx, keyFor(crawlerType, naturalKey)).Result()
	if err != nil {
		r.warnUnavailableOnce(err)
		return false
	}
	return n > 0
}

// MarkKey remembers a confirmed-existing natural key for a while so repeat
// keyword searches skip the database round trip.
func (r *Redis) MarkKey(ctx context.Context, crawlerType, naturalKey string) {
	if r.isUnavailable() {
		return
	}
	if err := r.client.Set(ctx, keyFor(crawlerType, naturalKey), "1", keyTTL).Err(); err != nil {
		r.warnUnavailableOnce(err)
	}
}

func keyFor(crawlerType, naturalKey string) string {
	return "dedup:" + crawlerType + ":" + naturalKey
}
