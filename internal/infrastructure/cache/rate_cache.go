// Package cache provides the Redis read-through cache of resolved
// exchange rates.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tradeledger/internal/domain/currency"
	"tradeledger/pkg/logger"
)

const (
	keyPrefix     = "fx"
	scanBatchSize = 100
	// DefaultTTL bounds how long a quote survives without invalidation.
	DefaultTTL = time.Hour
)

// RateCache implements currency.Cache on Redis.
type RateCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ currency.Cache = (*RateCache)(nil)

// NewRateCache creates a cache over client. A zero ttl means DefaultTTL.
// The caller keeps ownership of client.
func NewRateCache(client *redis.Client, ttl time.Duration) *RateCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RateCache{client: client, ttl: ttl}
}

// Connect opens a client on addr and pings it.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return client, nil
}

// Ping checks that Redis answers.
func (c *RateCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func rateKey(from, to string, date time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, from, to, date.Format(time.DateOnly))
}

func (c *RateCache) Get(ctx context.Context, from, to string, date time.Time) (currency.Quote, bool, error) {
	data, err := c.client.Get(ctx, rateKey(from, to, date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return currency.Quote{}, false, nil
	}
	if err != nil {
		return currency.Quote{}, false, fmt.Errorf("get cached rate: %w", err)
	}

	var q currency.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		// Corrupted entry: drop it and treat as a miss.
		_ = c.client.Del(ctx, rateKey(from, to, date))
		logger.Warn(ctx, "dropped unreadable cached rate", "from", from, "to", to, "error", err)
		return currency.Quote{}, false, nil
	}
	return q, true, nil
}

// Set stores q under the lookup date, which may be later than
// q.EffectiveDate.
func (c *RateCache) Set(ctx context.Context, date time.Time, q currency.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal rate: %w", err)
	}
	if err := c.client.Set(ctx, rateKey(q.From, q.To, date), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set cached rate: %w", err)
	}
	return nil
}

// InvalidatePair deletes every cached date of a/b and b/a.
func (c *RateCache) InvalidatePair(ctx context.Context, a, b string) error {
	for _, pattern := range []string{
		fmt.Sprintf("%s:%s:%s:*", keyPrefix, a, b),
		fmt.Sprintf("%s:%s:%s:*", keyPrefix, b, a),
	} {
		if err := c.deleteMatching(ctx, pattern); err != nil {
			return err
		}
	}
	return nil
}

func (c *RateCache) deleteMatching(ctx context.Context, pattern string) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cached rates: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
