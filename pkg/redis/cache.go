package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.key(key), data, ttl).Err()
}

// Delete removes cached values
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.client.Enabled() || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Redis().Del(ctx, full...).Err()
}

// GetOrSet retrieves from cache or calls fn to populate it.
// Cache failures fall through to fn.
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	if found, err := c.Get(ctx, key, dest); err == nil && found {
		return nil
	}

	value, err := fn()
	if err != nil {
		return err
	}

	// 캐시 저장 실패는 무시
	_ = c.Set(ctx, key, value, ttl)

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLShort = 1 * time.Minute // 조정 실행 상태
	TTLLong  = 1 * time.Hour   // 집계 / factor 조회
	TTLDaily = 24 * time.Hour  // 거래일 캘린더
)

// Common cache key generators

// TradingDaysKey caches one year of the trading calendar
func TradingDaysKey(year int) string {
	return fmt.Sprintf("calendar:%d", year)
}

// BarsKey caches an adjusted bar series
func BarsKey(instrument, granularity string) string {
	return fmt.Sprintf("bars:%s:%s", instrument, granularity)
}

// FactorsKey caches a factor series
func FactorsKey(instrument string) string {
	return fmt.Sprintf("factors:%s", instrument)
}

// SpliceKey caches a splice series
func SpliceKey(symbol string) string {
	return fmt.Sprintf("splice:%s", symbol)
}

// InstrumentKeys lists every cache key derived from one instrument
func InstrumentKeys(instrument string) []string {
	return []string{
		BarsKey(instrument, "daily"),
		BarsKey(instrument, "week"),
		BarsKey(instrument, "month"),
		FactorsKey(instrument),
	}
}
