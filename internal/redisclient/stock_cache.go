package redisclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"stock-ledger/internal/models"

	"github.com/go-redis/redis/v8"
)

// setIfNewerScript replaces the cached hash only when the incoming row version
// is newer than the cached one. KEYS[1] is the hash, ARGV[1] the version,
// ARGV[2] the ttl in milliseconds (0 keeps no expiry), then field/value pairs.
var setIfNewerScript = redis.NewScript(`
local cached = redis.call('HGET', KEYS[1], 'version')
if cached and tonumber(cached) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('DEL', KEYS[1])
for i = 3, #ARGV, 2 do
	redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// StockCache keeps a read-through copy of stock levels in one hash per
// (product, store) pair. The database stays authoritative; entries expire
// after ttl and a write never replaces a newer row version.
type StockCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStockCache(c *Client, ttl time.Duration) *StockCache {
	return &StockCache{rdb: c.rdb, ttl: ttl}
}

func stockKey(productID, storeID int64) string {
	return fmt.Sprintf("stock:%d:%d", productID, storeID)
}

// GetStockLevel reports hit=false when the pair is not cached
func (c *StockCache) GetStockLevel(ctx context.Context, productID, storeID int64) (*models.StockLevel, bool, error) {
	fields, err := c.rdb.HGetAll(ctx, stockKey(productID, storeID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached stock: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	level, err := decodeStockLevel(productID, storeID, fields)
	if err != nil {
		return nil, false, err
	}
	return level, true, nil
}

// SetStockLevel caches level unless the cache already holds the same or a
// newer version of the row. Refreshes arriving out of commit order are dropped.
func (c *StockCache) SetStockLevel(ctx context.Context, level *models.StockLevel) error {
	key := stockKey(level.ProductID, level.StoreID)

	args := []interface{}{level.Version, c.ttl.Milliseconds()}
	for _, f := range encodeStockLevel(level) {
		args = append(args, f.name, f.value)
	}

	if err := setIfNewerScript.Run(ctx, c.rdb, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("failed to cache stock: %w", err)
	}
	return nil
}

// Invalidate drops a cached pair
func (c *StockCache) Invalidate(ctx context.Context, productID, storeID int64) error {
	return c.rdb.Del(ctx, stockKey(productID, storeID)).Err()
}

type cachedField struct {
	name  string
	value interface{}
}

func encodeStockLevel(level *models.StockLevel) []cachedField {
	return []cachedField{
		{"on_hand", level.OnHand},
		{"reserved", level.Reserved},
		{"min_threshold", level.MinThreshold},
		{"location", level.Location},
		{"version", level.Version},
		{"updated_at", level.UpdatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func decodeStockLevel(productID, storeID int64, fields map[string]string) (*models.StockLevel, error) {
	level := &models.StockLevel{
		ProductID: productID,
		StoreID:   storeID,
		Location:  fields["location"],
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"on_hand", &level.OnHand},
		{"reserved", &level.Reserved},
		{"min_threshold", &level.MinThreshold},
	}
	for _, f := range ints {
		v, err := strconv.Atoi(fields[f.name])
		if err != nil {
			return nil, fmt.Errorf("corrupt cached stock field %s: %w", f.name, err)
		}
		*f.dst = v
	}

	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt cached stock field version: %w", err)
	}
	level.Version = version

	if raw := fields["updated_at"]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt cached stock field updated_at: %w", err)
		}
		level.UpdatedAt = ts
	}
	return level, nil
}
