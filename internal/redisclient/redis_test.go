package redisclient

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"stock-ledger/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStockLevelEncoding(t *testing.T) {
	level := &models.StockLevel{
		ProductID:    4,
		StoreID:      2,
		OnHand:       17,
		Reserved:     3,
		MinThreshold: 5,
		Location:     "B-1",
		Version:      6,
		UpdatedAt:    time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
	}

	fields := map[string]string{}
	for _, f := range encodeStockLevel(level) {
		fields[f.name] = fmt.Sprint(f.value)
	}

	decoded, err := decodeStockLevel(4, 2, fields)
	require.NoError(t, err)
	assert.Equal(t, level, decoded)
}

func TestDecodeStockLevelRejectsCorruptFields(t *testing.T) {
	_, err := decodeStockLevel(1, 1, map[string]string{"on_hand": "x", "reserved": "0", "min_threshold": "0", "version": "1"})
	assert.Error(t, err)

	_, err = decodeStockLevel(1, 1, map[string]string{"on_hand": "1", "reserved": "0", "min_threshold": "0"})
	assert.Error(t, err, "entries without a version are not trusted")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stock:7:3", stockKey(7, 3))
	assert.Equal(t, "idempotency:abc", idempotencyKey("abc"))
}

// newTestClient connects to REDIS_TEST_ADDR; tests needing a live server skip without it
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c, err := NewClient(addr, "", 15)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestStockCacheRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	cache := NewStockCache(c, time.Minute)
	productID := time.Now().UnixNano()

	_, hit, err := cache.GetStockLevel(ctx, productID, 1)
	require.NoError(t, err)
	assert.False(t, hit)

	level := &models.StockLevel{ProductID: productID, StoreID: 1, OnHand: 9, Version: 1, UpdatedAt: time.Now().UTC()}
	require.NoError(t, cache.SetStockLevel(ctx, level))
	t.Cleanup(func() { _ = cache.Invalidate(ctx, productID, 1) })

	got, hit, err := cache.GetStockLevel(ctx, productID, 1)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 9, got.OnHand)

	ttl, err := c.GetClient().TTL(ctx, stockKey(productID, 1)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestStockCacheKeepsNewerVersion(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	cache := NewStockCache(c, time.Minute)
	productID := time.Now().UnixNano()
	t.Cleanup(func() { _ = cache.Invalidate(ctx, productID, 1) })

	older := &models.StockLevel{ProductID: productID, StoreID: 1, OnHand: 10, Version: 1, UpdatedAt: time.Now().UTC()}
	newer := &models.StockLevel{ProductID: productID, StoreID: 1, OnHand: 15, Version: 2, UpdatedAt: time.Now().UTC()}

	// the later commit's refresh lands first
	require.NoError(t, cache.SetStockLevel(ctx, newer))
	require.NoError(t, cache.SetStockLevel(ctx, older))

	got, hit, err := cache.GetStockLevel(ctx, productID, 1)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 15, got.OnHand)
	assert.Equal(t, int64(2), got.Version)

	next := &models.StockLevel{ProductID: productID, StoreID: 1, OnHand: 12, Version: 3, UpdatedAt: time.Now().UTC()}
	require.NoError(t, cache.SetStockLevel(ctx, next))
	got, _, err = cache.GetStockLevel(ctx, productID, 1)
	require.NoError(t, err)
	assert.Equal(t, 12, got.OnHand)
}

func TestIdempotencyStore(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	store := NewIdempotencyStore(c, time.Minute)
	key := uuid.New().String()
	t.Cleanup(func() { _ = store.Release(ctx, key) })

	claimed, err := store.Claim(ctx, key)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.Claim(ctx, key)
	require.NoError(t, err)
	assert.False(t, claimed)

	_, pending, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.True(t, pending)

	require.NoError(t, store.Complete(ctx, key, 201, []byte(`{"sale_id":1}`)))
	resp, pending, err := store.Lookup(ctx, key)
	require.NoError(t, err)
	assert.False(t, pending)
	assert.Equal(t, 201, resp.Status)
	assert.JSONEq(t, `{"sale_id":1}`, string(resp.Body))
}
