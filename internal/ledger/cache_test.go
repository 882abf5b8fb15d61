package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*BalanceCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBalanceCache(client, time.Minute), mr
}

func TestBalanceCacheRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	res := AccountBalanceResult{
		AccountID:  1,
		Code:       "1010",
		Type:       AccountTypeAsset,
		NormalSide: SideDebit,
		Debit:      dec("250.00"),
		Credit:     dec("100.00"),
		Balance:    dec("150.00"),
	}
	cache.Set(ctx, res)

	got, ok := cache.Get(ctx, 1)
	require.True(t, ok)
	assert.Equal(t, res.AccountID, got.AccountID)
	assert.Equal(t, res.Code, got.Code)
	assert.True(t, got.Balance.Equal(res.Balance))
}

func TestBalanceCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, ok := cache.Get(context.Background(), 42)
	assert.False(t, ok)
}

func TestBalanceCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, AccountBalanceResult{AccountID: 1, Balance: dec("10")})
	cache.Set(ctx, AccountBalanceResult{AccountID: 2, Balance: dec("20")})
	cache.Set(ctx, AccountBalanceResult{AccountID: 3, Balance: dec("30")})

	cache.Invalidate(ctx, 1, 2)

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, 2)
	assert.False(t, ok)
	_, ok = cache.Get(ctx, 3)
	assert.True(t, ok)
}

func TestBalanceCacheExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	cache.Set(ctx, AccountBalanceResult{AccountID: 1, Balance: dec("10")})
	mr.FastForward(2 * time.Minute)

	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)
}

func TestBalanceCacheNilSafe(t *testing.T) {
	var cache *BalanceCache
	ctx := context.Background()

	cache.Set(ctx, AccountBalanceResult{AccountID: 1})
	cache.Invalidate(ctx, 1)
	_, ok := cache.Get(ctx, 1)
	assert.False(t, ok)

	disabled := NewBalanceCache(nil, time.Minute)
	disabled.Set(ctx, AccountBalanceResult{AccountID: 1})
	_, ok = disabled.Get(ctx, 1)
	assert.False(t, ok)
}
