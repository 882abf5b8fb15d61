package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceCache is a read-through Redis cache for unbounded account balances.
// It is strictly an optimization: entries are dropped whenever a post or void
// touches the account, and a miss falls back to the line-history derivation.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewBalanceCache constructs the cache.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(accountID int64) string {
	return fmt.Sprintf("ledger:balance:%d", accountID)
}

// Get returns the cached balance for the account, if present.
func (c *BalanceCache) Get(ctx context.Context, accountID int64) (AccountBalanceResult, bool) {
	if c == nil || c.client == nil {
		return AccountBalanceResult{}, false
	}
	data, err := c.client.Get(ctx, balanceKey(accountID)).Bytes()
	if err != nil {
		return AccountBalanceResult{}, false
	}
	var res AccountBalanceResult
	if err := json.Unmarshal(data, &res); err != nil {
		return AccountBalanceResult{}, false
	}
	return res, true
}

// Set stores the derived balance.
func (c *BalanceCache) Set(ctx context.Context, res AccountBalanceResult) {
	if c == nil || c.client == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, balanceKey(res.AccountID), data, c.ttl).Err()
}

// Invalidate drops cached balances for the given accounts.
func (c *BalanceCache) Invalidate(ctx context.Context, accountIDs ...int64) {
	if c == nil || c.client == nil || len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, balanceKey(id))
	}
	_ = c.client.Del(ctx, keys...).Err()
}
