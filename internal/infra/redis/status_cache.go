package redis

import (
	"context"
	"time"

	"wallet-settlement/internal/domain/model"
	"wallet-settlement/internal/domain/ports/repository"
	"wallet-settlement/internal/infra/logging"
)

var _ repository.PaymentStatusCache = (*StatusCache)(nil)

// StatusCache keeps terminal payment statuses in Redis so repeated webhook
// deliveries and verify polls can short-circuit without touching Postgres.
// Failures are logged and swallowed; a cold or broken cache only costs a
// database read.
type StatusCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewStatusCache(client RedisClient, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

func statusKey(provider, providerRef string) string {
	return "payment_status:" + provider + ":" + providerRef
}

func (c *StatusCache) GetTerminal(ctx context.Context, provider, providerRef string) (model.PaymentStatus, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	val, err := c.client.Get(ctx, statusKey(provider, providerRef))
	if err != nil {
		return "", false
	}
	st := model.PaymentStatus(val)
	if !st.Terminal() {
		return "", false
	}
	return st, true
}

func (c *StatusCache) SetTerminal(ctx context.Context, provider, providerRef string, status model.PaymentStatus) {
	if c == nil || c.client == nil || !status.Terminal() {
		return
	}
	if err := c.client.Set(ctx, statusKey(provider, providerRef), string(status), c.ttl); err != nil {
		logging.With(ctx, &logging.Global).Warn().Err(err).Str("provider", provider).Msg("status cache set failed")
	}
}
