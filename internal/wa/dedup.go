package wa

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper suppresses webhook redeliveries by provider message ID. Meta
// retries webhooks aggressively, so the first claim wins and later
// deliveries of the same message are dropped.
type Deduper struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewDeduper(client *redis.Client, ttl time.Duration) *Deduper {
	if client == nil {
		panic("wa: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Deduper{redis: client, ttl: ttl}
}

// Claim returns true when this delivery is the first one seen for the
// message ID.
func (d *Deduper) Claim(ctx context.Context, messageID string) (bool, error) {
	if messageID == "" {
		return true, nil
	}
	ok, err := d.redis.SetNX(ctx, dedupKey(messageID), 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("wa: dedup claim: %w", err)
	}
	return ok, nil
}

func dedupKey(messageID string) string {
	return fmt.Sprintf("wa:msg:%s", messageID)
}
