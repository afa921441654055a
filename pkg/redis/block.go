package redis

import (
	"context"
	"time"
)

// Blocker is a cross-process back-off flag. When one process is told to slow
// down by a remote service, every process sharing the Redis instance waits.
type Blocker struct {
	client    *Client
	keyPrefix string
}

// NewBlocker creates a blocker whose keys start with keyPrefix
func NewBlocker(client *Client, keyPrefix string) *Blocker {
	return &Blocker{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (b *Blocker) blockKey(key string) string {
	return b.keyPrefix + key + ":block"
}

// BlockFor blocks key for the given duration
func (b *Blocker) BlockFor(ctx context.Context, key string, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return b.client.rdb.Set(ctx, b.blockKey(key), "1", d).Err()
}

// IsBlocked returns whether key is blocked and for how much longer
func (b *Blocker) IsBlocked(ctx context.Context, key string) (bool, time.Duration, error) {
	n, err := b.client.rdb.Exists(ctx, b.blockKey(key)).Result()
	if err != nil {
		return false, 0, err
	}
	if n == 0 {
		return false, 0, nil
	}
	ttl, err := b.client.rdb.PTTL(ctx, b.blockKey(key)).Result()
	if err != nil {
		return true, 0, err
	}
	if ttl < 0 {
		ttl = 0
	}
	return true, ttl, nil
}
