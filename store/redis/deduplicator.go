package redisstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "payhooks:processed"

// SetNXClient is the slice of the go-redis API the deduplicator needs.
type SetNXClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Deduplicator marks references with SET NX so every replica sees the same
// first delivery. TTL zero keeps marks until evicted by Redis.
type Deduplicator struct {
	client SetNXClient
	ttl    time.Duration
}

func NewDeduplicator(client SetNXClient, ttl time.Duration) (*Deduplicator, error) {
	if client == nil {
		return nil, fmt.Errorf("redisstore: client is required")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Deduplicator{client: client, ttl: ttl}, nil
}

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(strings.TrimSpace(redisURL))
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func Key(providerID string, reference string) string {
	return keyPrefix + ":" + url.PathEscape(strings.TrimSpace(providerID)) + ":" + url.PathEscape(strings.TrimSpace(reference))
}

func (d *Deduplicator) CheckAndMark(ctx context.Context, providerID string, reference string) (bool, error) {
	if d == nil || d.client == nil {
		return false, fmt.Errorf("redisstore: deduplicator is not configured")
	}
	if strings.TrimSpace(providerID) == "" || strings.TrimSpace(reference) == "" {
		return false, fmt.Errorf("redisstore: provider id and reference are required")
	}
	value := time.Now().UTC().Format(time.RFC3339Nano)
	set, err := d.client.SetNX(ctx, Key(providerID, reference), value, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: mark %s: %w", reference, err)
	}
	return !set, nil
}

var _ core.Deduplicator = (*Deduplicator)(nil)
