package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-payhooks/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const processedEventCacheKeyPrefix = "go-payhooks::processed_event::v1"

// CachedDeduplicator answers repeat deliveries from cache. Only marked
// references are cached, so a miss always reaches the base store, which stays
// the authority for first-seen decisions.
type CachedDeduplicator struct {
	base  core.Deduplicator
	cache repositorycache.CacheService
}

func NewCachedDeduplicator(base core.Deduplicator, cacheService repositorycache.CacheService) (*CachedDeduplicator, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base deduplicator is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: deduplicator cache service is required")
	}
	return &CachedDeduplicator{base: base, cache: cacheService}, nil
}

// ProcessedEventCacheKey returns go-payhooks::processed_event::v1::<provider>::<reference>
// with each segment URL-path escaped.
func ProcessedEventCacheKey(providerID string, reference string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	reference = strings.TrimSpace(reference)
	if providerID == "" || reference == "" {
		return "", fmt.Errorf("sqlstore: provider id and reference are required")
	}
	return strings.Join([]string{
		processedEventCacheKeyPrefix,
		url.PathEscape(providerID),
		url.PathEscape(reference),
	}, "::"), nil
}

func (d *CachedDeduplicator) CheckAndMark(ctx context.Context, providerID string, reference string) (bool, error) {
	if d == nil || d.base == nil || d.cache == nil {
		return false, fmt.Errorf("sqlstore: cached deduplicator is not configured")
	}
	cacheKey, err := ProcessedEventCacheKey(providerID, reference)
	if err != nil {
		return false, err
	}

	fetched := false
	duplicate, err := repositorycache.GetOrFetch(ctx, d.cache, cacheKey, func(ctx context.Context) (bool, error) {
		fetched = true
		return d.base.CheckAndMark(ctx, strings.TrimSpace(providerID), strings.TrimSpace(reference))
	})
	if err != nil {
		return false, err
	}
	if !fetched {
		return true, nil
	}
	return duplicate, nil
}

var _ core.Deduplicator = (*CachedDeduplicator)(nil)
