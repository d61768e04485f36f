package throttle

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"vote-ledger-backend/models"
)

// Default limits, matching the widget's production settings: at most 5
// collection scans a second, snapshots reused for 5 seconds.
const (
	DefaultScanRate    = 5
	DefaultSnapshotTTL = 5 * time.Second
)

// Scanner is the one registry call the cache fronts.
type Scanner interface {
	ListByCollection(ctx context.Context) ([]models.LedgerAsset, error)
}

// CollectionCache makes full-collection scans safe to call from every
// query path. A scan is O(collection size) in external calls, so hits
// inside the TTL window reuse the memoized snapshot, misses wait for a
// token, and concurrent misses collapse into a single outstanding scan.
//
// Callers must tolerate up to TTL of staleness: a vote cast right
// before a read may not show up until the snapshot expires. There is no
// invalidation on write.
type CollectionCache struct {
	scanner  Scanner
	cacheKey string
	limiter  *rate.Limiter
	cache    *gocache.Cache
	group    singleflight.Group
}

func NewCollectionCache(scanner Scanner, collection string, scansPerSecond float64, ttl time.Duration) *CollectionCache {
	if scansPerSecond <= 0 {
		scansPerSecond = DefaultScanRate
	}
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	burst := int(scansPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &CollectionCache{
		scanner:  scanner,
		cacheKey: "assets-" + collection,
		limiter:  rate.NewLimiter(rate.Limit(scansPerSecond), burst),
		cache:    gocache.New(ttl, 2*ttl),
	}
}

// Assets returns the current collection snapshot. The returned slice is
// shared and must not be mutated; a refresh installs a new slice, so a
// caller iterating one snapshot never sees a mix of two scans.
func (c *CollectionCache) Assets(ctx context.Context) ([]models.LedgerAsset, error) {
	if cached, ok := c.cache.Get(c.cacheKey); ok {
		return cached.([]models.LedgerAsset), nil
	}

	result, err, _ := c.group.Do(c.cacheKey, func() (interface{}, error) {
		// A concurrent miss may have refreshed the snapshot while
		// this caller waited on the flight group.
		if cached, ok := c.cache.Get(c.cacheKey); ok {
			return cached.([]models.LedgerAsset), nil
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		// The scan runs to completion even if the caller goes away;
		// abandoning a result must not leave a half-finished scan
		// holding the flight group.
		assets, err := c.scanner.ListByCollection(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		c.cache.Set(c.cacheKey, assets, gocache.DefaultExpiration)
		return assets, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]models.LedgerAsset), nil
}
