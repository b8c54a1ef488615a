// Package geocache provides caching decorators for domain.Geocoder: an
// in-process LRU and a shared Redis tier. Only successful lookups are cached
// so a "not found" can be retried once the provider knows the place.
package geocache

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

// MemoryGeocoder wraps a Geocoder with an in-memory LRU cache.
type MemoryGeocoder struct {
	inner   domain.Geocoder
	cache   *lru.Cache[string, domain.Place]
	metrics *observability.Metrics
}

// NewMemoryGeocoder creates an LRU decorator holding up to maxEntries places.
// Sizes below one are raised to one.
func NewMemoryGeocoder(inner domain.Geocoder, maxEntries int, metrics *observability.Metrics) *MemoryGeocoder {
	cache, _ := lru.New[string, domain.Place](max(maxEntries, 1)) // only fails for size <= 0
	return &MemoryGeocoder{
		inner:   inner,
		cache:   cache,
		metrics: metrics,
	}
}

// Len returns the number of cached places.
func (g *MemoryGeocoder) Len() int { return g.cache.Len() }

// Geocode implements domain.Geocoder.
func (g *MemoryGeocoder) Geocode(ctx context.Context, query string) (domain.Place, error) {
	key := cacheKey(query)
	if place, ok := g.cache.Get(key); ok {
		g.metrics.GeocodeCache.WithLabelValues("memory", "hit").Inc()
		place.Query = query
		return place, nil
	}
	g.metrics.GeocodeCache.WithLabelValues("memory", "miss").Inc()

	place, err := g.inner.Geocode(ctx, query)
	if err != nil {
		return place, err
	}
	g.cache.Add(key, place)
	return place, nil
}

// cacheKey folds case and surrounding whitespace so "Paris" and " paris "
// share an entry.
func cacheKey(query string) string {
	return "geo:" + strings.ToLower(strings.Join(strings.Fields(query), " "))
}
