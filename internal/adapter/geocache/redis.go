package geocache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

// RedisGeocoder shares geocoding results between service instances. Redis
// failures never fail a lookup; they are logged and the inner geocoder is used.
type RedisGeocoder struct {
	inner   domain.Geocoder
	client  *redis.Client
	ttl     time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisGeocoder creates a Redis decorator with the given entry TTL.
func NewRedisGeocoder(inner domain.Geocoder, client *redis.Client, ttl time.Duration, metrics *observability.Metrics, logger *slog.Logger) *RedisGeocoder {
	return &RedisGeocoder{
		inner:   inner,
		client:  client,
		ttl:     ttl,
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode implements domain.Geocoder.
func (g *RedisGeocoder) Geocode(ctx context.Context, query string) (domain.Place, error) {
	key := cacheKey(query)

	data, err := g.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var place domain.Place
		if jsonErr := json.Unmarshal(data, &place); jsonErr == nil {
			g.metrics.GeocodeCache.WithLabelValues("redis", "hit").Inc()
			place.Query = query
			return place, nil
		}
		g.logger.Warn("discarding corrupt geocode cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		g.logger.Warn("geocode cache read failed", "key", key, "error", err)
	}
	g.metrics.GeocodeCache.WithLabelValues("redis", "miss").Inc()

	place, err := g.inner.Geocode(ctx, query)
	if err != nil {
		return place, err
	}

	payload, err := json.Marshal(place)
	if err != nil {
		return place, nil
	}
	if err := g.client.Set(ctx, key, payload, g.ttl).Err(); err != nil {
		g.logger.Warn("geocode cache write failed", "key", key, "error", err)
	}
	return place, nil
}
