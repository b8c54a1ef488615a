//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return &Client{
		token:      token,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_Geocode(t *testing.T) {
	c := smokeClient(t)

	place, err := c.Geocode(context.Background(), "Houston, Texas")
	require.NoError(t, err)

	assert.InDelta(t, 29.76, place.Geo.Lat, 0.2, "lat should be near Houston")
	assert.InDelta(t, -95.37, place.Geo.Lon, 0.2, "lon should be near Houston")
	assert.Contains(t, place.Name, "Houston")
	assert.Equal(t, "us", place.Country)
	assert.Greater(t, place.Confidence, 0.5)
}

func TestSmoke_Geocode_Nonsense(t *testing.T) {
	c := smokeClient(t)

	// Mapbox's fuzzy matching may still return results for nonsense queries,
	// so accept either a place or a not-found error.
	_, err := c.Geocode(context.Background(), "XYZNONEXISTENT99QQ")
	if err != nil {
		require.ErrorIs(t, err, domain.ErrLocationNotFound)
	}
}
