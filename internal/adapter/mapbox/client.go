package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

const provider = "mapbox_geocode"

// Client implements domain.Geocoder using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: "https://api.mapbox.com/geocoding/v5/mapbox.places",
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode converts a free-text location to coordinates.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Place, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(query))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place,locality,region,postcode"},
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, u+"?"+params.Encode())
	c.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return domain.Place{}, err
	}

	if len(resp.Features) == 0 || len(resp.Features[0].Center) != 2 {
		c.metrics.ProviderRequests.WithLabelValues(provider, "empty").Inc()
		return domain.Place{}, fmt.Errorf("%w: %q", domain.ErrLocationNotFound, query)
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()

	f := resp.Features[0]
	place := domain.Place{
		Query: query,
		// Mapbox uses lon,lat order.
		Geo:        domain.Geo{Lat: f.Center[1], Lon: f.Center[0]},
		Name:       f.PlaceName,
		Confidence: f.Relevance,
		Source:     "mapbox",
	}
	for _, ctxEntry := range f.Context {
		if strings.HasPrefix(ctxEntry.ID, "country.") {
			place.Country = ctxEntry.ShortCode
		}
	}
	c.logger.Debug("provider request", "provider", provider, "duration", time.Since(start), "relevance", f.Relevance)
	return place, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &mapboxResp, nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64      `json:"center"` // [lon, lat]
	PlaceName string         `json:"place_name"`
	Text      string         `json:"text"`
	Relevance float64        `json:"relevance"`
	Context   []contextEntry `json:"context"`
}

type contextEntry struct {
	ID        string `json:"id"` // e.g. "country.8605848117814600"
	Text      string `json:"text"`
	ShortCode string `json:"short_code"`
}
