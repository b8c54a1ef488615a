// Package opentopo implements domain.ElevationProvider against the
// OpenTopoData aster30m dataset.
package opentopo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

const (
	provider = "opentopo"
	dataset  = "aster30m"

	// maxBody bounds how much of an upstream response is buffered.
	maxBody = 1 << 20
)

// ErrNoElevation is returned when the dataset has no value for a point,
// e.g. over open ocean.
var ErrNoElevation = errors.New("no elevation for location")

// Client implements domain.ElevationProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenTopoData client. baseURL is the service root,
// e.g. https://api.opentopodata.org.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		metrics: metrics,
		logger:  logger,
	}
}

// Elevation returns metres above sea level at geo.
func (c *Client) Elevation(ctx context.Context, geo domain.Geo) (float64, error) {
	body, err := c.Lookup(ctx, geo)
	if err != nil {
		return 0, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	if len(resp.Results) == 0 || resp.Results[0].Elevation == nil {
		return 0, fmt.Errorf("%w: %.4f,%.4f", ErrNoElevation, geo.Lat, geo.Lon)
	}
	return *resp.Results[0].Elevation, nil
}

// Lookup returns the raw upstream JSON for geo. The HTTP elevation proxy
// passes it through unchanged.
func (c *Client) Lookup(ctx context.Context, geo domain.Geo) ([]byte, error) {
	locations := strconv.FormatFloat(geo.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(geo.Lon, 'f', -1, 64)
	fullURL := fmt.Sprintf("%s/v1/%s?%s", c.baseURL, dataset, url.Values{"locations": {locations}}.Encode())

	start := time.Now()
	body, err := c.fetch(ctx, fullURL)
	c.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return nil, err
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("provider request", "provider", provider, "duration", time.Since(start))
	return body, nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("opentopodata API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if !json.Valid(body) {
		return nil, errors.New("opentopodata API error: response is not JSON")
	}
	return body, nil
}

// OpenTopoData API response types.

type response struct {
	Status  string `json:"status"`
	Results []struct {
		Elevation *float64 `json:"elevation"`
		Dataset   string   `json:"dataset"`
	} `json:"results"`
}
