// Package openweather implements geocoding and current conditions against the
// OpenWeatherMap APIs.
package openweather

import (
	"context"
	"encoding/json"
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
	defaultBaseURL = "https://api.openweathermap.org"
	sourceName     = "openweather"
)

// Client implements domain.Geocoder and domain.WeatherProvider.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates an OpenWeatherMap client.
func NewClient(apiKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Geocode resolves a free-text query to the best matching place.
func (c *Client) Geocode(ctx context.Context, query string) (domain.Place, error) {
	params := url.Values{
		"q":     {query},
		"limit": {"1"},
		"appid": {c.apiKey},
	}

	var places []geoResult
	if err := c.getJSON(ctx, "openweather_geocode", "/geo/1.0/direct", params, &places); err != nil {
		return domain.Place{}, err
	}
	if len(places) == 0 {
		c.metrics.ProviderRequests.WithLabelValues("openweather_geocode", "empty").Inc()
		return domain.Place{}, fmt.Errorf("%w: %q", domain.ErrLocationNotFound, query)
	}

	p := places[0]
	name := p.Name
	if p.State != "" {
		name = p.Name + ", " + p.State
	}
	return domain.Place{
		Query:   query,
		Name:    name,
		Country: p.Country,
		Geo:     domain.Geo{Lat: p.Lat, Lon: p.Lon},
		Source:  sourceName,
	}, nil
}

// Current returns live conditions in metric units.
func (c *Client) Current(ctx context.Context, place domain.Place) (domain.CurrentWeather, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(place.Geo.Lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(place.Geo.Lon, 'f', -1, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}

	var resp weatherResponse
	if err := c.getJSON(ctx, "openweather_current", "/data/2.5/weather", params, &resp); err != nil {
		return domain.CurrentWeather{}, err
	}

	w := domain.CurrentWeather{
		Temperature: resp.Main.Temp,
		FeelsLike:   resp.Main.FeelsLike,
		Humidity:    resp.Main.Humidity,
		Pressure:    resp.Main.Pressure,
		WindSpeed:   resp.Wind.Speed,
		Source:      sourceName,
	}
	if resp.Rain != nil {
		w.Rain1h = resp.Rain.OneHour
	}
	if len(resp.Weather) > 0 {
		w.Conditions = resp.Weather[0].Description
	}
	if resp.Dt > 0 {
		w.ObservedAt = time.Unix(resp.Dt, 0).UTC()
	}
	return w, nil
}

func (c *Client) getJSON(ctx context.Context, provider, path string, params url.Values, dst any) error {
	start := time.Now()
	defer func() {
		c.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return fmt.Errorf("%s request: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return fmt.Errorf("decode response: %w", err)
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("provider request", "provider", provider, "duration", time.Since(start))
	return nil
}

// OpenWeatherMap API response types.

type geoResult struct {
	Name    string  `json:"name"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Country string  `json:"country"`
	State   string  `json:"state"`
}

type weatherResponse struct {
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  float64 `json:"humidity"`
		Pressure  float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain *struct {
		OneHour float64 `json:"1h"`
	} `json:"rain"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Dt int64 `json:"dt"`
}
