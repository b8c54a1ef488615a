// Package weatherstack implements domain.WeatherProvider against the
// Weatherstack current-conditions API.
package weatherstack

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
	defaultBaseURL = "http://api.weatherstack.com"
	provider       = "weatherstack"
)

// Client implements domain.WeatherProvider.
type Client struct {
	accessKey  string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a Weatherstack client.
func NewClient(accessKey string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		accessKey: accessKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: defaultBaseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Current returns live conditions for place. The user's original query is
// sent when available since Weatherstack resolves names itself; otherwise
// the coordinates are used. Wind speed is in km/h.
func (c *Client) Current(ctx context.Context, place domain.Place) (domain.CurrentWeather, error) {
	query := strings.TrimSpace(place.Query)
	if query == "" {
		query = strconv.FormatFloat(place.Geo.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(place.Geo.Lon, 'f', -1, 64)
	}
	params := url.Values{
		"access_key": {c.accessKey},
		"query":      {query},
	}

	start := time.Now()
	resp, err := c.fetch(ctx, c.baseURL+"/current?"+params.Encode())
	c.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return domain.CurrentWeather{}, err
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, "success").Inc()
	c.logger.Debug("provider request", "provider", provider, "duration", time.Since(start))

	cur := resp.Current
	w := domain.CurrentWeather{
		Temperature: cur.Temperature,
		FeelsLike:   cur.FeelsLike,
		Humidity:    cur.Humidity,
		Pressure:    cur.Pressure,
		WindSpeed:   cur.WindSpeed,
		Rain1h:      cur.Precip,
		Source:      provider,
	}
	if len(cur.WeatherDescriptions) > 0 {
		w.Conditions = cur.WeatherDescriptions[0]
	}
	if resp.Location.LocaltimeEpoch > 0 {
		w.ObservedAt = time.Unix(resp.Location.LocaltimeEpoch, 0).UTC()
	}
	return w, nil
}

func (c *Client) fetch(ctx context.Context, fullURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weatherstack request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("weatherstack API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	// Weatherstack reports failures with HTTP 200 and success=false.
	if out.Success != nil && !*out.Success {
		info := "unknown error"
		if out.Error != nil && out.Error.Info != "" {
			info = out.Error.Info
		}
		return nil, fmt.Errorf("weatherstack API error: %s", info)
	}
	if out.Current == nil {
		return nil, errors.New("weatherstack API error: response has no current conditions")
	}
	return &out, nil
}

// Weatherstack API response types.

type response struct {
	Success *bool `json:"success"`
	Error   *struct {
		Code int    `json:"code"`
		Type string `json:"type"`
		Info string `json:"info"`
	} `json:"error"`
	Location struct {
		LocaltimeEpoch int64 `json:"localtime_epoch"`
	} `json:"location"`
	Current *struct {
		Temperature         float64  `json:"temperature"`
		FeelsLike           float64  `json:"feelslike"`
		Humidity            float64  `json:"humidity"`
		Pressure            float64  `json:"pressure"`
		WindSpeed           float64  `json:"wind_speed"`
		Precip              float64  `json:"precip"`
		WeatherDescriptions []string `json:"weather_descriptions"`
	} `json:"current"`
}
