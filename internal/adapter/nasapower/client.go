// Package nasapower implements domain.HistoryProvider against the NASA POWER
// daily point API.
package nasapower

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

const (
	provider = "nasapower"

	// missingValue is POWER's fill value for days without data.
	missingValue = -999

	dateLayout = "20060102"
)

// Requested parameters: 2 m temperature (°C), 2 m relative humidity (%),
// surface pressure (kPa), 10 m wind speed (m/s), corrected precipitation (mm/day).
var parameters = []string{"T2M", "RH2M", "PS", "WS10M", "PRECTOTCORR"}

// Client implements domain.HistoryProvider.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a NASA POWER client. baseURL is the service root, e.g.
// https://power.larc.nasa.gov.
func NewClient(baseURL string, timeout time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// History returns daily aggregates for the trailing window ending today
// (UTC), oldest first. Days with a missing value in any parameter are dropped.
func (c *Client) History(ctx context.Context, geo domain.Geo, days int) ([]domain.DailyWeather, error) {
	end := c.clock.Now().UTC()
	start := end.AddDate(0, 0, -days)
	params := url.Values{
		"parameters": {strings.Join(parameters, ",")},
		"community":  {"RE"},
		"longitude":  {strconv.FormatFloat(geo.Lon, 'f', -1, 64)},
		"latitude":   {strconv.FormatFloat(geo.Lat, 'f', -1, 64)},
		"start":      {start.Format(dateLayout)},
		"end":        {end.Format(dateLayout)},
		"format":     {"JSON"},
	}

	begin := time.Now()
	resp, err := c.fetch(ctx, c.baseURL+"/api/temporal/daily/point?"+params.Encode())
	c.metrics.ProviderDuration.WithLabelValues(provider).Observe(time.Since(begin).Seconds())
	if err != nil {
		c.metrics.ProviderRequests.WithLabelValues(provider, "error").Inc()
		return nil, err
	}

	history := toDaily(resp.Properties.Parameter)
	outcome := "success"
	if len(history) == 0 {
		outcome = "empty"
	}
	c.metrics.ProviderRequests.WithLabelValues(provider, outcome).Inc()
	c.logger.Debug("provider request", "provider", provider, "duration", time.Since(begin), "days", len(history))
	return history, nil
}

func toDaily(series map[string]map[string]float64) []domain.DailyWeather {
	dates := make([]string, 0, len(series["T2M"]))
	for d := range series["T2M"] {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	out := make([]domain.DailyWeather, 0, len(dates))
	for _, d := range dates {
		values := make([]float64, len(parameters))
		complete := true
		for i, p := range parameters {
			v, ok := series[p][d]
			if !ok || v == missingValue {
				complete = false
				break
			}
			values[i] = v
		}
		if !complete {
			continue
		}
		out = append(out, domain.DailyWeather{
			Date:        formatDate(d),
			Temperature: values[0],
			Humidity:    values[1],
			Pressure:    values[2],
			WindSpeed:   values[3],
			Rain:        values[4],
		})
	}
	return out
}

// formatDate turns YYYYMMDD into YYYY-MM-DD, leaving anything else alone.
func formatDate(d string) string {
	t, err := time.Parse(dateLayout, d)
	if err != nil {
		return d
	}
	return t.Format(time.DateOnly)
}

func (c *Client) fetch(ctx context.Context, fullURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nasa power request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("nasa power API error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// NASA POWER API response types.

type response struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}
