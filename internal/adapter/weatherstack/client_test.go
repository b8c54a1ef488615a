package weatherstack

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

func testClient(baseURL string) *Client {
	return &Client{
		accessKey:  "test-key",
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Current_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/current", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("access_key"))
		assert.Equal(t, "Miami", r.URL.Query().Get("query"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"location":{"name":"Miami","localtime_epoch":1718000000},
			"current":{"temperature":29,"feelslike":34,"humidity":79,"pressure":1011,
				"wind_speed":22,"precip":1.2,"weather_descriptions":["Light Rain Shower"]}
		}`))
	}))
	defer srv.Close()

	w, err := testClient(srv.URL).Current(context.Background(), domain.Place{Query: "Miami"})
	require.NoError(t, err)

	assert.Equal(t, domain.CurrentWeather{
		Temperature: 29,
		FeelsLike:   34,
		Humidity:    79,
		Pressure:    1011,
		WindSpeed:   22,
		Rain1h:      1.2,
		Conditions:  "Light Rain Shower",
		ObservedAt:  time.Unix(1718000000, 0).UTC(),
		Source:      "weatherstack",
	}, w)
}

func TestClient_Current_CoordinateQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25.76,-80.19", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"current":{"temperature":29,"weather_descriptions":[]}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background(), domain.Place{Geo: domain.Geo{Lat: 25.76, Lon: -80.19}})
	require.NoError(t, err)
}

func TestClient_Current_APIFailureWith200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":101,"type":"invalid_access_key","info":"You have not supplied a valid API Access Key."}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background(), domain.Place{Query: "Miami"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valid API Access Key")
}

func TestClient_Current_MissingCurrent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"location":{}}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background(), domain.Place{Query: "Miami"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current conditions")
}

func TestClient_Current_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Current(context.Background(), domain.Place{Query: "Miami"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
