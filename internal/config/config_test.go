package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOpenWeatherKey = "ow-test-key"
	testMapboxToken    = "pk.test-token"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", testOpenWeatherKey)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "extended", cfg.ModelSchema)
	assert.Equal(t, "data/complete_disaster_data.csv", cfg.TrainingData)
	assert.Equal(t, uint64(42), cfg.ModelSeed)
	assert.Empty(t, cfg.ModelStorePath)
	assert.Equal(t, ProviderOpenWeather, cfg.Geocoder)
	assert.Equal(t, ProviderOpenWeather, cfg.WeatherProvider)
	assert.Equal(t, testOpenWeatherKey, cfg.OpenWeatherAPIKey)
	assert.Equal(t, "https://power.larc.nasa.gov", cfg.NASAPowerURL)
	assert.Equal(t, "https://api.opentopodata.org", cfg.ElevationURL)
	assert.Equal(t, 10*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 7, cfg.HistoryDays)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.GeocodeCacheTTL)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "risk-assessments", cfg.KafkaAssessmentTopic)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("MODEL_SCHEMA", "Minimal")
	t.Setenv("TRAINING_DATA", "/srv/data/weather.csv")
	t.Setenv("MODEL_SEED", "7")
	t.Setenv("MODEL_STORE_PATH", "/srv/model.db")
	t.Setenv("GEOCODER", "mapbox")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("WEATHER_PROVIDER", "weatherstack")
	t.Setenv("WEATHERSTACK_API_KEY", "ws-key")
	t.Setenv("NASA_POWER_URL", "http://power.local/")
	t.Setenv("ELEVATION_URL", "http://topo.local")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("HISTORY_DAYS", "14")
	t.Setenv("GEOCODE_CACHE_SIZE", "250")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("GEOCODE_CACHE_TTL", "1h")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_ASSESSMENT_TOPIC", "custom-assessments")
	t.Setenv("BATCH_SIZE", "10")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "minimal", cfg.ModelSchema)
	assert.Equal(t, "/srv/data/weather.csv", cfg.TrainingData)
	assert.Equal(t, uint64(7), cfg.ModelSeed)
	assert.Equal(t, "/srv/model.db", cfg.ModelStorePath)
	assert.Equal(t, ProviderMapbox, cfg.Geocoder)
	assert.Equal(t, ProviderWeatherstack, cfg.WeatherProvider)
	assert.Equal(t, "http://power.local", cfg.NASAPowerURL)
	assert.Equal(t, "http://topo.local", cfg.ElevationURL)
	assert.Equal(t, 3*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 14, cfg.HistoryDays)
	assert.Equal(t, 250, cfg.GeocodeCacheSize)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, time.Hour, cfg.GeocodeCacheTTL)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-assessments", cfg.KafkaAssessmentTopic)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchFlushInterval)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		errPart string
	}{
		{"shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, "SHUTDOWN_TIMEOUT"},
		{"negative shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"provider timeout", map[string]string{"PROVIDER_TIMEOUT": "soon"}, "PROVIDER_TIMEOUT"},
		{"cache ttl", map[string]string{"GEOCODE_CACHE_TTL": "0s"}, "GEOCODE_CACHE_TTL"},
		{"seed", map[string]string{"MODEL_SEED": "-3"}, "MODEL_SEED"},
		{"history days", map[string]string{"HISTORY_DAYS": "0"}, "HISTORY_DAYS"},
		{"batch size", map[string]string{"BATCH_SIZE": "9999"}, "BATCH_SIZE"},
		{"schema", map[string]string{"MODEL_SCHEMA": "huge"}, "MODEL_SCHEMA"},
		{"geocoder", map[string]string{"GEOCODER": "google"}, "GEOCODER"},
		{"weather provider", map[string]string{"WEATHER_PROVIDER": "darksky"}, "WEATHER_PROVIDER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENWEATHER_API_KEY", testOpenWeatherKey)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errPart)
		})
	}
}

func TestLoad_MissingOpenWeatherKey(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENWEATHER_API_KEY")
}

func TestLoad_MapboxGeocoderWithoutToken(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", testOpenWeatherKey)
	t.Setenv("GEOCODER", "mapbox")
	t.Setenv("MAPBOX_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_WeatherstackWithoutKey(t *testing.T) {
	t.Setenv("GEOCODER", "mapbox")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("WEATHER_PROVIDER", "weatherstack")
	t.Setenv("WEATHERSTACK_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEATHERSTACK_API_KEY")
}

func TestLoad_KafkaBrokersOnlyRequiredWhenEnabled(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", testOpenWeatherKey)
	t.Setenv("KAFKA_BROKERS", " , ")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.KafkaBrokers)

	t.Setenv("KAFKA_ENABLED", "true")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("OPENWEATHER_API_KEY", testOpenWeatherKey)
	t.Setenv("GEOCODE_CACHE_SIZE", "-5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.GeocodeCacheSize)
}
