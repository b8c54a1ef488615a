package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Provider names accepted by GEOCODER and WEATHER_PROVIDER.
const (
	ProviderOpenWeather  = "openweather"
	ProviderWeatherstack = "weatherstack"
	ProviderMapbox       = "mapbox"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Model configuration.
	ModelSchema    string
	TrainingData   string
	ModelSeed      uint64
	ModelStorePath string

	// Data providers.
	Geocoder           string
	WeatherProvider    string
	OpenWeatherAPIKey  string
	WeatherstackAPIKey string
	MapboxToken        string
	NASAPowerURL       string
	ElevationURL       string
	ProviderTimeout    time.Duration
	HistoryDays        int

	// Geocode caching.
	GeocodeCacheSize int
	RedisAddr        string
	GeocodeCacheTTL  time.Duration

	// Assessment publishing.
	KafkaEnabled         bool
	KafkaBrokers         []string
	KafkaAssessmentTopic string
	BatchSize            int
	BatchFlushInterval   time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parseDuration("PROVIDER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parseDuration("GEOCODE_CACHE_TTL", "24h")
	if err != nil {
		return nil, err
	}

	seed, err := strconv.ParseUint(sharedcfg.EnvOrDefault("MODEL_SEED", "42"), 10, 64)
	if err != nil {
		return nil, errors.New("invalid MODEL_SEED")
	}

	historyDays, err := parsePositiveInt("HISTORY_DAYS", 7)
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}
	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		ModelSchema:    strings.ToLower(sharedcfg.EnvOrDefault("MODEL_SCHEMA", "extended")),
		TrainingData:   sharedcfg.EnvOrDefault("TRAINING_DATA", "data/complete_disaster_data.csv"),
		ModelSeed:      seed,
		ModelStorePath: os.Getenv("MODEL_STORE_PATH"),

		Geocoder:           strings.ToLower(sharedcfg.EnvOrDefault("GEOCODER", ProviderOpenWeather)),
		WeatherProvider:    strings.ToLower(sharedcfg.EnvOrDefault("WEATHER_PROVIDER", ProviderOpenWeather)),
		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		WeatherstackAPIKey: os.Getenv("WEATHERSTACK_API_KEY"),
		MapboxToken:        os.Getenv("MAPBOX_TOKEN"),
		NASAPowerURL:       strings.TrimRight(sharedcfg.EnvOrDefault("NASA_POWER_URL", "https://power.larc.nasa.gov"), "/"),
		ElevationURL:       strings.TrimRight(sharedcfg.EnvOrDefault("ELEVATION_URL", "https://api.opentopodata.org"), "/"),
		ProviderTimeout:    providerTimeout,
		HistoryDays:        historyDays,

		GeocodeCacheSize: parseCacheSize(),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		GeocodeCacheTTL:  cacheTTL,

		KafkaEnabled:         os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:         sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaAssessmentTopic: sharedcfg.EnvOrDefault("KAFKA_ASSESSMENT_TOPIC", "risk-assessments"),
		BatchSize:            batchSize,
		BatchFlushInterval:   flushInterval,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ModelSchema != "minimal" && c.ModelSchema != "extended" {
		return errors.New("MODEL_SCHEMA must be minimal or extended")
	}
	if c.TrainingData == "" {
		return errors.New("TRAINING_DATA is required")
	}

	switch c.Geocoder {
	case ProviderOpenWeather:
		if c.OpenWeatherAPIKey == "" {
			return errors.New("OPENWEATHER_API_KEY is required when GEOCODER is openweather")
		}
	case ProviderMapbox:
		if c.MapboxToken == "" {
			return errors.New("MAPBOX_TOKEN is required when GEOCODER is mapbox")
		}
	default:
		return errors.New("GEOCODER must be openweather or mapbox")
	}

	switch c.WeatherProvider {
	case ProviderOpenWeather:
		if c.OpenWeatherAPIKey == "" {
			return errors.New("OPENWEATHER_API_KEY is required when WEATHER_PROVIDER is openweather")
		}
	case ProviderWeatherstack:
		if c.WeatherstackAPIKey == "" {
			return errors.New("WEATHERSTACK_API_KEY is required when WEATHER_PROVIDER is weatherstack")
		}
	default:
		return errors.New("WEATHER_PROVIDER must be openweather or weatherstack")
	}

	if c.KafkaEnabled {
		if len(c.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is required")
		}
		if c.KafkaAssessmentTopic == "" {
			return errors.New("KAFKA_ASSESSMENT_TOPIC is required")
		}
	}
	return nil
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

func parseCacheSize() int {
	if s := os.Getenv("GEOCODE_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}
