package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-risk-service/internal/adapter/geocache"
	httpadapter "github.com/couchcryptid/disaster-risk-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/disaster-risk-service/internal/adapter/kafka"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/mapbox"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/nasapower"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/opentopo"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/openweather"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/sqlite"
	"github.com/couchcryptid/disaster-risk-service/internal/adapter/weatherstack"
	"github.com/couchcryptid/disaster-risk-service/internal/assess"
	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
	"github.com/couchcryptid/disaster-risk-service/internal/config"
	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schema, err := features.SchemaByName(cfg.ModelSchema)
	if err != nil {
		logger.Error("invalid model schema", "error", err)
		os.Exit(1)
	}
	encoder, err := features.NewEncoder(schema, clock)
	if err != nil {
		logger.Error("failed to build encoder", "error", err)
		os.Exit(1)
	}
	clf := classifier.New(schema, logger)

	geocoder, closeGeocoder, err := buildGeocoder(ctx, cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to initialize geocoder", "error", err)
		os.Exit(1)
	}
	defer closeGeocoder()

	elevation := opentopo.NewClient(cfg.ElevationURL, cfg.ProviderTimeout, metrics, logger)
	providers := assess.Providers{
		Geocoder:    geocoder,
		Weather:     buildWeatherProvider(cfg, metrics, logger),
		History:     nasapower.NewClient(cfg.NASAPowerURL, cfg.ProviderTimeout, clock, metrics, logger),
		Elevation:   elevation,
		HistoryDays: cfg.HistoryDays,
	}

	opts := []assess.Option{
		assess.WithClock(clock),
		assess.WithTrainOptions(classifier.TrainOptions{Seed: cfg.ModelSeed}),
	}

	// Initialize the snapshot store (optional via MODEL_STORE_PATH).
	if cfg.ModelStorePath != "" {
		store, err := sqlite.Open(ctx, cfg.ModelStorePath)
		if err != nil {
			logger.Error("failed to open model store", "path", cfg.ModelStorePath, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		opts = append(opts, assess.WithStore(store))
		logger.Info("model snapshots enabled", "path", cfg.ModelStorePath)
	}

	// Initialize the assessment publisher (optional via KAFKA_ENABLED).
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		opts = append(opts, assess.WithPublisher(writer))
		logger.Info("assessment publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaAssessmentTopic)
	}

	source := func(context.Context) (*features.Dataset, error) {
		return features.LoadDataset(cfg.TrainingData, encoder)
	}
	svc, err := assess.NewService(providers, clf, encoder, source, metrics, logger, opts...)
	if err != nil {
		logger.Error("failed to build assessment service", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, elevation, clf, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// Load or train the model; /readyz reports 503 until this completes.
	go func() {
		if _, err := svc.LoadModel(ctx); err != nil {
			logger.Error("failed to load model", "training_data", cfg.TrainingData, "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := svc.Close(shutdownCtx); err != nil {
		logger.Error("assessment publish drain error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// buildGeocoder returns the configured geocoder behind an in-memory LRU and,
// when REDIS_ADDR is set, a shared Redis tier.
func buildGeocoder(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.Geocoder, func(), error) {
	var geocoder domain.Geocoder
	switch cfg.Geocoder {
	case config.ProviderMapbox:
		geocoder = mapbox.NewClient(cfg.MapboxToken, cfg.ProviderTimeout, metrics, logger)
	default:
		geocoder = openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.ProviderTimeout, metrics, logger)
	}

	closeFn := func() {}
	if cfg.RedisAddr != "" {
		client, err := geocache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closeFn = func() {
			if err := client.Close(); err != nil {
				logger.Error("redis close error", "error", err)
			}
		}
		geocoder = geocache.NewRedisGeocoder(geocoder, client, cfg.GeocodeCacheTTL, metrics, logger)
		logger.Info("redis geocode cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.GeocodeCacheTTL)
	}

	geocoder = geocache.NewMemoryGeocoder(geocoder, cfg.GeocodeCacheSize, metrics)
	logger.Info("geocoding enabled", "provider", cfg.Geocoder, "cache_size", cfg.GeocodeCacheSize, "timeout", cfg.ProviderTimeout)
	return geocoder, closeFn, nil
}

func buildWeatherProvider(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.WeatherProvider {
	if cfg.WeatherProvider == config.ProviderWeatherstack {
		return weatherstack.NewClient(cfg.WeatherstackAPIKey, cfg.ProviderTimeout, metrics, logger)
	}
	return openweather.NewClient(cfg.OpenWeatherAPIKey, cfg.ProviderTimeout, metrics, logger)
}
