// Package assess orchestrates a location risk assessment: geocoding, weather
// and elevation acquisition, feature encoding, classification and the risk
// decision. It also owns the classifier's training lifecycle.
package assess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
	"github.com/couchcryptid/disaster-risk-service/internal/observability"
	"github.com/couchcryptid/disaster-risk-service/internal/risk"
)

const publishTimeout = 10 * time.Second

var (
	// ErrEmptyQuery is returned by Assess for a blank location query.
	ErrEmptyQuery = errors.New("location query is empty")
	// ErrRetrainInProgress is returned by Retrain while another run is active.
	ErrRetrainInProgress = errors.New("retrain already in progress")
)

// AcquisitionError wraps a failure to fetch the data an assessment needs.
type AcquisitionError struct {
	Stage string // geocode, weather, history or observation
	Err   error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Stage, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// Publisher receives every completed assessment.
type Publisher interface {
	Publish(ctx context.Context, a Assessment) error
}

// Providers groups the external data sources an assessment needs.
// Elevation is optional.
type Providers struct {
	Geocoder    domain.Geocoder
	Weather     domain.WeatherProvider
	History     domain.HistoryProvider
	Elevation   domain.ElevationProvider
	HistoryDays int
}

// Service assesses locations and manages the classifier.
type Service struct {
	providers  Providers
	classifier *classifier.Classifier
	encoder    *features.Encoder
	source     classifier.DatasetSource
	trainOpts  classifier.TrainOptions
	store      classifier.Store
	publisher  Publisher
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	// training serializes LoadModel and Retrain.
	training   sync.Mutex
	publishing sync.WaitGroup
}

// Option configures optional Service collaborators.
type Option func(*Service)

// WithStore persists trained parameters and restores them on LoadModel.
func WithStore(store classifier.Store) Option {
	return func(s *Service) { s.store = store }
}

// WithPublisher publishes each completed assessment.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the clock used for timestamps and month/hour features.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithTrainOptions sets the options used for every training run.
func WithTrainOptions(opts classifier.TrainOptions) Option {
	return func(s *Service) { s.trainOpts = opts }
}

// NewService wires an assessment service. The encoder must serve the same
// schema as the classifier.
func NewService(providers Providers, clf *classifier.Classifier, enc *features.Encoder, source classifier.DatasetSource, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) (*Service, error) {
	if enc.Schema() != clf.Schema() {
		return nil, fmt.Errorf("%w: encoder is %s, classifier is %s", classifier.ErrSchemaMismatch, enc.Schema().Name, clf.Schema().Name)
	}
	if providers.HistoryDays <= 0 {
		providers.HistoryDays = 7
	}
	s := &Service{
		providers:  providers,
		classifier: clf,
		encoder:    enc,
		source:     source,
		clock:      clockwork.NewRealClock(),
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Classifier returns the managed classifier.
func (s *Service) Classifier() *classifier.Classifier { return s.classifier }

// LoadModel restores the newest stored parameters or trains from the dataset.
// It waits for a running Retrain and returns a nil report without training
// when that run already installed parameters.
func (s *Service) LoadModel(ctx context.Context) (*classifier.Report, error) {
	s.training.Lock()
	defer s.training.Unlock()
	if s.classifier.Ready() {
		return nil, nil
	}

	start := s.clock.Now()
	report, err := s.classifier.LoadOrTrain(ctx, s.store, s.source, s.trainOpts)
	if err != nil {
		return nil, err
	}
	if report != nil {
		s.recordTraining(report, s.clock.Since(start))
	}
	s.metrics.ModelReady.Set(1)
	return report, nil
}

// Retrain reloads the dataset and trains new parameters. Predictions keep
// using the current parameters until training completes. It fails with
// ErrRetrainInProgress while another Retrain or LoadModel is running.
func (s *Service) Retrain(ctx context.Context) (*classifier.Report, error) {
	if !s.training.TryLock() {
		return nil, ErrRetrainInProgress
	}
	defer s.training.Unlock()

	start := s.clock.Now()
	ds, err := s.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	report, err := s.classifier.Train(ctx, ds, s.trainOpts)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}
	s.recordTraining(report, s.clock.Since(start))
	s.metrics.ModelReady.Set(1)

	if s.store != nil {
		if err := s.store.Save(ctx, s.classifier.Params()); err != nil {
			s.logger.Warn("failed to save model snapshot", "error", err)
		}
	}
	return report, nil
}

func (s *Service) recordTraining(report *classifier.Report, elapsed time.Duration) {
	s.metrics.TrainingDuration.Observe(elapsed.Seconds())
	s.metrics.RowsSkipped.Add(float64(report.SkippedRows))
}

// Predict classifies a caller-supplied observation. Values outside their
// physical range fail with domain.ErrInvalidObservation.
func (s *Service) Predict(_ context.Context, obs domain.Observation) (Outcome, error) {
	if err := obs.Validate(); err != nil {
		return Outcome{}, err
	}
	vec, fallbacks := s.encoder.EncodeWithFallbacks(obs)
	for _, fb := range fallbacks {
		s.metrics.CategoryFallbacks.WithLabelValues(fb.Field, string(fb.Reason)).Inc()
	}

	pred, err := s.classifier.Predict(vec)
	if err != nil {
		return Outcome{}, err
	}
	decision := risk.Decide(pred)
	s.metrics.Predictions.Inc()
	s.metrics.RiskLevels.WithLabelValues(string(decision.Level)).Inc()

	return Outcome{Prediction: pred, Decision: decision, Fallbacks: fallbacks}, nil
}

// Assess geocodes query, gathers its current weather, history and elevation
// and classifies the result. An elevation failure degrades to an unknown
// elevation; any other acquisition failure is returned as *AcquisitionError.
func (s *Service) Assess(ctx context.Context, query string) (_ *Assessment, err error) {
	defer func() { s.metrics.Assessments.WithLabelValues(outcomeOf(err)).Inc() }()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if !s.classifier.Ready() {
		return nil, classifier.ErrNotReady
	}

	place, err := s.providers.Geocoder.Geocode(ctx, query)
	if err != nil {
		if errors.Is(err, domain.ErrLocationNotFound) {
			return nil, err
		}
		return nil, &AcquisitionError{Stage: "geocode", Err: err}
	}
	if place.Query == "" {
		place.Query = query
	}

	var (
		current   domain.CurrentWeather
		history   []domain.DailyWeather
		elevation *float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cur, err := s.providers.Weather.Current(gctx, place)
		if err != nil {
			return &AcquisitionError{Stage: "weather", Err: err}
		}
		current = cur
		return nil
	})
	g.Go(func() error {
		days, err := s.providers.History.History(gctx, place.Geo, s.providers.HistoryDays)
		if err != nil {
			return &AcquisitionError{Stage: "history", Err: err}
		}
		history = days
		return nil
	})
	if s.providers.Elevation != nil {
		g.Go(func() error {
			elev, err := s.providers.Elevation.Elevation(gctx, place.Geo)
			if err != nil {
				s.logger.Warn("elevation unavailable", "place", place.Name, "error", err)
				return nil
			}
			elevation = &elev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	obs := buildObservation(place, elevation, current, history, now)
	if err := obs.Validate(); err != nil {
		return nil, &AcquisitionError{Stage: "observation", Err: err}
	}
	outcome, err := s.Predict(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("classify %s: %w", place.Name, err)
	}

	a := &Assessment{
		ID:          uuid.NewString(),
		AssessedAt:  now.UTC(),
		Place:       place,
		Elevation:   elevation,
		Current:     current,
		History:     history,
		Observation: obs,
		Prediction:  outcome.Prediction,
		Decision:    outcome.Decision,
		Overlays:    risk.Overlays(place.Geo, outcome.Prediction),
		Fallbacks:   outcome.Fallbacks,
	}
	s.logger.Info("location assessed",
		"assessment_id", a.ID,
		"place", place.Name,
		"level", a.Decision.Level,
		"top_class", a.Decision.TopClass,
		"top_probability", a.Decision.TopProbability,
	)
	s.publish(ctx, *a)
	return a, nil
}

// publish hands a to the publisher in the background so the caller does not
// wait on the broker. Close waits for outstanding publishes.
func (s *Service) publish(ctx context.Context, a Assessment) {
	if s.publisher == nil {
		return
	}
	s.publishing.Add(1)
	go func() {
		defer s.publishing.Done()
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		if err := s.publisher.Publish(pctx, a); err != nil {
			s.metrics.PublishFailures.Inc()
			s.logger.Error("failed to publish assessment", "assessment_id", a.ID, "error", err)
			return
		}
		s.metrics.AssessmentsPublished.Inc()
	}()
}

// Close waits for in-flight publishes to finish or ctx to expire.
func (s *Service) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.publishing.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for publishes: %w", ctx.Err())
	}
}

func outcomeOf(err error) string {
	var acqErr *AcquisitionError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &acqErr):
		return "acquisition_error"
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, domain.ErrInvalidObservation):
		return "invalid"
	case errors.Is(err, domain.ErrLocationNotFound):
		return "not_found"
	case errors.Is(err, classifier.ErrNotReady):
		return "not_ready"
	default:
		return "error"
	}
}
