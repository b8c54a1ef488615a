// Package classifier implements the feed-forward disaster classifier: a small
// ReLU network with a softmax head over domain.Classes, trained with Adam on
// categorical cross-entropy.
//
// A Classifier starts empty. LoadOrTrain (or Train/Load) installs a Params
// set; later retrains replace it atomically, so Predict never observes a
// partially updated network.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
)

var (
	// ErrNotReady is returned by Predict before any parameters are installed.
	ErrNotReady = errors.New("model not ready")
	// ErrSchemaMismatch is returned when a vector or parameter set was built
	// for a different feature layout than the classifier serves.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrUnstablePrediction is returned when inputs overflow the network and
	// the class distribution is not finite.
	ErrUnstablePrediction = errors.New("prediction is not finite")
	// ErrNoSnapshot is returned by a Store with nothing saved for a schema.
	ErrNoSnapshot = errors.New("no stored parameters")
)

// Store persists parameter snapshots between runs.
type Store interface {
	Save(ctx context.Context, p *Params) error
	Latest(ctx context.Context, schema, fingerprint string) (*Params, error)
}

// DatasetSource produces a fresh training dataset.
type DatasetSource func(ctx context.Context) (*features.Dataset, error)

// Classifier serves predictions for one schema.
type Classifier struct {
	schema *features.Schema
	params atomic.Pointer[Params]
	logger *slog.Logger
}

// New creates a Classifier with no parameters.
func New(schema *features.Schema, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{schema: schema, logger: logger}
}

// Schema returns the feature layout this classifier serves.
func (c *Classifier) Schema() *features.Schema { return c.schema }

// Params returns the installed parameters, or nil.
func (c *Classifier) Params() *Params { return c.params.Load() }

// Ready reports whether Predict can succeed.
func (c *Classifier) Ready() bool { return c.params.Load() != nil }

// CheckReadiness implements the shared readiness checker.
func (c *Classifier) CheckReadiness(_ context.Context) error {
	if !c.Ready() {
		return ErrNotReady
	}
	return nil
}

// Load validates p and installs it.
func (c *Classifier) Load(p *Params) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}
	if err := p.Compatible(c.schema); err != nil {
		return fmt.Errorf("load parameters: %w", err)
	}
	c.params.Store(p)
	return nil
}

// Train fits a new parameter set to ds and installs it. The previous
// parameters stay in service until training finishes.
func (c *Classifier) Train(ctx context.Context, ds *features.Dataset, opts TrainOptions) (*Report, error) {
	if ds.Schema != c.schema {
		return nil, fmt.Errorf("%w: dataset is %s, classifier serves %s", ErrSchemaMismatch, ds.Schema.Name, c.schema.Name)
	}
	if opts.OnEpoch == nil {
		opts.OnEpoch = c.logEpoch
	}
	params, report, err := Train(ctx, ds, opts)
	if err != nil {
		return nil, err
	}
	c.params.Store(params)
	c.logger.Info("model trained",
		"schema", report.Schema,
		"shape", report.Shape,
		"train_rows", report.TrainRows,
		"validation_rows", report.ValidationRows,
		"skipped_rows", report.SkippedRows,
		"duration", report.Duration,
	)
	return report, nil
}

func (c *Classifier) logEpoch(e EpochLog) {
	c.logger.Info("training epoch",
		"epoch", e.Epoch,
		"loss", e.Loss,
		"accuracy", e.Accuracy,
		"val_loss", e.ValLoss,
		"val_accuracy", e.ValAccuracy,
	)
}

// Predict returns the class distribution for v. It is deterministic for a
// fixed parameter set. Inputs large enough to overflow the network yield
// ErrUnstablePrediction rather than a NaN distribution.
func (c *Classifier) Predict(v features.FeatureVector) (domain.Prediction, error) {
	p := c.params.Load()
	if p == nil {
		return domain.Prediction{}, ErrNotReady
	}
	if v.Fingerprint() != p.Fingerprint || v.Len() != p.Layers[0].In {
		return domain.Prediction{}, fmt.Errorf("%w: vector is %s, model is %s", ErrSchemaMismatch, v.Schema(), p.Schema)
	}
	probs := p.forward(v.Values())
	for _, prob := range probs {
		if math.IsNaN(prob) || math.IsInf(prob, 0) {
			return domain.Prediction{}, fmt.Errorf("%w: input overflows the %s network", ErrUnstablePrediction, p.Schema)
		}
	}
	return domain.PredictionFromProbabilities(probs), nil
}

// LoadOrTrain installs the newest stored snapshot for the classifier's schema
// or, failing that, trains from source and saves the result. A nil store
// always trains. The returned report is nil when a snapshot was loaded.
func (c *Classifier) LoadOrTrain(ctx context.Context, store Store, source DatasetSource, opts TrainOptions) (*Report, error) {
	if store != nil {
		p, err := store.Latest(ctx, c.schema.Name, c.schema.Fingerprint())
		switch {
		case err == nil:
			if err := c.Load(p); err != nil {
				c.logger.Warn("stored parameters rejected, retraining", "error", err)
				break
			}
			c.logger.Info("model loaded from store", "schema", p.Schema, "trained_at", p.TrainedAt, "rows", p.Rows)
			return nil, nil
		case errors.Is(err, ErrNoSnapshot):
			c.logger.Info("no stored model, training", "schema", c.schema.Name)
		default:
			c.logger.Warn("model store unavailable, training", "error", err)
		}
	}

	ds, err := source(ctx)
	if err != nil {
		return nil, fmt.Errorf("load training data: %w", err)
	}
	report, err := c.Train(ctx, ds, opts)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	if store != nil {
		if err := store.Save(ctx, c.Params()); err != nil {
			c.logger.Warn("failed to save model snapshot", "error", err)
		}
	}
	return report, nil
}
