package classifier_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
)

// --- helpers ---

// separableCSV builds a minimal-schema dataset where each class is driven by
// a single feature, interleaved so the validation tail sees every class.
func separableCSV(perClass int) string {
	var b strings.Builder
	b.WriteString("temp,humidity,pressure,wind_speed,rain_1h,disaster_type\n")
	for i := range perClass {
		j := float64(i%5) * 0.2
		fmt.Fprintf(&b, "%.1f,%.1f,1,%.1f,%.1f,flood\n", 1+j, 8+j, 1+j, 9+j)
		fmt.Fprintf(&b, "%.1f,%.1f,1,%.1f,%.1f,wildfire\n", 9+j, 1+j, 1+j, 0.0)
		fmt.Fprintf(&b, "%.1f,%.1f,1,%.1f,%.1f,storm\n", 2+j, 3+j, 9+j, 1+j)
		fmt.Fprintf(&b, "%.1f,%.1f,1,%.1f,%.1f,none\n", 2+j, 2+j, 1+j, 0.0)
	}
	return b.String()
}

// extendedCSV builds a 17-column extended-schema dataset cycling through the
// raw disaster types, aliases included.
func extendedCSV(rows int) string {
	labels := []string{"flood", "heatwave", "wind_damage", "none", "urban_flood"}
	var b strings.Builder
	b.WriteString("temp,humidity,pressure,wind_speed,rain_1h,disaster_type,latitude,longitude,elevation,timestamp," +
		"month,hour,vegetation,soil_type,soil_moisture,urban_rural,ocean_current\n")
	for i := range rows {
		fmt.Fprintf(&b, "%d,%d,1010,%d,%d,%s,29.7,-95.3,%d,2024-06-02 03:00:00,6,%d,forest,clay,%d,urban,normal\n",
			15+i, 40+i, i%9, i%4, labels[i%len(labels)], 10*i, i%24, 30+i)
	}
	return b.String()
}

func loadDataset(t *testing.T, csv string) *features.Dataset {
	t.Helper()
	enc, err := features.NewEncoder(features.Minimal, clockwork.NewFakeClock())
	require.NoError(t, err)
	ds, err := features.ParseDataset(strings.NewReader(csv), enc)
	require.NoError(t, err)
	return ds
}

func vector(t *testing.T, values ...float64) features.FeatureVector {
	t.Helper()
	v, err := features.NewFeatureVector(features.Minimal, values)
	require.NoError(t, err)
	return v
}

func trainedClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	c := classifier.New(features.Minimal, nil)
	_, err := c.Train(context.Background(), loadDataset(t, separableCSV(15)), classifier.TrainOptions{
		Seed:         7,
		Epochs:       200,
		LearningRate: 0.01,
		OnEpoch:      func(classifier.EpochLog) {},
	})
	require.NoError(t, err)
	return c
}

type memStore struct {
	mu     sync.Mutex
	saved  []*classifier.Params
	latest *classifier.Params
	err    error
}

func (m *memStore) Save(_ context.Context, p *classifier.Params) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, p)
	return nil
}

func (m *memStore) Latest(_ context.Context, _, _ string) (*classifier.Params, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.latest == nil {
		return nil, classifier.ErrNoSnapshot
	}
	return m.latest, nil
}

// --- tests ---

func TestPredict_NotReady(t *testing.T) {
	c := classifier.New(features.Minimal, nil)

	_, err := c.Predict(vector(t, 20, 50, 1013, 3, 0))

	require.ErrorIs(t, err, classifier.ErrNotReady)
	assert.ErrorIs(t, c.CheckReadiness(context.Background()), classifier.ErrNotReady)
	assert.False(t, c.Ready())
}

func TestTrain_LearnsSeparableData(t *testing.T) {
	c := trainedClassifier(t)
	require.True(t, c.Ready())
	require.NoError(t, c.CheckReadiness(context.Background()))

	flood, err := c.Predict(vector(t, 1, 8, 1, 1, 9))
	require.NoError(t, err)
	assert.Greater(t, flood.Flood, 0.5, flood.String())

	fire, err := c.Predict(vector(t, 9, 1, 1, 1, 0))
	require.NoError(t, err)
	assert.Greater(t, fire.Wildfire, 0.5, fire.String())
}

func TestTrain_Report(t *testing.T) {
	ds := loadDataset(t, separableCSV(15))
	var seen []int

	_, report, err := classifier.Train(context.Background(), ds, classifier.TrainOptions{
		Seed:         1,
		Epochs:       200,
		LearningRate: 0.01,
		OnEpoch:      func(e classifier.EpochLog) { seen = append(seen, e.Epoch) },
	})
	require.NoError(t, err)

	assert.Equal(t, 48, report.TrainRows)
	assert.Equal(t, 12, report.ValidationRows)
	assert.Equal(t, []int{5, 16, 8, 4}, report.Shape)
	assert.Len(t, report.Epochs, 200)
	assert.Len(t, seen, 200)
	assert.Less(t, report.Final().Loss, report.Epochs[0].Loss)
	assert.GreaterOrEqual(t, report.Final().Accuracy, 0.9)

	var confused int
	for _, row := range report.Confusion {
		for _, n := range row {
			confused += n
		}
	}
	assert.Equal(t, 12, confused)
}

func TestSchemaArchitectures(t *testing.T) {
	tests := []struct {
		schema *features.Schema
		want   features.Architecture
	}{
		{features.Minimal, features.Architecture{Hidden: []int{16, 8}, Epochs: 100, BatchSize: 4, ValidationSplit: 0.2}},
		{features.Extended, features.Architecture{Hidden: []int{32, 24, 16}, Epochs: 10, BatchSize: 32, ValidationSplit: 0.2}},
	}
	for _, tt := range tests {
		t.Run(tt.schema.Name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.schema.Architecture)
		})
	}
}

func TestTrain_ExtendedDefaults(t *testing.T) {
	enc, err := features.NewEncoder(features.Extended, clockwork.NewFakeClock())
	require.NoError(t, err)
	ds, err := features.ParseDataset(strings.NewReader(extendedCSV(10)), enc)
	require.NoError(t, err)

	_, report, err := classifier.Train(context.Background(), ds, classifier.TrainOptions{Seed: 3})
	require.NoError(t, err)

	assert.Equal(t, []int{15, 32, 24, 16, 4}, report.Shape)
	assert.Len(t, report.Epochs, 10)
	assert.Equal(t, 8, report.TrainRows)
	assert.Equal(t, 2, report.ValidationRows)
}

func TestTrain_MinimalDefaultEpochs(t *testing.T) {
	_, report, err := classifier.Train(context.Background(), loadDataset(t, separableCSV(2)), classifier.TrainOptions{Seed: 3})
	require.NoError(t, err)

	assert.Equal(t, []int{5, 16, 8, 4}, report.Shape)
	assert.Len(t, report.Epochs, 100)
}

func TestTrain_DeterministicForSeed(t *testing.T) {
	ds := loadDataset(t, separableCSV(5))
	opts := classifier.TrainOptions{Seed: 42, Epochs: 5, Now: func() time.Time { return time.Unix(0, 0) }}

	a, _, err := classifier.Train(context.Background(), ds, opts)
	require.NoError(t, err)
	b, _, err := classifier.Train(context.Background(), ds, opts)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestTrain_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := classifier.Train(ctx, loadDataset(t, separableCSV(2)), classifier.TrainOptions{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrain_EmptyDataset(t *testing.T) {
	_, _, err := classifier.Train(context.Background(), &features.Dataset{Schema: features.Minimal}, classifier.TrainOptions{})
	assert.ErrorIs(t, err, features.ErrNoRows)
}

func TestPredict_DistributionInvariants(t *testing.T) {
	c := trainedClassifier(t)

	inputs := [][]float64{
		{0, 0, 0, 0, 0},
		{45, 5, 1040, 2, 0},
		{-30, 100, 950, 60, 120},
		{1e6, -1e6, 1e6, -1e6, 1e6},
	}
	for _, in := range inputs {
		pred, err := c.Predict(vector(t, in...))
		require.NoError(t, err)

		var sum float64
		for _, p := range pred.Probabilities() {
			assert.GreaterOrEqual(t, p, 0.0)
			assert.LessOrEqual(t, p, 1.0)
			assert.False(t, math.IsNaN(p))
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-5, "%v", in)
	}
}

func TestPredict_OverflowingInput(t *testing.T) {
	ones := make([]float64, features.Minimal.Width()*domain.NumClasses)
	for i := range ones {
		ones[i] = 1
	}
	saturated := classifier.New(features.Minimal, nil)
	require.NoError(t, saturated.Load(&classifier.Params{
		Schema:      features.Minimal.Name,
		Fingerprint: features.Minimal.Fingerprint(),
		Layers: []classifier.Layer{{
			In:      features.Minimal.Width(),
			Out:     domain.NumClasses,
			Weights: ones,
			Biases:  make([]float64, domain.NumClasses),
		}},
	}))

	tests := []struct {
		name string
		clf  *classifier.Classifier
	}{
		{"trained", trainedClassifier(t)},
		{"saturated logits", saturated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := tt.clf.Predict(vector(t, 1e308, 1e308, 1e308, 1e308, 1e308))

			require.ErrorIs(t, err, classifier.ErrUnstablePrediction)
			assert.Equal(t, domain.Prediction{}, pred)
		})
	}
}

func TestPredict_Idempotent(t *testing.T) {
	c := trainedClassifier(t)
	v := vector(t, 14.2, 71, 1004, 6.5, 2.3)

	first, err := c.Predict(v)
	require.NoError(t, err)
	second, err := c.Predict(v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPredict_SchemaMismatch(t *testing.T) {
	c := trainedClassifier(t)
	enc, err := features.NewEncoder(features.Extended, clockwork.NewFakeClock())
	require.NoError(t, err)

	_, err = c.Predict(enc.Encode(domain.Observation{Temperature: 20}))

	assert.ErrorIs(t, err, classifier.ErrSchemaMismatch)
}

func TestLoad_RejectsOtherSchema(t *testing.T) {
	params := trainedClassifier(t).Params()
	c := classifier.New(features.Extended, nil)

	err := c.Load(params)

	require.ErrorIs(t, err, classifier.ErrSchemaMismatch)
	assert.False(t, c.Ready())
}

func TestRetrain_PredictionsNeverSeePartialParams(t *testing.T) {
	c := trainedClassifier(t)
	ds := loadDataset(t, separableCSV(15))
	v := vector(t, 3, 3, 1, 3, 3)

	done := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				pred, err := c.Predict(v)
				if !assert.NoError(t, err) {
					return
				}
				p := pred.Probabilities()
				assert.InDelta(t, 1.0, p[0]+p[1]+p[2]+p[3], 1e-5)
			}
		}()
	}

	_, err := c.Train(context.Background(), ds, classifier.TrainOptions{Seed: 99, Epochs: 20, OnEpoch: func(classifier.EpochLog) {}})
	close(done)
	wg.Wait()
	require.NoError(t, err)
}

func TestLoadOrTrain_UsesStoredSnapshot(t *testing.T) {
	stored := trainedClassifier(t).Params()
	store := &memStore{latest: stored}
	c := classifier.New(features.Minimal, nil)

	report, err := c.LoadOrTrain(context.Background(), store, func(context.Context) (*features.Dataset, error) {
		t.Fatal("dataset should not be read when a snapshot exists")
		return nil, nil
	}, classifier.TrainOptions{})

	require.NoError(t, err)
	assert.Nil(t, report)
	assert.Same(t, stored, c.Params())
	assert.Empty(t, store.saved)
}

func TestLoadOrTrain_TrainsAndSaves(t *testing.T) {
	store := &memStore{}
	c := classifier.New(features.Minimal, nil)
	source := func(context.Context) (*features.Dataset, error) { return loadDataset(t, separableCSV(5)), nil }

	report, err := c.LoadOrTrain(context.Background(), store, source, classifier.TrainOptions{Epochs: 3})

	require.NoError(t, err)
	require.NotNil(t, report)
	assert.True(t, c.Ready())
	require.Len(t, store.saved, 1)
	assert.Same(t, c.Params(), store.saved[0])
}

func TestLoadOrTrain_StoreErrorFallsBackToTraining(t *testing.T) {
	store := &memStore{err: errors.New("disk on fire")}
	c := classifier.New(features.Minimal, nil)
	source := func(context.Context) (*features.Dataset, error) { return loadDataset(t, separableCSV(5)), nil }

	_, err := c.LoadOrTrain(context.Background(), store, source, classifier.TrainOptions{Epochs: 2})

	require.NoError(t, err)
	assert.True(t, c.Ready())
}

func TestLoadOrTrain_SourceError(t *testing.T) {
	c := classifier.New(features.Minimal, nil)
	source := func(context.Context) (*features.Dataset, error) { return nil, features.ErrNoRows }

	_, err := c.LoadOrTrain(context.Background(), nil, source, classifier.TrainOptions{})

	require.ErrorIs(t, err, features.ErrNoRows)
	assert.False(t, c.Ready())
}

func TestParams_Validate(t *testing.T) {
	good := trainedClassifier(t).Params()
	require.NoError(t, good.Validate())
	assert.Equal(t, []int{5, 16, 8, 4}, good.Shape())

	broken := *good
	broken.Layers = append([]classifier.Layer(nil), good.Layers...)
	broken.Layers[1].Biases = broken.Layers[1].Biases[:3]
	assert.Error(t, broken.Validate())

	var nilParams *classifier.Params
	assert.Error(t, nilParams.Validate())
}
