package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func snapshot(schema, fingerprint string, bias float64) *classifier.Params {
	return &classifier.Params{
		Schema:      schema,
		Fingerprint: fingerprint,
		Layers: []classifier.Layer{
			{In: 2, Out: 4, Weights: []float64{1, 2, 3, 4, 5, 6, 7, 8}, Biases: []float64{bias, 0, 0, 0}},
		},
		TrainedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Rows:      120,
	}
}

func TestStore_LatestEmpty(t *testing.T) {
	s, _ := openTestStore(t)

	_, err := s.Latest(context.Background(), "extended", "abc")
	assert.ErrorIs(t, err, classifier.ErrNoSnapshot)
}

func TestStore_SaveAndLatest(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, snapshot("extended", "abc", 0.1)))
	require.NoError(t, s.Save(ctx, snapshot("extended", "abc", 0.2)))

	got, err := s.Latest(ctx, "extended", "abc")
	require.NoError(t, err)
	assert.Equal(t, snapshot("extended", "abc", 0.2), got)
}

func TestStore_FingerprintMustMatch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, snapshot("extended", "old-order", 0.1)))

	_, err := s.Latest(ctx, "extended", "new-order")
	assert.ErrorIs(t, err, classifier.ErrNoSnapshot)
}

func TestStore_PrunesOldSnapshots(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for i := range keepSnapshots + 3 {
		require.NoError(t, s.Save(ctx, snapshot("minimal", "f", float64(i))))
	}
	require.NoError(t, s.Save(ctx, snapshot("extended", "g", 0)))

	n, err := s.Count(ctx, "minimal")
	require.NoError(t, err)
	assert.Equal(t, keepSnapshots, n)

	n, err = s.Count(ctx, "extended")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	latest, err := s.Latest(ctx, "minimal", "f")
	require.NoError(t, err)
	assert.InDelta(t, float64(keepSnapshots+2), latest.Layers[0].Biases[0], 0)
}

func TestStore_SurvivesReopen(t *testing.T) {
	s, path := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, snapshot("extended", "abc", 0.5)))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Latest(ctx, "extended", "abc")
	require.NoError(t, err)
	assert.Equal(t, 120, got.Rows)
}
