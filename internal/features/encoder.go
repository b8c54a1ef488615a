package features

import (
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

// FallbackReason says why a field was filled in rather than encoded from input.
type FallbackReason string

const (
	ReasonMissing      FallbackReason = "missing"
	ReasonUnrecognized FallbackReason = "unrecognized"
)

// Fallback records a field whose value was substituted during encoding.
// Encoding never fails on bad inputs; it reports them here instead.
type Fallback struct {
	Field  string         `json:"field"`
	Raw    string         `json:"raw,omitempty"`
	Reason FallbackReason `json:"reason"`
	Value  float64        `json:"value"`
}

// FeatureVector is an immutable, schema-tagged row of numeric features.
type FeatureVector struct {
	schema      string
	fingerprint string
	values      []float64
}

// NewFeatureVector wraps pre-encoded values for schema. The slice is copied.
func NewFeatureVector(schema *Schema, values []float64) (FeatureVector, error) {
	if len(values) != schema.Width() {
		return FeatureVector{}, fmt.Errorf("feature vector for %s schema needs %d values, got %d",
			schema.Name, schema.Width(), len(values))
	}
	return FeatureVector{
		schema:      schema.Name,
		fingerprint: schema.Fingerprint(),
		values:      append([]float64(nil), values...),
	}, nil
}

func (v FeatureVector) Schema() string      { return v.schema }
func (v FeatureVector) Fingerprint() string { return v.fingerprint }
func (v FeatureVector) Len() int            { return len(v.values) }
func (v FeatureVector) At(i int) float64    { return v.values[i] }

// Values returns a copy of the underlying features.
func (v FeatureVector) Values() []float64 {
	return append([]float64(nil), v.values...)
}

// IsZero reports whether v was never built.
func (v FeatureVector) IsZero() bool { return v.fingerprint == "" }

// ErrNilSchema is returned by NewEncoder when no schema is given.
var ErrNilSchema = errors.New("features: nil schema")

// Encoder turns Observations into FeatureVectors for one schema. Month and
// hour defaults come from the clock so tests can pin them.
type Encoder struct {
	schema *Schema
	clock  clockwork.Clock
}

// NewEncoder creates an Encoder. A nil clock uses the real clock.
func NewEncoder(schema *Schema, clock clockwork.Clock) (*Encoder, error) {
	if schema == nil {
		return nil, ErrNilSchema
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Encoder{schema: schema, clock: clock}, nil
}

// Schema returns the layout this encoder produces.
func (e *Encoder) Schema() *Schema { return e.schema }

// Encode produces the feature vector for o. It is total: every absent or
// unrecognized field resolves to its documented default.
func (e *Encoder) Encode(o domain.Observation) FeatureVector {
	v, _ := e.EncodeWithFallbacks(o)
	return v
}

// EncodeWithFallbacks is Encode plus a record of every substituted field.
func (e *Encoder) EncodeWithFallbacks(o domain.Observation) (FeatureVector, []Fallback) {
	now := e.clock.Now()
	values := make([]float64, len(e.schema.Fields))
	var fallbacks []Fallback

	for i, f := range e.schema.Fields {
		switch f.Kind {
		case Numeric:
			if v, ok := f.numeric(o); ok {
				values[i] = v
				continue
			}
			values[i] = f.fallback(o, now)
			fallbacks = append(fallbacks, Fallback{Field: f.Name, Reason: ReasonMissing, Value: values[i]})
		case Categorical:
			raw := f.categorical(o)
			if normalize(raw) == "" {
				idx, _ := f.Category.Lookup(f.defaultValue(o))
				values[i] = float64(idx)
				fallbacks = append(fallbacks, Fallback{Field: f.Name, Reason: ReasonMissing, Value: values[i]})
				continue
			}
			idx, known := f.Category.Lookup(raw)
			values[i] = float64(idx)
			if !known {
				fallbacks = append(fallbacks, Fallback{Field: f.Name, Raw: raw, Reason: ReasonUnrecognized, Value: values[i]})
			}
		}
	}

	return FeatureVector{
		schema:      e.schema.Name,
		fingerprint: e.schema.Fingerprint(),
		values:      values,
	}, fallbacks
}
