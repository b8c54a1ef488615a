package features

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

// Kind distinguishes numeric pass-through fields from categorical lookups.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Categorical {
		return "categorical"
	}
	return "numeric"
}

// UrbanElevationThreshold is the elevation in metres below which a place with
// no explicit urban/rural context is treated as urban.
const UrbanElevationThreshold = 300

// FieldSpec describes one position of a FeatureVector: where its value comes
// from in an Observation and what to use when the value is absent.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Category *Category // Categorical only

	// numeric returns the raw value and whether it was present.
	numeric func(o domain.Observation) (float64, bool)
	// fallback supplies the value for an absent numeric field. Nil means the
	// field is required and always present.
	fallback func(o domain.Observation, now time.Time) float64

	// categorical returns the raw string; empty means absent.
	categorical func(o domain.Observation) string
	// defaultValue names the category used when the field is absent.
	defaultValue func(o domain.Observation) string
}

// Required reports whether the field must always be supplied.
func (f FieldSpec) Required() bool {
	return f.Kind == Numeric && f.fallback == nil
}

// column binds a CSV header name to an Observation setter.
type column struct {
	name string
	set  func(o *domain.Observation, raw string) error
}

// Architecture is the network shape and training schedule paired with a schema.
type Architecture struct {
	Hidden          []int
	Epochs          int
	BatchSize       int
	ValidationSplit float64
}

// Schema is an ordered feature layout plus everything needed to read
// training rows for it. Field order is the classifier's training contract.
type Schema struct {
	Name         string
	Fields       []FieldSpec
	LabelColumn  string
	Aliases      map[string]domain.ClassLabel
	Architecture Architecture

	columns []column
}

// Width is the FeatureVector length.
func (s *Schema) Width() int { return len(s.Fields) }

// FieldNames returns the field names in vector order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Columns returns the CSV header names the schema reads, label column included.
func (s *Schema) Columns() []string {
	names := make([]string, 0, len(s.columns)+1)
	for _, c := range s.columns {
		names = append(names, c.name)
	}
	return append(names, s.LabelColumn)
}

// Fingerprint identifies the exact field order. Parameters trained under one
// fingerprint must not be used with vectors of another.
func (s *Schema) Fingerprint() string {
	sum := sha256.Sum256([]byte(s.Name + "|" + strings.Join(s.FieldNames(), ",")))
	return hex.EncodeToString(sum[:8])
}

// SchemaByName resolves "minimal" or "extended".
func SchemaByName(name string) (*Schema, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Minimal.Name:
		return Minimal, nil
	case Extended.Name:
		return Extended, nil
	default:
		return nil, fmt.Errorf("unknown schema %q", name)
	}
}

func required(name string, get func(o domain.Observation) float64) FieldSpec {
	return FieldSpec{
		Name:    name,
		Kind:    Numeric,
		numeric: func(o domain.Observation) (float64, bool) { return get(o), true },
	}
}

func optionalFloat(name string, get func(o domain.Observation) *float64, fallback func(o domain.Observation, now time.Time) float64) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: Numeric,
		numeric: func(o domain.Observation) (float64, bool) {
			if p := get(o); p != nil {
				return *p, true
			}
			return 0, false
		},
		fallback: fallback,
	}
}

func optionalInt(name string, get func(o domain.Observation) *int, fallback func(o domain.Observation, now time.Time) float64) FieldSpec {
	return FieldSpec{
		Name: name,
		Kind: Numeric,
		numeric: func(o domain.Observation) (float64, bool) {
			if p := get(o); p != nil {
				return float64(*p), true
			}
			return 0, false
		},
		fallback: fallback,
	}
}

func categorical(cat *Category, get func(o domain.Observation) string, def func(o domain.Observation) string) FieldSpec {
	return FieldSpec{
		Name:         cat.Name,
		Kind:         Categorical,
		Category:     cat,
		categorical:  get,
		defaultValue: def,
	}
}

func constant(v float64) func(domain.Observation, time.Time) float64 {
	return func(domain.Observation, time.Time) float64 { return v }
}

func constantCategory(v string) func(domain.Observation) string {
	return func(domain.Observation) string { return v }
}

// urbanFromElevation treats low-lying places as urban. An unknown elevation
// is never low-lying, so it derives rural.
func urbanFromElevation(o domain.Observation) string {
	if o.Elevation != nil && *o.Elevation < UrbanElevationThreshold {
		return "urban"
	}
	return "rural"
}

var weatherFields = []FieldSpec{
	required("temp", func(o domain.Observation) float64 { return o.Temperature }),
	required("humidity", func(o domain.Observation) float64 { return o.Humidity }),
	required("pressure", func(o domain.Observation) float64 { return o.Pressure }),
	required("wind_speed", func(o domain.Observation) float64 { return o.WindSpeed }),
	required("rain_1h", func(o domain.Observation) float64 { return o.Rain1h }),
}

var weatherColumns = []column{
	{"temp", floatColumn(func(o *domain.Observation, v float64) { o.Temperature = v })},
	{"humidity", floatColumn(func(o *domain.Observation, v float64) { o.Humidity = v })},
	{"pressure", floatColumn(func(o *domain.Observation, v float64) { o.Pressure = v })},
	{"wind_speed", floatColumn(func(o *domain.Observation, v float64) { o.WindSpeed = v })},
	{"rain_1h", floatColumn(func(o *domain.Observation, v float64) { o.Rain1h = v })},
}

// Minimal is the 5-feature weather-only layout.
var Minimal = &Schema{
	Name:        "minimal",
	Fields:      weatherFields,
	LabelColumn: "disaster_type",
	Aliases: map[string]domain.ClassLabel{
		"flood":    domain.ClassFlood,
		"wildfire": domain.ClassWildfire,
		"storm":    domain.ClassStorm,
	},
	Architecture: Architecture{Hidden: []int{16, 8}, Epochs: 100, BatchSize: 4, ValidationSplit: 0.2},
	columns:      weatherColumns,
}

// Extended is the 15-feature layout adding location, time and land context.
var Extended = &Schema{
	Name: "extended",
	Fields: append(append([]FieldSpec{}, weatherFields...),
		optionalFloat("latitude", func(o domain.Observation) *float64 { return o.Latitude }, constant(0)),
		optionalFloat("longitude", func(o domain.Observation) *float64 { return o.Longitude }, constant(0)),
		optionalFloat("elevation", func(o domain.Observation) *float64 { return o.Elevation }, constant(0)),
		optionalInt("month", func(o domain.Observation) *int { return o.Month },
			func(_ domain.Observation, now time.Time) float64 { return float64(now.Month()) }),
		optionalInt("hour", func(o domain.Observation) *int { return o.Hour },
			func(_ domain.Observation, now time.Time) float64 { return float64(now.Hour()) }),
		categorical(&Vegetation, func(o domain.Observation) string { return o.Vegetation }, constantCategory("forest")),
		categorical(&SoilType, func(o domain.Observation) string { return o.SoilType }, constantCategory("loam")),
		optionalFloat("soil_moisture", func(o domain.Observation) *float64 { return o.SoilMoisture }, constant(50)),
		categorical(&UrbanRural, func(o domain.Observation) string { return o.UrbanRural }, urbanFromElevation),
		categorical(&OceanCurrent, func(o domain.Observation) string { return o.OceanCurrent }, constantCategory("normal")),
	),
	LabelColumn: "disaster_type",
	Aliases: map[string]domain.ClassLabel{
		"flood":       domain.ClassFlood,
		"urban_flood": domain.ClassFlood,
		"wildfire":    domain.ClassWildfire,
		"heatwave":    domain.ClassWildfire,
		"storm":       domain.ClassStorm,
		"wind_damage": domain.ClassStorm,
	},
	Architecture: Architecture{Hidden: []int{32, 24, 16}, Epochs: 10, BatchSize: 32, ValidationSplit: 0.2},
	columns: append(append([]column{}, weatherColumns...),
		column{"latitude", floatColumn(func(o *domain.Observation, v float64) { o.Latitude = domain.Float(v) })},
		column{"longitude", floatColumn(func(o *domain.Observation, v float64) { o.Longitude = domain.Float(v) })},
		column{"elevation", floatColumn(func(o *domain.Observation, v float64) { o.Elevation = domain.Float(v) })},
		column{"month", intColumn(func(o *domain.Observation, v int) { o.Month = domain.Int(v) })},
		column{"hour", intColumn(func(o *domain.Observation, v int) { o.Hour = domain.Int(v) })},
		column{"vegetation", stringColumn(func(o *domain.Observation, v string) { o.Vegetation = v })},
		column{"soil_type", stringColumn(func(o *domain.Observation, v string) { o.SoilType = v })},
		column{"soil_moisture", floatColumn(func(o *domain.Observation, v float64) { o.SoilMoisture = domain.Float(v) })},
		column{"urban_rural", stringColumn(func(o *domain.Observation, v string) { o.UrbanRural = v })},
		column{"ocean_current", stringColumn(func(o *domain.Observation, v string) { o.OceanCurrent = v })},
	),
}

func floatColumn(set func(o *domain.Observation, v float64)) func(*domain.Observation, string) error {
	return func(o *domain.Observation, raw string) error {
		v, err := parseNumber(raw)
		if err != nil {
			return err
		}
		set(o, v)
		return nil
	}
}

func intColumn(set func(o *domain.Observation, v int)) func(*domain.Observation, string) error {
	return func(o *domain.Observation, raw string) error {
		v, err := parseNumber(raw)
		if err != nil {
			return err
		}
		set(o, int(v))
		return nil
	}
}

func stringColumn(set func(o *domain.Observation, v string)) func(*domain.Observation, string) error {
	return func(o *domain.Observation, raw string) error {
		set(o, strings.TrimSpace(raw))
		return nil
	}
}

// maxMagnitude bounds training values well below where the network overflows.
const maxMagnitude = 1e9

// parseNumber accepts finite decimal numbers of bounded magnitude only.
func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not finite: %q", raw)
	}
	if math.Abs(v) > maxMagnitude {
		return 0, fmt.Errorf("out of range: %q", raw)
	}
	return v, nil
}
