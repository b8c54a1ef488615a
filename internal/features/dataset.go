package features

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
)

// ErrNoRows is returned when a dataset yields no usable training rows.
var ErrNoRows = errors.New("dataset has no usable rows")

// Sample is one encoded training row.
type Sample struct {
	Line     int
	Features FeatureVector
	Label    domain.OneHot
}

// SkippedRow records a malformed row that was left out of the dataset.
type SkippedRow struct {
	Line   int
	Reason string
}

// Dataset is the parsed, encoded form of a labelled CSV file.
type Dataset struct {
	Schema    *Schema
	Samples   []Sample
	Skipped   []SkippedRow
	Fallbacks int
}

// ClassCounts returns how many samples carry each class, in domain.Classes order.
func (d *Dataset) ClassCounts() [domain.NumClasses]int {
	var counts [domain.NumClasses]int
	for _, s := range d.Samples {
		counts[s.Label.Label().Index()]++
	}
	return counts
}

// Matrix flattens features and targets into row-major slices.
func (d *Dataset) Matrix() (x []float64, y []float64) {
	width := d.Schema.Width()
	x = make([]float64, 0, len(d.Samples)*width)
	y = make([]float64, 0, len(d.Samples)*domain.NumClasses)
	for _, s := range d.Samples {
		x = append(x, s.Features.values...)
		y = append(y, s.Label[:]...)
	}
	return x, y
}

// LoadDataset opens path and parses it with ParseDataset.
func LoadDataset(path string, enc *Encoder) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	ds, err := ParseDataset(f, enc)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return ds, nil
}

// ParseDataset reads a headered CSV and encodes every well-formed row with
// enc. Columns are matched by header name, so extra columns are ignored and
// a minimal schema can read an extended file. Blank lines are dropped
// silently; malformed rows are recorded in Skipped.
func ParseDataset(r io.Reader, enc *Encoder) (*Dataset, error) {
	schema := enc.Schema()
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[normalize(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	type binding struct {
		col column
		pos int
	}
	bindings := make([]binding, 0, len(schema.columns))
	for _, c := range schema.columns {
		pos, ok := positions[c.name]
		if !ok {
			return nil, fmt.Errorf("header is missing column %q", c.name)
		}
		bindings = append(bindings, binding{col: c, pos: pos})
	}
	labelPos, ok := positions[schema.LabelColumn]
	if !ok {
		return nil, fmt.Errorf("header is missing column %q", schema.LabelColumn)
	}

	labels := NewLabelEncoder(schema)
	ds := &Dataset{Schema: schema}

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				ds.Skipped = append(ds.Skipped, SkippedRow{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
				continue
			}
			return nil, fmt.Errorf("read row: %w", err)
		}
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)

		var obs domain.Observation
		var rowErr error
		for _, b := range bindings {
			if b.pos >= len(record) {
				rowErr = fmt.Errorf("missing %s", b.col.name)
				break
			}
			if err := b.col.set(&obs, record[b.pos]); err != nil {
				rowErr = fmt.Errorf("%s: %w", b.col.name, err)
				break
			}
		}
		if rowErr == nil && labelPos >= len(record) {
			rowErr = fmt.Errorf("missing %s", schema.LabelColumn)
		}
		if rowErr != nil {
			ds.Skipped = append(ds.Skipped, SkippedRow{Line: line, Reason: rowErr.Error()})
			continue
		}

		vec, fallbacks := enc.EncodeWithFallbacks(obs)
		ds.Fallbacks += len(fallbacks)
		ds.Samples = append(ds.Samples, Sample{
			Line:     line,
			Features: vec,
			Label:    labels.Encode(record[labelPos]),
		})
	}

	if len(ds.Samples) == 0 {
		return ds, ErrNoRows
	}
	return ds, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
