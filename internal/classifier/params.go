package classifier

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
)

// Layer is one dense layer. Weights are Out×In, row-major.
type Layer struct {
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"`
	Biases  []float64 `json:"biases"`
}

// Params is a complete, immutable set of trained weights. Every layer but the
// last uses ReLU; the last uses softmax over domain.Classes.
type Params struct {
	Schema      string    `json:"schema"`
	Fingerprint string    `json:"fingerprint"`
	Layers      []Layer   `json:"layers"`
	TrainedAt   time.Time `json:"trained_at"`
	Rows        int       `json:"rows"`
}

// Validate checks that the layers chain together and end in the class layer.
func (p *Params) Validate() error {
	if p == nil {
		return errors.New("nil parameters")
	}
	if len(p.Layers) == 0 {
		return errors.New("parameters have no layers")
	}
	for i, l := range p.Layers {
		if l.In <= 0 || l.Out <= 0 {
			return fmt.Errorf("layer %d has invalid shape %dx%d", i, l.Out, l.In)
		}
		if len(l.Weights) != l.In*l.Out || len(l.Biases) != l.Out {
			return fmt.Errorf("layer %d: %d weights and %d biases for shape %dx%d",
				i, len(l.Weights), len(l.Biases), l.Out, l.In)
		}
		if i > 0 && p.Layers[i-1].Out != l.In {
			return fmt.Errorf("layer %d input %d does not match previous output %d", i, l.In, p.Layers[i-1].Out)
		}
		for _, w := range l.Weights {
			if math.IsNaN(w) || math.IsInf(w, 0) {
				return fmt.Errorf("layer %d has non-finite weights", i)
			}
		}
	}
	if last := p.Layers[len(p.Layers)-1]; last.Out != domain.NumClasses {
		return fmt.Errorf("output layer has %d units, want %d", last.Out, domain.NumClasses)
	}
	return nil
}

// Compatible reports whether p was trained for schema.
func (p *Params) Compatible(schema *features.Schema) error {
	if p.Fingerprint != schema.Fingerprint() || p.Layers[0].In != schema.Width() {
		return fmt.Errorf("%w: parameters for %s (%s), schema %s (%s)",
			ErrSchemaMismatch, p.Schema, p.Fingerprint, schema.Name, schema.Fingerprint())
	}
	return nil
}

// Shape returns the layer widths from input to output.
func (p *Params) Shape() []int {
	shape := []int{p.Layers[0].In}
	for _, l := range p.Layers {
		shape = append(shape, l.Out)
	}
	return shape
}

// forward evaluates the network on a single input. It only reads p, so
// concurrent callers are safe.
func (p *Params) forward(x []float64) [domain.NumClasses]float64 {
	a := mat.NewVecDense(len(x), append([]float64(nil), x...))
	for i, l := range p.Layers {
		w := mat.NewDense(l.Out, l.In, l.Weights)
		z := mat.NewVecDense(l.Out, nil)
		z.MulVec(w, a)
		z.AddVec(z, mat.NewVecDense(l.Out, l.Biases))
		if i < len(p.Layers)-1 {
			for j := range l.Out {
				z.SetVec(j, math.Max(0, z.AtVec(j)))
			}
		}
		a = z
	}

	var out [domain.NumClasses]float64
	softmax(a.RawVector().Data, out[:])
	return out
}

// softmax writes the normalized exponentials of z into dst.
func softmax(z, dst []float64) {
	maxZ := math.Inf(-1)
	for _, v := range z {
		maxZ = math.Max(maxZ, v)
	}
	var sum float64
	for i, v := range z {
		dst[i] = math.Exp(v - maxZ)
		sum += dst[i]
	}
	for i := range dst {
		dst[i] /= sum
	}
}
