package classifier

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// probClip bounds probabilities away from 0 and 1 inside the loss.
const probClip = 1e-7

// dense is a trainable layer: w is out×in, b has out entries.
type dense struct {
	w *mat.Dense
	b *mat.VecDense
}

// network is the mutable training-time form of Params.
type network struct {
	layers []dense
}

// newNetwork builds layers for sizes (input first) with Glorot-uniform
// kernels and zero biases.
func newNetwork(sizes []int, rng *rand.Rand) *network {
	n := &network{layers: make([]dense, 0, len(sizes)-1)}
	for i := 1; i < len(sizes); i++ {
		in, out := sizes[i-1], sizes[i]
		limit := math.Sqrt(6 / float64(in+out))
		data := make([]float64, out*in)
		for j := range data {
			data[j] = (rng.Float64()*2 - 1) * limit
		}
		n.layers = append(n.layers, dense{
			w: mat.NewDense(out, in, data),
			b: mat.NewVecDense(out, nil),
		})
	}
	return n
}

// pass holds the intermediate values of one forward pass for backprop.
type pass struct {
	inputs []*mat.Dense // input to each layer
	pre    []*mat.Dense // pre-activation of each hidden layer
	probs  *mat.Dense
}

// forward runs a batch (rows are samples) through the network.
func (n *network) forward(x *mat.Dense) *pass {
	p := &pass{}
	a := x
	rows, _ := x.Dims()
	for i, l := range n.layers {
		out, _ := l.w.Dims()
		z := mat.NewDense(rows, out, nil)
		z.Mul(a, l.w.T())
		bias := l.b.RawVector().Data
		z.Apply(func(_, c int, v float64) float64 { return v + bias[c] }, z)

		p.inputs = append(p.inputs, a)
		if i == len(n.layers)-1 {
			for r := range rows {
				row := z.RawRowView(r)
				softmax(row, row)
			}
			p.probs = z
			break
		}
		p.pre = append(p.pre, z)
		act := mat.NewDense(rows, out, nil)
		act.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
		a = act
	}
	return p
}

// gradients mirrors network: one weight and bias gradient per layer.
type gradients struct {
	w []*mat.Dense
	b [][]float64
}

// backward computes the mean cross-entropy gradient for the batch in p.
func (n *network) backward(p *pass, y *mat.Dense) gradients {
	rows, cols := p.probs.Dims()
	delta := mat.NewDense(rows, cols, nil)
	delta.Sub(p.probs, y)
	delta.Scale(1/float64(rows), delta)

	g := gradients{
		w: make([]*mat.Dense, len(n.layers)),
		b: make([][]float64, len(n.layers)),
	}
	for i := len(n.layers) - 1; i >= 0; i-- {
		l := n.layers[i]
		out, in := l.w.Dims()

		gw := mat.NewDense(out, in, nil)
		gw.Mul(delta.T(), p.inputs[i])
		g.w[i] = gw

		gb := make([]float64, out)
		for r := range rows {
			for c, v := range delta.RawRowView(r) {
				gb[c] += v
			}
		}
		g.b[i] = gb

		if i == 0 {
			break
		}
		next := mat.NewDense(rows, in, nil)
		next.Mul(delta, l.w)
		pre := p.pre[i-1]
		next.Apply(func(r, c int, v float64) float64 {
			if pre.At(r, c) <= 0 {
				return 0
			}
			return v
		}, next)
		delta = next
	}
	return g
}

// params snapshots the network into an immutable Params.
func (n *network) params() []Layer {
	layers := make([]Layer, len(n.layers))
	for i, l := range n.layers {
		out, in := l.w.Dims()
		w := make([]float64, 0, out*in)
		for r := range out {
			w = append(w, l.w.RawRowView(r)...)
		}
		layers[i] = Layer{
			In:      in,
			Out:     out,
			Weights: w,
			Biases:  append([]float64(nil), l.b.RawVector().Data...),
		}
	}
	return layers
}

// crossEntropy returns the summed (not averaged) loss and the number of
// correct argmax predictions for a batch.
func crossEntropy(probs, y *mat.Dense) (loss float64, correct int) {
	rows, _ := probs.Dims()
	for r := range rows {
		p := probs.RawRowView(r)
		t := y.RawRowView(r)
		for c := range p {
			if t[c] > 0 {
				loss -= t[c] * math.Log(math.Min(math.Max(p[c], probClip), 1-probClip))
			}
		}
		if argmax(p) == argmax(t) {
			correct++
		}
	}
	return loss, correct
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// adam holds first and second moment estimates for every parameter.
type adam struct {
	lr, beta1, beta2, eps float64
	step                  int
	mw, vw                [][]float64
	mb, vb                [][]float64
}

func newAdam(n *network, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, l := range n.layers {
		out, in := l.w.Dims()
		a.mw = append(a.mw, make([]float64, out*in))
		a.vw = append(a.vw, make([]float64, out*in))
		a.mb = append(a.mb, make([]float64, out))
		a.vb = append(a.vb, make([]float64, out))
	}
	return a
}

// apply takes one optimizer step on n using g.
func (a *adam) apply(n *network, g gradients) {
	a.step++
	t := float64(a.step)
	lrT := a.lr * math.Sqrt(1-math.Pow(a.beta2, t)) / (1 - math.Pow(a.beta1, t))

	for i, l := range n.layers {
		// Dense matrices from NewDense are contiguous, so Raw data lines up
		// with the moment slices.
		a.update(l.w.RawMatrix().Data, g.w[i].RawMatrix().Data, a.mw[i], a.vw[i], lrT)
		a.update(l.b.RawVector().Data, g.b[i], a.mb[i], a.vb[i], lrT)
	}
}

func (a *adam) update(param, grad, m, v []float64, lrT float64) {
	for j, gj := range grad {
		m[j] = a.beta1*m[j] + (1-a.beta1)*gj
		v[j] = a.beta2*v[j] + (1-a.beta2)*gj*gj
		param[j] -= lrT * m[j] / (math.Sqrt(v[j]) + a.eps)
	}
}
