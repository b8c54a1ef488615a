package classifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
)

// DefaultLearningRate is the Adam step size.
const DefaultLearningRate = 0.001

// EpochLog is the progress line reported after each epoch. Validation values
// are informational only; they never select or stop training.
type EpochLog struct {
	Epoch       int     `json:"epoch"`
	Loss        float64 `json:"loss"`
	Accuracy    float64 `json:"accuracy"`
	ValLoss     float64 `json:"val_loss"`
	ValAccuracy float64 `json:"val_accuracy"`
}

// TrainOptions tunes a training run. Zero values take the schema's
// architecture and DefaultLearningRate.
type TrainOptions struct {
	Seed         uint64
	Epochs       int
	BatchSize    int
	LearningRate float64
	// OnEpoch, if set, is called synchronously after each epoch.
	OnEpoch func(EpochLog)
	// Now stamps Params.TrainedAt; defaults to time.Now.
	Now func() time.Time
}

// Report summarizes a training run.
type Report struct {
	Schema         string                                    `json:"schema"`
	Shape          []int                                     `json:"shape"`
	TrainRows      int                                       `json:"train_rows"`
	ValidationRows int                                       `json:"validation_rows"`
	SkippedRows    int                                       `json:"skipped_rows"`
	Epochs         []EpochLog                                `json:"epochs"`
	Confusion      [domain.NumClasses][domain.NumClasses]int `json:"confusion"`
	Duration       time.Duration                             `json:"duration_ns"`
}

// Final returns the last epoch's log.
func (r *Report) Final() EpochLog {
	if len(r.Epochs) == 0 {
		return EpochLog{}
	}
	return r.Epochs[len(r.Epochs)-1]
}

// Train fits a fresh network to ds and returns its parameters. The last
// ValidationSplit fraction of rows, in file order, is held out for progress
// reporting; the remaining rows are reshuffled every epoch. The final epoch's
// parameters are always returned. Training checks ctx between epochs.
func Train(ctx context.Context, ds *features.Dataset, opts TrainOptions) (*Params, *Report, error) {
	if ds == nil || len(ds.Samples) == 0 {
		return nil, nil, features.ErrNoRows
	}
	arch := ds.Schema.Architecture
	epochs := firstPositive(opts.Epochs, arch.Epochs)
	batchSize := firstPositive(opts.BatchSize, arch.BatchSize)
	lr := opts.LearningRate
	if lr <= 0 {
		lr = DefaultLearningRate
	}
	if epochs <= 0 || batchSize <= 0 {
		return nil, nil, errors.New("epochs and batch size must be positive")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	start := time.Now()
	width := ds.Schema.Width()
	x, y := ds.Matrix()
	total := len(ds.Samples)

	trainRows := int(float64(total) * (1 - arch.ValidationSplit))
	if trainRows <= 0 || trainRows > total {
		trainRows = total
	}
	valRows := total - trainRows

	sizes := append([]int{width}, arch.Hidden...)
	sizes = append(sizes, domain.NumClasses)

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // reproducible init, not security
	net := newNetwork(sizes, rng)
	opt := newAdam(net, lr)

	var valX, valY *mat.Dense
	if valRows > 0 {
		valX = mat.NewDense(valRows, width, x[trainRows*width:])
		valY = mat.NewDense(valRows, domain.NumClasses, y[trainRows*domain.NumClasses:])
	}

	order := make([]int, trainRows)
	for i := range order {
		order[i] = i
	}

	report := &Report{
		Schema:         ds.Schema.Name,
		Shape:          sizes,
		TrainRows:      trainRows,
		ValidationRows: valRows,
		SkippedRows:    len(ds.Skipped),
	}

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("train epoch %d: %w", epoch, err)
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var loss float64
		var correct int
		for lo := 0; lo < trainRows; lo += batchSize {
			hi := min(lo+batchSize, trainRows)
			bx, by := gather(x, y, order[lo:hi], width)
			p := net.forward(bx)
			l, c := crossEntropy(p.probs, by)
			loss += l
			correct += c
			opt.apply(net, net.backward(p, by))
		}

		entry := EpochLog{
			Epoch:    epoch,
			Loss:     loss / float64(trainRows),
			Accuracy: float64(correct) / float64(trainRows),
		}
		if valRows > 0 {
			vl, vc := crossEntropy(net.forward(valX).probs, valY)
			entry.ValLoss = vl / float64(valRows)
			entry.ValAccuracy = float64(vc) / float64(valRows)
		}
		report.Epochs = append(report.Epochs, entry)
		if opts.OnEpoch != nil {
			opts.OnEpoch(entry)
		}
	}

	if valRows > 0 {
		probs := net.forward(valX).probs
		for r := range valRows {
			report.Confusion[argmax(valY.RawRowView(r))][argmax(probs.RawRowView(r))]++
		}
	}
	report.Duration = time.Since(start)

	params := &Params{
		Schema:      ds.Schema.Name,
		Fingerprint: ds.Schema.Fingerprint(),
		Layers:      net.params(),
		TrainedAt:   now().UTC(),
		Rows:        total,
	}
	if err := params.Validate(); err != nil {
		return nil, nil, fmt.Errorf("train: %w", err)
	}
	return params, report, nil
}

// gather copies the rows named by idx into fresh batch matrices.
func gather(x, y []float64, idx []int, width int) (*mat.Dense, *mat.Dense) {
	bx := make([]float64, 0, len(idx)*width)
	by := make([]float64, 0, len(idx)*domain.NumClasses)
	for _, i := range idx {
		bx = append(bx, x[i*width:(i+1)*width]...)
		by = append(by, y[i*domain.NumClasses:(i+1)*domain.NumClasses]...)
	}
	return mat.NewDense(len(idx), width, bx), mat.NewDense(len(idx), domain.NumClasses, by)
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
