// Command evaluate checks a training CSV and reports how the classifier fits
// it: usable and skipped rows, class balance, per-epoch progress and a
// confusion matrix over the validation tail.
//
// Usage:
//
//	go run ./cmd/evaluate -data data/complete_disaster_data.csv -schema extended
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/couchcryptid/disaster-risk-service/internal/classifier"
	"github.com/couchcryptid/disaster-risk-service/internal/domain"
	"github.com/couchcryptid/disaster-risk-service/internal/features"
)

const maxSkippedShown = 10

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	data := flag.String("data", "data/complete_disaster_data.csv", "training CSV path")
	schemaName := flag.String("schema", "extended", "feature schema: extended or minimal")
	seed := flag.Uint64("seed", 42, "weight init and shuffle seed")
	epochs := flag.Int("epochs", 0, "override the schema's epoch count")
	flag.Parse()

	schema, err := features.SchemaByName(*schemaName)
	if err != nil {
		return err
	}
	enc, err := features.NewEncoder(schema, nil)
	if err != nil {
		return err
	}
	ds, err := features.LoadDataset(*data, enc)
	if errors.Is(err, features.ErrNoRows) {
		printDataset(os.Stdout, *data, ds)
		return fmt.Errorf("%s: %w", *data, err)
	}
	if err != nil {
		return err
	}
	printDataset(os.Stdout, *data, ds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_, report, err := classifier.Train(ctx, ds, classifier.TrainOptions{
		Seed:   *seed,
		Epochs: *epochs,
		OnEpoch: func(e classifier.EpochLog) {
			fmt.Printf("  epoch %3d  loss %.4f  acc %.4f  val_loss %.4f  val_acc %.4f\n",
				e.Epoch, e.Loss, e.Accuracy, e.ValLoss, e.ValAccuracy)
		},
	})
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	printReport(os.Stdout, report)
	return nil
}

// printDataset writes the integrity section. ds may be nil.
func printDataset(w io.Writer, path string, ds *features.Dataset) {
	fmt.Fprintln(w, "=== Disaster Dataset Evaluation ===")
	fmt.Fprintln(w)
	if ds == nil {
		fmt.Fprintf(w, "%s: no rows\n", path)
		return
	}
	fmt.Fprintf(w, "File:      %s\n", path)
	fmt.Fprintf(w, "Schema:    %s (%d features, fingerprint %s)\n", ds.Schema.Name, ds.Schema.Width(), ds.Schema.Fingerprint())
	fmt.Fprintf(w, "Rows:      %d usable, %d skipped\n", len(ds.Samples), len(ds.Skipped))
	fmt.Fprintf(w, "Fallbacks: %d defaulted or unrecognized fields\n", ds.Fallbacks)

	if len(ds.Skipped) > 0 {
		fmt.Fprintln(w, "\n--- Skipped rows ---")
		for i, s := range ds.Skipped {
			if i == maxSkippedShown {
				fmt.Fprintf(w, "  ... and %d more\n", len(ds.Skipped)-maxSkippedShown)
				break
			}
			fmt.Fprintf(w, "  line %d: %s\n", s.Line, s.Reason)
		}
	}

	fmt.Fprintln(w, "\n--- Class distribution ---")
	counts := ds.ClassCounts()
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	for i, c := range domain.Classes {
		share := 0.0
		if len(ds.Samples) > 0 {
			share = 100 * float64(counts[i]) / float64(len(ds.Samples))
		}
		fmt.Fprintf(tw, "  %s\t%d\t%.1f%%\t\n", c, counts[i], share)
	}
	tw.Flush() //nolint:errcheck // stdout
	fmt.Fprintln(w)
}

func printReport(w io.Writer, r *classifier.Report) {
	final := r.Final()
	fmt.Fprintln(w, "\n--- Training ---")
	fmt.Fprintf(w, "Shape:      %v\n", r.Shape)
	fmt.Fprintf(w, "Rows:       %d train, %d validation\n", r.TrainRows, r.ValidationRows)
	fmt.Fprintf(w, "Epochs:     %d in %s\n", len(r.Epochs), r.Duration.Round(1e6))
	fmt.Fprintf(w, "Train:      loss %.4f, accuracy %.4f\n", final.Loss, final.Accuracy)
	fmt.Fprintf(w, "Validation: loss %.4f, accuracy %.4f\n", final.ValLoss, final.ValAccuracy)

	if r.ValidationRows == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Validation confusion (rows actual, columns predicted) ---")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, c := range domain.Classes {
		fmt.Fprintf(tw, "%s\t", c)
	}
	fmt.Fprintln(tw)
	for i, actual := range domain.Classes {
		fmt.Fprintf(tw, "%s\t", actual)
		for j := range domain.Classes {
			fmt.Fprintf(tw, "%d\t", r.Confusion[i][j])
		}
		fmt.Fprintln(tw)
	}
	tw.Flush() //nolint:errcheck // stdout
}
