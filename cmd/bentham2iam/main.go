// Command bentham2iam converts a Bentham-layout dataset (Images/Lines +
// Transcriptions) into the flat images/ + gt.txt layout the service
// evaluates against, optionally splitting into train and validation sets.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/inkwell-ocr/inkwell/internal/dataset"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
)

func main() {
	var (
		benthamRoot = flag.String("bentham_root", "", "Root of the Bentham dataset (contains Images/Lines and Transcriptions)")
		outputDir   = flag.String("output_dir", "", "Destination directory for the converted dataset")
		createSplit = flag.Bool("create_split", false, "Also write gt_train.txt and gt_val.txt")
		trainRatio  = flag.Float64("train_ratio", dataset.DefaultTrainRatio, "Fraction of samples assigned to the training split")
		seed        = flag.Int64("seed", dataset.DefaultSplitSeed, "Shuffle seed for the split")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	if *benthamRoot == "" || *outputDir == "" {
		os.Stderr.WriteString("both -bentham_root and -output_dir are required\n")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(context.Background(), *benthamRoot, *outputDir, *createSplit, *trainRatio, *seed); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context, benthamRoot, outputDir string, createSplit bool, trainRatio float64, seed int64) error {
	report, err := dataset.ConvertBentham(ctx, benthamRoot, outputDir)
	if err != nil {
		return fmt.Errorf("conversion failed: %w", err)
	}

	fmt.Printf("converted %d line images\n", report.Matched)
	if len(report.Unmatched) > 0 {
		fmt.Printf("skipped %d images without transcriptions:\n", len(report.Unmatched))
		for _, name := range report.Unmatched {
			fmt.Printf("  %s\n", name)
		}
	}

	if !createSplit {
		return nil
	}

	samples, err := dataset.Load(ctx, outputDir)
	if err != nil {
		return fmt.Errorf("reload converted dataset: %w", err)
	}
	train, val, err := dataset.Split(samples, trainRatio, seed)
	if err != nil {
		return fmt.Errorf("split failed: %w", err)
	}

	if err := writeSplit(filepath.Join(outputDir, "gt_train.txt"), train); err != nil {
		return err
	}
	if err := writeSplit(filepath.Join(outputDir, "gt_val.txt"), val); err != nil {
		return err
	}
	fmt.Printf("split: %d train / %d val\n", len(train), len(val))
	return nil
}

func writeSplit(path string, samples []model.Sample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := dataset.WriteGroundTruth(f, samples); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
