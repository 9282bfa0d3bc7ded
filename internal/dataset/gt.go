// Package dataset loads IAM-style ground truth files and converts the
// Bentham collection into the same layout.
//
// The ground truth format is one line per sample: the sample id, a single
// space, then the full transcription. Image files live in a sibling
// images/ directory and share the sample id as their basename.
package dataset

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
	"github.com/inkwell-ocr/inkwell/pkg/logger"
)

// GroundTruthFile is the canonical ground truth filename.
const GroundTruthFile = "gt.txt"

// imageExtensions lists the extensions probed when resolving a sample id
// to its image file.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"} //nolint:gochecknoglobals // fixed lookup table

// ParseGroundTruth reads gt.txt lines from r. Each well-formed line yields
// a sample with an empty ImagePath; callers resolve paths separately.
// Blank lines and lines without a transcription are skipped.
func ParseGroundTruth(ctx context.Context, r io.Reader) ([]model.Sample, error) {
	var samples []model.Sample

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		id, truth, ok := strings.Cut(line, " ")
		if !ok || strings.TrimSpace(truth) == "" {
			logger.Get().Warn(ctx, "skipping malformed ground truth line",
				logger.Int("line", lineNo),
			)
			continue
		}

		samples = append(samples, model.Sample{
			ID:    id,
			Truth: strings.TrimSpace(truth),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ground truth: %w", err)
	}

	return samples, nil
}

// Load reads gt.txt from dir and resolves each sample's image under
// dir/images. Samples whose image cannot be found are dropped with a
// warning so a partially populated dataset still loads.
func Load(ctx context.Context, dir string) ([]model.Sample, error) {
	f, err := os.Open(filepath.Join(dir, GroundTruthFile))
	if err != nil {
		return nil, fmt.Errorf("opening ground truth: %w", err)
	}
	defer f.Close()

	samples, err := ParseGroundTruth(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyDataset
	}

	imagesDir := filepath.Join(dir, "images")
	resolved := samples[:0]
	for _, s := range samples {
		path, ok := resolveImage(imagesDir, s.ID)
		if !ok {
			logger.Get().Warn(ctx, "no image for sample", logger.String("id", s.ID))
			continue
		}
		s.ImagePath = path
		resolved = append(resolved, s)
	}
	if len(resolved) == 0 {
		return nil, ErrEmptyDataset
	}

	return resolved, nil
}

// resolveImage probes the known image extensions for id under dir.
func resolveImage(dir, id string) (string, bool) {
	for _, ext := range imageExtensions {
		path := filepath.Join(dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

// WriteGroundTruth writes samples to w in gt.txt format.
func WriteGroundTruth(w io.Writer, samples []model.Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := fmt.Fprintf(bw, "%s %s\n", s.ID, s.Truth); err != nil {
			return fmt.Errorf("writing ground truth: %w", err)
		}
	}
	return bw.Flush()
}
