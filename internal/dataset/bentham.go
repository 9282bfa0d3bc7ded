package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inkwell-ocr/inkwell/pkg/logger"
)

// ConversionReport summarizes a Bentham conversion.
type ConversionReport struct {
	Matched   int
	Unmatched []string
}

// ConvertBentham rewrites the Bentham collection rooted at benthamRoot
// into the IAM layout under outDir: a flat images/ directory with
// bentham_%06d names and a single gt.txt.
//
// Line images live under Images/Lines and transcriptions under
// Transcriptions, one .txt per line image. Filenames between the two
// trees do not always agree, so images are matched to transcriptions by
// stem with progressively looser strategies.
func ConvertBentham(ctx context.Context, benthamRoot, outDir string) (*ConversionReport, error) {
	linesDir := filepath.Join(benthamRoot, "Images", "Lines")
	transDir := filepath.Join(benthamRoot, "Transcriptions")

	for _, dir := range []string{linesDir, transDir} {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingInput, dir)
		}
	}

	images, err := listImages(linesDir)
	if err != nil {
		return nil, err
	}
	texts, err := listTranscriptions(transDir)
	if err != nil {
		return nil, err
	}

	log := logger.Get().Named("bentham")
	log.Info(ctx, "matching line images to transcriptions",
		logger.Int("images", len(images)),
		logger.Int("transcriptions", len(texts)),
	)

	imagesOut := filepath.Join(outDir, "images")
	if err := os.MkdirAll(imagesOut, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	gt, err := os.Create(filepath.Join(outDir, GroundTruthFile))
	if err != nil {
		return nil, fmt.Errorf("creating ground truth: %w", err)
	}
	defer gt.Close()

	report := &ConversionReport{}
	for _, img := range images {
		txt, ok := matchTranscription(stem(img), texts)
		if !ok {
			report.Unmatched = append(report.Unmatched, filepath.Base(img))
			continue
		}

		if _, err := InspectImage(img); err != nil {
			log.Warn(ctx, "skipping undecodable line image",
				logger.String("path", img),
				logger.Error(err),
			)
			report.Unmatched = append(report.Unmatched, filepath.Base(img))
			continue
		}

		content, err := os.ReadFile(txt)
		if err != nil {
			log.Warn(ctx, "skipping unreadable transcription",
				logger.String("path", txt),
				logger.Error(err),
			)
			report.Unmatched = append(report.Unmatched, filepath.Base(img))
			continue
		}
		truth := strings.TrimSpace(string(content))

		id := fmt.Sprintf("bentham_%06d", report.Matched)
		dst := filepath.Join(imagesOut, id+strings.ToLower(filepath.Ext(img)))
		if err := copyFile(img, dst); err != nil {
			return nil, fmt.Errorf("copying %s: %w", img, err)
		}
		if _, err := fmt.Fprintf(gt, "%s %s\n", id, truth); err != nil {
			return nil, fmt.Errorf("writing ground truth: %w", err)
		}
		report.Matched++
	}

	if report.Matched == 0 {
		return nil, ErrNoMatchedPairs
	}

	log.Info(ctx, "conversion complete",
		logger.Int("matched", report.Matched),
		logger.Int("unmatched", len(report.Unmatched)),
	)
	return report, nil
}

// listImages returns the line image paths under dir, sorted by name so
// assigned ids are stable across runs.
func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing images: %w", err)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp":
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}

// listTranscriptions maps transcription stems to their paths.
func listTranscriptions(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing transcriptions: %w", err)
	}

	texts := make(map[string]string, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		texts[stem(e.Name())] = filepath.Join(dir, e.Name())
	}
	return texts, nil
}

// matchTranscription finds the transcription for an image stem using
// three strategies, strictest first:
//  1. exact stem match
//  2. match after stripping "-line"/"_line"/".line" markers
//  3. containment or dash/underscore-normalized equality
func matchTranscription(imageStem string, texts map[string]string) (string, bool) {
	if path, ok := texts[imageStem]; ok {
		return path, true
	}

	cleanImage := stripLineMarker(imageStem)
	for textStem, path := range texts {
		if stripLineMarker(textStem) == cleanImage {
			return path, true
		}
	}

	normImage := strings.ReplaceAll(imageStem, "-", "_")
	for textStem, path := range texts {
		if strings.Contains(textStem, imageStem) || strings.Contains(imageStem, textStem) ||
			strings.ReplaceAll(textStem, "-", "_") == normImage {
			return path, true
		}
	}

	return "", false
}

func stripLineMarker(s string) string {
	for _, marker := range []string{"-line", "_line", ".line"} {
		s = strings.ReplaceAll(s, marker, "")
	}
	return s
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
