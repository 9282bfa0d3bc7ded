// Package eval turns recognition output and ground-truth transcriptions into
// calibration observations and run statistics.
package eval

import (
	"strings"

	"github.com/inkwell-ocr/inkwell/internal/domain/calibration"
	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// Align compares recognized tokens against the ground-truth transcription and
// produces one observation per token.
//
// Tokens are matched by position against the whitespace-split ground truth:
// token i is correct when a ground-truth word exists at position i and equals
// the token text exactly (case-sensitive). Extra recognized tokens beyond the
// truth length count as incorrect.
func Align(tokens []model.Token, truth string) []calibration.Observation {
	words := strings.Fields(truth)
	obs := make([]calibration.Observation, len(tokens))
	for i, tok := range tokens {
		correct := i < len(words) && tok.Text == words[i]
		obs[i] = calibration.Observation{
			RawConfidence: tok.RawConfidence,
			Correct:       correct,
		}
	}
	return obs
}

// Score summarizes one recognized sample against its ground truth.
func Score(rec model.Recognition, sample model.Sample) model.SampleResult {
	return model.SampleResult{
		SampleID:   sample.ID,
		Text:       rec.Text,
		ExactMatch: rec.Text == sample.Truth,
		CharErrors: Levenshtein(rec.Text, sample.Truth),
		TruthLen:   len([]rune(sample.Truth)),
	}
}

// Levenshtein returns the character edit distance between two strings,
// operating on runes so multi-byte transcriptions are measured correctly.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Single-row dynamic program over the shorter string.
	if len(rb) < len(ra) {
		ra, rb = rb, ra
	}
	row := make([]int, len(ra)+1)
	for i := range row {
		row[i] = i
	}
	for j := 1; j <= len(rb); j++ {
		prev := row[0]
		row[0] = j
		for i := 1; i <= len(ra); i++ {
			ins := row[i-1] + 1
			del := row[i] + 1
			sub := prev
			if ra[i-1] != rb[j-1] {
				sub++
			}
			prev = row[i]
			row[i] = min(ins, del, sub)
		}
	}
	return row[len(ra)]
}

// CharErrorRate returns total character errors divided by total ground-truth
// length across results. Zero-length truths contribute nothing.
func CharErrorRate(results []model.SampleResult) float64 {
	var errs, length int
	for _, r := range results {
		errs += r.CharErrors
		length += r.TruthLen
	}
	if length == 0 {
		return 0
	}
	return float64(errs) / float64(length)
}
