//go:build !tesseract

package recognizer

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// New returns the simulated engine used by the default build. It needs
// no native dependencies, so the service, demo, and tests run anywhere;
// build with -tags tesseract for real OCR.
func New(opts ...Option) Engine {
	return &simEngine{settings: newSettings(opts...)}
}

// lexicon supplies words for payloads that are not plain text.
var lexicon = []string{ //nolint:gochecknoglobals // fixed word list
	"the", "of", "and", "that", "said", "which", "being", "present",
	"witness", "whereof", "court", "letter", "hand", "year", "day",
	"society", "committee", "general", "person", "matter",
}

// simEngine is a deterministic stand-in for a trained recognizer. Given
// the same payload it always produces the same tokens and confidences.
//
// The engine is deliberately over-confident: a token with reported
// confidence c is correct with probability roughly c squared. Fitting a
// calibration mapping against its output therefore produces a visible
// downward correction, which is what the demo exercises.
type simEngine struct {
	settings settings
}

func (e *simEngine) Name() string { return "sim" }

func (e *simEngine) Recognize(ctx context.Context, image []byte) (model.Recognition, error) {
	if len(image) == 0 {
		return model.Recognition{}, ErrEmptyImage
	}

	payload := fnv64(image, uint64(e.settings.seed)) //nolint:gosec // hash input, not arithmetic

	latency := e.settings.minLatency +
		time.Duration(payload%uint64(e.settings.maxLatency-e.settings.minLatency)) //nolint:gosec // bounded by latency range
	select {
	case <-ctx.Done():
		return model.Recognition{}, fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-time.After(latency):
	}

	words := e.sourceWords(image, payload)

	tokens := make([]model.Token, 0, len(words))
	for i, word := range words {
		h := fnv64([]byte(word), payload+uint64(i)) //nolint:gosec // position salt

		// Raw confidence in [0.50, 0.94].
		raw := 0.50 + float64(h%45)/100.0

		// Emit the word correctly with probability raw squared.
		emitted := word
		if float64((h>>8)%1000) >= raw*raw*1000 {
			emitted = mangle(word)
		}

		tokens = append(tokens, model.Token{Text: emitted, RawConfidence: raw})
	}

	texts := make([]string, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.Text
	}

	return model.Recognition{
		Text:   strings.Join(texts, " "),
		Tokens: tokens,
	}, nil
}

// sourceWords extracts the words to emit. Plain-text payloads are split
// into their own words so evaluation runs exercise real alignments;
// binary payloads draw from the lexicon.
func (e *simEngine) sourceWords(image []byte, payload uint64) []string {
	if isPlainText(image) {
		return strings.Fields(string(image))
	}

	count := 3 + int(payload%6)
	words := make([]string, count)
	for i := range words {
		words[i] = lexicon[(payload+uint64(i)*31)%uint64(len(lexicon))] //nolint:gosec // index into fixed lexicon
	}
	return words
}

// mangle corrupts a word the way a misread does: the first two runes
// are swapped, or a trailing stroke is added to short words.
func mangle(word string) string {
	runes := []rune(word)
	if len(runes) < 2 {
		return word + "~"
	}
	runes[0], runes[1] = runes[1], runes[0]
	return string(runes)
}

// isPlainText reports whether the payload is printable UTF-8 rather
// than an encoded image.
func isPlainText(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if r == utf8.RuneError {
			return false
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func fnv64(b []byte, salt uint64) uint64 {
	h := fnv.New64a()
	var sb [8]byte
	for i := 0; i < 8; i++ {
		sb[i] = byte(salt >> (8 * i))
	}
	_, _ = h.Write(sb[:])
	_, _ = h.Write(b)
	return h.Sum64()
}
