//go:build tesseract

package recognizer

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/inkwell-ocr/inkwell/internal/domain/model"
)

// New returns the Tesseract-backed engine. Requires libtesseract at
// build and run time.
func New(opts ...Option) Engine {
	return &tesseractEngine{
		settings:      newSettings(opts...),
		clientFactory: gosseract.NewClient,
	}
}

// tesseractEngine implements Engine using the gosseract client. A fresh
// client is created per call; gosseract clients are not safe for
// concurrent use.
type tesseractEngine struct {
	settings      settings
	clientFactory func() *gosseract.Client
}

func (e *tesseractEngine) Name() string { return "tesseract" }

func (e *tesseractEngine) Recognize(ctx context.Context, image []byte) (model.Recognition, error) {
	if len(image) == 0 {
		return model.Recognition{}, ErrEmptyImage
	}
	select {
	case <-ctx.Done():
		return model.Recognition{}, ctx.Err()
	default:
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return model.Recognition{}, fmt.Errorf("%w: set image: %v", ErrEngine, err)
	}
	if err := c.SetLanguage(e.settings.languages...); err != nil {
		return model.Recognition{}, fmt.Errorf("%w: set languages: %v", ErrEngine, err)
	}

	text, err := c.Text()
	if err != nil {
		return model.Recognition{}, fmt.Errorf("%w: recognize text: %v", ErrEngine, err)
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return model.Recognition{}, fmt.Errorf("%w: word boxes: %v", ErrEngine, err)
	}

	tokens := make([]model.Token, 0, len(boxes))
	for _, b := range boxes {
		word := strings.TrimSpace(b.Word)
		if word == "" {
			continue
		}
		// Tesseract reports word confidence in [0,100].
		conf := b.Confidence / 100.0
		if conf < 0 {
			conf = 0
		} else if conf > 1 {
			conf = 1
		}
		tokens = append(tokens, model.Token{Text: word, RawConfidence: conf})
	}

	return model.Recognition{
		Text:   strings.TrimSpace(text),
		Tokens: tokens,
	}, nil
}
