package interaction

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Clipboard reads the active session's clipboard. Implemented by the browser
// layer; injected here so the extractor stays mechanism-agnostic.
type Clipboard interface {
	ReadText(ctx context.Context) (string, error)
}

// ClipboardExtractor selects the response area contents and copies them out
// through the clipboard: triple-click into the area, select all, copy, read.
type ClipboardExtractor struct {
	logger    *zap.Logger
	input     schemas.InputSynthesizer
	clipboard Clipboard
}

func NewClipboardExtractor(logger *zap.Logger, input schemas.InputSynthesizer, clipboard Clipboard) *ClipboardExtractor {
	return &ClipboardExtractor{
		logger:    logger.Named("clipboard_extractor"),
		input:     input,
		clipboard: clipboard,
	}
}

func (c *ClipboardExtractor) Extract(ctx context.Context, positions schemas.PositionSet, _ time.Duration) (string, error) {
	area, ok := positions[schemas.ElementResponseArea]
	if !ok {
		return "", &schemas.OrchestrationError{Op: "clipboard extraction requires a grounded response_area"}
	}

	// Three clicks selects the paragraph under the cursor and focuses the
	// area so the select-all applies to it.
	for i := 0; i < 3; i++ {
		if err := c.input.Click(ctx, area.CenterX, area.CenterY); err != nil {
			return "", &schemas.InteractionError{Step: "focus response area", Err: err}
		}
	}
	if err := c.input.Hotkey(ctx, "ctrl", "a"); err != nil {
		return "", &schemas.InteractionError{Step: "select response", Err: err}
	}
	if err := c.input.Hotkey(ctx, "ctrl", "c"); err != nil {
		return "", &schemas.InteractionError{Step: "copy response", Err: err}
	}

	text, err := c.clipboard.ReadText(ctx)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Capturer is the slice of the screen-capture surface the OCR extractor
// needs.
type Capturer interface {
	CaptureScreen(ctx context.Context) (*image.RGBA, error)
}

// OCRExtractor reads the response by OCRing the grounded response_area
// region of a fresh capture. Word boxes are reassembled into lines by
// vertical position.
type OCRExtractor struct {
	logger     *zap.Logger
	capturer   Capturer
	recognizer schemas.WordRecognizer
}

func NewOCRExtractor(logger *zap.Logger, capturer Capturer, recognizer schemas.WordRecognizer) *OCRExtractor {
	return &OCRExtractor{
		logger:     logger.Named("ocr_extractor"),
		capturer:   capturer,
		recognizer: recognizer,
	}
}

func (o *OCRExtractor) Extract(ctx context.Context, positions schemas.PositionSet, _ time.Duration) (string, error) {
	area, ok := positions[schemas.ElementResponseArea]
	if !ok {
		return "", &schemas.OrchestrationError{Op: "ocr extraction requires a grounded response_area"}
	}

	frame, err := o.capturer.CaptureScreen(ctx)
	if err != nil {
		return "", fmt.Errorf("capture for extraction: %w", err)
	}

	region := image.Rect(area.X, area.Y, area.X+area.Width, area.Y+area.Height).
		Intersect(frame.Bounds())
	if region.Empty() {
		return "", &schemas.DetectionError{Op: "response_area lies outside the captured frame"}
	}

	words, err := o.recognizer.RecognizeWords(ctx, frame.SubImage(region))
	if err != nil {
		return "", fmt.Errorf("ocr response area: %w", err)
	}
	return AssembleText(words), nil
}

// AssembleText orders OCR words into reading order: rows grouped by vertical
// overlap, words left to right within a row.
func AssembleText(words []schemas.Word) string {
	if len(words) == 0 {
		return ""
	}
	sorted := make([]schemas.Word, len(words))
	copy(sorted, words)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Box.Min.Y != sorted[j].Box.Min.Y {
			return sorted[i].Box.Min.Y < sorted[j].Box.Min.Y
		}
		return sorted[i].Box.Min.X < sorted[j].Box.Min.X
	})

	var sb strings.Builder
	lineBottom := sorted[0].Box.Max.Y
	var line []schemas.Word
	flush := func() {
		sort.Slice(line, func(i, j int) bool { return line[i].Box.Min.X < line[j].Box.Min.X })
		for i, w := range line {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.Text)
		}
		line = line[:0]
	}
	for _, w := range sorted {
		if w.Box.Min.Y >= lineBottom {
			flush()
			sb.WriteByte('\n')
			lineBottom = w.Box.Max.Y
		} else if w.Box.Max.Y > lineBottom {
			lineBottom = w.Box.Max.Y
		}
		line = append(line, w)
	}
	flush()
	return strings.TrimSpace(sb.String())
}
