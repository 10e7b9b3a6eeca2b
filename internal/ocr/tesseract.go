// Package ocr shells out to the tesseract binary for word-level recognition.
// It is the default WordRecognizer behind the text-match detection strategy.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Tesseract invokes the tesseract CLI in TSV mode over stdin/stdout.
type Tesseract struct {
	logger *zap.Logger
	// binary is the executable to run; defaults to "tesseract" on PATH.
	binary string
	// languages passed via -l; defaults to "eng".
	languages string

	runCommand func(ctx context.Context, stdin []byte, args ...string) ([]byte, error)
}

func New(logger *zap.Logger, binary string) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	t := &Tesseract{
		logger:    logger.Named("ocr"),
		binary:    binary,
		languages: "eng",
	}
	t.runCommand = t.execCommand
	return t
}

func (t *Tesseract) execCommand(ctx context.Context, stdin []byte, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, t.binary, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(errBuf.String()))
	}
	return out.Bytes(), nil
}

// RecognizeWords encodes the image as PNG, runs tesseract with TSV output,
// and returns one Word per recognized token.
func (t *Tesseract) RecognizeWords(ctx context.Context, img image.Image) ([]schemas.Word, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	// "stdin stdout" makes tesseract read the image from stdin and write
	// the TSV to stdout. PSM 11 finds sparse text in any orientation.
	out, err := t.runCommand(ctx, buf.Bytes(),
		"stdin", "stdout", "-l", t.languages, "--psm", "11", "tsv")
	if err != nil {
		return nil, err
	}

	words := ParseTSV(string(out))
	t.logger.Debug("OCR finished", zap.Int("words", len(words)))
	return words, nil
}

// ParseTSV extracts word-level rows (level 5) from tesseract TSV output.
// Malformed rows and empty tokens are skipped.
func ParseTSV(tsv string) []schemas.Word {
	var words []schemas.Word
	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 { // header
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 12 {
			continue
		}
		if fields[0] != "5" {
			continue
		}
		text := strings.TrimSpace(fields[11])
		if text == "" {
			continue
		}
		left, err1 := strconv.Atoi(fields[6])
		top, err2 := strconv.Atoi(fields[7])
		width, err3 := strconv.Atoi(fields[8])
		height, err4 := strconv.Atoi(fields[9])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			conf = 0
		}
		words = append(words, schemas.Word{
			Text:       text,
			Box:        image.Rect(left, top, left+width, top+height),
			Confidence: conf / 100,
		})
	}
	return words
}
