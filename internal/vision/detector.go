package vision

import (
	"context"
	"fmt"
	"image"
	_ "image/png" // template decoding
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
)

// Detector locates UI elements in a captured frame. It is stateless apart
// from the template cache, which is populated once per template path and safe
// for concurrent readers.
type Detector struct {
	logger *zap.Logger
	ocr    schemas.WordRecognizer

	// Defaults applied when an element config leaves a threshold unset.
	templateThreshold float64
	textSimilarity    float64

	mu        sync.RWMutex
	templates map[string]*image.Gray
}

// NewDetector builds a detector. The word recognizer may be nil, in which
// case the text strategy reports a detection error.
func NewDetector(logger *zap.Logger, ocr schemas.WordRecognizer, templateThreshold, textSimilarity float64) *Detector {
	if templateThreshold <= 0 {
		templateThreshold = 0.8
	}
	if textSimilarity <= 0 {
		textSimilarity = 0.7
	}
	return &Detector{
		logger:            logger.Named("detector"),
		ocr:               ocr,
		templateThreshold: templateThreshold,
		textSimilarity:    textSimilarity,
		templates:         make(map[string]*image.Gray),
	}
}

// Detect runs the strategy named by the config and returns the best candidate
// region, or nil when nothing qualifies.
func (d *Detector) Detect(ctx context.Context, img image.Image, cfg schemas.ElementConfig) (*schemas.DetectedElement, error) {
	switch cfg.Method {
	case schemas.DetectByContour:
		return d.detectByContour(img, cfg)
	case schemas.DetectByTemplate:
		return d.detectByTemplate(img, cfg)
	case schemas.DetectByText:
		return d.detectByText(ctx, img, cfg)
	default:
		return nil, &schemas.DetectionError{Op: fmt.Sprintf("unknown detection method %q", cfg.Method)}
	}
}

// detectByContour masks the configured color range, extracts connected
// regions, and picks a survivor: for buttons, the largest region with a
// squarish aspect ratio; otherwise the largest region outright.
func (d *Detector) detectByContour(img image.Image, cfg schemas.ElementConfig) (*schemas.DetectedElement, error) {
	lower, upper := [3]int{0, 0, 0}, [3]int{179, 255, 255}
	if cfg.ColorRange != nil {
		lower, upper = cfg.ColorRange.Lower, cfg.ColorRange.Upper
	}
	minArea := cfg.MinArea
	if minArea <= 0 {
		minArea = 100
	}

	mask := MaskInRange(img, lower, upper)
	var survivors []Contour
	for _, c := range FindContours(mask) {
		if c.Area >= minArea {
			survivors = append(survivors, c)
		}
	}
	if len(survivors) == 0 {
		return nil, nil
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].Area > survivors[j].Area })

	pick := survivors[0]
	if cfg.Type == "button" {
		for _, c := range survivors {
			w, h := c.Bounds.Dx(), c.Bounds.Dy()
			if h == 0 {
				continue
			}
			ratio := float64(w) / float64(h)
			if ratio >= 0.5 && ratio <= 2.0 {
				pick = c
				break
			}
		}
	}

	d.logger.Debug("Contour detection finished",
		zap.Int("candidates", len(survivors)),
		zap.Int("area", pick.Area))
	return elementFromRect(pick.Bounds, 0), nil
}

// detectByTemplate matches a cached reference image against the frame and
// accepts only scores at or above the configured threshold.
func (d *Detector) detectByTemplate(img image.Image, cfg schemas.ElementConfig) (*schemas.DetectedElement, error) {
	if cfg.TemplatePath == "" {
		return nil, &schemas.DetectionError{Op: "template strategy requires a template_path"}
	}
	tpl, err := d.loadTemplate(cfg.TemplatePath)
	if err != nil {
		return nil, &schemas.DetectionError{Op: "load template " + cfg.TemplatePath, Err: err}
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = d.templateThreshold
	}

	loc, score := MatchTemplate(Grayscale(img), tpl)
	if score < threshold {
		d.logger.Debug("Template match below threshold",
			zap.Float64("score", score), zap.Float64("threshold", threshold))
		return nil, nil
	}
	rect := image.Rect(loc.X, loc.Y, loc.X+tpl.Bounds().Dx(), loc.Y+tpl.Bounds().Dy())
	return elementFromRect(rect, score), nil
}

// detectByText OCRs the frame (optionally preprocessed) and returns the word
// most similar to the target, subject to the similarity floor.
func (d *Detector) detectByText(ctx context.Context, img image.Image, cfg schemas.ElementConfig) (*schemas.DetectedElement, error) {
	if d.ocr == nil {
		return nil, &schemas.DetectionError{Op: "text strategy requires a word recognizer"}
	}
	if cfg.TargetText == "" {
		return nil, &schemas.DetectionError{Op: "text strategy requires a target_text"}
	}

	var input image.Image = img
	if cfg.Preprocess {
		g := Grayscale(img)
		g = GaussianBlur(g)
		g = AdaptiveThreshold(g, 11, 2)
		input = Dilate(g, 1)
	}

	words, err := d.ocr.RecognizeWords(ctx, input)
	if err != nil {
		return nil, &schemas.DetectionError{Op: "ocr", Err: err}
	}

	floor := cfg.Similarity
	if floor <= 0 {
		floor = d.textSimilarity
	}

	var best *schemas.Word
	bestScore := 0.0
	for i := range words {
		score := TextSimilarity(words[i].Text, cfg.TargetText, cfg.CaseSensitive)
		if score >= floor && score > bestScore {
			bestScore = score
			best = &words[i]
		}
	}
	if best == nil {
		return nil, nil
	}
	return elementFromRect(best.Box, bestScore), nil
}

// loadTemplate reads and caches a grayscale template, keyed by path.
func (d *Detector) loadTemplate(path string) (*image.Gray, error) {
	d.mu.RLock()
	tpl, ok := d.templates[path]
	d.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	decoded, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	tpl = Grayscale(decoded)

	d.mu.Lock()
	d.templates[path] = tpl
	d.mu.Unlock()
	return tpl, nil
}

// TextSimilarity scores two strings in [0,1]. Containment of one string in
// the other short-circuits to 0.9; otherwise the score is a normalized
// Levenshtein ratio.
func TextSimilarity(a, b string, caseSensitive bool) float64 {
	if !caseSensitive {
		a, b = strings.ToLower(a), strings.ToLower(b)
	}
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}

	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(cur[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	dist := prev[len(rb)]
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	return 1 - float64(dist)/float64(maxLen)
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

func elementFromRect(r image.Rectangle, confidence float64) *schemas.DetectedElement {
	return &schemas.DetectedElement{
		X:          r.Min.X,
		Y:          r.Min.Y,
		Width:      r.Dx(),
		Height:     r.Dy(),
		CenterX:    r.Min.X + r.Dx()/2,
		CenterY:    r.Min.Y + r.Dy()/2,
		Confidence: confidence,
	}
}
