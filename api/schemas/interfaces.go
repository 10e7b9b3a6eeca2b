package schemas

import (
	"context"
	"errors"
	"image"
	"time"
)

// -- External Collaborator Interfaces --

// AvailabilityOracle is the quota and cooldown authority consulted before any
// platform use. Implementations must be safe for concurrent callers.
type AvailabilityOracle interface {
	// CanUse reports whether the platform may be used now, with a
	// human-readable reason when it may not.
	CanUse(platform string) (bool, string)
	// RegisterUsage records one completed prompt against the platform's
	// quota, with an estimate of tokens consumed.
	RegisterUsage(platform string, tokens int)
	// Cooldown returns the mandatory delay before the platform's next use.
	Cooldown(platform string) time.Duration
}

// InputSynthesizer is the low-level injected capability that produces raw
// mouse and keyboard events. It is external to the core: the dispatch engine
// only ever talks to it through InteractionExecutor.
type InputSynthesizer interface {
	MoveTo(ctx context.Context, x, y int) error
	Click(ctx context.Context, x, y int) error
	TypeText(ctx context.Context, text string) error
	PressKey(ctx context.Context, key string) error
	Hotkey(ctx context.Context, keys ...string) error
}

// InteractionExecutor performs a full prompt submission against grounded
// positions: focus the field, type, submit, wait, and extract the reply.
type InteractionExecutor interface {
	SendPrompt(ctx context.Context, platform, prompt string, positions PositionSet, timeout time.Duration) (*PromptResult, error)
}

// ResponseExtractor obtains the reply text after a prompt has been submitted.
// The mechanism (clipboard, OCR, scraping) is pluggable; the core only needs
// text and a duration.
type ResponseExtractor interface {
	Extract(ctx context.Context, positions PositionSet, timeout time.Duration) (string, error)
}

// ScreenCapturer grabs pixels. CaptureWindow failures are recoverable; the
// capture cache falls back to CaptureScreen.
type ScreenCapturer interface {
	CaptureScreen(ctx context.Context) (*image.RGBA, error)
	CaptureWindow(ctx context.Context, windowKey string) (*image.RGBA, error)
}

// Word is one OCR-recognized token with its bounding box.
type Word struct {
	Text       string
	Box        image.Rectangle
	Confidence float64
}

// WordRecognizer produces word-level boxes from an image. Used by the
// text-match detection strategy.
type WordRecognizer interface {
	RecognizeWords(ctx context.Context, img image.Image) ([]Word, error)
}

// ProfileStore abstracts profile persistence. Backends (database, flat file)
// are interchangeable and are tried in a fixed priority order by the chain
// implementation.
type ProfileStore interface {
	GetProfile(ctx context.Context, platform string) (*InterfaceProfile, error)
	ListPlatforms(ctx context.Context) ([]string, error)
	SavePositions(ctx context.Context, platform string, positions PositionSet) error
}

// ErrProfileNotFound is the sentinel backends return when a platform has no
// stored profile, letting the chain fall through to the next backend.
type profileNotFound struct{ platform string }

func (e *profileNotFound) Error() string {
	return "profile not found: " + e.platform
}

// NewProfileNotFound builds the sentinel for a missing platform profile.
func NewProfileNotFound(platform string) error { return &profileNotFound{platform: platform} }

// IsProfileNotFound reports whether err marks a missing profile.
func IsProfileNotFound(err error) bool {
	var p *profileNotFound
	return errors.As(err, &p)
}
