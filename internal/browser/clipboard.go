package browser

import (
	"context"
	"errors"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

var errNoActiveSession = errors.New("no active session")

// SessionClipboard reads the clipboard of the most recently used tab through
// the page's own clipboard API.
type SessionClipboard struct {
	logger   *zap.Logger
	launcher *Launcher

	// evaluate is swapped in tests.
	evaluate func(ctx context.Context, s *Session, expr string, out *string) error
}

func NewSessionClipboard(logger *zap.Logger, launcher *Launcher) *SessionClipboard {
	c := &SessionClipboard{
		logger:   logger.Named("clipboard"),
		launcher: launcher,
	}
	c.evaluate = func(ctx context.Context, s *Session, expr string, out *string) error {
		runCtx, cancel := s.Context(ctx)
		defer cancel()
		return chromedp.Run(runCtx, chromedp.Evaluate(expr, out,
			func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
				return p.WithAwaitPromise(true)
			}))
	}
	return c
}

func (c *SessionClipboard) ReadText(ctx context.Context) (string, error) {
	s, ok := c.launcher.activeSession()
	if !ok {
		return "", errNoActiveSession
	}
	var text string
	if err := c.evaluate(ctx, s, `navigator.clipboard.readText()`, &text); err != nil {
		return "", err
	}
	return text, nil
}
