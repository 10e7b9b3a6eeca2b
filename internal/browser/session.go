package browser

import (
	"context"
	"sync"
)

// Session is one platform's tab. The embedded context is a chromedp context;
// all CDP actions against the tab run on it.
type Session struct {
	platform string
	url      string
	ctx      context.Context
	cancel   context.CancelFunc

	closeOnce sync.Once
}

func (s *Session) Platform() string { return s.platform }
func (s *Session) URL() string      { return s.url }

// Context returns the tab's chromedp context, optionally bounded by the
// caller's deadline. The returned cancel must always be called.
func (s *Session) Context(caller context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := caller.Deadline(); ok {
		return context.WithDeadline(s.ctx, deadline)
	}
	return context.WithCancel(s.ctx)
}

// Close tears down the tab. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(s.cancel)
}
