package browser

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/config"
)

// Launcher owns the browser process and the per-platform tabs. All session
// contexts derive from one allocator context so a single Shutdown tears the
// whole process down.
type Launcher struct {
	logger   *zap.Logger
	cfg      config.BrowserConfig
	profiles schemas.ProfileStore

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc

	mu         sync.Mutex
	sessions   map[string]*Session
	active     string
	lastLaunch time.Time

	// now is swapped in tests to exercise the launch guard.
	now func() time.Time
}

// NewLauncher starts the browser process and verifies it responds before
// returning. The process stays up until Shutdown.
func NewLauncher(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig, profiles schemas.ProfileStore) (*Launcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("launcher requires a logger")
	}
	if profiles == nil {
		return nil, fmt.Errorf("launcher requires a profile store")
	}

	l := &Launcher{
		logger:   logger.Named("browser_launcher"),
		cfg:      cfg,
		profiles: profiles,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, l.buildAllocatorOptions()...)
	l.allocatorCtx = allocCtx
	l.allocatorCancel = cancel

	// Confirm the process actually starts before we hand the launcher out.
	testCtx, cancelTest := context.WithTimeout(allocCtx, 30*time.Second)
	testCtx, cancelTab := chromedp.NewContext(testCtx)
	defer cancelTab()
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		l.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	l.logger.Info("Browser launched and responsive")
	return l, nil
}

func (l *Launcher) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	opts = append(opts, chromedp.DefaultExecAllocatorOptions[:]...)
	// Drop the default enable-automation flag; a false bool flag is
	// omitted from the Chrome command line.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	opts = append(opts,
		chromedp.Flag("headless", l.cfg.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", l.cfg.Headless),
	)
	if l.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.cfg.ExecPath))
	}
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// Session returns the tab for a platform, opening and navigating it on first
// use. Opening respects the launch guard: tabs are never created closer
// together than LaunchGuard, which keeps slow chat frontends from seeing a
// burst of connections.
func (l *Launcher) Session(ctx context.Context, platform string) (*Session, error) {
	l.mu.Lock()
	if s, ok := l.sessions[platform]; ok {
		l.active = platform
		l.mu.Unlock()
		return s, nil
	}

	if wait := l.cfg.LaunchGuard - l.now().Sub(l.lastLaunch); wait > 0 {
		l.mu.Unlock()
		l.logger.Debug("Launch guard active, waiting", zap.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		l.mu.Lock()
		if s, ok := l.sessions[platform]; ok {
			l.active = platform
			l.mu.Unlock()
			return s, nil
		}
	}
	l.lastLaunch = l.now()
	l.mu.Unlock()

	profile, err := l.profiles.GetProfile(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("resolve platform %q: %w", platform, err)
	}
	if profile.Browser.URL == "" {
		return nil, fmt.Errorf("platform %q has no interface URL", platform)
	}

	tabCtx, tabCancel := chromedp.NewContext(l.allocatorCtx)
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(profile.Browser.URL),
		chromedp.Sleep(l.cfg.PostNavigateWait),
	); err != nil {
		tabCancel()
		return nil, fmt.Errorf("navigate to %s: %w", profile.Browser.URL, err)
	}

	s := &Session{
		platform: platform,
		url:      profile.Browser.URL,
		ctx:      tabCtx,
		cancel:   tabCancel,
	}

	l.mu.Lock()
	l.sessions[platform] = s
	l.active = platform
	l.mu.Unlock()

	l.logger.Info("Session opened",
		zap.String("platform", platform),
		zap.String("url", profile.Browser.URL))
	return s, nil
}

// Input satisfies the executor's session provider: the synthesizer it returns
// drives the platform's tab.
func (l *Launcher) Input(ctx context.Context, platform string) (schemas.InputSynthesizer, error) {
	s, err := l.Session(ctx, platform)
	if err != nil {
		return nil, err
	}
	return NewCDPSynthesizer(l.logger, s), nil
}

// activeSession returns the most recently used tab, if any.
func (l *Launcher) activeSession() (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[l.active]
	return s, ok
}

// session looks up a tab without opening one.
func (l *Launcher) session(platform string) (*Session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sessions[platform]
	return s, ok
}

// Shutdown closes every tab and terminates the browser process.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for platform, s := range l.sessions {
		s.Close()
		delete(l.sessions, platform)
	}
	l.mu.Unlock()

	if l.allocatorCancel != nil {
		l.logger.Info("Shutting down browser process")
		l.allocatorCancel()
		select {
		case <-l.allocatorCtx.Done():
		case <-ctx.Done():
			l.logger.Warn("Shutdown deadline exceeded before browser exit", zap.Error(ctx.Err()))
			return ctx.Err()
		}
	}
	return nil
}
