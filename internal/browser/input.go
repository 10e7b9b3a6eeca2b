package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// virtual key codes for the keys the conductor actually presses, US layout.
var namedKeys = map[string]struct {
	key string
	vk  int64
}{
	"enter":     {"\r", 0x0D},
	"tab":       {"\t", 0x09},
	"escape":    {"Escape", 0x1B},
	"backspace": {"\b", 0x08},
	"delete":    {"Delete", 0x2E},
	"space":     {" ", 0x20},
	"up":        {"ArrowUp", 0x26},
	"down":      {"ArrowDown", 0x28},
	"left":      {"ArrowLeft", 0x25},
	"right":     {"ArrowRight", 0x27},
	"home":      {"Home", 0x24},
	"end":       {"End", 0x23},
}

var modifierKeys = map[string]input.Modifier{
	"ctrl":  input.ModifierCtrl,
	"alt":   input.ModifierAlt,
	"shift": input.ModifierShift,
	"cmd":   input.ModifierMeta,
	"meta":  input.ModifierMeta,
}

// CDPSynthesizer emits raw mouse and keyboard events into one session's tab
// over the DevTools protocol.
type CDPSynthesizer struct {
	logger  *zap.Logger
	session *Session

	// run is swapped in tests; production routes through the session context.
	run func(ctx context.Context, actions ...chromedp.Action) error
}

func NewCDPSynthesizer(logger *zap.Logger, session *Session) *CDPSynthesizer {
	s := &CDPSynthesizer{
		logger:  logger.Named("cdp_input"),
		session: session,
	}
	s.run = func(ctx context.Context, actions ...chromedp.Action) error {
		runCtx, cancel := session.Context(ctx)
		defer cancel()
		return chromedp.Run(runCtx, actions...)
	}
	return s
}

func (s *CDPSynthesizer) MoveTo(ctx context.Context, x, y int) error {
	return s.run(ctx, chromedp.MouseEvent(input.MouseMoved, float64(x), float64(y)))
}

func (s *CDPSynthesizer) Click(ctx context.Context, x, y int) error {
	fx, fy := float64(x), float64(y)
	return s.run(ctx,
		chromedp.MouseEvent(input.MouseMoved, fx, fy),
		chromedp.MouseEvent(input.MousePressed, fx, fy, chromedp.Button("left"), chromedp.ClickCount(1)),
		chromedp.MouseEvent(input.MouseReleased, fx, fy, chromedp.Button("left"), chromedp.ClickCount(1)),
	)
}

func (s *CDPSynthesizer) TypeText(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return s.run(ctx, chromedp.KeyEvent(text))
}

func (s *CDPSynthesizer) PressKey(ctx context.Context, key string) error {
	named, ok := namedKeys[strings.ToLower(key)]
	if !ok {
		if len([]rune(key)) != 1 {
			return fmt.Errorf("unknown key %q", key)
		}
		return s.run(ctx, chromedp.KeyEvent(key))
	}
	return s.run(ctx, chromedp.KeyEvent(named.key))
}

// Hotkey holds the leading modifiers down, strikes the final key, then
// releases the modifiers in reverse order.
func (s *CDPSynthesizer) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return fmt.Errorf("hotkey requires at least one key")
	}

	var mods []string
	var mask input.Modifier
	for _, k := range keys[:len(keys)-1] {
		mod, ok := modifierKeys[strings.ToLower(k)]
		if !ok {
			return fmt.Errorf("unknown modifier %q", k)
		}
		mods = append(mods, strings.ToLower(k))
		mask |= mod
	}

	final := keys[len(keys)-1]
	keyText, vk := final, int64(0)
	if named, ok := namedKeys[strings.ToLower(final)]; ok {
		keyText, vk = named.key, named.vk
	} else if len([]rune(final)) != 1 {
		return fmt.Errorf("unknown key %q", final)
	} else {
		r := []rune(strings.ToLower(final))[0]
		if r >= 'a' && r <= 'z' {
			vk = int64(r-'a') + 0x41
		} else if r >= '0' && r <= '9' {
			vk = int64(r-'0') + 0x30
		}
	}

	var actions []chromedp.Action
	for _, m := range mods {
		actions = append(actions, modifierEvent(input.KeyRawDown, m))
	}
	actions = append(actions,
		keyAction(input.DispatchKeyEvent(input.KeyRawDown).
			WithModifiers(mask).
			WithKey(keyText).
			WithWindowsVirtualKeyCode(vk)),
		keyAction(input.DispatchKeyEvent(input.KeyUp).
			WithModifiers(mask).
			WithKey(keyText).
			WithWindowsVirtualKeyCode(vk)),
	)
	for i := len(mods) - 1; i >= 0; i-- {
		actions = append(actions, modifierEvent(input.KeyUp, mods[i]))
	}
	return s.run(ctx, actions...)
}

var modifierDOM = map[string]struct {
	key string
	vk  int64
}{
	"ctrl":  {"Control", 0x11},
	"alt":   {"Alt", 0x12},
	"shift": {"Shift", 0x10},
	"cmd":   {"Meta", 0x5B},
	"meta":  {"Meta", 0x5B},
}

func modifierEvent(t input.KeyType, name string) chromedp.Action {
	dom := modifierDOM[name]
	return keyAction(input.DispatchKeyEvent(t).
		WithKey(dom.key).
		WithWindowsVirtualKeyCode(dom.vk))
}

func keyAction(p *input.DispatchKeyEventParams) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return p.Do(ctx)
	})
}

// ActiveInput synthesizes input into whichever tab was used last. Lets
// platform-agnostic collaborators (the clipboard extractor) drive the
// session the executor just typed into.
type ActiveInput struct {
	logger   *zap.Logger
	launcher *Launcher
}

func NewActiveInput(logger *zap.Logger, launcher *Launcher) *ActiveInput {
	return &ActiveInput{logger: logger, launcher: launcher}
}

func (a *ActiveInput) current() (*CDPSynthesizer, error) {
	s, ok := a.launcher.activeSession()
	if !ok {
		return nil, errNoActiveSession
	}
	return NewCDPSynthesizer(a.logger, s), nil
}

func (a *ActiveInput) MoveTo(ctx context.Context, x, y int) error {
	s, err := a.current()
	if err != nil {
		return err
	}
	return s.MoveTo(ctx, x, y)
}

func (a *ActiveInput) Click(ctx context.Context, x, y int) error {
	s, err := a.current()
	if err != nil {
		return err
	}
	return s.Click(ctx, x, y)
}

func (a *ActiveInput) TypeText(ctx context.Context, text string) error {
	s, err := a.current()
	if err != nil {
		return err
	}
	return s.TypeText(ctx, text)
}

func (a *ActiveInput) PressKey(ctx context.Context, key string) error {
	s, err := a.current()
	if err != nil {
		return err
	}
	return s.PressKey(ctx, key)
}

func (a *ActiveInput) Hotkey(ctx context.Context, keys ...string) error {
	s, err := a.current()
	if err != nil {
		return err
	}
	return s.Hotkey(ctx, keys...)
}
