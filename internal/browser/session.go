package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/technica-vn/aiknow-probe/internal/config"
)

// Session is one browser tab bound to one test account for the duration of a
// run. All methods respect both the session lifetime and the caller's context.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ Driver = (*Session)(nil)

func newSession(ctx context.Context, cancel context.CancelFunc, cfg config.BrowserConfig, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger.With(zap.String("session_id", id)),
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Close releases the browser tab. Safe to call more than once; must be
// invoked on every exit path so no browser process leaks.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if s.onClose != nil {
		s.onClose()
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to close browser tab: %w", err)
	}
	return nil
}

// Navigate loads the URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx, s.cfg.ElementTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click waits for the element and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	return s.mapElementErr(err, selector)
}

// Type focuses the element, clears its current content, and types the text.
// Works for both input elements and contenteditable regions.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	clear := fmt.Sprintf(`(function() {
		const el = document.querySelector(%q);
		if (!el) return false;
		if ('value' in el) { el.value = ''; }
		el.textContent = '';
		return true;
	})()`, selector)

	var cleared bool
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Evaluate(clear, &cleared),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	return s.mapElementErr(err, selector)
}

// SendEnter presses Enter on the element, submitting the active input.
func (s *Session) SendEnter(ctx context.Context, selector string) error {
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery),
	)
	return s.mapElementErr(err, selector)
}

// Text returns the trimmed text content of the first match, or "" when the
// element is currently absent. Absence is not an error here: callers polling
// a response region need to observe "nothing yet".
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	var out string
	err := s.run(ctx, s.cfg.ElementTimeout,
		chromedp.Text(selector, &out, chromedp.ByQuery, chromedp.AtLeast(0)),
	)
	if err != nil {
		return "", s.mapElementErr(err, selector)
	}
	return strings.TrimSpace(out), nil
}

// Texts returns the trimmed text of every element matching the selector.
func (s *Session) Texts(ctx context.Context, selector string) ([]string, error) {
	script := fmt.Sprintf(`(function() {
		return Array.from(document.querySelectorAll(%q)).map(el => (el.textContent || '').trim());
	})()`, selector)

	var out []string
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(script, &out))
	if err != nil {
		return nil, s.mapElementErr(err, selector)
	}
	return out, nil
}

// ClickMatch clicks the first match whose trimmed text equals text.
func (s *Session) ClickMatch(ctx context.Context, selector, text string) (bool, error) {
	script := fmt.Sprintf(`(function() {
		const items = Array.from(document.querySelectorAll(%q));
		const hit = items.find(el => (el.textContent || '').trim() === %q);
		if (!hit) return false;
		hit.click();
		return true;
	})()`, selector, text)

	var clicked bool
	err := s.run(ctx, s.cfg.ElementTimeout, chromedp.Evaluate(script, &clicked))
	if err != nil {
		return false, s.mapElementErr(err, selector)
	}
	return clicked, nil
}

// WaitVisible blocks until the element is visible or the timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	err := s.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	return s.mapElementErr(err, selector)
}

// Screenshot captures the current viewport as PNG.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	capture := chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithFromSurface(true).
			Do(ctx)
		return err
	})
	if err := s.run(ctx, s.cfg.ElementTimeout, capture); err != nil {
		return nil, fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return buf, nil
}

// run executes chromedp actions bounded by timeout, respecting both the
// session lifetime (s.ctx) and the incoming request context.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()

	runCtx, timeoutCancel := context.WithTimeout(runCtx, timeout)
	defer timeoutCancel()

	return chromedp.Run(runCtx, actions...)
}

// mapElementErr translates a deadline on an element wait into the harness's
// ErrElementNotFound kind, keeping the selector for diagnosis.
func (s *Session) mapElementErr(err error, selector string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return err
}

// combineContext derives a context from primary (keeping its chromedp target
// values) that is also cancelled when secondary is done.
func combineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(primary)
	stop := context.AfterFunc(secondary, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
