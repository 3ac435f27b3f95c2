// internal/browser/pw/document.go
// Package pw drives Chromium through playwright-go. The playwright API is not
// context aware, so every call derives its timeout from the caller's deadline
// and the configured action timeout, whichever is shorter.
package pw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/browser/jsexec"
	"github.com/xkilldash9x/webstep/internal/config"
)

// ErrClosed is returned by operations on a closed document.
var ErrClosed = errors.New("playwright session is closed")

const (
	playwrightInstallTimeout = 5 * time.Minute
	launchTimeout            = 60 * time.Second
)

// Document is a dom.Document backed by a playwright page.
type Document struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
	logger  *zap.Logger

	navTimeout    time.Duration
	actionTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

var _ dom.Document = (*Document)(nil)

// Open starts the playwright driver, launches Chromium and opens one page.
// With cfg.InstallBrowsers set, the driver and Chromium are downloaded first
// when missing.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("playwright")

	if cfg.InstallBrowsers {
		if err := ensureInstallation(ctx, log); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("playwright startup canceled: %w", err)
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(LaunchOptions(cfg))
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to launch browser instance: %w", err)
	}

	bctx, err := browser.NewContext()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	page.SetDefaultTimeout(millis(cfg.ActionTimeout))
	page.OnDialog(func(d playwright.Dialog) {
		log.Debug("Accepting JavaScript dialog.", zap.String("type", d.Type()), zap.String("message", d.Message()))
		if err := d.Accept(); err != nil {
			log.Warn("Failed to accept JavaScript dialog.", zap.Error(err))
		}
	})

	log.Info("Playwright session started.", zap.String("browser_version", browser.Version()))
	return &Document{
		pw:            pw,
		browser:       browser,
		bctx:          bctx,
		page:          page,
		logger:        log,
		navTimeout:    cfg.NavigationTimeout,
		actionTimeout: cfg.ActionTimeout,
	}, nil
}

func ensureInstallation(ctx context.Context, logger *zap.Logger) error {
	logger.Info("Verifying Playwright browser installation...")
	installCtx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	// Install blocks and takes no context.
	errCh := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errCh <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-installCtx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", installCtx.Err())
	}
}

// LaunchOptions merges the container-safe defaults with cfg.Args.
func LaunchOptions(cfg config.BrowserConfig) playwright.BrowserTypeLaunchOptions {
	args := []string{
		"--disable-gpu",
		"--no-sandbox",
		"--disable-dev-shm-usage",
	}
	return playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
		Args:     append(args, cfg.Args...),
		Timeout:  playwright.Float(millis(launchTimeout)),
	}
}

// -- dom.Document --

func (d *Document) Navigate(ctx context.Context, url string) error {
	op := "navigate to " + url
	timeout, err := d.budget(ctx, op, d.navTimeout)
	if err != nil {
		return err
	}
	d.logger.Debug("Navigating.", zap.String("url", url))
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{Timeout: timeout}); err != nil {
		return d.wrap(op, err)
	}
	return nil
}

func (d *Document) QueryAll(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	op := "query " + loc.String()
	if _, err := d.budget(ctx, op, d.actionTimeout); err != nil {
		return nil, err
	}
	handles, err := d.page.Locator(loc.CSSSelector()).ElementHandles()
	if err != nil {
		return nil, d.wrap(op, err)
	}
	elems := make([]dom.Element, len(handles))
	for i, h := range handles {
		elems[i] = &element{doc: d, handle: h, loc: loc, index: i}
	}
	return elems, nil
}

func (d *Document) Title(ctx context.Context) (string, error) {
	if _, err := d.budget(ctx, "read title", d.actionTimeout); err != nil {
		return "", err
	}
	title, err := d.page.Title()
	if err != nil {
		return "", d.wrap("read title", err)
	}
	return title, nil
}

func (d *Document) BodyText(ctx context.Context) (string, error) {
	if _, err := d.budget(ctx, "read body text", d.actionTimeout); err != nil {
		return "", err
	}
	v, err := d.page.Evaluate(jsexec.BodyText)
	if err != nil {
		return "", d.wrap("read body text", err)
	}
	s, _ := v.(string)
	return s, nil
}

// Close shuts down the browser and the playwright driver.
func (d *Document) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Debug("Closing playwright session.")
	done := make(chan error, 1)
	go func() {
		var shutdownErr error
		if err := d.browser.Close(); err != nil {
			shutdownErr = fmt.Errorf("failed to close browser: %w", err)
		}
		if err := d.pw.Stop(); err != nil && shutdownErr == nil {
			shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
		}
		done <- shutdownErr
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.logger.Warn("Timed out closing playwright session.", zap.Error(ctx.Err()))
		return fmt.Errorf("closing playwright session: %w", ctx.Err())
	}
}

// -- plumbing --

func (d *Document) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// budget checks the session and the caller's context and returns the timeout
// to pass to playwright.
func (d *Document) budget(ctx context.Context, op string, limit time.Duration) (*float64, error) {
	if d.isClosed() {
		return nil, fmt.Errorf("%s: %w", op, ErrClosed)
	}
	ms, err := timeoutFor(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%s canceled: %w", op, err)
	}
	return playwright.Float(ms), nil
}

// timeoutFor returns the smaller of limit and the time left on ctx, in
// milliseconds. Zero means "no timeout" to playwright, so it is never returned.
func timeoutFor(ctx context.Context, limit time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < limit {
			limit = remaining
		}
	}
	if limit <= 0 {
		return 0, context.DeadlineExceeded
	}
	ms := millis(limit)
	if ms < 1 {
		ms = 1
	}
	return ms, nil
}

func (d *Document) wrap(op string, err error) error {
	switch {
	case isStale(err):
		return fmt.Errorf("%s: %w", op, dom.ErrStaleElement)
	case errors.Is(err, playwright.ErrTimeout):
		return fmt.Errorf("%s timed out: %w", op, err)
	case d.isClosed():
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

// isStale recognizes the protocol errors for handles whose node or execution
// context is gone.
func isStale(err error) bool {
	msg := err.Error()
	for _, marker := range []string{
		"not attached to the DOM",
		"Element is not attached",
		"Execution context was destroyed",
		"has been disposed",
		"is disposed",
		"Cannot find context with specified id",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// decodeResult converts a value returned by Evaluate into a jsexec.Result.
func decodeResult(v interface{}) (jsexec.Result, error) {
	var res jsexec.Result
	b, err := json.Marshal(v)
	if err != nil {
		return res, fmt.Errorf("failed to encode evaluate result: %w", err)
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return res, fmt.Errorf("failed to decode evaluate result: %w", err)
	}
	return res, nil
}
