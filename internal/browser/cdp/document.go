// internal/browser/cdp/document.go
// Package cdp drives a real Chrome over the DevTools protocol with chromedp.
// One Document owns one browser process and one tab. Element handles are
// registry references resolved inside the page (see jsexec), so reads never
// hold a DevTools node id across a navigation.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/browser/jsexec"
	"github.com/xkilldash9x/webstep/internal/config"
)

// ErrClosed is returned by operations on a closed document.
var ErrClosed = errors.New("browser session is closed")

// startupTimeout bounds browser launch when the caller's context has no deadline.
const startupTimeout = 60 * time.Second

// Document is a dom.Document backed by a Chrome tab.
type Document struct {
	ctx         context.Context // tab context; carries the chromedp target
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	navTimeout    time.Duration
	actionTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

var _ dom.Document = (*Document)(nil)

// Open launches Chrome with options derived from cfg and attaches a tab.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Document, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("cdp")

	// The browser outlives the call that opened it; only Close ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(dom.Detach(ctx), AllocatorOptions(cfg)...)
	sugar := log.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Errorf),
	)

	d := &Document{
		ctx:           tabCtx,
		cancel:        tabCancel,
		allocCancel:   allocCancel,
		logger:        log,
		navTimeout:    cfg.NavigationTimeout,
		actionTimeout: cfg.ActionTimeout,
	}
	d.listen()

	if err := d.start(ctx); err != nil {
		tabCancel()
		allocCancel()
		return nil, err
	}
	log.Info("Chrome session started.", zap.Bool("headless", cfg.Headless))
	return d, nil
}

// start runs the first action on the tab context itself. Running it on a
// derived context would tie the browser's lifetime to that context.
func (d *Document) start(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, startupTimeout)
		defer cancel()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- chromedp.Run(d.ctx) }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start chrome: %w", err)
		}
		return nil
	case <-ctx.Done():
		d.cancel()
		<-errCh
		return fmt.Errorf("chrome startup canceled: %w", ctx.Err())
	}
}

// listen accepts JavaScript dialogs, which would otherwise block every later
// action, and logs uncaught page exceptions.
func (d *Document) listen() {
	chromedp.ListenTarget(d.ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *page.EventJavascriptDialogOpening:
			d.logger.Debug("Accepting JavaScript dialog.", zap.String("type", ev.Type.String()), zap.String("message", ev.Message))
			// Listeners must not block; the command runs on its own goroutine.
			go func() {
				if err := chromedp.Run(d.ctx, page.HandleJavaScriptDialog(true)); err != nil && d.ctx.Err() == nil {
					d.logger.Warn("Failed to accept JavaScript dialog.", zap.Error(err))
				}
			}()
		case *runtime.EventExceptionThrown:
			if ev.ExceptionDetails != nil {
				d.logger.Debug("Uncaught page exception.", zap.String("text", ev.ExceptionDetails.Text))
			}
		}
	})
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for key, value := range ParseArgs(cfg.Args) {
		opts = append(opts, chromedp.Flag(key, value))
	}
	return opts
}

// ParseArgs turns command line switches into chromedp flags. "--key=value"
// becomes a string flag, a bare "--key" a boolean one.
func ParseArgs(args []string) map[string]interface{} {
	flags := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags[key] = value
		} else {
			flags[key] = true
		}
	}
	return flags
}

// -- dom.Document --

func (d *Document) Navigate(ctx context.Context, url string) error {
	d.logger.Debug("Navigating.", zap.String("url", url))
	if err := d.run(ctx, d.navTimeout, "navigate to "+url, chromedp.Navigate(url)); err != nil {
		return err
	}
	return nil
}

func (d *Document) QueryAll(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	var res jsexec.QueryResult
	if err := d.evaluate(ctx, "query "+loc.String(), jsexec.Query(loc.CSSSelector()), &res); err != nil {
		return nil, err
	}
	refs := res.Refs()
	elems := make([]dom.Element, len(refs))
	for i, ref := range refs {
		elems[i] = &element{doc: d, ref: ref, loc: loc}
	}
	return elems, nil
}

func (d *Document) Title(ctx context.Context) (string, error) {
	var title string
	if err := d.run(ctx, d.actionTimeout, "read title", chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (d *Document) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := d.evaluate(ctx, "read body text", jsexec.BodyText, &text); err != nil {
		return "", err
	}
	return text, nil
}

// Close closes the tab and shuts the browser down.
func (d *Document) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing Chrome session.")
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.ctx) }()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				d.closeErr = fmt.Errorf("failed to close chrome: %w", err)
			}
		case <-ctx.Done():
			d.logger.Warn("Timed out closing Chrome gracefully; forcing shutdown.", zap.Error(ctx.Err()))
			d.closeErr = fmt.Errorf("closing chrome: %w", ctx.Err())
		}
		d.cancel()
		d.allocCancel()
	})
	return d.closeErr
}

// -- plumbing --

func (d *Document) evaluate(ctx context.Context, op, expr string, out interface{}) error {
	var raw json.RawMessage
	err := d.run(ctx, d.actionTimeout, op, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithSilent(true)
	}))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", op, err)
	}
	return nil
}

// run executes actions bounded by the session, the caller's context and
// timeout. Errors are triaged so a canceled step, a closed session and a slow
// browser read differently.
func (d *Document) run(ctx context.Context, timeout time.Duration, op string, actions ...chromedp.Action) error {
	if d.ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}
	runCtx, cancel := dom.CombineContext(d.ctx, ctx)
	defer cancel()
	opCtx, opCancel := context.WithTimeout(runCtx, timeout)
	defer opCancel()

	err := chromedp.Run(opCtx, actions...)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("%s canceled: %w", op, ctx.Err())
	case d.ctx.Err() != nil:
		return fmt.Errorf("%s: %w", op, ErrClosed)
	case errors.Is(opCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%s timed out after %v: %w", op, timeout, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}
