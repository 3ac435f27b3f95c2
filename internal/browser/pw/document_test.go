// internal/browser/pw/document_test.go
package pw

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/config"
)

func TestLaunchOptions(t *testing.T) {
	opts := LaunchOptions(config.BrowserConfig{Headless: true, Args: []string{"--window-size=1280,800"}})

	require.NotNil(t, opts.Headless)
	assert.True(t, *opts.Headless)
	assert.Equal(t, []string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage", "--window-size=1280,800"}, opts.Args)
	require.NotNil(t, opts.Timeout)
	assert.Equal(t, float64(60000), *opts.Timeout)

	headed := LaunchOptions(config.BrowserConfig{})
	assert.False(t, *headed.Headless)
	assert.Len(t, headed.Args, 3)
}

func TestTimeoutFor(t *testing.T) {
	t.Run("no deadline uses the limit", func(t *testing.T) {
		ms, err := timeoutFor(context.Background(), 2*time.Second)
		require.NoError(t, err)
		assert.Equal(t, float64(2000), ms)
	})

	t.Run("deadline shorter than the limit wins", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()
		ms, err := timeoutFor(ctx, 10*time.Second)
		require.NoError(t, err)
		assert.LessOrEqual(t, ms, float64(500))
		assert.Greater(t, ms, float64(0))
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := timeoutFor(ctx, time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("sub-millisecond limit is never zero", func(t *testing.T) {
		ms, err := timeoutFor(context.Background(), 10*time.Microsecond)
		require.NoError(t, err)
		assert.Equal(t, float64(1), ms)
	})
}

func TestIsStale(t *testing.T) {
	for _, msg := range []string{
		"elementHandle.click: Element is not attached to the DOM",
		"elementHandle.evaluate: Execution context was destroyed, most likely because of a navigation",
		"JSHandle has been disposed",
	} {
		assert.True(t, isStale(errors.New(msg)), msg)
	}
	assert.False(t, isStale(errors.New("Timeout 30000ms exceeded")))
}

func TestDecodeResult(t *testing.T) {
	res, err := decodeResult(map[string]interface{}{"stale": false, "v": map[string]interface{}{"ok": true, "v": "Tools"}})
	require.NoError(t, err)
	assert.False(t, res.Stale)
	assert.JSONEq(t, `{"ok":true,"v":"Tools"}`, string(res.V))

	res, err = decodeResult(map[string]interface{}{"stale": true})
	require.NoError(t, err)
	assert.True(t, res.Stale)
}

func TestClosedDocumentRejectsCalls(t *testing.T) {
	d := &Document{logger: zap.NewNop(), closed: true, actionTimeout: time.Second, navTimeout: time.Second}

	assert.NoError(t, d.Close(context.Background()))
	assert.ErrorIs(t, d.Navigate(context.Background(), "about:blank"), ErrClosed)
	_, err := d.Title(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	_, err = d.QueryAll(context.Background(), dom.ID("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

// newPlaywrightDocument opens a real browser, skipping when the playwright
// driver or its Chromium is not installed.
func newPlaywrightDocument(t *testing.T) *Document {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	// Probe without installing anything.
	probe, err := playwright.Run()
	if err != nil {
		t.Skipf("playwright driver not installed: %v", err)
	}
	_ = probe.Stop()

	cfg := config.NewDefaultConfig().Browser()
	cfg.Driver = config.DriverPlaywright
	cfg.InstallBrowsers = false

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()
	d, err := Open(ctx, cfg, zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	if err != nil {
		t.Skipf("could not launch chromium through playwright: %v", err)
	}
	t.Cleanup(func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer closeCancel()
		if err := d.Close(closeCtx); err != nil {
			t.Logf("Warning: error closing playwright: %v", err)
		}
	})
	return d
}

func TestDocumentAgainstPlaywright(t *testing.T) {
	d := newPlaywrightDocument(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if r.URL.Path == "/next" {
			fmt.Fprint(w, `<html><head><title>Next</title></head><body><p>Second page</p></body></html>`)
			return
		}
		fmt.Fprint(w, `<!DOCTYPE html>
<html><head><title>Product Catalog</title></head>
<body>
  <input id="product_name" type="text" value="Wid">
  <select id="product_category"><option>Tools</option><option>Food</option></select>
  <button id="save-btn" onclick="document.getElementById('flash_message').textContent = 'Saved ' + document.getElementById('product_name').value">Save</button>
  <div id="flash_message"></div>
</body></html>`)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, d.Navigate(ctx, srv.URL))
	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Product Catalog", title)

	name, err := dom.QueryOne(ctx, d, dom.ID("product_name"))
	require.NoError(t, err)
	require.NotNil(t, name)
	require.NoError(t, name.SendKeys(ctx, "get"))
	v, err := name.Value(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Widget", v, "typing appends to the current value")

	category, err := dom.QueryOne(ctx, d, dom.ID("product_category"))
	require.NoError(t, err)
	require.NoError(t, category.SelectByText(ctx, "Food"))
	sel, err := category.SelectedText(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Food", sel)
	assert.ErrorIs(t, category.SelectByText(ctx, "Toys"), dom.ErrOptionNotFound)

	save, err := dom.QueryOne(ctx, d, dom.ID("save-btn"))
	require.NoError(t, err)
	require.NoError(t, save.Click(ctx))

	body, err := d.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, "Saved Widget")

	require.NoError(t, d.Navigate(ctx, srv.URL+"/next"))
	_, err = name.Value(ctx)
	assert.ErrorIs(t, err, dom.ErrStaleElement)
}
