// internal/browser/static/document_test.go
package static

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

const productPage = `<!DOCTYPE html>
<html>
<head><title>Product Catalog Administration</title><style>.x{}</style></head>
<body>
  <h1>Products</h1>
  <form id="product_form" action="/search" method="get">
    <input id="product_name" name="name" type="text">
    <textarea id="product_description" name="description">Old text</textarea>
    <select id="product_category" name="category">
      <option value="">-- pick --</option>
      <option value="tools">Tools</option>
      <option value="food">Food</option>
    </select>
    <input id="product_secret" type="hidden" name="secret" value="s">
    <button id="search-btn" type="submit">Search</button>
    <button id="clear-btn" type="button">Clear</button>
    <button id="delete-btn" type="button" disabled>Delete</button>
  </form>
  <div id="flash_message" style="display: none">stale</div>
</body>
</html>`

func newDoc(t *testing.T) *Document {
	t.Helper()
	d := New(zaptest.NewLogger(t), nil)
	t.Cleanup(func() { _ = d.Close(context.Background()) })
	return d
}

func queryOne(t *testing.T, d *Document, loc dom.Locator) dom.Element {
	t.Helper()
	el, err := dom.QueryOne(context.Background(), d, loc)
	require.NoError(t, err)
	require.NotNil(t, el, "no element for %s", loc)
	return el
}

func TestNavigateAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, productPage)
		case "/search":
			fmt.Fprintf(w, `<html><head><title>Results</title></head><body><div id="search_results">%s: %s</div></body></html>`,
				r.URL.Query().Get("category"), r.URL.Query().Get("name"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	d := newDoc(t)
	ctx := context.Background()

	require.NoError(t, d.Navigate(ctx, srv.URL+"/"))
	assert.Equal(t, srv.URL+"/", d.URL())

	title, err := d.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Product Catalog Administration", title)

	body, err := d.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, "Products")
	assert.NotContains(t, body, "stale", "hidden content is not rendered text")
	assert.NotContains(t, body, ".x{}")

	name := queryOne(t, d, dom.ID("product_name"))
	require.NoError(t, name.SendKeys(ctx, "Widget"))
	cat := queryOne(t, d, dom.ID("product_category"))
	require.NoError(t, cat.SelectByText(ctx, "Tools"))

	require.NoError(t, queryOne(t, d, dom.ID("search-btn")).Click(ctx))
	assert.True(t, strings.HasPrefix(d.URL(), srv.URL+"/search?"))

	results := queryOne(t, d, dom.ID("search_results"))
	text, err := results.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tools: Widget", text)

	_, err = name.Value(ctx)
	assert.ErrorIs(t, err, dom.ErrStaleElement, "handles from the previous page are stale")
}

func TestNavigate_RelativeWithoutBase(t *testing.T) {
	d := newDoc(t)
	err := d.Navigate(context.Background(), "/relative")
	assert.ErrorContains(t, err, "absolute URL")
}

func TestQueryAll(t *testing.T) {
	d := newDoc(t)
	require.NoError(t, d.Load(productPage))
	ctx := context.Background()

	t.Run("MissingIDIsEmptyNotError", func(t *testing.T) {
		els, err := d.QueryAll(ctx, dom.ID("results"))
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("Tag", func(t *testing.T) {
		els, err := d.QueryAll(ctx, dom.Tag("button"))
		require.NoError(t, err)
		assert.Len(t, els, 3)
	})

	t.Run("CSSIDSelector", func(t *testing.T) {
		els, err := d.QueryAll(ctx, dom.CSS("#clear-btn"))
		require.NoError(t, err)
		require.Len(t, els, 1)
		assert.Equal(t, `//*[@id='clear-btn']`, els[0].Describe())
	})

	t.Run("UnsupportedCSS", func(t *testing.T) {
		_, err := d.QueryAll(ctx, dom.CSS("form > button.primary"))
		assert.ErrorContains(t, err, "not supported")
	})

	t.Run("EmptyDocument", func(t *testing.T) {
		empty := newDoc(t)
		els, err := empty.QueryAll(ctx, dom.Body)
		require.NoError(t, err)
		assert.Empty(t, els)
	})

	t.Run("CanceledContext", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := d.QueryAll(cctx, dom.Body)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestElementState(t *testing.T) {
	d := newDoc(t)
	require.NoError(t, d.Load(productPage))
	ctx := context.Background()

	t.Run("ClearAndType", func(t *testing.T) {
		desc := queryOne(t, d, dom.ID("product_description"))
		v, err := desc.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Old text", v)

		require.NoError(t, desc.Clear(ctx))
		require.NoError(t, desc.SendKeys(ctx, "New text"))
		v, err = desc.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "New text", v)
	})

	t.Run("NonTextControlRejectsKeys", func(t *testing.T) {
		assert.Error(t, queryOne(t, d, dom.ID("clear-btn")).SendKeys(ctx, "x"))
	})

	t.Run("SelectDefaultsToFirstOption", func(t *testing.T) {
		require.NoError(t, d.Load(productPage))
		cat := queryOne(t, d, dom.ID("product_category"))
		text, err := cat.SelectedText(ctx)
		require.NoError(t, err)
		assert.Equal(t, "-- pick --", text)

		require.NoError(t, cat.SelectByText(ctx, "Food"))
		text, err = cat.SelectedText(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Food", text)
		v, err := cat.Value(ctx)
		require.NoError(t, err)
		assert.Equal(t, "food", v)
	})

	t.Run("SelectUnknownOption", func(t *testing.T) {
		err := queryOne(t, d, dom.ID("product_category")).SelectByText(ctx, "Toys")
		assert.ErrorIs(t, err, dom.ErrOptionNotFound)
	})

	t.Run("SelectOnNonSelect", func(t *testing.T) {
		err := queryOne(t, d, dom.ID("product_name")).SelectByText(ctx, "Food")
		assert.ErrorIs(t, err, dom.ErrNotSelectable)
	})

	t.Run("Visibility", func(t *testing.T) {
		shown, err := queryOne(t, d, dom.ID("clear-btn")).Displayed(ctx)
		require.NoError(t, err)
		assert.True(t, shown)

		shown, err = queryOne(t, d, dom.ID("flash_message")).Displayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown)

		shown, err = queryOne(t, d, dom.ID("product_secret")).Displayed(ctx)
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("Enabled", func(t *testing.T) {
		on, err := queryOne(t, d, dom.ID("delete-btn")).Enabled(ctx)
		require.NoError(t, err)
		assert.False(t, on)
	})

	t.Run("Attribute", func(t *testing.T) {
		v, ok, err := queryOne(t, d, dom.ID("search-btn")).Attribute(ctx, "type")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "submit", v)

		_, ok, err = queryOne(t, d, dom.ID("search-btn")).Attribute(ctx, "data-x")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestClickHandlersAndScheduledMutations(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New(zaptest.NewLogger(t), nil)
	require.NoError(t, d.Load(productPage))
	ctx := context.Background()

	d.OnClick("clear-btn", func(_ context.Context, d *Document) error {
		d.After(30*time.Millisecond, func(d *Document) {
			_ = d.SetText("flash_message", "Form cleared")
			_ = d.RemoveAttribute("flash_message", "style")
		})
		return nil
	})
	clicked := false
	d.OnClick("delete-btn", func(context.Context, *Document) error {
		clicked = true
		return nil
	})

	require.NoError(t, queryOne(t, d, dom.ID("clear-btn")).Click(ctx))
	require.NoError(t, queryOne(t, d, dom.ID("delete-btn")).Click(ctx))
	assert.False(t, clicked, "disabled controls do not receive clicks")

	flash := queryOne(t, d, dom.ID("flash_message"))
	assert.Eventually(t, func() bool {
		text, err := flash.Text(ctx)
		return err == nil && text == "Form cleared"
	}, time.Second, 5*time.Millisecond)

	// A mutation scheduled far in the future is stopped by Close.
	d.After(time.Hour, func(d *Document) { _ = d.SetText("flash_message", "late") })
	require.NoError(t, d.Close(ctx))

	_, err := d.QueryAll(ctx, dom.Body)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClickConcurrentWithScheduledMutations(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := New(zaptest.NewLogger(t), nil)
	require.NoError(t, d.Load(`<html><body><div id="panel"><span>a</span><button id="noop-btn" type="button">Noop</button></div></body></html>`))
	ctx := context.Background()

	btn := queryOne(t, d, dom.ID("noop-btn"))
	want := btn.Describe()

	// Siblings keep arriving while the button is clicked; the click path and
	// Describe must not read the tree outside the document lock.
	for i := 0; i < 50; i++ {
		d.After(time.Duration(i)*time.Millisecond, func(d *Document) {
			_ = d.Append("panel", `<span>b</span>`)
		})
	}
	for i := 0; i < 50; i++ {
		require.NoError(t, btn.Click(ctx))
		assert.Equal(t, want, btn.Describe())
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, d.Close(ctx))
}

func TestMutationHelpers(t *testing.T) {
	d := newDoc(t)
	require.NoError(t, d.Load(`<html><body><ul id="search_results"></ul><p id="gone">x</p></body></html>`))
	ctx := context.Background()

	require.NoError(t, d.Append("search_results", `<li>Widget</li><li>Gadget</li>`))
	text, err := queryOne(t, d, dom.ID("search_results")).Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Widget Gadget", text)

	gone := queryOne(t, d, dom.ID("gone"))
	require.NoError(t, d.Remove("gone"))
	_, err = gone.Text(ctx)
	assert.ErrorIs(t, err, dom.ErrStaleElement)

	assert.Error(t, d.SetText("missing", "x"))

	markup, err := d.HTML()
	require.NoError(t, err)
	assert.Contains(t, markup, "<li>Gadget</li>")
}

func TestCheckboxAndRadioClicks(t *testing.T) {
	d := newDoc(t)
	require.NoError(t, d.Load(`<html><body><form>
		<input id="c" type="checkbox" name="c">
		<input id="r1" type="radio" name="r" checked>
		<input id="r2" type="radio" name="r">
	</form></body></html>`))
	ctx := context.Background()

	require.NoError(t, queryOne(t, d, dom.ID("c")).Click(ctx))
	_, checked, err := queryOne(t, d, dom.ID("c")).Attribute(ctx, "checked")
	require.NoError(t, err)
	assert.True(t, checked)

	require.NoError(t, queryOne(t, d, dom.ID("r2")).Click(ctx))
	_, checked, _ = queryOne(t, d, dom.ID("r1")).Attribute(ctx, "checked")
	assert.False(t, checked)
	_, checked, _ = queryOne(t, d, dom.ID("r2")).Attribute(ctx, "checked")
	assert.True(t, checked)
}

func TestNodePath(t *testing.T) {
	root, err := htmlquery.Parse(strings.NewReader(`<html><body>
		<div id="header"><h1>Welcome</h1></div>
		<div class="content"><p>P1</p><p>P2</p></div>
		<div class="content"><p>P3</p></div>
	</body></html>`))
	require.NoError(t, err)

	tests := []struct {
		name, target, want string
	}{
		{"Body", "//body", "/html[1]/body[1]"},
		{"WithID", "//div[@id='header']", `//*[@id='header']`},
		{"ChildOfID", "//h1", `//*[@id='header']/h1[1]`},
		{"Indexed", "(//div[@class='content'])[2]/p", "/html[1]/body[1]/div[3]/p[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := htmlquery.FindOne(root, tt.target)
			require.NotNil(t, n)
			got := nodePath(n)
			assert.Equal(t, tt.want, got)
			assert.Same(t, n, htmlquery.FindOne(root, got), "path must select the original node")
		})
	}
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `'plain'`, xpathLiteral("plain"))
	assert.Equal(t, `"it's"`, xpathLiteral("it's"))
	assert.Equal(t, `concat('a', "'", 'b"c')`, xpathLiteral(`a'b"c`))
}
