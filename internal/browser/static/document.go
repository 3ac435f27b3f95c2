// internal/browser/static/document.go
// Package static is an in-process browser: pages are fetched over HTTP or
// loaded from a string, parsed with golang.org/x/net/html and queried with
// XPath. There is no script engine. Rendering that a real page would do in
// JavaScript is modelled with click handlers and scheduled mutations, which
// makes asynchronous behavior reproducible in tests.
package static

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// ErrClosed is returned by every operation on a closed document.
var ErrClosed = errors.New("static document is closed")

// ClickHandler runs when the element it is registered for is clicked. It
// replaces the default consequence of the click (link navigation, form
// submission, checkbox toggling).
type ClickHandler func(ctx context.Context, d *Document) error

// Document is a dom.Document over an in-memory HTML tree.
type Document struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	client *http.Client

	mu         sync.RWMutex
	root       *html.Node
	currentURL *url.URL
	handlers   map[string]ClickHandler
	timers     []*time.Timer
	closed     bool

	pending   sync.WaitGroup
	closeOnce sync.Once
}

var _ dom.Document = (*Document)(nil)

// New returns an empty document. A nil client gets a default one with a
// cookie jar so form posts followed by redirects keep their session.
func New(logger *zap.Logger, client *http.Client) *Document {
	if logger == nil {
		logger = zap.NewNop()
	}
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Document{
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("static"),
		client:   client,
		handlers: make(map[string]ClickHandler),
	}
}

// -- Navigation --

// Navigate fetches targetURL, resolved against the current URL, and replaces
// the document with the response.
func (d *Document) Navigate(ctx context.Context, targetURL string) error {
	navCtx, navCancel := dom.CombineContext(d.ctx, ctx)
	defer navCancel()
	if d.isClosed() {
		return ErrClosed
	}

	resolved, err := d.resolveURL(targetURL)
	if err != nil {
		return fmt.Errorf("failed to resolve URL '%s': %w", targetURL, err)
	}
	d.logger.Debug("Navigating.", zap.String("url", resolved.String()))

	req, err := http.NewRequestWithContext(navCtx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request for '%s': %w", resolved, err)
	}
	return d.execute(req)
}

// URL returns the address of the current page, or "" before any navigation.
func (d *Document) URL() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.currentURL == nil {
		return ""
	}
	return d.currentURL.String()
}

func (d *Document) execute(req *http.Request) error {
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if cur := d.URL(); cur != "" && req.Header.Get("Referer") == "" {
		req.Header.Set("Referer", cur)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Warn("Page responded with an error status.",
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.Request.URL.String()))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		d.logger.Debug("Response is not HTML, document is empty.", zap.String("content_type", contentType))
		d.replace(resp.Request.URL, nil)
		return nil
	}

	root, err := htmlquery.Parse(resp.Body)
	if err != nil {
		d.replace(resp.Request.URL, nil)
		return fmt.Errorf("failed to parse HTML from '%s': %w", resp.Request.URL, err)
	}
	d.replace(resp.Request.URL, root)
	return nil
}

// Load replaces the document with markup without any network access.
func (d *Document) Load(markup string) error {
	if d.isClosed() {
		return ErrClosed
	}
	root, err := htmlquery.Parse(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse markup: %w", err)
	}
	d.mu.RLock()
	cur := d.currentURL
	d.mu.RUnlock()
	d.replace(cur, root)
	return nil
}

func (d *Document) replace(u *url.URL, root *html.Node) {
	d.mu.Lock()
	d.currentURL = u
	d.root = root
	d.mu.Unlock()

	if root != nil {
		if t := htmlquery.FindOne(root, "//title"); t != nil {
			d.logger.Debug("Document replaced.", zap.String("title", normalizeSpace(htmlquery.InnerText(t))))
		}
	}
}

func (d *Document) resolveURL(target string) (*url.URL, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	cur := d.currentURL
	d.mu.RUnlock()

	if cur != nil && !parsed.IsAbs() {
		return cur.ResolveReference(parsed), nil
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("initial navigation target must be an absolute URL: '%s'", target)
	}
	return parsed, nil
}

// -- Queries --

// QueryAll returns the elements matching loc in document order.
func (d *Document) QueryAll(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.isClosed() {
		return nil, ErrClosed
	}
	expr, err := locatorXPath(loc)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return nil, nil
	}
	nodes, err := htmlquery.QueryAll(d.root, expr)
	if err != nil {
		return nil, fmt.Errorf("invalid XPath '%s': %w", expr, err)
	}
	out := make([]dom.Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &element{doc: d, node: n, path: nodePath(n)})
	}
	return out, nil
}

// Title returns the trimmed text of the <title> element.
func (d *Document) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return "", nil
	}
	t := htmlquery.FindOne(d.root, "//title")
	if t == nil {
		return "", nil
	}
	return normalizeSpace(htmlquery.InnerText(t)), nil
}

// BodyText returns the whitespace-normalized text of <body>.
func (d *Document) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return "", nil
	}
	body := htmlquery.FindOne(d.root, "//body")
	if body == nil {
		return "", nil
	}
	return renderedText(body), nil
}

// HTML serializes the current document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.root == nil {
		return "", nil
	}
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return buf.String(), nil
}

// -- Mutation --

// Mutate runs fn with exclusive access to the document tree.
func (d *Document) Mutate(fn func(root *html.Node) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.root == nil {
		return errors.New("document is empty")
	}
	return fn(d.root)
}

// After runs fn once delay has passed, unless the document is closed first.
func (d *Document) After(delay time.Duration, fn func(d *Document)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending.Add(1)
	t := time.AfterFunc(delay, func() {
		defer d.pending.Done()
		if d.isClosed() {
			return
		}
		fn(d)
	})
	d.timers = append(d.timers, t)
}

// OnClick registers h for clicks on the element with the given id.
func (d *Document) OnClick(id string, h ClickHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = h
}

// SetText replaces the children of the element with id by a text node.
func (d *Document) SetText(id, text string) error {
	return d.Mutate(func(root *html.Node) error {
		n, err := byID(root, id)
		if err != nil {
			return err
		}
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: text})
		return nil
	})
}

// SetAttribute sets an attribute on the element with id.
func (d *Document) SetAttribute(id, key, val string) error {
	return d.Mutate(func(root *html.Node) error {
		n, err := byID(root, id)
		if err != nil {
			return err
		}
		setAttr(n, key, val)
		return nil
	})
}

// RemoveAttribute removes an attribute from the element with id.
func (d *Document) RemoveAttribute(id, key string) error {
	return d.Mutate(func(root *html.Node) error {
		n, err := byID(root, id)
		if err != nil {
			return err
		}
		removeAttr(n, key)
		return nil
	})
}

// Append parses fragment in the context of the element with id and appends
// the result to it.
func (d *Document) Append(parentID, fragment string) error {
	return d.Mutate(func(root *html.Node) error {
		parent, err := byID(root, parentID)
		if err != nil {
			return err
		}
		nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
		if err != nil {
			return fmt.Errorf("failed to parse fragment: %w", err)
		}
		for _, n := range nodes {
			parent.AppendChild(n)
		}
		return nil
	})
}

// Remove detaches the element with id. Handles to it become stale.
func (d *Document) Remove(id string) error {
	return d.Mutate(func(root *html.Node) error {
		n, err := byID(root, id)
		if err != nil {
			return err
		}
		n.Parent.RemoveChild(n)
		return nil
	})
}

// -- Lifecycle --

// Close cancels in-flight requests, stops scheduled mutations and waits for
// any that are already running.
func (d *Document) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.logger.Debug("Closing static document.")
		d.cancel()

		d.mu.Lock()
		d.closed = true
		for _, t := range d.timers {
			if t.Stop() {
				d.pending.Done()
			}
		}
		d.timers = nil
		d.mu.Unlock()

		d.client.CloseIdleConnections()
	})

	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for scheduled mutations: %w", ctx.Err())
	}
}

func (d *Document) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// -- Click consequences --

func (d *Document) click(ctx context.Context, el *element) error {
	// Everything read from the tree is captured under the lock; handlers and
	// scheduled mutations may rewrite it once the lock is released.
	d.mu.RLock()
	node := el.node
	desc := nodePath(node)
	id := htmlquery.SelectAttr(node, "id")
	handler := d.handlers[id]
	disabled := hasAttr(node, "disabled")
	tag := strings.ToLower(node.Data)
	href := htmlquery.SelectAttr(node, "href")
	inputType := strings.ToLower(htmlquery.SelectAttr(node, "type"))
	form := parentForm(node)
	d.mu.RUnlock()

	if disabled {
		d.logger.Debug("Click on disabled element ignored.", zap.String("element", desc))
		return nil
	}
	if id != "" && handler != nil {
		return handler(ctx, d)
	}

	if tag == "a" {
		if href != "" && !strings.HasPrefix(href, "#") && !strings.HasPrefix(strings.ToLower(href), "javascript:") {
			return d.Navigate(ctx, href)
		}
	}

	isSubmit := (tag == "button" && (inputType == "submit" || inputType == "")) ||
		(tag == "input" && inputType == "submit")
	if isSubmit && form != nil {
		return d.submit(ctx, form)
	}

	if tag == "input" && (inputType == "checkbox" || inputType == "radio") {
		return d.Mutate(func(*html.Node) error {
			toggleChecked(node, inputType)
			return nil
		})
	}

	d.logger.Debug("Click had no consequence.", zap.String("element", desc))
	return nil
}

// submit serializes form the way a browser does for
// application/x-www-form-urlencoded and loads the response.
func (d *Document) submit(ctx context.Context, form *html.Node) error {
	d.mu.RLock()
	action := htmlquery.SelectAttr(form, "action")
	method := strings.ToUpper(htmlquery.SelectAttr(form, "method"))
	values := formValues(form)
	d.mu.RUnlock()

	if method != http.MethodPost {
		method = http.MethodGet
	}
	target, err := d.resolveURL(action)
	if err != nil {
		return fmt.Errorf("failed to determine form submission URL: %w", err)
	}

	submitCtx, cancel := dom.CombineContext(d.ctx, ctx)
	defer cancel()

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(submitCtx, method, target.String(), strings.NewReader(values.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		u := *target
		u.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(submitCtx, method, u.String(), nil)
		if err != nil {
			return err
		}
	}
	d.logger.Debug("Submitting form.", zap.String("method", method), zap.String("url", target.String()))
	return d.execute(req)
}

func formValues(form *html.Node) url.Values {
	values := url.Values{}
	for _, input := range htmlquery.Find(form, ".//input | .//textarea | .//select") {
		name := htmlquery.SelectAttr(input, "name")
		if name == "" || hasAttr(input, "disabled") {
			continue
		}
		switch strings.ToLower(input.Data) {
		case "input":
			switch strings.ToLower(htmlquery.SelectAttr(input, "type")) {
			case "checkbox", "radio":
				if hasAttr(input, "checked") {
					v := htmlquery.SelectAttr(input, "value")
					if v == "" {
						v = "on"
					}
					values.Add(name, v)
				}
			case "submit", "button", "image", "reset", "file":
			default:
				values.Add(name, htmlquery.SelectAttr(input, "value"))
			}
		case "textarea":
			values.Add(name, htmlquery.InnerText(input))
		case "select":
			if opt := selectedOption(input); opt != nil {
				values.Add(name, optionValue(opt))
			}
		}
	}
	return values
}
