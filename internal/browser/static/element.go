// internal/browser/static/element.go
package static

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

type element struct {
	doc  *Document
	node *html.Node
	path string // XPath of node when it was queried
}

var _ dom.Element = (*element)(nil)

// read runs fn under the document read lock after checking the node is still
// part of the current tree.
func (e *element) read(ctx context.Context, fn func(n *html.Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	if !attached(e.doc.root, e.node) {
		return fmt.Errorf("%s: %w", e.Describe(), dom.ErrStaleElement)
	}
	return fn(e.node)
}

func (e *element) write(ctx context.Context, fn func(n *html.Node) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	if !attached(e.doc.root, e.node) {
		return fmt.Errorf("%s: %w", e.Describe(), dom.ErrStaleElement)
	}
	return fn(e.node)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.read(ctx, func(n *html.Node) error {
		text = renderedText(n)
		return nil
	})
	return text, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var (
		val string
		ok  bool
	)
	err := e.read(ctx, func(n *html.Node) error {
		for _, a := range n.Attr {
			if a.Key == name {
				val, ok = a.Val, true
				return nil
			}
		}
		return nil
	})
	return val, ok, err
}

func (e *element) Value(ctx context.Context) (string, error) {
	var val string
	err := e.read(ctx, func(n *html.Node) error {
		val = controlValue(n)
		return nil
	})
	return val, err
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	visible := true
	err := e.read(ctx, func(n *html.Node) error {
		if strings.EqualFold(n.Data, "input") && strings.EqualFold(htmlquery.SelectAttr(n, "type"), "hidden") {
			visible = false
			return nil
		}
		for p := n; p != nil && p.Type == html.ElementNode; p = p.Parent {
			if hasAttr(p, "hidden") || hiddenByStyle(htmlquery.SelectAttr(p, "style")) {
				visible = false
				return nil
			}
		}
		return nil
	})
	return visible, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	enabled := true
	err := e.read(ctx, func(n *html.Node) error {
		if hasAttr(n, "disabled") {
			enabled = false
			return nil
		}
		for p := n.Parent; p != nil; p = p.Parent {
			if p.Type == html.ElementNode && strings.EqualFold(p.Data, "fieldset") && hasAttr(p, "disabled") {
				enabled = false
				return nil
			}
		}
		return nil
	})
	return enabled, err
}

func (e *element) Clear(ctx context.Context) error {
	return e.write(ctx, func(n *html.Node) error {
		if err := e.checkEditable(n); err != nil {
			return err
		}
		setControlValue(n, "")
		return nil
	})
}

// SendKeys appends text to the current value, as typing into a focused
// control does.
func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.write(ctx, func(n *html.Node) error {
		if err := e.checkEditable(n); err != nil {
			return err
		}
		setControlValue(n, controlValue(n)+text)
		return nil
	})
}

func (e *element) Click(ctx context.Context) error {
	if err := e.read(ctx, func(*html.Node) error { return nil }); err != nil {
		return err
	}
	return e.doc.click(ctx, e)
}

func (e *element) SelectByText(ctx context.Context, text string) error {
	return e.write(ctx, func(n *html.Node) error {
		if !strings.EqualFold(n.Data, "select") {
			return fmt.Errorf("%s: %w", e.Describe(), dom.ErrNotSelectable)
		}
		options := htmlquery.Find(n, ".//option")
		var match *html.Node
		for _, opt := range options {
			if normalizeSpace(htmlquery.InnerText(opt)) == text {
				match = opt
				break
			}
		}
		if match == nil {
			return fmt.Errorf("%s has no option %q: %w", e.Describe(), text, dom.ErrOptionNotFound)
		}
		multiple := hasAttr(n, "multiple")
		for _, opt := range options {
			switch {
			case opt == match:
				setAttr(opt, "selected", "selected")
			case !multiple:
				removeAttr(opt, "selected")
			}
		}
		return nil
	})
}

func (e *element) SelectedText(ctx context.Context) (string, error) {
	var text string
	err := e.read(ctx, func(n *html.Node) error {
		if !strings.EqualFold(n.Data, "select") {
			return fmt.Errorf("%s: %w", e.Describe(), dom.ErrNotSelectable)
		}
		if opt := selectedOption(n); opt != nil {
			text = normalizeSpace(htmlquery.InnerText(opt))
		}
		return nil
	})
	return text, err
}

// Describe returns the node's XPath as captured when it was queried.
func (e *element) Describe() string {
	return e.path
}

func (e *element) checkEditable(n *html.Node) error {
	switch strings.ToLower(n.Data) {
	case "textarea":
	case "input":
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "submit", "button", "image", "reset", "file", "checkbox", "radio", "hidden":
			return fmt.Errorf("element %s is not a text control", e.Describe())
		}
	default:
		return fmt.Errorf("element %s is not a text control", e.Describe())
	}
	if hasAttr(n, "disabled") || hasAttr(n, "readonly") {
		return fmt.Errorf("element %s is not editable", e.Describe())
	}
	return nil
}

// -- Tree helpers --

func attached(root, n *html.Node) bool {
	if root == nil {
		return false
	}
	for p := n; p != nil; p = p.Parent {
		if p == root {
			return true
		}
	}
	return false
}

func byID(root *html.Node, id string) (*html.Node, error) {
	n := htmlquery.FindOne(root, "//*[@id="+xpathLiteral(id)+"]")
	if n == nil {
		return nil, fmt.Errorf("no element with id %q", id)
	}
	return n, nil
}

func controlValue(n *html.Node) string {
	switch strings.ToLower(n.Data) {
	case "textarea":
		return htmlquery.InnerText(n)
	case "select":
		if opt := selectedOption(n); opt != nil {
			return optionValue(opt)
		}
		return ""
	default:
		return htmlquery.SelectAttr(n, "value")
	}
}

func setControlValue(n *html.Node, v string) {
	if strings.EqualFold(n.Data, "textarea") {
		replaceChildren(n, &html.Node{Type: html.TextNode, Data: v})
		return
	}
	setAttr(n, "value", v)
}

// selectedOption returns the option a browser would report as selected: the
// first one carrying the selected attribute, else the first option of a
// single-choice select.
func selectedOption(sel *html.Node) *html.Node {
	options := htmlquery.Find(sel, ".//option")
	for _, opt := range options {
		if hasAttr(opt, "selected") {
			return opt
		}
	}
	if len(options) > 0 && !hasAttr(sel, "multiple") {
		return options[0]
	}
	return nil
}

func optionValue(opt *html.Node) string {
	for _, a := range opt.Attr {
		if a.Key == "value" {
			return a.Val
		}
	}
	return normalizeSpace(htmlquery.InnerText(opt))
}

func toggleChecked(n *html.Node, inputType string) {
	if inputType == "checkbox" {
		if hasAttr(n, "checked") {
			removeAttr(n, "checked")
		} else {
			setAttr(n, "checked", "checked")
		}
		return
	}

	name := htmlquery.SelectAttr(n, "name")
	scope := parentForm(n)
	if scope == nil {
		scope = n
		for scope.Parent != nil {
			scope = scope.Parent
		}
	}
	if name != "" {
		for _, r := range htmlquery.Find(scope, ".//input[@type='radio' and @name="+xpathLiteral(name)+"]") {
			removeAttr(r, "checked")
		}
	}
	setAttr(n, "checked", "checked")
}

func parentForm(n *html.Node) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && strings.EqualFold(p.Data, "form") {
			return p
		}
	}
	return nil
}

func replaceChildren(n *html.Node, child *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	n.AppendChild(child)
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr = append(n.Attr[:i], n.Attr[i+1:]...)
			return
		}
	}
}

func hiddenByStyle(style string) bool {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

// renderedText approximates innerText: script and style content is skipped,
// form control values are not text, and runs of whitespace collapse.
func renderedText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch strings.ToLower(n.Data) {
			case "script", "style", "head", "template":
				return
			}
			if hasAttr(n, "hidden") || hiddenByStyle(htmlquery.SelectAttr(n, "style")) {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return normalizeSpace(b.String())
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
