// internal/browser/cdp/element.go
package cdp

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/browser/jsexec"
)

type element struct {
	doc *Document
	ref jsexec.Ref
	loc dom.Locator
}

var _ dom.Element = (*element)(nil)

// call applies fn inside the page and decodes its return value into out.
func (e *element) call(ctx context.Context, op string, fn jsexec.Func, arg, out interface{}) error {
	expr, err := jsexec.Call(e.ref, fn, arg)
	if err != nil {
		return err
	}
	var res jsexec.Result
	if err := e.doc.evaluate(ctx, op+" "+e.Describe(), expr, &res); err != nil {
		return err
	}
	if res.Stale {
		return fmt.Errorf("%s: %w", e.Describe(), dom.ErrStaleElement)
	}
	return res.Decode(out)
}

// act runs a chromedp query action against the element after checking it is
// still attached. Query actions poll for their node, so a stale handle would
// otherwise only surface as a timeout.
func (e *element) act(ctx context.Context, op string, action func(sel string) chromedp.Action) error {
	var attached bool
	if err := e.call(ctx, op, jsexec.Attached, nil, &attached); err != nil {
		return err
	}
	return e.doc.run(ctx, e.doc.actionTimeout, op+" "+e.Describe(), action(jsexec.Handle(e.ref)))
}

func (e *element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, "read text", jsexec.Text, nil, &s)
	return s, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, bool, error) {
	var f jsexec.Flag
	if err := e.call(ctx, "read attribute", jsexec.Attribute, name, &f); err != nil {
		return "", false, err
	}
	return f.V, f.OK, nil
}

func (e *element) Value(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, "read value", jsexec.Value, nil, &s)
	return s, err
}

func (e *element) Displayed(ctx context.Context) (bool, error) {
	var b bool
	err := e.call(ctx, "check visibility", jsexec.Displayed, nil, &b)
	return b, err
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	var b bool
	err := e.call(ctx, "check enabled", jsexec.Enabled, nil, &b)
	return b, err
}

func (e *element) Clear(ctx context.Context) error {
	return e.act(ctx, "clear", func(sel string) chromedp.Action {
		return chromedp.Clear(sel, chromedp.ByJSPath)
	})
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.act(ctx, "type into", func(sel string) chromedp.Action {
		return chromedp.SendKeys(sel, text, chromedp.ByJSPath)
	})
}

func (e *element) Click(ctx context.Context) error {
	return e.act(ctx, "click", func(sel string) chromedp.Action {
		return chromedp.Click(sel, chromedp.ByJSPath)
	})
}

func (e *element) SelectByText(ctx context.Context, text string) error {
	var outcome string
	if err := e.call(ctx, "select", jsexec.SelectByText, text, &outcome); err != nil {
		return err
	}
	return jsexec.SelectError(e.Describe(), text, outcome)
}

func (e *element) SelectedText(ctx context.Context) (string, error) {
	var f jsexec.Flag
	if err := e.call(ctx, "read selection", jsexec.SelectedText, nil, &f); err != nil {
		return "", err
	}
	if !f.OK {
		return "", fmt.Errorf("%s: %w", e.Describe(), dom.ErrNotSelectable)
	}
	return f.V, nil
}

func (e *element) Describe() string {
	return fmt.Sprintf("%s (%s)", e.loc, e.ref)
}
