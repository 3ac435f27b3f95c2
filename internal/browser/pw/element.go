// internal/browser/pw/element.go
package pw

import (
	"context"
	"fmt"

	"github.com/playwright-community/playwright-go"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/browser/jsexec"
)

type element struct {
	doc    *Document
	handle playwright.ElementHandle
	loc    dom.Locator
	index  int
}

var _ dom.Element = (*element)(nil)

func (e *element) call(ctx context.Context, op string, fn jsexec.Func, arg, out interface{}) error {
	op = op + " " + e.Describe()
	if _, err := e.doc.budget(ctx, op, e.doc.actionTimeout); err != nil {
		return err
	}
	v, err := e.handle.Evaluate(jsexec.Guard(fn), arg)
	if err != nil {
		return e.doc.wrap(op, err)
	}
	res, err := decodeResult(v)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.Stale {
		return fmt.Errorf("%s: %w", e.Describe(), dom.ErrStaleElement)
	}
	return res.Decode(out)
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
	return e.fill(ctx, "clear", "")
}

// SendKeys appends to the current value. Fill replaces, so the existing value
// is read first.
func (e *element) SendKeys(ctx context.Context, text string) error {
	cur, err := e.Value(ctx)
	if err != nil {
		return err
	}
	return e.fill(ctx, "type into", cur+text)
}

func (e *element) fill(ctx context.Context, op, value string) error {
	op = op + " " + e.Describe()
	timeout, err := e.doc.budget(ctx, op, e.doc.actionTimeout)
	if err != nil {
		return err
	}
	if err := e.handle.Fill(value, playwright.ElementHandleFillOptions{Timeout: timeout}); err != nil {
		return e.doc.wrap(op, err)
	}
	return nil
}

func (e *element) Click(ctx context.Context) error {
	op := "click " + e.Describe()
	timeout, err := e.doc.budget(ctx, op, e.doc.actionTimeout)
	if err != nil {
		return err
	}
	if err := e.handle.Click(playwright.ElementHandleClickOptions{Timeout: timeout}); err != nil {
		return e.doc.wrap(op, err)
	}
	return nil
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
	return fmt.Sprintf("%s [%d]", e.loc, e.index)
}
