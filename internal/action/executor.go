// internal/action/executor.go
// Package action implements the user-visible operations a step performs:
// filling fields, pressing buttons, and asserting on what the page shows.
// Every operation resolves its target through the locator convention and
// waits for it through the scenario's synchronizer, so no step ever reads a
// page that has not finished rendering what the step depends on.
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/condition"
	"github.com/xkilldash9x/webstep/internal/failure"
	"github.com/xkilldash9x/webstep/internal/locator"
	"github.com/xkilldash9x/webstep/internal/scenario"
	"github.com/xkilldash9x/webstep/internal/wait"
)

// Executor runs step operations against one scenario's document.
type Executor struct {
	state    *scenario.State
	resolver locator.Resolver
	sync     *wait.Synchronizer
	logger   *zap.Logger
}

// NewExecutor binds an executor to state. A nil resolver uses the default
// naming convention.
func NewExecutor(state *scenario.State, resolver locator.Resolver) (*Executor, error) {
	if state == nil {
		return nil, errors.New("executor requires scenario state")
	}
	if resolver == nil {
		resolver = locator.NewConvention(nil)
	}
	logger := state.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s, err := wait.New(state.Doc, state.Budget, state.PollInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create synchronizer: %w", err)
	}

	return &Executor{
		state:    state,
		resolver: resolver,
		sync:     s,
		logger:   logger.Named("action"),
	}, nil
}

// State returns the scenario state the executor acts on.
func (e *Executor) State() *scenario.State { return e.state }

// -- Navigation --

// Visit loads the application's home page.
func (e *Executor) Visit(ctx context.Context) error {
	start := time.Now()
	if err := e.state.Doc.Navigate(ctx, e.state.BaseURL); err != nil {
		return fmt.Errorf("visit %s: %w", e.state.BaseURL, err)
	}
	e.done("visit", start, zap.String("url", e.state.BaseURL))
	return nil
}

// -- Fields --

// SetField waits for the named field, clears it and types value.
func (e *Executor) SetField(ctx context.Context, name, value string) error {
	return e.fill(ctx, "set field", e.resolver.Field(name), value)
}

// ChangeField replaces the named field's content. It behaves exactly like
// SetField.
func (e *Executor) ChangeField(ctx context.Context, name, value string) error {
	return e.fill(ctx, "change field", e.resolver.Field(name), value)
}

// ReadField waits for the named field and returns its current value.
func (e *Executor) ReadField(ctx context.Context, name string) (string, error) {
	start := time.Now()
	loc := e.resolver.Field(name)
	el, err := e.present(ctx, "read field", loc)
	if err != nil {
		return "", err
	}
	v, err := el.Value(ctx)
	if err != nil {
		return "", fmt.Errorf("read field %s: %w", loc, err)
	}
	e.done("read field", start, zap.Stringer("locator", loc))
	return v, nil
}

// AssertFieldEmpty checks once that the named field holds no value. An absent
// field fails the assertion.
func (e *Executor) AssertFieldEmpty(ctx context.Context, name string) error {
	start := time.Now()
	loc := e.resolver.Field(name)
	if _, err := e.sync.Check(ctx, []dom.Locator{loc}, condition.Once(condition.ValueEquals(""))); err != nil {
		return fmt.Errorf("field %q empty: %w", name, err)
	}
	e.done("assert field empty", start, zap.Stringer("locator", loc))
	return nil
}

// AssertFieldContains waits until the named field's value contains text.
func (e *Executor) AssertFieldContains(ctx context.Context, name, text string) error {
	return e.await(ctx, "assert field contains", []dom.Locator{e.resolver.Field(name)}, condition.ValueContains(text))
}

// AssertFieldValueEquals waits until the named field's value is exactly text.
func (e *Executor) AssertFieldValueEquals(ctx context.Context, name, text string) error {
	return e.await(ctx, "assert field value", []dom.Locator{e.resolver.Field(name)}, condition.ValueEquals(text))
}

// -- Dropdowns --

// SelectDropdown chooses the option whose visible text is exactly text.
func (e *Executor) SelectDropdown(ctx context.Context, name, text string) error {
	start := time.Now()
	loc := e.resolver.Field(name)
	el, err := e.present(ctx, "select", loc)
	if err != nil {
		return err
	}

	err = el.SelectByText(ctx, text)
	switch {
	case errors.Is(err, dom.ErrOptionNotFound):
		return &failure.AssertionError{
			Check:    "select option",
			Locator:  loc.String(),
			Expected: text,
			Reason:   "no option with that visible text",
			Err:      err,
		}
	case errors.Is(err, dom.ErrNotSelectable):
		return &failure.AssertionError{
			Check:    "select option",
			Locator:  loc.String(),
			Expected: text,
			Reason:   "element is not a select control",
			Err:      err,
		}
	case err != nil:
		return fmt.Errorf("select %q in %s: %w", text, loc, err)
	}

	e.done("select", start, zap.Stringer("locator", loc), zap.String("option", text))
	return nil
}

// ReadDropdownSelection returns the visible text of the selected option.
func (e *Executor) ReadDropdownSelection(ctx context.Context, name string) (string, error) {
	start := time.Now()
	loc := e.resolver.Field(name)
	el, err := e.present(ctx, "read selection", loc)
	if err != nil {
		return "", err
	}
	v, err := el.SelectedText(ctx)
	if err != nil {
		return "", fmt.Errorf("read selection %s: %w", loc, err)
	}
	e.done("read selection", start, zap.Stringer("locator", loc))
	return v, nil
}

// AssertDropdownSelection waits until the selected option shows exactly text.
func (e *Executor) AssertDropdownSelection(ctx context.Context, name, text string) error {
	return e.await(ctx, "assert selection", []dom.Locator{e.resolver.Field(name)}, condition.SelectionEquals(text))
}

// -- Clipboard --

// CopyField stores the named field's current value in the scenario clipboard
// and returns it.
func (e *Executor) CopyField(ctx context.Context, name string) (string, error) {
	start := time.Now()
	v, err := e.ReadField(ctx, name)
	if err != nil {
		return "", fmt.Errorf("copy: %w", err)
	}
	e.state.Clipboard.Store(v)
	e.done("copy", start, zap.Stringer("locator", e.resolver.Field(name)), zap.Int("length", len(v)))
	return v, nil
}

// PasteField writes the clipboard into the named field. It fails without
// touching the page when nothing was copied in this scenario.
func (e *Executor) PasteField(ctx context.Context, name string) error {
	v, ok := e.state.Clipboard.Load()
	if !ok {
		return &failure.OrderingError{Operation: "paste", Requires: "copy"}
	}
	return e.fill(ctx, "paste", e.resolver.Field(name), v)
}

// -- Buttons --

// PressButton waits until the named button is displayed and enabled, then
// clicks it. A present but disabled button is never clicked.
func (e *Executor) PressButton(ctx context.Context, name string) error {
	start := time.Now()
	loc := e.resolver.Button(name)
	m, err := e.sync.Await(ctx, []dom.Locator{loc}, condition.Clickable())
	if err != nil {
		return fmt.Errorf("press %q: %w", name, err)
	}
	if err := m.Element.Click(ctx); err != nil {
		return fmt.Errorf("press %q: click %s: %w", name, loc, err)
	}
	e.done("press", start, zap.Stringer("locator", loc))
	return nil
}

// -- Page assertions --

// AssertMessage waits until the message container shows text.
func (e *Executor) AssertMessage(ctx context.Context, text string) error {
	return e.await(ctx, "assert message", e.resolver.Candidates(locator.RoleMessage), condition.TextContains(text))
}

// AssertInResults waits until the results container shows text.
func (e *Executor) AssertInResults(ctx context.Context, text string) error {
	return e.await(ctx, "assert in results", e.resolver.Candidates(locator.RoleResults), condition.TextContains(text))
}

// AssertNotInResults checks once that the results container does not show
// text.
func (e *Executor) AssertNotInResults(ctx context.Context, text string) error {
	return e.check(ctx, "assert not in results", e.resolver.Candidates(locator.RoleResults), condition.TextExcludes(text))
}

// AssertNotOnPage checks once that the page body does not show text.
func (e *Executor) AssertNotOnPage(ctx context.Context, text string) error {
	return e.check(ctx, "assert not on page", []dom.Locator{dom.Body}, condition.BodyExcludes(text))
}

// AssertTitleContains checks once that the document title contains text.
func (e *Executor) AssertTitleContains(ctx context.Context, text string) error {
	start := time.Now()
	title, err := e.state.Doc.Title(ctx)
	if err != nil {
		return fmt.Errorf("read title: %w", err)
	}
	if !strings.Contains(title, text) {
		return &failure.AssertionError{
			Check:    "title contains",
			Locator:  "document title",
			Expected: text,
			Actual:   title,
		}
	}
	e.done("assert title", start, zap.String("title", title))
	return nil
}

// -- helpers --

func (e *Executor) fill(ctx context.Context, op string, loc dom.Locator, value string) error {
	start := time.Now()
	el, err := e.present(ctx, op, loc)
	if err != nil {
		return err
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("%s %s: clear: %w", op, loc, err)
	}
	if err := el.SendKeys(ctx, value); err != nil {
		return fmt.Errorf("%s %s: type: %w", op, loc, err)
	}
	e.done(op, start, zap.Stringer("locator", loc), zap.Int("length", len(value)))
	return nil
}

func (e *Executor) present(ctx context.Context, op string, loc dom.Locator) (dom.Element, error) {
	m, err := e.sync.Await(ctx, []dom.Locator{loc}, condition.Exists())
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", op, loc, err)
	}
	return m.Element, nil
}

func (e *Executor) await(ctx context.Context, op string, candidates []dom.Locator, cond condition.Condition) error {
	start := time.Now()
	m, err := e.sync.Await(ctx, candidates, cond)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.done(op, start, zap.Stringer("locator", m.Locator), zap.String("observed", m.Observation.Actual))
	return nil
}

func (e *Executor) check(ctx context.Context, op string, candidates []dom.Locator, cond condition.Condition) error {
	start := time.Now()
	m, err := e.sync.Check(ctx, candidates, cond)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	e.done(op, start, zap.Stringer("locator", m.Locator))
	return nil
}

func (e *Executor) done(op string, start time.Time, fields ...zap.Field) {
	fields = append(fields, zap.String("action", op), zap.Duration("elapsed", time.Since(start)))
	e.logger.Debug("Action completed.", fields...)
}
