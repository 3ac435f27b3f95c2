// internal/condition/condition.go
// Package condition provides the predicates evaluated against a located
// element. Whether a predicate is polled or checked once is a property of the
// predicate itself: positive, rendering-dependent state is polled; absence and
// settled state are checked once against the current document.
package condition

import (
	"context"
	"fmt"
	"strings"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// Mode says how a condition must be evaluated.
type Mode int

const (
	// Polled conditions are retried until they hold or the wait budget runs out.
	Polled Mode = iota
	// Immediate conditions are evaluated exactly once against the current state.
	Immediate
)

func (m Mode) String() string {
	if m == Immediate {
		return "immediate"
	}
	return "polled"
}

// Observation is the outcome of evaluating a condition once.
type Observation struct {
	Satisfied bool
	// Actual is the value the condition inspected (text, value, attribute),
	// kept for diagnostics.
	Actual string
}

// Condition is a predicate over one element.
type Condition interface {
	Name() string
	// Expected is the operand the condition compares against, if any.
	Expected() string
	Mode() Mode
	Evaluate(ctx context.Context, el dom.Element) (Observation, error)
}

type predicate struct {
	name     string
	expected string
	mode     Mode
	eval     func(ctx context.Context, el dom.Element) (Observation, error)
}

func (p *predicate) Name() string     { return p.name }
func (p *predicate) Expected() string { return p.expected }
func (p *predicate) Mode() Mode       { return p.mode }

func (p *predicate) Evaluate(ctx context.Context, el dom.Element) (Observation, error) {
	if el == nil {
		return Observation{}, nil
	}
	return p.eval(ctx, el)
}

// Exists holds as soon as the element is present.
func Exists() Condition {
	return &predicate{
		name: "presence",
		mode: Polled,
		eval: func(context.Context, dom.Element) (Observation, error) {
			return Observation{Satisfied: true}, nil
		},
	}
}

// Clickable holds when the element is displayed and enabled. A present but
// disabled control never satisfies it.
func Clickable() Condition {
	return &predicate{
		name: "clickability",
		mode: Polled,
		eval: func(ctx context.Context, el dom.Element) (Observation, error) {
			displayed, err := el.Displayed(ctx)
			if err != nil {
				return Observation{}, err
			}
			enabled, err := el.Enabled(ctx)
			if err != nil {
				return Observation{}, err
			}
			return Observation{
				Satisfied: displayed && enabled,
				Actual:    fmt.Sprintf("displayed=%t enabled=%t", displayed, enabled),
			}, nil
		},
	}
}

// TextContains holds when the element text contains substr.
func TextContains(substr string) Condition {
	return textPredicate("text contains", substr, Polled, func(actual string) bool {
		return strings.Contains(actual, substr)
	})
}

// TextEquals holds when the element text equals exact.
func TextEquals(exact string) Condition {
	return textPredicate("text equals", exact, Polled, func(actual string) bool {
		return actual == exact
	})
}

// TextExcludes holds when the element text does not contain substr. It is
// evaluated once.
func TextExcludes(substr string) Condition {
	return textPredicate("text excludes", substr, Immediate, func(actual string) bool {
		return !strings.Contains(actual, substr)
	})
}

// BodyExcludes is TextExcludes meant to be evaluated against dom.Body, used
// for "should not see" checks where no container is implied.
func BodyExcludes(substr string) Condition {
	return textPredicate("page excludes", substr, Immediate, func(actual string) bool {
		return !strings.Contains(actual, substr)
	})
}

// ValueEquals holds when the control value equals exact.
func ValueEquals(exact string) Condition {
	return valuePredicate("value equals", exact, func(actual string) bool {
		return actual == exact
	})
}

// ValueContains holds when the control value contains substr.
func ValueContains(substr string) Condition {
	return valuePredicate("value contains", substr, func(actual string) bool {
		return strings.Contains(actual, substr)
	})
}

// AttributeEquals holds when attribute attr is present and equals exact.
func AttributeEquals(attr, exact string) Condition {
	return &predicate{
		name:     "attribute " + attr + " equals",
		expected: exact,
		mode:     Polled,
		eval: func(ctx context.Context, el dom.Element) (Observation, error) {
			v, ok, err := el.Attribute(ctx, attr)
			if err != nil {
				return Observation{}, err
			}
			return Observation{Satisfied: ok && v == exact, Actual: v}, nil
		},
	}
}

// SelectionEquals holds when the first selected option of a select control
// shows exactly text.
func SelectionEquals(text string) Condition {
	return &predicate{
		name:     "selection equals",
		expected: text,
		mode:     Polled,
		eval: func(ctx context.Context, el dom.Element) (Observation, error) {
			v, err := el.SelectedText(ctx)
			if err != nil {
				return Observation{}, err
			}
			return Observation{Satisfied: v == text, Actual: v}, nil
		},
	}
}

// Once returns c re-marked for single-shot evaluation.
func Once(c Condition) Condition {
	return &immediate{Condition: c}
}

type immediate struct{ Condition }

func (immediate) Mode() Mode { return Immediate }

func textPredicate(name, expected string, mode Mode, match func(string) bool) Condition {
	return &predicate{
		name:     name,
		expected: expected,
		mode:     mode,
		eval: func(ctx context.Context, el dom.Element) (Observation, error) {
			text, err := el.Text(ctx)
			if err != nil {
				return Observation{}, err
			}
			return Observation{Satisfied: match(text), Actual: text}, nil
		},
	}
}

func valuePredicate(name, expected string, match func(string) bool) Condition {
	return &predicate{
		name:     name,
		expected: expected,
		mode:     Polled,
		eval: func(ctx context.Context, el dom.Element) (Observation, error) {
			v, err := el.Value(ctx)
			if err != nil {
				return Observation{}, err
			}
			return Observation{Satisfied: match(v), Actual: v}, nil
		},
	}
}
