// internal/browser/dom/dom.go
// Package dom defines the browser capability the step engine consumes. Every
// driver (chromedp, playwright, the static in-process DOM) implements Document
// and Element; nothing above this package depends on a specific automation
// protocol.
package dom

import (
	"context"
	"errors"
	"fmt"
)

// By names the strategy a Locator uses to find elements.
type By int

const (
	// ByID matches the element whose id attribute equals the value.
	ByID By = iota
	// ByTag matches elements by tag name (e.g. "body").
	ByTag
	// ByCSS matches elements with an arbitrary CSS selector.
	ByCSS
)

func (b By) String() string {
	switch b {
	case ByID:
		return "id"
	case ByTag:
		return "tag"
	case ByCSS:
		return "css"
	default:
		return fmt.Sprintf("By(%d)", int(b))
	}
}

// Locator is an opaque query used to find zero or more elements in a document.
type Locator struct {
	By    By
	Value string
}

// ID returns a locator matching an element id.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// Tag returns a locator matching elements by tag name.
func Tag(name string) Locator { return Locator{By: ByTag, Value: name} }

// CSS returns a locator matching a CSS selector.
func CSS(selector string) Locator { return Locator{By: ByCSS, Value: selector} }

// Body is the universal container every ambiguous lookup falls back to.
var Body = Tag("body")

// CSSSelector renders the locator as a CSS selector, which is what both
// browser drivers query with.
func (l Locator) CSSSelector() string {
	switch l.By {
	case ByID:
		return "#" + cssEscapeIdent(l.Value)
	default:
		return l.Value
	}
}

func (l Locator) String() string {
	return l.By.String() + "=" + l.Value
}

// cssEscapeIdent escapes the characters that would break an id selector.
// Convention-derived ids only contain [a-z0-9_-] plus whatever the caller
// passed, so a conservative backslash escape is enough.
func cssEscapeIdent(s string) string {
	out := make([]rune, 0, len(s))
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-' && i > 0, r > 0x7f:
			out = append(out, r)
		case r >= '0' && r <= '9' && i > 0:
			out = append(out, r)
		case r >= '0' && r <= '9':
			// Leading digits must be hex-escaped.
			out = append(out, []rune(fmt.Sprintf(`\3%c `, r))...)
		default:
			out = append(out, '\\', r)
		}
	}
	return string(out)
}

// ErrNotSelectable is returned by select operations on an element that is not
// a <select> control.
var ErrNotSelectable = errors.New("element is not a select control")

// ErrOptionNotFound is returned when no option of a select control has the
// requested visible text.
var ErrOptionNotFound = errors.New("no option with the requested visible text")

// ErrStaleElement is returned when an element handle no longer resolves to a
// node in the current document.
var ErrStaleElement = errors.New("element is no longer attached to the document")

// Element is a handle to one node in the current document.
type Element interface {
	// Text returns the rendered text content of the element.
	Text(ctx context.Context) (string, error)
	// Attribute returns the named attribute and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)
	// Value returns the live value of a form control.
	Value(ctx context.Context) (string, error)
	Displayed(ctx context.Context) (bool, error)
	Enabled(ctx context.Context) (bool, error)
	Clear(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Click(ctx context.Context) error
	// SelectByText selects the option of a <select> whose visible text
	// equals text exactly.
	SelectByText(ctx context.Context, text string) error
	// SelectedText returns the visible text of the first selected option.
	SelectedText(ctx context.Context) (string, error)
	// Describe returns a short human readable identity used in diagnostics.
	Describe() string
}

// Document is the page-level capability: navigation, queries and the
// document-wide reads.
type Document interface {
	Navigate(ctx context.Context, url string) error
	// QueryAll returns every element currently matching the locator. An empty
	// slice with a nil error means nothing matches right now.
	QueryAll(ctx context.Context, loc Locator) ([]Element, error)
	Title(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	Close(ctx context.Context) error
}

// QueryOne returns the first element matching loc, or nil when none match.
func QueryOne(ctx context.Context, doc Document, loc Locator) (Element, error) {
	elems, err := doc.QueryAll(ctx, loc)
	if err != nil {
		return nil, err
	}
	if len(elems) == 0 {
		return nil, nil
	}
	return elems[0], nil
}
