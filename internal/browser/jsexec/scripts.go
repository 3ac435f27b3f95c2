// internal/browser/jsexec/scripts.go
// Package jsexec holds the JavaScript the real-browser drivers run inside the
// page. Every element read goes through one of the functions here so the
// chromedp and playwright drivers agree on what "text", "value" or
// "displayed" mean.
//
// Elements found by Query are kept in a page-global registry keyed by a
// per-document token, so a handle obtained before a navigation can never
// resolve to a node of the next page.
package jsexec

import (
	"encoding/json"
	"fmt"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// RegistryName is the window property holding the element registry.
const RegistryName = "__webstepRefs"

// Func is the source of a JavaScript function taking (el, arg).
type Func string

// Element functions. Each receives the element and an optional argument.
const (
	// Attached does nothing; the Call and Guard wrappers already report a
	// detached element as stale.
	Attached Func = `function(el) { return true; }`

	Text Func = `function(el) {
	return el.innerText === undefined ? el.textContent : el.innerText;
}`

	Attribute Func = `function(el, name) {
	return el.hasAttribute(name) ? {ok: true, v: el.getAttribute(name)} : {ok: false, v: ""};
}`

	Value Func = `function(el) {
	switch (el.tagName) {
	case "INPUT": case "TEXTAREA": case "SELECT": case "OPTION": case "BUTTON":
		return el.value === undefined || el.value === null ? "" : String(el.value);
	}
	return el.getAttribute("value") || "";
}`

	Displayed Func = `function(el) {
	if (el.hidden) return false;
	if (el.tagName === "INPUT" && String(el.type).toLowerCase() === "hidden") return false;
	var s = window.getComputedStyle(el);
	if (s.display === "none" || s.visibility === "hidden") return false;
	return el.getClientRects().length > 0;
}`

	Enabled Func = `function(el) {
	return !(el.matches && el.matches(":disabled"));
}`

	// SelectByText answers "ok", "not-select" or "no-option".
	SelectByText Func = `function(el, text) {
	if (el.tagName !== "SELECT") return "not-select";
	var norm = function(s) { return String(s).replace(/\s+/g, " ").trim(); };
	var match = null;
	for (var i = 0; i < el.options.length; i++) {
		if (norm(el.options[i].text) === text) { match = el.options[i]; break; }
	}
	if (match === null) return "no-option";
	match.selected = true;
	el.dispatchEvent(new Event("input", {bubbles: true}));
	el.dispatchEvent(new Event("change", {bubbles: true}));
	return "ok";
}`

	SelectedText Func = `function(el) {
	if (el.tagName !== "SELECT") return {ok: false, v: ""};
	var o = el.selectedIndex >= 0 ? el.options[el.selectedIndex] : null;
	return {ok: true, v: o ? String(o.text).replace(/\s+/g, " ").trim() : ""};
}`
)

// Outcomes of SelectByText.
const (
	SelectOK        = "ok"
	SelectNotSelect = "not-select"
	SelectNoOption  = "no-option"
)

// SelectError maps a SelectByText outcome to the dom error kinds.
func SelectError(describe, text, outcome string) error {
	switch outcome {
	case SelectOK:
		return nil
	case SelectNotSelect:
		return fmt.Errorf("%s: %w", describe, dom.ErrNotSelectable)
	case SelectNoOption:
		return fmt.Errorf("%s has no option %q: %w", describe, text, dom.ErrOptionNotFound)
	}
	return fmt.Errorf("%s: unexpected select outcome %q", describe, outcome)
}

// Ref identifies an element registered by Query.
type Ref struct {
	Token string `json:"t"`
	ID    int64  `json:"id"`
}

func (r Ref) String() string { return fmt.Sprintf("element#%d", r.ID) }

// QueryResult is what a Query expression evaluates to.
type QueryResult struct {
	Token string  `json:"t"`
	IDs   []int64 `json:"ids"`
}

// Refs expands the result into one Ref per matched element, in document order.
func (q QueryResult) Refs() []Ref {
	refs := make([]Ref, len(q.IDs))
	for i, id := range q.IDs {
		refs[i] = Ref{Token: q.Token, ID: id}
	}
	return refs
}

// Result is what a Call expression, or a Guard function, evaluates to.
type Result struct {
	Stale bool            `json:"stale"`
	V     json.RawMessage `json:"v"`
}

// Flag is the {ok, v} shape returned by Attribute and SelectedText.
type Flag struct {
	OK bool   `json:"ok"`
	V  string `json:"v"`
}

// Decode unmarshals the function's return value into out.
func (r Result) Decode(out interface{}) error {
	if len(r.V) == 0 || string(r.V) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.V, out); err != nil {
		return fmt.Errorf("failed to decode script result: %w", err)
	}
	return nil
}

// Query returns an expression that registers every element matching the CSS
// selector and evaluates to a QueryResult.
func Query(selector string) string {
	return fmt.Sprintf(`(function() {
	var r = window[%[1]s];
	if (!r) {
		r = window[%[1]s] = {t: Math.random().toString(36).slice(2) + Date.now().toString(36), n: 0, m: new Map(), ids: new WeakMap()};
	}
	var found = document.querySelectorAll(%[2]s);
	var ids = [];
	for (var i = 0; i < found.length; i++) {
		var el = found[i];
		var id = r.ids.get(el);
		if (id === undefined) {
			id = ++r.n;
			r.ids.set(el, id);
			r.m.set(id, el);
		}
		ids.push(id);
	}
	return {t: r.t, ids: ids};
})()`, literal(RegistryName), literal(selector))
}

// Handle returns an expression evaluating to the registered node, or null
// when the registry was reset or the node is gone.
func Handle(ref Ref) string {
	return fmt.Sprintf(`(function() {
	var r = window[%s];
	return r && r.t === %s ? (r.m.get(%d) || null) : null;
})()`, literal(RegistryName), literal(ref.Token), ref.ID)
}

// Call returns an expression that applies fn to the registered element and
// evaluates to a Result. A detached or unknown element yields stale.
func Call(ref Ref, fn Func, arg interface{}) (string, error) {
	a, err := json.Marshal(arg)
	if err != nil {
		return "", fmt.Errorf("failed to encode script argument: %w", err)
	}
	return fmt.Sprintf(`(function() {
	var el = %s;
	if (!el || !el.isConnected) return {stale: true};
	return {stale: false, v: (%s)(el, %s)};
})()`, Handle(ref), fn, a), nil
}

// Guard wraps fn into a function of (el, arg) that evaluates to a Result, for
// drivers that hold native element handles.
func Guard(fn Func) string {
	return fmt.Sprintf(`function(el, arg) {
	if (!el || !el.isConnected) return {stale: true};
	return {stale: false, v: (%s)(el, arg)};
}`, fn)
}

// BodyText is an expression evaluating to the rendered text of the body.
const BodyText = `document.body ? document.body.innerText : ""`

func literal(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
