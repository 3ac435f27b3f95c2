// internal/locator/resolver.go
// Package locator derives DOM locators from the human-readable names used in
// step text. The mapping is a naming convention shared with the application
// markup: form fields carry a "product_" id prefix, buttons a "-btn" suffix,
// and the message and results containers are found through an ordered list of
// well known ids that always ends with the page body.
package locator

import (
	"strings"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// Naming convention constants. These are fixed; a different scheme is a
// different Resolver.
const (
	FieldPrefix  = "product_"
	ButtonSuffix = "-btn"
)

// Role identifies a semantic container whose id is not derived from a name.
type Role string

const (
	RoleMessage Role = "message"
	RoleResults Role = "results"
)

// CandidateList is an ordered list of locators tried first-match-wins.
type CandidateList []dom.Locator

// Resolver converts semantic names into locators.
type Resolver interface {
	Field(name string) dom.Locator
	Button(name string) dom.Locator
	// Candidates returns the ordered lookup list for an ambiguous role. The
	// list is never empty.
	Candidates(role Role) CandidateList
}

// Strategies maps each ambiguous role to its ordered container ids.
type Strategies map[Role][]dom.Locator

// DefaultStrategies are the container ids used by the application markup.
func DefaultStrategies() Strategies {
	return Strategies{
		RoleMessage: {dom.ID("flash_message"), dom.ID("message"), dom.ID("flash")},
		RoleResults: {dom.ID("search_results"), dom.ID("results")},
	}
}

// Convention is the default Resolver.
type Convention struct {
	strategies Strategies
	fallback   dom.Locator
}

var _ Resolver = (*Convention)(nil)

// NewConvention returns a Convention resolver. A nil strategies map uses
// DefaultStrategies.
func NewConvention(strategies Strategies) *Convention {
	if strategies == nil {
		strategies = DefaultStrategies()
	}
	return &Convention{strategies: strategies, fallback: dom.Body}
}

// FieldID applies the field naming transform.
func FieldID(name string) string {
	return FieldPrefix + strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// ButtonID applies the button naming transform.
func ButtonID(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-") + ButtonSuffix
}

func (c *Convention) Field(name string) dom.Locator  { return dom.ID(FieldID(name)) }
func (c *Convention) Button(name string) dom.Locator { return dom.ID(ButtonID(name)) }

// Candidates returns a fresh copy of the role's list with the universal
// fallback appended. Unknown roles resolve to the fallback alone.
func (c *Convention) Candidates(role Role) CandidateList {
	named := c.strategies[role]
	out := make(CandidateList, 0, len(named)+1)
	out = append(out, named...)
	return append(out, c.fallback)
}
