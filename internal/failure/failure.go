// internal/failure/failure.go
// Package failure holds the error kinds a step can end with. Each concrete
// type matches a sentinel through errors.Is so callers can branch on the kind
// without caring about the diagnostic payload.
package failure

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

var (
	// ErrResolutionAmbiguous: none of several candidate locators ever matched.
	ErrResolutionAmbiguous = errors.New("no candidate locator matched")
	// ErrTimeoutExceeded: an awaited condition never held within the wait budget.
	ErrTimeoutExceeded = errors.New("wait budget exceeded")
	// ErrAssertionFailed: an immediate check evaluated false.
	ErrAssertionFailed = errors.New("assertion failed")
	// ErrOrderingViolation: a step ran before the step it depends on.
	ErrOrderingViolation = errors.New("step ordering violation")
)

// State describes what the synchronizer last saw before giving up.
type State int

const (
	// NeverPresent means no candidate locator ever resolved to a node.
	NeverPresent State = iota
	// PresentUnsatisfied means a candidate was found but the condition never held on it.
	PresentUnsatisfied
)

func (s State) String() string {
	if s == PresentUnsatisfied {
		return "present but unsatisfied"
	}
	return "never present"
}

// TimeoutError reports a polled condition that did not hold within budget.
type TimeoutError struct {
	Condition    string
	Expected     string
	Candidates   []dom.Locator
	Locked       *dom.Locator
	State        State
	LastObserved string
	Elapsed      time.Duration
	Budget       time.Duration
}

func (e *TimeoutError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "timed out after %v (budget %v) waiting for %s", e.Elapsed.Round(time.Millisecond), e.Budget, e.Condition)
	if e.Expected != "" {
		fmt.Fprintf(&b, " %q", e.Expected)
	}
	fmt.Fprintf(&b, ": %s; candidates tried [%s]", e.State, joinLocators(e.Candidates))
	if e.Locked != nil {
		fmt.Fprintf(&b, "; matched %s", e.Locked)
		fmt.Fprintf(&b, "; last observed %q", e.LastObserved)
	}
	return b.String()
}

// Is matches ErrTimeoutExceeded, and ErrResolutionAmbiguous when several
// candidates were offered and none ever resolved.
func (e *TimeoutError) Is(target error) bool {
	switch target {
	case ErrTimeoutExceeded:
		return true
	case ErrResolutionAmbiguous:
		return e.State == NeverPresent && len(e.Candidates) > 1
	}
	return false
}

// AssertionError reports an immediate check that evaluated false.
type AssertionError struct {
	Check    string
	Locator  string
	Expected string
	Actual   string
	Reason   string
	// Err is the driver error behind the failure, if any.
	Err error
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	b.WriteString("assertion failed: ")
	b.WriteString(e.Check)
	if e.Locator != "" {
		fmt.Fprintf(&b, " on %s", e.Locator)
	}
	fmt.Fprintf(&b, ": expected %q, got %q", e.Expected, e.Actual)
	if e.Reason != "" {
		b.WriteString(" (")
		b.WriteString(e.Reason)
		b.WriteString(")")
	}
	return b.String()
}

func (e *AssertionError) Is(target error) bool { return target == ErrAssertionFailed }

func (e *AssertionError) Unwrap() error { return e.Err }

// OrderingError reports an operation that needs an earlier step to have run.
type OrderingError struct {
	Operation string
	Requires  string
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s called before %s: nothing has been stored yet", e.Operation, e.Requires)
}

func (e *OrderingError) Is(target error) bool { return target == ErrOrderingViolation }

func joinLocators(locs []dom.Locator) string {
	parts := make([]string, len(locs))
	for i, l := range locs {
		parts[i] = l.String()
	}
	return strings.Join(parts, ", ")
}
