// internal/failure/failure_test.go
package failure

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

func TestTimeoutError(t *testing.T) {
	t.Run("NeverPresentAcrossSeveralCandidates", func(t *testing.T) {
		err := &TimeoutError{
			Condition:  "text contains",
			Expected:   "Item created",
			Candidates: []dom.Locator{dom.ID("flash_message"), dom.ID("message")},
			State:      NeverPresent,
			Elapsed:    2 * time.Second,
			Budget:     2 * time.Second,
		}

		assert.ErrorIs(t, err, ErrTimeoutExceeded)
		assert.ErrorIs(t, err, ErrResolutionAmbiguous)
		assert.NotErrorIs(t, err, ErrAssertionFailed)
		assert.Contains(t, err.Error(), "never present")
		assert.Contains(t, err.Error(), "id=flash_message, id=message")
		assert.NotContains(t, err.Error(), "last observed")
	})

	t.Run("PresentUnsatisfiedReportsLastObservation", func(t *testing.T) {
		locked := dom.Body
		err := &TimeoutError{
			Condition:    "text contains",
			Expected:     "Widget",
			Candidates:   []dom.Locator{dom.ID("results"), dom.Body},
			Locked:       &locked,
			State:        PresentUnsatisfied,
			LastObserved: "Gadget",
			Elapsed:      time.Second,
			Budget:       time.Second,
		}

		assert.NotErrorIs(t, err, ErrResolutionAmbiguous)
		assert.Contains(t, err.Error(), "present but unsatisfied")
		assert.Contains(t, err.Error(), `last observed "Gadget"`)
		assert.Contains(t, err.Error(), "matched tag=body")
	})

	t.Run("SingleCandidateIsNotAmbiguous", func(t *testing.T) {
		err := &TimeoutError{Candidates: []dom.Locator{dom.ID("clear-btn")}, State: NeverPresent}
		assert.NotErrorIs(t, err, ErrResolutionAmbiguous)
	})

	t.Run("SurvivesWrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("press button: %w", &TimeoutError{State: NeverPresent})
		var te *TimeoutError
		assert.True(t, errors.As(wrapped, &te))
		assert.ErrorIs(t, wrapped, ErrTimeoutExceeded)
	})
}

func TestAssertionError(t *testing.T) {
	err := &AssertionError{Check: "value equals", Locator: "id=product_name", Expected: "", Actual: "Widget"}
	assert.ErrorIs(t, err, ErrAssertionFailed)
	assert.Equal(t, `assertion failed: value equals on id=product_name: expected "", got "Widget"`, err.Error())

	withReason := &AssertionError{Check: "title contains", Expected: "Shop", Actual: "Home", Reason: "title mismatch"}
	assert.Contains(t, withReason.Error(), "(title mismatch)")

	cause := errors.New("no option")
	wrapping := &AssertionError{Check: "select option", Expected: "Tools", Err: cause}
	assert.ErrorIs(t, wrapping, ErrAssertionFailed)
	assert.ErrorIs(t, wrapping, cause)
}

func TestOrderingError(t *testing.T) {
	err := &OrderingError{Operation: "paste", Requires: "copy"}
	assert.ErrorIs(t, err, ErrOrderingViolation)
	assert.Equal(t, "paste called before copy: nothing has been stored yet", err.Error())
}
