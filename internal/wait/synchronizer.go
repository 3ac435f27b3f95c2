// internal/wait/synchronizer.go
// Package wait converts nondeterministic rendering delay into a deterministic
// pass or fail: a condition is polled against an ordered list of candidate
// locators until it holds or the wait budget is spent.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/condition"
	"github.com/xkilldash9x/webstep/internal/failure"
)

// DefaultPollInterval is used when the caller passes a non-positive interval.
const DefaultPollInterval = 100 * time.Millisecond

// Match is a satisfied condition together with where it was satisfied.
type Match struct {
	Element     dom.Element
	Locator     dom.Locator
	Observation condition.Observation
	Elapsed     time.Duration
}

// Synchronizer evaluates conditions against a document within a wait budget.
type Synchronizer struct {
	doc      dom.Document
	budget   time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// New returns a Synchronizer. budget must be positive.
func New(doc dom.Document, budget, interval time.Duration, logger *zap.Logger) (*Synchronizer, error) {
	if doc == nil {
		return nil, errors.New("synchronizer requires a document")
	}
	if budget <= 0 {
		return nil, fmt.Errorf("wait budget must be positive, got %v", budget)
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		doc:      doc,
		budget:   budget,
		interval: interval,
		logger:   logger.Named("wait"),
	}, nil
}

// Budget returns the wait budget.
func (s *Synchronizer) Budget() time.Duration { return s.budget }

// Evaluate dispatches on the condition's mode: polled conditions go through
// Await, immediate ones through Check.
func (s *Synchronizer) Evaluate(ctx context.Context, candidates []dom.Locator, cond condition.Condition) (*Match, error) {
	if cond.Mode() == condition.Immediate {
		return s.Check(ctx, candidates, cond)
	}
	return s.Await(ctx, candidates, cond)
}

// Await polls until cond holds on the first candidate that resolves, or the
// budget elapses. Once a candidate resolves, the call stays locked to it and
// never re-scans earlier candidates. Success is only reported for an
// observation that started before the deadline.
func (s *Synchronizer) Await(ctx context.Context, candidates []dom.Locator, cond condition.Condition) (*Match, error) {
	if len(candidates) == 0 {
		return nil, errors.New("await requires at least one candidate locator")
	}

	start := time.Now()
	deadline := start.Add(s.budget)

	// Driver calls share the budget; a query that hangs past the deadline is
	// a timeout, not a driver failure.
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(s.interval), 1)
	limiter.Allow() // the first observation happens now

	var (
		locked *dom.Locator
		last   condition.Observation
		state  = failure.NeverPresent
	)

	timedOut := func() error {
		err := &failure.TimeoutError{
			Condition:    cond.Name(),
			Expected:     cond.Expected(),
			Candidates:   candidates,
			Locked:       locked,
			State:        state,
			LastObserved: last.Actual,
			Elapsed:      time.Since(start),
			Budget:       s.budget,
		}
		s.logger.Debug("Wait budget exhausted.",
			zap.String("condition", cond.Name()),
			zap.Stringer("state", state),
			zap.Duration("elapsed", err.Elapsed))
		return err
	}
	// interrupted classifies a driver error raised after pollCtx ended; nil
	// means pollCtx is still live and the error is the driver's own.
	interrupted := func() error {
		if ctx.Err() != nil {
			return fmt.Errorf("waiting for %s canceled: %w", cond.Name(), ctx.Err())
		}
		if pollCtx.Err() != nil {
			return timedOut()
		}
		return nil
	}

	for {
		observedAt := time.Now()
		if observedAt.After(deadline) {
			return nil, timedOut()
		}

		el, loc, err := s.resolve(pollCtx, candidates, locked)
		if err != nil {
			if ierr := interrupted(); ierr != nil {
				return nil, ierr
			}
			return nil, err
		}
		if el != nil {
			if locked == nil {
				locked = &loc
				state = failure.PresentUnsatisfied
				s.logger.Debug("Locked onto candidate.", zap.Stringer("locator", loc), zap.String("condition", cond.Name()))
			}

			obs, err := cond.Evaluate(pollCtx, el)
			switch {
			case err != nil && pollCtx.Err() != nil:
				return nil, interrupted()
			case errors.Is(err, dom.ErrStaleElement):
				// The node was replaced between query and read; poll again.
			case err != nil:
				return nil, fmt.Errorf("evaluating %s on %s: %w", cond.Name(), loc, err)
			default:
				last = obs
				if obs.Satisfied {
					elapsed := time.Since(start)
					s.logger.Debug("Condition satisfied.",
						zap.String("condition", cond.Name()),
						zap.Stringer("locator", loc),
						zap.Duration("elapsed", elapsed))
					return &Match{Element: el, Locator: loc, Observation: obs, Elapsed: elapsed}, nil
				}
			}
		}

		if err := s.pause(ctx, limiter, deadline); err != nil {
			return nil, fmt.Errorf("waiting for %s canceled: %w", cond.Name(), err)
		}
	}
}

// Check evaluates cond exactly once against the first candidate present right
// now. A false result, or no candidate at all, is an assertion failure.
func (s *Synchronizer) Check(ctx context.Context, candidates []dom.Locator, cond condition.Condition) (*Match, error) {
	if len(candidates) == 0 {
		return nil, errors.New("check requires at least one candidate locator")
	}
	start := time.Now()

	el, loc, err := s.resolve(ctx, candidates, nil)
	if err != nil {
		return nil, err
	}
	if el == nil {
		return nil, &failure.AssertionError{
			Check:    cond.Name(),
			Locator:  describeCandidates(candidates),
			Expected: cond.Expected(),
			Reason:   "element not present",
		}
	}

	obs, err := cond.Evaluate(ctx, el)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s on %s: %w", cond.Name(), loc, err)
	}
	if !obs.Satisfied {
		return nil, &failure.AssertionError{
			Check:    cond.Name(),
			Locator:  loc.String(),
			Expected: cond.Expected(),
			Actual:   obs.Actual,
		}
	}
	return &Match{Element: el, Locator: loc, Observation: obs, Elapsed: time.Since(start)}, nil
}

// resolve returns the first element of the locked candidate, or scans the
// candidates in order when nothing is locked yet. A nil element with a nil
// error means nothing is present.
func (s *Synchronizer) resolve(ctx context.Context, candidates []dom.Locator, locked *dom.Locator) (dom.Element, dom.Locator, error) {
	if locked != nil {
		el, err := dom.QueryOne(ctx, s.doc, *locked)
		if err != nil {
			return nil, *locked, fmt.Errorf("querying %s: %w", *locked, err)
		}
		return el, *locked, nil
	}
	for _, loc := range candidates {
		el, err := dom.QueryOne(ctx, s.doc, loc)
		if err != nil {
			return nil, loc, fmt.Errorf("querying %s: %w", loc, err)
		}
		if el != nil {
			return el, loc, nil
		}
	}
	return nil, dom.Locator{}, nil
}

// pause blocks until the next poll tick. When the next tick would land past
// the deadline it sleeps out the remainder instead, so a timeout is reported
// at the budget and not before it.
func (s *Synchronizer) pause(ctx context.Context, limiter *rate.Limiter, deadline time.Time) error {
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	if err := limiter.Wait(waitCtx); err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	timer := time.NewTimer(time.Until(deadline) + time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func describeCandidates(candidates []dom.Locator) string {
	if len(candidates) == 1 {
		return candidates[0].String()
	}
	out := "any of ["
	for i, c := range candidates {
		if i > 0 {
			out += ", "
		}
		out += c.String()
	}
	return out + "]"
}
