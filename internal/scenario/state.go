// internal/scenario/state.go
// Package scenario holds the state one scenario carries from step to step:
// the document under test, the timing budget and the clipboard slot used by
// copy and paste steps. A State is created fresh for every scenario and never
// shared between them.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/observability"
)

// Options configure a new State.
type Options struct {
	Name         string
	BaseURL      string
	Budget       time.Duration
	PollInterval time.Duration
}

// State is the per-scenario bundle. Steps run strictly one after another, so
// it needs no locking.
type State struct {
	ID           string
	Name         string
	BaseURL      string
	Budget       time.Duration
	PollInterval time.Duration
	Doc          dom.Document
	Clipboard    Clipboard
	Logger       *zap.Logger
	Started      time.Time
}

// New validates opts and returns a State bound to doc.
func New(doc dom.Document, opts Options, logger *zap.Logger) (*State, error) {
	if doc == nil {
		return nil, errors.New("scenario requires a document")
	}
	if opts.Budget <= 0 {
		return nil, fmt.Errorf("wait budget must be positive, got %v", opts.Budget)
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %v", opts.PollInterval)
	}
	if u, err := url.Parse(opts.BaseURL); err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("base URL must be absolute, got %q", opts.BaseURL)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.New().String()
	return &State{
		ID:           id,
		Name:         opts.Name,
		BaseURL:      opts.BaseURL,
		Budget:       opts.Budget,
		PollInterval: opts.PollInterval,
		Doc:          doc,
		Logger:       observability.ForScenario(logger, id, opts.Name),
		Started:      time.Now(),
	}, nil
}

// Clipboard is the single-slot store written by copy steps and read by paste
// steps. An empty string is a legitimate stored value, so whether anything
// was stored is tracked separately.
type Clipboard struct {
	value string
	set   bool
}

// Store overwrites the slot.
func (c *Clipboard) Store(v string) {
	c.value = v
	c.set = true
}

// Load returns the stored value and whether anything was stored.
func (c *Clipboard) Load() (string, bool) {
	return c.value, c.set
}

type ctxKey struct{}

// WithState returns a context carrying s.
func WithState(ctx context.Context, s *State) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the State stored by WithState.
func FromContext(ctx context.Context) (*State, bool) {
	s, ok := ctx.Value(ctxKey{}).(*State)
	return s, ok && s != nil
}
