// internal/browser/manager.go
// Package browser opens documents for scenarios. The Manager picks the driver
// named by browser.driver, tracks every document it hands out and closes the
// stragglers on Shutdown.
package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser/cdp"
	"github.com/xkilldash9x/webstep/internal/browser/dom"
	"github.com/xkilldash9x/webstep/internal/browser/pw"
	"github.com/xkilldash9x/webstep/internal/browser/static"
	"github.com/xkilldash9x/webstep/internal/config"
)

// ErrShutdown is returned by NewDocument after Shutdown has started.
var ErrShutdown = errors.New("browser manager is shut down")

// Opener starts one document.
type Opener func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (dom.Document, error)

// Manager hands out documents and owns their lifetime.
type Manager struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
	open   Opener

	docs     map[string]*Document
	mu       sync.RWMutex
	wg       sync.WaitGroup // one count per open document
	shutdown bool
}

// NewManager validates cfg and returns a manager for its driver. Nothing is
// launched until the first NewDocument call.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewManagerWithOpener(cfg, logger, Open), nil
}

// NewManagerWithOpener is NewManager with a custom driver, for tests.
func NewManagerWithOpener(cfg config.BrowserConfig, logger *zap.Logger, open Opener) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		cfg:    cfg,
		logger: logger.Named("browser_manager"),
		open:   open,
		docs:   make(map[string]*Document),
	}
	m.logger.Debug("Browser manager created (initialization deferred).", zap.String("driver", cfg.Driver))
	return m
}

// Open starts a document with the driver cfg names.
func Open(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (dom.Document, error) {
	switch cfg.Driver {
	case config.DriverChromedp:
		d, err := cdp.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverPlaywright:
		d, err := pw.Open(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	case config.DriverStatic:
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		return static.New(logger, &http.Client{Jar: jar, Timeout: cfg.NavigationTimeout}), nil
	}
	return nil, fmt.Errorf("unknown browser driver %q", cfg.Driver)
}

// NewDocument opens a document and registers it. Closing the returned
// document unregisters it.
func (m *Manager) NewDocument(ctx context.Context) (*Document, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	// Counted before the open so Shutdown waits for a launch in flight.
	m.wg.Add(1)
	m.mu.Unlock()

	inner, err := m.open(ctx, m.cfg, m.logger)
	if err != nil {
		m.wg.Done()
		return nil, fmt.Errorf("failed to open %s document: %w", m.cfg.Driver, err)
	}

	d := &Document{Document: inner, id: uuid.New().String()}
	d.onClose = func() {
		m.mu.Lock()
		delete(m.docs, d.id)
		m.mu.Unlock()
		m.wg.Done()
		m.logger.Debug("Document removed from manager.", zap.String("document_id", d.id))
	}

	m.mu.Lock()
	m.docs[d.id] = d
	m.mu.Unlock()

	m.logger.Debug("New document opened.", zap.String("document_id", d.id), zap.String("driver", m.cfg.Driver))
	return d, nil
}

// OpenCount returns the number of documents not yet closed.
func (m *Manager) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Shutdown closes every open document and waits for them, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	toClose := make([]*Document, 0, len(m.docs))
	for _, d := range m.docs {
		toClose = append(toClose, d)
	}
	m.mu.Unlock()

	if len(toClose) > 0 {
		m.logger.Info("Closing documents left open.", zap.Int("count", len(toClose)))
	}
	for _, d := range toClose {
		go func(d *Document) {
			if err := d.Close(ctx); err != nil {
				m.logger.Warn("Error during document close in shutdown.", zap.String("document_id", d.id), zap.Error(err))
			}
		}(d)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Debug("Browser manager shutdown complete.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Timeout waiting for documents to close.", zap.Error(ctx.Err()))
		return fmt.Errorf("browser manager shutdown: %w", ctx.Err())
	}
}

// Document is a dom.Document tracked by a Manager.
type Document struct {
	dom.Document
	id string

	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

// ID identifies the document in logs.
func (d *Document) ID() string { return d.id }

// Close closes the underlying document once and unregisters it.
func (d *Document) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closeErr = d.Document.Close(ctx)
		if d.onClose != nil {
			d.onClose()
		}
	})
	return d.closeErr
}
