// File: internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webstep/internal/browser/dom"
)

// -- Element Mock --

// MockElement mocks dom.Element.
type MockElement struct {
	mock.Mock
	Name string
}

var _ dom.Element = (*MockElement)(nil)

func (m *MockElement) Text(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Attribute(ctx context.Context, name string) (string, bool, error) {
	args := m.Called(ctx, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockElement) Value(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Displayed(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Enabled(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockElement) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SendKeys(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) Click(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockElement) SelectByText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *MockElement) SelectedText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockElement) Describe() string {
	if m.Name != "" {
		return m.Name
	}
	return "mock-element"
}

// -- Document Mock --

// MockDocument mocks dom.Document.
type MockDocument struct {
	mock.Mock
}

var _ dom.Document = (*MockDocument)(nil)

func (m *MockDocument) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockDocument) QueryAll(ctx context.Context, loc dom.Locator) ([]dom.Element, error) {
	args := m.Called(ctx, loc)
	var elems []dom.Element
	if v := args.Get(0); v != nil {
		elems = v.([]dom.Element)
	}
	return elems, args.Error(1)
}

func (m *MockDocument) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDocument) BodyText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDocument) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
