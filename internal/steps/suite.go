// internal/steps/suite.go
// Package steps binds the web step sentences to the action executor. Each
// scenario gets its own document and state bundle; nothing is shared between
// scenarios except the browser manager.
package steps

import (
	"context"
	"errors"
	"time"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/action"
	"github.com/xkilldash9x/webstep/internal/browser"
	"github.com/xkilldash9x/webstep/internal/config"
	"github.com/xkilldash9x/webstep/internal/locator"
	"github.com/xkilldash9x/webstep/internal/scenario"
)

// closeTimeout bounds document shutdown in the After hook.
const closeTimeout = 15 * time.Second

// errNoScenario is returned by a step that runs without the Before hook.
var errNoScenario = errors.New("no scenario in context; steps must be registered with InitializeScenario")

// Suite holds what every scenario of a run shares.
type Suite struct {
	browser  *browser.Manager
	scenario config.ScenarioConfig
	resolver locator.Resolver
	logger   *zap.Logger
}

// NewSuite returns a suite opening documents from mgr. A nil resolver uses the
// default naming convention.
func NewSuite(mgr *browser.Manager, cfg config.ScenarioConfig, resolver locator.Resolver, logger *zap.Logger) *Suite {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = locator.NewConvention(nil)
	}
	return &Suite{
		browser:  mgr,
		scenario: cfg,
		resolver: resolver,
		logger:   logger.Named("steps"),
	}
}

type scenarioKey struct{}

type run struct {
	exec *action.Executor
	doc  *browser.Document
}

// InitializeScenario registers the hooks and step sentences.
func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	sc.Before(s.beforeScenario)
	sc.After(s.afterScenario)
	sc.StepContext().After(s.afterStep)

	sc.Step(`^I visit the "Home Page"$`, s.iVisitTheHomePage)
	sc.Step(`^I should see "([^"]*)" in the title$`, s.iShouldSeeInTheTitle)
	sc.Step(`^I should not see "([^"]*)"$`, s.iShouldNotSee)
	sc.Step(`^I set the "([^"]*)" to "([^"]*)"$`, s.iSetTheTo)
	sc.Step(`^I select "([^"]*)" in the "([^"]*)" dropdown$`, s.iSelectInTheDropdown)
	sc.Step(`^I should see "([^"]*)" in the "([^"]*)" dropdown$`, s.iShouldSeeInTheDropdown)
	sc.Step(`^the "([^"]*)" field should be empty$`, s.theFieldShouldBeEmpty)
	sc.Step(`^I copy the "([^"]*)" field$`, s.iCopyTheField)
	sc.Step(`^I paste the "([^"]*)" field$`, s.iPasteTheField)
	sc.Step(`^I press the "([^"]*)" button$`, s.iPressTheButton)
	sc.Step(`^I should see the message "([^"]*)"$`, s.iShouldSeeTheMessage)
	sc.Step(`^I should see "([^"]*)" in the results$`, s.iShouldSeeInTheResults)
	sc.Step(`^I should not see "([^"]*)" in the results$`, s.iShouldNotSeeInTheResults)
	sc.Step(`^I should see "([^"]*)" in the "([^"]*)" field$`, s.iShouldSeeInTheField)
	sc.Step(`^I change "([^"]*)" to "([^"]*)"$`, s.iChangeTo)
}

// -- Hooks --

func (s *Suite) beforeScenario(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
	doc, err := s.browser.NewDocument(ctx)
	if err != nil {
		return ctx, err
	}

	state, err := scenario.New(doc, scenario.Options{
		Name:         sc.Name,
		BaseURL:      s.scenario.BaseURL,
		Budget:       s.scenario.WaitBudget(),
		PollInterval: s.scenario.PollInterval,
	}, s.logger.With(zap.String("document_id", doc.ID())))
	if err != nil {
		s.closeDocument(doc)
		return ctx, err
	}

	exec, err := action.NewExecutor(state, s.resolver)
	if err != nil {
		s.closeDocument(doc)
		return ctx, err
	}

	state.Logger.Debug("Scenario started.")
	ctx = scenario.WithState(ctx, state)
	return context.WithValue(ctx, scenarioKey{}, &run{exec: exec, doc: doc}), nil
}

func (s *Suite) afterScenario(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
	r, ok := ctx.Value(scenarioKey{}).(*run)
	if !ok {
		return ctx, nil
	}
	state := r.exec.State()
	elapsed := time.Since(state.Started)
	if err != nil {
		state.Logger.Info("Scenario failed.", zap.Duration("elapsed", elapsed), zap.Error(err))
	} else {
		state.Logger.Info("Scenario passed.", zap.Duration("elapsed", elapsed))
	}
	s.closeDocument(r.doc)
	return ctx, nil
}

func (s *Suite) afterStep(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
	if state, ok := scenario.FromContext(ctx); ok && err != nil {
		state.Logger.Debug("Step failed.", zap.String("step", st.Text), zap.String("status", status.String()), zap.Error(err))
	}
	return ctx, nil
}

func (s *Suite) closeDocument(doc *browser.Document) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := doc.Close(ctx); err != nil {
		s.logger.Warn("Failed to close scenario document.", zap.String("document_id", doc.ID()), zap.Error(err))
	}
}

func executor(ctx context.Context) (*action.Executor, error) {
	r, ok := ctx.Value(scenarioKey{}).(*run)
	if !ok {
		return nil, errNoScenario
	}
	return r.exec, nil
}

// -- Steps --

func (s *Suite) iVisitTheHomePage(ctx context.Context) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.Visit(ctx)
}

func (s *Suite) iShouldSeeInTheTitle(ctx context.Context, text string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertTitleContains(ctx, text)
}

func (s *Suite) iShouldNotSee(ctx context.Context, text string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertNotOnPage(ctx, text)
}

func (s *Suite) iSetTheTo(ctx context.Context, field, value string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.SetField(ctx, field, value)
}

func (s *Suite) iSelectInTheDropdown(ctx context.Context, text, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.SelectDropdown(ctx, field, text)
}

func (s *Suite) iShouldSeeInTheDropdown(ctx context.Context, text, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertDropdownSelection(ctx, field, text)
}

func (s *Suite) theFieldShouldBeEmpty(ctx context.Context, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertFieldEmpty(ctx, field)
}

func (s *Suite) iCopyTheField(ctx context.Context, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	_, err = e.CopyField(ctx, field)
	return err
}

func (s *Suite) iPasteTheField(ctx context.Context, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.PasteField(ctx, field)
}

func (s *Suite) iPressTheButton(ctx context.Context, button string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.PressButton(ctx, button)
}

func (s *Suite) iShouldSeeTheMessage(ctx context.Context, text string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertMessage(ctx, text)
}

func (s *Suite) iShouldSeeInTheResults(ctx context.Context, text string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertInResults(ctx, text)
}

func (s *Suite) iShouldNotSeeInTheResults(ctx context.Context, text string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertNotInResults(ctx, text)
}

func (s *Suite) iShouldSeeInTheField(ctx context.Context, text, field string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.AssertFieldContains(ctx, field, text)
}

func (s *Suite) iChangeTo(ctx context.Context, field, value string) error {
	e, err := executor(ctx)
	if err != nil {
		return err
	}
	return e.ChangeField(ctx, field, value)
}
