// internal/steps/run.go
package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/browser"
	"github.com/xkilldash9x/webstep/internal/config"
)

// shutdownTimeout bounds closing documents left open when the suite ends.
const shutdownTimeout = 30 * time.Second

// RunOptions select what a run executes and how it reports.
type RunOptions struct {
	// Paths are feature files or directories. Ignored when Features is set.
	Paths []string
	// Features are in-memory feature files.
	Features []godog.Feature
	Tags     string
	Format   string
	Strict   bool
	Output   io.Writer
	// Opener overrides the browser driver.
	Opener browser.Opener
}

// OptionsFromConfig fills RunOptions from the scenario section.
func OptionsFromConfig(cfg config.ScenarioConfig) RunOptions {
	return RunOptions{
		Paths:  cfg.Features,
		Tags:   cfg.Tags,
		Format: cfg.Format,
		Strict: cfg.Strict,
	}
}

// Run executes the feature files against the configured browser and returns
// godog's exit status: 0 when every scenario passed.
func Run(ctx context.Context, cfg config.Interface, opts RunOptions, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	browserCfg := cfg.Browser()

	var mgr *browser.Manager
	if opts.Opener != nil {
		mgr = browser.NewManagerWithOpener(browserCfg, logger, opts.Opener)
	} else {
		var err error
		if mgr, err = browser.NewManager(browserCfg, logger); err != nil {
			return 1, fmt.Errorf("invalid browser configuration: %w", err)
		}
	}
	if err := cfg.Scenario().Validate(); err != nil {
		return 1, fmt.Errorf("invalid scenario configuration: %w", err)
	}

	suite := NewSuite(mgr, cfg.Scenario(), nil, logger)

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = "pretty"
	}
	godogOpts := &godog.Options{
		Format:         format,
		Tags:           opts.Tags,
		Strict:         opts.Strict,
		Output:         out,
		DefaultContext: ctx,
		Concurrency:    1,
	}
	if len(opts.Features) > 0 {
		godogOpts.FeatureContents = opts.Features
	} else {
		godogOpts.Paths = opts.Paths
	}

	logger.Info("Running features.",
		zap.Strings("paths", godogOpts.Paths),
		zap.Int("inline_features", len(opts.Features)),
		zap.String("driver", browserCfg.Driver),
		zap.String("base_url", cfg.Scenario().BaseURL),
	)

	status := godog.TestSuite{
		Name:                "webstep",
		ScenarioInitializer: suite.InitializeScenario,
		Options:             godogOpts,
	}.Run()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Browser manager did not shut down cleanly.", zap.Error(err))
	}

	logger.Info("Run finished.", zap.Int("status", status))
	return status, nil
}
