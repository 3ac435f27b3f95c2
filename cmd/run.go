// -- cmd/run.go --
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webstep/internal/observability"
	"github.com/xkilldash9x/webstep/internal/steps"
)

// errFeaturesFailed is returned when the run completed but a scenario failed.
var errFeaturesFailed = errors.New("one or more scenarios failed")

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run [feature paths...]",
		Short: "Runs feature files against the application under test",
		Long: `Runs Gherkin feature files with the web step library. Paths default to
scenario.features from the configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			opts := steps.OptionsFromConfig(cfg.Scenario())
			if len(args) > 0 {
				opts.Paths = args
			}
			opts.Output = cmd.OutOrStdout()

			status, err := steps.Run(ctx, cfg, opts, logger)
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return fmt.Errorf("run interrupted: %w", ctx.Err())
			}
			if status != 0 {
				logger.Debug("Feature run failed.", zap.Int("status", status))
				return fmt.Errorf("%w (status %d)", errFeaturesFailed, status)
			}
			return nil
		},
	}

	flags := runCmd.Flags()
	flags.String("base-url", "", "base URL of the application under test")
	flags.Float64("wait", 0, "seconds a step may wait for the page")
	flags.String("driver", "", "browser driver: chromedp, playwright or static")
	flags.String("format", "", "godog output format (pretty, progress, cucumber, junit)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("tags", "", "only run scenarios matching this tag expression")
	flags.Bool("strict", true, "fail on undefined or pending steps")

	configFlag(flags, "base-url", "scenario.base_url")
	configFlag(flags, "wait", "scenario.wait_seconds")
	configFlag(flags, "driver", "browser.driver")
	configFlag(flags, "format", "scenario.format")
	configFlag(flags, "headless", "browser.headless")
	configFlag(flags, "tags", "scenario.tags")
	configFlag(flags, "strict", "scenario.strict")

	return runCmd
}
