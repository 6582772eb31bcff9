package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/dusk/api/schemas"
	"github.com/xkilldash9x/dusk/internal/browser"
	"github.com/xkilldash9x/dusk/internal/config"
	"github.com/xkilldash9x/dusk/internal/observability"
)

// componentFactory builds the driver and browser for each run.
var componentFactory = NewComponentFactory()

type checkOptions struct {
	selector string
	see      string
	title    string
	timeout  time.Duration
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	checkCmd := &cobra.Command{
		Use:   "check <url>",
		Short: "Visit a page and assert it renders",
		Long: `Opens the configured browser, visits the URL and runs the requested checks:
wait for a selector, expect text (inside the selector when one is given) and
expect a title. On failure the page source and, where the driver can take one,
a screenshot are stored in the configured artifact directories.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger().Named("check")

			components, err := componentFactory.Create(ctx, config.Get(), logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()
			b := components.Browser

			checkErr := runChecks(ctx, b, args[0], opts)
			if checkErr != nil {
				storeFailure(ctx, b, logger)
			}
			if _, err := b.StoreConsoleLog(ctx, "check"); err != nil {
				logger.Warn("Failed to store console log.", zap.Error(err))
			}
			if checkErr != nil {
				return checkErr
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK %s\n", args[0])
			return nil
		},
	}

	checkCmd.Flags().StringVarP(&opts.selector, "selector", "s", "", "selector to wait for")
	checkCmd.Flags().StringVar(&opts.see, "see", "", "text the page (or selector) must contain")
	checkCmd.Flags().StringVar(&opts.title, "title", "", "expected page title")
	checkCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "wait timeout (default browser.wait_timeout)")
	return checkCmd
}

func runChecks(ctx context.Context, b *browser.Browser, url string, opts checkOptions) error {
	if err := b.Visit(ctx, url); err != nil {
		return err
	}

	var timeout []time.Duration
	if opts.timeout > 0 {
		timeout = append(timeout, opts.timeout)
	}
	if opts.selector != "" {
		if err := b.WaitFor(ctx, opts.selector, timeout...); err != nil {
			return err
		}
	}

	switch {
	case opts.see != "" && opts.selector != "":
		if err := b.AssertSeeIn(ctx, opts.selector, opts.see); err != nil {
			return err
		}
	case opts.see != "":
		if err := b.AssertSee(ctx, opts.see); err != nil {
			return err
		}
	}

	if opts.title != "" {
		return b.AssertTitle(ctx, opts.title)
	}
	return nil
}

func storeFailure(ctx context.Context, b *browser.Browser, logger *zap.Logger) {
	if b.FitOnFailure {
		if err := b.FitContent(ctx); err != nil {
			logger.Debug("Could not fit window to content.", zap.Error(err))
		}
	}
	if path, err := b.Screenshot(ctx, "failure-check"); err != nil {
		if !errors.Is(err, schemas.ErrUnsupported) {
			logger.Warn("Failed to capture screenshot.", zap.Error(err))
		}
	} else {
		logger.Info("Stored failure screenshot.", zap.String("path", path))
	}
	if _, err := b.StoreSource(ctx, "check"); err != nil {
		logger.Warn("Failed to store page source.", zap.Error(err))
	}
}
