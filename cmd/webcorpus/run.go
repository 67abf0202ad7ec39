package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// runReport is what `webcorpus run` prints on stdout.
type runReport struct {
	Summary   pipeline.Summary `json:"summary"`
	Artifacts app.Artifacts    `json:"artifacts"`
}

func newRunCmd(f *configFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Scrape a website and index it in the configured store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return usageError(err)
			}
			if len(args) == 1 {
				cfg.Target = args[0]
			}
			if err := app.ValidateConfig(cfg); err != nil {
				return usageError(err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg)
			if err != nil {
				return usageError(err)
			}
			defer a.Close()

			if cfg.DryRun {
				plan, err := a.Plan()
				if err != nil {
					return usageError(err)
				}
				return printJSON(cmd.OutOrStdout(), plan)
			}

			summary, artifacts, runErr := a.Run(ctx)
			if err := printJSON(cmd.OutOrStdout(), runReport{Summary: summary, Artifacts: artifacts}); err != nil {
				return err
			}
			return runExit(runErr)
		},
	}
	f.addRunFlags(cmd)
	return cmd
}

// runExit maps a run error onto the exit code policy.
func runExit(err error) error {
	if err == nil {
		return nil
	}
	var re *pipeline.RunError
	if errors.As(err, &re) || errors.Is(err, app.ErrNothingIndexed) {
		return &exitError{code: exitRunFailed, err: err}
	}
	return err
}
