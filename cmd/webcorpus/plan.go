package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
)

func newPlanCmd(f *configFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <url>",
		Short: "Show which backend a run would use, without scraping",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return usageError(err)
			}
			cfg.Target = args[0]
			cfg.DryRun = true
			if err := app.ValidateConfig(cfg); err != nil {
				return usageError(err)
			}
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return usageError(err)
			}
			defer a.Close()

			plan, err := a.Plan()
			if err != nil {
				return usageError(err)
			}
			if err := printJSON(cmd.OutOrStdout(), plan); err != nil {
				return err
			}
			if !plan.Decision.OK() {
				return &exitError{code: exitRunFailed, err: errors.New(plan.Decision.Reason)}
			}
			return nil
		},
	}
	f.addRunFlags(cmd)
	return cmd
}
