package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
	"github.com/hyperifyio/webcorpus/internal/audit"
)

func newRunsCmd(f *configFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show past runs from the audit ledger, or the attempts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return usageError(err)
			}
			if strings.TrimSpace(cfg.AuditDB) == "" {
				return usageError(errors.New("no audit ledger configured; set --audit.db or AUDIT_DB"))
			}
			l, err := audit.Open(cfg.AuditDB)
			if err != nil {
				return usageError(err)
			}
			defer l.Close()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if len(args) == 1 {
				attempts, err := l.Attempts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "BACKEND\tPAGES\tERROR\tAT")
				for _, a := range attempts {
					fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", a.Backend, a.Pages, dash(a.Error), a.At.Format(time.RFC3339))
				}
				return tw.Flush()
			}

			runs, err := l.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "ID\tSTATUS\tTARGET\tBACKEND\tFALLBACKS\tINDEXED\tSTARTED")
			for _, r := range runs {
				status := r.Status
				if r.FailureKind != "" {
					status += " (" + r.FailureKind + ")"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", r.ID, status, r.Target, dash(r.BackendUsed), r.BackendFallbacks, r.FilesIndexed, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	bind(f, cmd.Flags().StringVar, "audit.db", func(c *app.Config) *string { return &c.AuditDB }, "SQLite audit ledger path (env AUDIT_DB)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}
