package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/compliance"
)

func newClassifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <host-or-url>...",
		Short: "Report whether hosts may be scraped",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verdicts := make([]compliance.Verdict, 0, len(args))
			for _, a := range args {
				verdicts = append(verdicts, classify(a))
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), verdicts)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "HOST\tVERDICT\tCATEGORY\tRULE")
			for _, v := range verdicts {
				verdict := "allowed"
				if v.Blocked() {
					verdict = "blocked"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.Host, verdict, dash(string(v.Category)), dash(v.Rule))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print verdicts as JSON")
	return cmd
}

func classify(s string) compliance.Verdict {
	if strings.Contains(s, "://") {
		return compliance.Default.ClassifyURL(s)
	}
	return compliance.Default.Classify(s)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
