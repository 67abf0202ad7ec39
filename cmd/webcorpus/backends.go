package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
)

func newBackendsCmd(f *configFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List the scraping backends available for selection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return usageError(err)
			}
			cat, err := app.LoadCatalogue(cfg)
			if err != nil {
				return usageError(err)
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), cat.Profiles())
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKIND\tTIER\tRELIABILITY\tCAPABILITIES")
			for _, p := range cat.Profiles() {
				caps := make([]string, len(p.Capabilities))
				for i, c := range p.Capabilities {
					caps[i] = string(c)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", p.ID, p.Kind, p.Tier, p.Reliability, strings.Join(caps, ","))
			}
			return tw.Flush()
		},
	}
	fs := cmd.Flags()
	bind(f, fs.StringVar, "catalogue", func(c *app.Config) *string { return &c.CataloguePath }, "YAML backend catalogue replacing the built-in one")
	bind(f, fs.StringVar, "apify.token", func(c *app.Config) *string { return &c.ApifyToken }, "Apify API token; hosted actors are listed only when set")
	fs.BoolVar(&asJSON, "json", false, "Print the catalogue as JSON")
	return cmd
}
