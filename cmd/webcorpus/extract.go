package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
	"github.com/hyperifyio/webcorpus/internal/extract"
)

func newExtractCmd(f *configFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "extract <url>",
		Short: "Fetch one page with the direct crawler and print its cleaned text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd)
			if err != nil {
				return usageError(err)
			}
			cfg.DryRun = true
			cfg.AuditDB = ""
			cfg.MetricsTextfile = ""
			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return usageError(err)
			}
			defer a.Close()

			page, err := a.ExtractURL(cmd.Context(), args[0])
			if err != nil {
				return &exitError{code: exitRunFailed, err: err}
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), struct {
					Page extract.PageResult `json:"page"`
					Text string             `json:"text"`
				}{page, page.Text})
			}
			if page.Title != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "# %s\n\n", page.Title)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), page.Text)
			return err
		},
	}
	fs := cmd.Flags()
	bind(f, fs.StringVar, "user-agent", func(c *app.Config) *string { return &c.UserAgent }, "User-Agent of the direct crawler")
	bind(f, fs.BoolVar, "allow-private-hosts", func(c *app.Config) *bool { return &c.AllowPrivateHosts }, "Allow fetching loopback and private network hosts")
	bind(f, fs.StringVar, "cache.dir", func(c *app.Config) *string { return &c.CacheDir }, "HTTP cache directory; empty disables caching")
	fs.BoolVar(&asJSON, "json", false, "Print the page result as JSON")
	return cmd
}
