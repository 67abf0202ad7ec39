package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/webcorpus/internal/app"
)

// configFlags binds flags to an app.Config and remembers how to copy each
// flag's value onto another Config. Only flags the user actually set are
// copied, so flags override the environment and the config file while
// untouched flags leave them alone.
type configFlags struct {
	cfg        app.Config
	configPath string
	envFiles   []string
	setters    map[string]func(*app.Config)
}

func bind[T any](f *configFlags, define func(*T, string, T, string), name string, field func(*app.Config) *T, usage string) {
	p := field(&f.cfg)
	define(p, name, *p, usage)
	f.setters[name] = func(dst *app.Config) { *field(dst) = *p }
}

func newConfigFlags() *configFlags {
	return &configFlags{cfg: app.DefaultConfig(), setters: map[string]func(*app.Config){}}
}

// addRunFlags registers the flags that shape a run.
func (f *configFlags) addRunFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	bind(f, fs.StringVar, "target", func(c *app.Config) *string { return &c.Target }, "Website URL to scrape (env WEBCORPUS_TARGET)")
	bind(f, fs.StringVar, "needs", func(c *app.Config) *string { return &c.Needs }, "Comma-separated capabilities the backend must have, e.g. javascript,pdf")
	bind(f, fs.StringVar, "budget", func(c *app.Config) *string { return &c.Budget }, "Budget tier: minimal, optimal or premium (env SCRAPER_BUDGET)")
	bind(f, fs.IntVar, "max-pages", func(c *app.Config) *int { return &c.MaxPages }, "Maximum pages to scrape, 1-2000 (env MAX_PAGES)")
	bind(f, fs.StringVar, "corpus", func(c *app.Config) *string { return &c.CorpusName }, "Name of the knowledge base (env CORPUS_NAME)")

	bind(f, fs.StringVar, "store", func(c *app.Config) *string { return &c.Store }, "Store: gemini, openai or local (env STORE)")
	bind(f, fs.StringVar, "store.localDir", func(c *app.Config) *string { return &c.LocalStoreDir }, "Directory of the local store")
	bind(f, fs.StringVar, "gemini.key", func(c *app.Config) *string { return &c.GeminiAPIKey }, "Gemini API key (env GEMINI_API_KEY)")
	bind(f, fs.StringVar, "openai.base", func(c *app.Config) *string { return &c.OpenAIBaseURL }, "OpenAI-compatible base URL (env OPENAI_BASE_URL)")
	bind(f, fs.StringVar, "openai.key", func(c *app.Config) *string { return &c.OpenAIAPIKey }, "OpenAI API key (env OPENAI_API_KEY)")

	bind(f, fs.StringVar, "apify.token", func(c *app.Config) *string { return &c.ApifyToken }, "Apify API token; without it only the direct crawler is used (env APIFY_TOKEN)")
	bind(f, fs.StringVar, "apify.base", func(c *app.Config) *string { return &c.ApifyBaseURL }, "Apify API base URL (env APIFY_BASE_URL)")
	bind(f, fs.StringVar, "catalogue", func(c *app.Config) *string { return &c.CataloguePath }, "YAML backend catalogue replacing the built-in one")
	bind(f, fs.StringVar, "user-agent", func(c *app.Config) *string { return &c.UserAgent }, "User-Agent of the direct crawler")
	bind(f, fs.Float64Var, "rps", func(c *app.Config) *float64 { return &c.RequestsPerSecond }, "Direct crawler requests per second (0 uses the backend rate limit)")
	bind(f, fs.BoolVar, "allow-private-hosts", func(c *app.Config) *bool { return &c.AllowPrivateHosts }, "Allow crawling loopback and private network hosts")

	bind(f, fs.IntVar, "max-fallbacks", func(c *app.Config) *int { return &c.MaxFallbacks }, "Fallback backends to try after the chosen one fails")
	bind(f, fs.Float64Var, "max-failed-fraction", func(c *app.Config) *float64 { return &c.MaxFailedFraction }, "Abort when more than this fraction of scraped pages fail extraction; 0 tolerates none")
	bind(f, fs.IntVar, "upload-workers", func(c *app.Config) *int { return &c.UploadWorkers }, "Concurrent document uploads (0 uses the default)")
	bind(f, fs.IntVar, "max-doc-bytes", func(c *app.Config) *int { return &c.MaxDocBytes }, "Maximum bytes of page content per document, excluding source headers (0 uses the default)")
	bind(f, fs.DurationVar, "scrape-timeout", func(c *app.Config) *time.Duration { return &c.ScrapeTimeout }, "Overall scraping timeout per backend (0 uses the default)")

	bind(f, fs.StringVar, "out", func(c *app.Config) *string { return &c.OutDir }, "Directory for run artifacts")
	bind(f, fs.BoolVar, "pdf", func(c *app.Config) *bool { return &c.EnablePDF }, "Also write the query guide as PDF")
	bind(f, fs.BoolVar, "tar", func(c *app.Config) *bool { return &c.OutTar }, "Also bundle the artifacts as .tar.gz")

	bind(f, fs.StringVar, "cache.dir", func(c *app.Config) *string { return &c.CacheDir }, "HTTP cache directory; empty disables caching (env CACHE_DIR)")
	bind(f, fs.DurationVar, "cache.maxAge", func(c *app.Config) *time.Duration { return &c.CacheMaxAge }, "Purge cache entries older than this; 0 disables")
	bind(f, fs.BoolVar, "cache.clear", func(c *app.Config) *bool { return &c.CacheClear }, "Clear the cache directory before the run")
	bind(f, fs.BoolVar, "cache.strictPerms", func(c *app.Config) *bool { return &c.CacheStrictPerms }, "Restrict cache permissions (0700 dirs, 0600 files)")
	bind(f, fs.Int64Var, "cache.maxBytes", func(c *app.Config) *int64 { return &c.CacheMaxBytes }, "Evict oldest cache entries above this size; 0 disables")
	bind(f, fs.IntVar, "cache.maxCount", func(c *app.Config) *int { return &c.CacheMaxCount }, "Evict oldest cache entries above this count; 0 disables")

	bind(f, fs.StringVar, "audit.db", func(c *app.Config) *string { return &c.AuditDB }, "SQLite audit ledger path; empty disables (env AUDIT_DB)")
	bind(f, fs.StringVar, "metrics.textfile", func(c *app.Config) *string { return &c.MetricsTextfile }, "Write Prometheus metrics to this textfile after the run")
	bind(f, fs.BoolVar, "dry-run", func(c *app.Config) *bool { return &c.DryRun }, "Print the backend plan without scraping (env DRY_RUN)")
}

// resolve builds the effective config: defaults, then the config file, then
// the environment, then explicitly set flags.
func (f *configFlags) resolve(cmd *cobra.Command) (app.Config, error) {
	if err := app.LoadEnvFiles(f.envFiles...); err != nil {
		return app.Config{}, fmt.Errorf("load env files: %w", err)
	}
	cfg := app.DefaultConfig()
	if strings.TrimSpace(f.configPath) != "" {
		fc, err := app.LoadConfigFile(f.configPath)
		if err != nil {
			return app.Config{}, err
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	for name, set := range f.setters {
		if cmd.Flags().Changed(name) {
			set(&cfg)
		}
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = f.cfg.Verbose
	}
	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	f := newConfigFlags()
	var logJSON bool

	root := &cobra.Command{
		Use:   "webcorpus",
		Short: "webcorpus turns a website into a searchable knowledge base",
		Long: `webcorpus scrapes a website with the cheapest capable backend, cleans the
pages, bundles them into documents and indexes them in a semantic-search
store (Gemini File Search, an OpenAI vector store or a local directory).
It refuses to scrape social media, e-commerce marketplaces, search engines
and B2B directories.

Settings are read from defaults, then --config, then the environment, then
flags. Environment variables: ` + strings.Join(app.EnvKeys(), ", ") + `.`,
		Version:       app.VersionString(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			setupLogging(cmd.ErrOrStderr(), logJSON, f.cfg.Verbose)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML or JSON config file")
	pf.StringSliceVar(&f.envFiles, "env-file", []string{".env"}, "Dotenv files to load; variables already set win")
	pf.BoolVarP(&f.cfg.Verbose, "verbose", "v", false, "Verbose logging")
	pf.BoolVar(&logJSON, "log.json", false, "Log JSON lines instead of console output")

	root.AddCommand(
		newRunCmd(f),
		newPlanCmd(f),
		newClassifyCmd(),
		newBackendsCmd(f),
		newRunsCmd(f),
		newExtractCmd(f),
	)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }
