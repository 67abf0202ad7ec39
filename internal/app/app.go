package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webcorpus/internal/audit"
	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/budget"
	"github.com/hyperifyio/webcorpus/internal/cache"
	"github.com/hyperifyio/webcorpus/internal/compliance"
	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/fetch"
	"github.com/hyperifyio/webcorpus/internal/metrics"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
	"github.com/hyperifyio/webcorpus/internal/robots"
	"github.com/hyperifyio/webcorpus/internal/scrape"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
	"github.com/hyperifyio/webcorpus/internal/store"
	"github.com/hyperifyio/webcorpus/internal/template"
	"github.com/hyperifyio/webcorpus/internal/validate"
)

type App struct {
	cfg       Config
	catalogue *backend.Catalogue
	selector  *selecter.Selector
	fetcher   *fetch.Client
	robots    *robots.Manager
	httpCache *cache.Store
	orch      *pipeline.Orchestrator
	ledger    *audit.Ledger
	metrics   *metrics.Collector
}

// ErrNothingIndexed is returned when a run finished without a single page in
// the store. Per the exit code policy this results in a non-zero exit.
var ErrNothingIndexed = errors.New("nothing indexed")

// New wires the pipeline from cfg. Store clients are only built when the run
// may upload; a dry run needs no credentials.
func New(ctx context.Context, cfg Config) (*App, error) {
	cat, err := LoadCatalogue(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, catalogue: cat, selector: selecter.New(cat)}

	if cfg.CacheDir != "" {
		c, err := cache.Open(cfg.CacheDir, cfg.CacheStrictPerms)
		if err != nil {
			return nil, err
		}
		rep, err := c.Maintain(cache.Policy{
			Clear:      cfg.CacheClear,
			MaxAge:     cfg.CacheMaxAge,
			MaxBytes:   cfg.CacheMaxBytes,
			MaxEntries: cfg.CacheMaxCount,
		})
		if err != nil {
			log.Warn().Err(err).Str("dir", cfg.CacheDir).Msg("cache maintenance failed")
		} else if rep.Cleared || rep.Expired > 0 || rep.Evicted > 0 {
			log.Debug().Bool("cleared", rep.Cleared).Int("expired", rep.Expired).Int("evicted", rep.Evicted).Msg("cache maintained")
		}
		a.httpCache = c
	}

	crawlClient := crawlProfile.newClient()
	a.fetcher = &fetch.Client{
		HTTPClient:        crawlClient,
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       3,
		PerRequestTimeout: 30 * time.Second,
		Cache:             a.httpCache,
		MaxConcurrent:     4,
	}
	a.robots = &robots.Manager{
		HTTPClient:        crawlClient,
		Cache:             a.httpCache,
		UserAgent:         cfg.UserAgent,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
	}
	crawler := scrape.NewCrawler(a.fetcher, a.robots, compliance.Default)
	crawler.RequestsPerSecond = cfg.RequestsPerSecond

	backends := scrape.Backends{Direct: crawler}
	if cfg.ApifyToken != "" {
		backends.Apify = &scrape.Apify{
			BaseURL:    cfg.ApifyBaseURL,
			Token:      cfg.ApifyToken,
			HTTPClient: apiProfile.newClient(),
		}
	}

	var st store.Store
	if !cfg.DryRun {
		if st, err = newStore(ctx, cfg); err != nil {
			return nil, err
		}
	}

	var observers []pipeline.Observer
	if cfg.AuditDB != "" {
		l, err := audit.Open(cfg.AuditDB)
		if err != nil {
			return nil, err
		}
		a.ledger = l
		observers = append(observers, l)
	}
	if cfg.MetricsTextfile != "" {
		a.metrics = metrics.New()
		observers = append(observers, a.metrics)
	}

	failedFraction := cfg.MaxFailedFraction
	a.orch = &pipeline.Orchestrator{
		Filter:    compliance.Default,
		Selector:  a.selector,
		Scrapers:  backends,
		Extractor: extract.Extractor{},
		Store:     st,
		Options: pipeline.Options{
			MaxFallbacks:      cfg.MaxFallbacks,
			MaxFailedFraction: &failedFraction,
			UploadWorkers:     cfg.UploadWorkers,
			MaxDocBytes:       cfg.MaxDocBytes,
			ScrapeTimeout:     cfg.ScrapeTimeout,
		},
		Observers: observers,
	}
	return a, nil
}

// LoadCatalogue reads the catalogue file or the embedded default. Without an
// Apify token the hosted actors cannot run, so only direct backends remain.
func LoadCatalogue(cfg Config) (*backend.Catalogue, error) {
	var cat *backend.Catalogue
	if p := strings.TrimSpace(cfg.CataloguePath); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read catalogue: %w", err)
		}
		if cat, err = backend.Parse(b); err != nil {
			return nil, fmt.Errorf("catalogue %s: %w", p, err)
		}
	} else {
		var err error
		if cat, err = backend.Default(); err != nil {
			return nil, fmt.Errorf("default catalogue: %w", err)
		}
	}
	if cfg.ApifyToken != "" {
		return cat, nil
	}
	var direct []backend.Profile
	for _, p := range cat.Profiles() {
		if p.Kind == backend.KindDirect {
			direct = append(direct, p)
		}
	}
	log.Warn().Int("kept", len(direct)).Int("dropped", len(cat.Profiles())-len(direct)).Msg("no Apify token; hosted actors disabled")
	return backend.NewCatalogue(direct)
}

func newStore(ctx context.Context, cfg Config) (store.Store, error) {
	switch strings.ToLower(cfg.Store) {
	case "gemini":
		return store.NewGemini(ctx, cfg.GeminiAPIKey, apiProfile.newClient())
	case "openai":
		return store.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, apiProfile.newClient()), nil
	case "local":
		return &store.Local{Dir: cfg.LocalStoreDir}, nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

// Close releases the audit ledger.
func (a *App) Close() error {
	if a.ledger != nil {
		return a.ledger.Close()
	}
	return nil
}

// Catalogue is the backend catalogue this app selects from.
func (a *App) Catalogue() *backend.Catalogue { return a.catalogue }

// Ledger is the audit ledger, nil when auditing is off.
func (a *App) Ledger() *audit.Ledger { return a.ledger }

func (a *App) input() (pipeline.Input, error) {
	tier, err := backend.ParseTier(a.cfg.Budget)
	if err != nil {
		return pipeline.Input{}, err
	}
	needs, err := backend.ParseCapabilities(a.cfg.Needs)
	if err != nil {
		return pipeline.Input{}, err
	}
	return pipeline.Input{
		Target:     a.cfg.Target,
		Needs:      needs,
		Budget:     tier,
		MaxPages:   a.cfg.MaxPages,
		CorpusName: a.cfg.CorpusName,
	}, nil
}

// Plan is the selection a run would start with. It makes no network calls.
type Plan struct {
	Target   selecter.Target   `json:"target"`
	Budget   backend.Tier      `json:"budget"`
	Decision selecter.Decision `json:"decision"`
	Pricing  budget.Pricing    `json:"pricing"`
}

// Plan classifies the target and selects a backend without scraping.
func (a *App) Plan() (Plan, error) {
	in, err := a.input()
	if err != nil {
		return Plan{}, err
	}
	target := selecter.NewTarget(in.Target, in.Needs)
	return Plan{
		Target:   target,
		Budget:   in.Budget,
		Decision: a.selector.Select(target, in.Budget, nil),
		Pricing:  budget.RunPricing(in.MaxPages),
	}, nil
}

// Run executes the pipeline and writes the artifacts. The summary is always
// returned, also for failed runs. The error is a *pipeline.RunError for
// failed runs and ErrNothingIndexed when the run finished empty.
func (a *App) Run(ctx context.Context) (pipeline.Summary, Artifacts, error) {
	in, err := a.input()
	if err != nil {
		return pipeline.Summary{}, Artifacts{}, err
	}
	if a.orch.Store == nil {
		return pipeline.Summary{}, Artifacts{}, errors.New("no store configured")
	}
	summary, runErr := a.orch.Run(ctx, in)

	var guide string
	if summary.Indexed() {
		profile := template.GetProfile(summary.StoreType)
		guide, err = template.Render(profile, guideData(summary))
		if err != nil {
			log.Warn().Err(err).Msg("query guide not rendered")
		} else {
			guide = appendAutoToC(guide, 6)
			if err := validate.Guide(guide, profile.Outline); err != nil {
				log.Warn().Err(err).Str("profile", string(profile.Type)).Msg("query guide failed validation")
			}
		}
	}
	artifacts, err := exportArtifacts(a.cfg, deriveRunOutputDir(a.cfg), &summary, guide)
	if err != nil {
		log.Error().Err(err).Msg("writing artifacts failed")
	} else {
		log.Info().Str("dir", artifacts.Dir).Msg("artifacts written")
	}

	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Msg("metrics textfile not written")
		}
	}

	if runErr != nil {
		return summary, artifacts, runErr
	}
	if !summary.Indexed() {
		return summary, artifacts, ErrNothingIndexed
	}
	return summary, artifacts, nil
}

func guideData(s pipeline.Summary) template.Data {
	return template.Data{
		CorpusName:         s.CorpusName,
		StoreID:            s.StoreID,
		StoreType:          s.StoreType,
		StoragePersistence: s.StoragePersistence,
		FilesIndexed:       s.FilesIndexed,
		DocumentsUploaded:  s.DocumentsUploaded,
		TotalSizeMB:        s.TotalSizeMB,
		EstimatedTokens:    s.EstimatedTokens,
		IndexingCost:       budget.FormatUSD(s.IndexingCostUSD),
		QueryCost:          s.QueryCostEstimate,
		Backend:            s.BackendUsed,
		Target:             s.Target,
	}
}

// ExtractURL fetches one page through the crawler's client, honouring the
// compliance filter and robots.txt, and extracts it.
func (a *App) ExtractURL(ctx context.Context, rawURL string) (extract.PageResult, error) {
	if v := compliance.Default.ClassifyURL(rawURL); v.Blocked() {
		return extract.PageResult{}, fmt.Errorf("%s is on a prohibited host (%s)", rawURL, v.Category)
	}
	ok, _, err := a.robots.Allowed(ctx, rawURL)
	if err != nil {
		return extract.PageResult{}, err
	}
	if !ok {
		return extract.PageResult{}, fmt.Errorf("%s is disallowed by robots.txt", rawURL)
	}
	res, err := a.fetcher.Get(ctx, rawURL)
	if err != nil {
		return extract.PageResult{}, err
	}
	final := res.FinalURL
	if final == "" {
		final = rawURL
	}
	return extract.Extractor{}.Extract(final, res.Body, ""), nil
}
