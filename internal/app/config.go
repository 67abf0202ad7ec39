package app

import (
	"time"

	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// Config holds runtime configuration for the application.
type Config struct {
	// Run input
	Target     string
	Needs      string // comma separated capabilities
	Budget     string
	MaxPages   int
	CorpusName string

	// Store
	Store         string // gemini, openai or local
	GeminiAPIKey  string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	LocalStoreDir string

	// Scraping
	ApifyToken        string
	ApifyBaseURL      string
	CataloguePath     string
	UserAgent         string
	RequestsPerSecond float64
	AllowPrivateHosts bool

	// Pipeline tuning
	MaxFallbacks      int
	MaxFailedFraction float64 // share of pages failing extraction; 0 tolerates none
	UploadWorkers     int
	MaxDocBytes       int
	ScrapeTimeout     time.Duration

	// Output
	OutDir    string
	EnablePDF bool
	OutTar    bool

	// Cache
	CacheDir         string
	CacheMaxAge      time.Duration
	CacheClear       bool
	CacheStrictPerms bool
	CacheMaxBytes    int64
	CacheMaxCount    int

	// Observability
	AuditDB         string
	MetricsTextfile string

	// Behavior
	DryRun  bool
	Verbose bool
}

// Defaults used by flags and by ApplyFileConfig to tell explicit values
// from untouched ones.
const (
	DefaultBudget     = "optimal"
	DefaultMaxPages   = 50
	DefaultCorpusName = "scraped-knowledge"
	DefaultStore      = "gemini"
	DefaultOutDir     = "out"
	DefaultCacheDir   = ".webcorpus-cache"
	DefaultLocalStore = "corpus"
	DefaultUserAgent  = "webcorpus/1.0 (+https://github.com/hyperifyio/webcorpus)"
)

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		Budget:        DefaultBudget,
		MaxPages:      DefaultMaxPages,
		CorpusName:    DefaultCorpusName,
		Store:         DefaultStore,
		OutDir:        DefaultOutDir,
		CacheDir:      DefaultCacheDir,
		LocalStoreDir: DefaultLocalStore,
		UserAgent:     DefaultUserAgent,
		MaxFallbacks:  2,

		MaxFailedFraction: pipeline.DefaultMaxFailedFraction,
	}
}
