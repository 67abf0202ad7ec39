package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

// FileConfig represents the single-file configuration schema.
// Nested sections improve readability and map naturally to flags/env.
type FileConfig struct {
	Target     string   `yaml:"target" json:"target"`
	Needs      []string `yaml:"needs" json:"needs"`
	Budget     string   `yaml:"budget" json:"budget"`
	MaxPages   int      `yaml:"maxPages" json:"maxPages"`
	CorpusName string   `yaml:"corpusName" json:"corpusName"`

	Store struct {
		Kind     string `yaml:"kind" json:"kind"`
		LocalDir string `yaml:"localDir" json:"localDir"`
	} `yaml:"store" json:"store"`

	Gemini struct {
		APIKey string `yaml:"key" json:"key"`
	} `yaml:"gemini" json:"gemini"`

	OpenAI struct {
		BaseURL string `yaml:"base" json:"base"`
		APIKey  string `yaml:"key" json:"key"`
	} `yaml:"openai" json:"openai"`

	Apify struct {
		BaseURL string `yaml:"base" json:"base"`
		Token   string `yaml:"token" json:"token"`
	} `yaml:"apify" json:"apify"`

	Catalogue string `yaml:"catalogue" json:"catalogue"`

	Crawler struct {
		UserAgent         string  `yaml:"userAgent" json:"userAgent"`
		RequestsPerSecond float64 `yaml:"requestsPerSecond" json:"requestsPerSecond"`
		AllowPrivateHosts bool    `yaml:"allowPrivateHosts" json:"allowPrivateHosts"`
	} `yaml:"crawler" json:"crawler"`

	Pipeline struct {
		MaxFallbacks      int           `yaml:"maxFallbacks" json:"maxFallbacks"`
		MaxFailedFraction *float64      `yaml:"maxFailedFraction" json:"maxFailedFraction"`
		UploadWorkers     int           `yaml:"uploadWorkers" json:"uploadWorkers"`
		MaxDocBytes       int           `yaml:"maxDocBytes" json:"maxDocBytes"`
		ScrapeTimeout     time.Duration `yaml:"scrapeTimeout" json:"scrapeTimeout"`
	} `yaml:"pipeline" json:"pipeline"`

	Output struct {
		Dir string `yaml:"dir" json:"dir"`
		PDF bool   `yaml:"pdf" json:"pdf"`
	} `yaml:"output" json:"output"`

	Cache struct {
		Dir         string        `yaml:"dir" json:"dir"`
		MaxAge      time.Duration `yaml:"maxAge" json:"maxAge"`
		Clear       bool          `yaml:"clear" json:"clear"`
		StrictPerms bool          `yaml:"strictPerms" json:"strictPerms"`
		MaxBytes    int64         `yaml:"maxBytes" json:"maxBytes"`
		MaxCount    int           `yaml:"maxCount" json:"maxCount"`
	} `yaml:"cache" json:"cache"`

	Audit struct {
		DB string `yaml:"db" json:"db"`
	} `yaml:"audit" json:"audit"`

	Metrics struct {
		Textfile string `yaml:"textfile" json:"textfile"`
	} `yaml:"metrics" json:"metrics"`

	DryRun  bool `yaml:"dryRun" json:"dryRun"`
	Verbose bool `yaml:"verbose" json:"verbose"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		// Try YAML then JSON
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from FileConfig into cfg for any fields that
// are currently unset or still at their flag default. Flags should already
// have been parsed; this lets file config supply defaults while preserving
// explicit flags.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	str := func(dst *string, def, v string) {
		if (*dst == "" || *dst == def) && v != "" {
			*dst = v
		}
	}
	flag := func(dst *bool, v bool) {
		if !*dst && v {
			*dst = true
		}
	}

	str(&cfg.Target, "", fc.Target)
	if cfg.Needs == "" && len(fc.Needs) > 0 {
		cfg.Needs = strings.Join(fc.Needs, ",")
	}
	str(&cfg.Budget, DefaultBudget, fc.Budget)
	if (cfg.MaxPages == 0 || cfg.MaxPages == DefaultMaxPages) && fc.MaxPages > 0 {
		cfg.MaxPages = fc.MaxPages
	}
	str(&cfg.CorpusName, DefaultCorpusName, fc.CorpusName)

	str(&cfg.Store, DefaultStore, fc.Store.Kind)
	str(&cfg.LocalStoreDir, DefaultLocalStore, fc.Store.LocalDir)
	str(&cfg.GeminiAPIKey, "", fc.Gemini.APIKey)
	str(&cfg.OpenAIBaseURL, "", fc.OpenAI.BaseURL)
	str(&cfg.OpenAIAPIKey, "", fc.OpenAI.APIKey)
	str(&cfg.ApifyBaseURL, "", fc.Apify.BaseURL)
	str(&cfg.ApifyToken, "", fc.Apify.Token)
	str(&cfg.CataloguePath, "", fc.Catalogue)

	str(&cfg.UserAgent, DefaultUserAgent, fc.Crawler.UserAgent)
	if cfg.RequestsPerSecond == 0 && fc.Crawler.RequestsPerSecond > 0 {
		cfg.RequestsPerSecond = fc.Crawler.RequestsPerSecond
	}
	flag(&cfg.AllowPrivateHosts, fc.Crawler.AllowPrivateHosts)

	if (cfg.MaxFallbacks == 0 || cfg.MaxFallbacks == 2) && fc.Pipeline.MaxFallbacks != 0 {
		cfg.MaxFallbacks = fc.Pipeline.MaxFallbacks
	}
	if cfg.MaxFailedFraction == pipeline.DefaultMaxFailedFraction && fc.Pipeline.MaxFailedFraction != nil {
		cfg.MaxFailedFraction = *fc.Pipeline.MaxFailedFraction
	}
	if cfg.UploadWorkers == 0 && fc.Pipeline.UploadWorkers > 0 {
		cfg.UploadWorkers = fc.Pipeline.UploadWorkers
	}
	if cfg.MaxDocBytes == 0 && fc.Pipeline.MaxDocBytes > 0 {
		cfg.MaxDocBytes = fc.Pipeline.MaxDocBytes
	}
	if cfg.ScrapeTimeout == 0 && fc.Pipeline.ScrapeTimeout > 0 {
		cfg.ScrapeTimeout = fc.Pipeline.ScrapeTimeout
	}

	str(&cfg.OutDir, DefaultOutDir, fc.Output.Dir)
	flag(&cfg.EnablePDF, fc.Output.PDF)

	str(&cfg.CacheDir, DefaultCacheDir, fc.Cache.Dir)
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	flag(&cfg.CacheClear, fc.Cache.Clear)
	flag(&cfg.CacheStrictPerms, fc.Cache.StrictPerms)
	if cfg.CacheMaxBytes == 0 && fc.Cache.MaxBytes > 0 {
		cfg.CacheMaxBytes = fc.Cache.MaxBytes
	}
	if cfg.CacheMaxCount == 0 && fc.Cache.MaxCount > 0 {
		cfg.CacheMaxCount = fc.Cache.MaxCount
	}

	str(&cfg.AuditDB, "", fc.Audit.DB)
	str(&cfg.MetricsTextfile, "", fc.Metrics.Textfile)
	flag(&cfg.DryRun, fc.DryRun)
	flag(&cfg.Verbose, fc.Verbose)
}

// ValidateConfig checks the settings a run needs. Store credentials are not
// required for a dry run, which never uploads.
func ValidateConfig(cfg Config) error {
	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		return errors.New("config: target URL is required (or set WEBCORPUS_TARGET)")
	}
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: target %q is not an absolute http(s) URL", target)
	}
	if cfg.MaxPages < 1 || cfg.MaxPages > pipeline.MaxPagesLimit {
		return fmt.Errorf("config: max pages must be between 1 and %d", pipeline.MaxPagesLimit)
	}
	if _, err := backend.ParseTier(cfg.Budget); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := backend.ParseCapabilities(cfg.Needs); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.TrimSpace(cfg.CorpusName) == "" {
		return errors.New("config: corpus name is required")
	}
	if cfg.MaxFailedFraction < 0 || cfg.MaxFailedFraction > 1 {
		return errors.New("config: max failed fraction must be within [0, 1]")
	}
	if cfg.UploadWorkers < 0 || cfg.MaxDocBytes < 0 || cfg.CacheMaxBytes < 0 || cfg.CacheMaxCount < 0 {
		return errors.New("config: negative limits are not allowed")
	}
	switch strings.ToLower(cfg.Store) {
	case "gemini":
		if !cfg.DryRun && strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return errors.New("config: gemini store needs an API key (set GEMINI_API_KEY)")
		}
	case "openai":
		if !cfg.DryRun && strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return errors.New("config: openai store needs an API key (set OPENAI_API_KEY)")
		}
	case "local":
		if strings.TrimSpace(cfg.LocalStoreDir) == "" {
			return errors.New("config: local store needs a directory")
		}
	default:
		return fmt.Errorf("config: unknown store %q (want gemini, openai or local)", cfg.Store)
	}
	return nil
}
