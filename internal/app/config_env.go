package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envBinding maps one Config field to the environment variables that feed
// it, first non-empty variable wins. set parses the value and reports
// whether it was usable; isSet reports whether the field already holds a
// value.
type envBinding struct {
	keys  []string
	set   func(*Config, string) bool
	isSet func(*Config) bool
}

func envString(field func(*Config) *string, keys ...string) envBinding {
	return envBinding{
		keys:  keys,
		set:   func(c *Config, v string) bool { *field(c) = v; return true },
		isSet: func(c *Config) bool { return *field(c) != "" },
	}
}

func envInt(field func(*Config) *int, keys ...string) envBinding {
	return envBinding{
		keys: keys,
		set: func(c *Config, v string) bool {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return false
			}
			*field(c) = n
			return true
		},
		isSet: func(c *Config) bool { return *field(c) != 0 },
	}
}

func envFloat(field func(*Config) *float64, keys ...string) envBinding {
	return envBinding{
		keys: keys,
		set: func(c *Config, v string) bool {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 {
				return false
			}
			*field(c) = f
			return true
		},
		isSet: func(c *Config) bool { return *field(c) != 0 },
	}
}

func envDuration(field func(*Config) *time.Duration, keys ...string) envBinding {
	return envBinding{
		keys: keys,
		set: func(c *Config, v string) bool {
			d, err := time.ParseDuration(v)
			if err != nil {
				return false
			}
			*field(c) = d
			return true
		},
		isSet: func(c *Config) bool { return *field(c) != 0 },
	}
}

// envBool accepts 1/true/yes/on and 0/false/no/off.
func envBool(field func(*Config) *bool, keys ...string) envBinding {
	return envBinding{
		keys: keys,
		set: func(c *Config, v string) bool {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*field(c) = true
			case "0", "false", "no", "off":
				*field(c) = false
			default:
				return false
			}
			return true
		},
		isSet: func(c *Config) bool { return *field(c) },
	}
}

var envBindings = []envBinding{
	envString(func(c *Config) *string { return &c.Target }, "WEBCORPUS_TARGET"),
	envString(func(c *Config) *string { return &c.Needs }, "WEBCORPUS_NEEDS"),
	envString(func(c *Config) *string { return &c.Budget }, "SCRAPER_BUDGET"),
	envString(func(c *Config) *string { return &c.CorpusName }, "CORPUS_NAME"),
	envString(func(c *Config) *string { return &c.Store }, "STORE"),
	envString(func(c *Config) *string { return &c.GeminiAPIKey }, "GEMINI_API_KEY", "GOOGLE_API_KEY"),
	envString(func(c *Config) *string { return &c.OpenAIAPIKey }, "OPENAI_API_KEY"),
	envString(func(c *Config) *string { return &c.OpenAIBaseURL }, "OPENAI_BASE_URL"),
	envString(func(c *Config) *string { return &c.ApifyToken }, "APIFY_TOKEN", "APIFY_API_TOKEN"),
	envString(func(c *Config) *string { return &c.ApifyBaseURL }, "APIFY_BASE_URL"),
	envString(func(c *Config) *string { return &c.UserAgent }, "WEBCORPUS_USER_AGENT"),
	envString(func(c *Config) *string { return &c.OutDir }, "WEBCORPUS_OUT"),
	envString(func(c *Config) *string { return &c.CacheDir }, "CACHE_DIR"),
	envString(func(c *Config) *string { return &c.AuditDB }, "AUDIT_DB"),
	envString(func(c *Config) *string { return &c.MetricsTextfile }, "METRICS_TEXTFILE"),
	envInt(func(c *Config) *int { return &c.MaxPages }, "MAX_PAGES"),
	envFloat(func(c *Config) *float64 { return &c.RequestsPerSecond }, "REQUESTS_PER_SECOND"),
	envDuration(func(c *Config) *time.Duration { return &c.CacheMaxAge }, "CACHE_MAX_AGE"),
	envDuration(func(c *Config) *time.Duration { return &c.ScrapeTimeout }, "SCRAPE_TIMEOUT"),
	envBool(func(c *Config) *bool { return &c.DryRun }, "DRY_RUN"),
	envBool(func(c *Config) *bool { return &c.Verbose }, "VERBOSE"),
	envBool(func(c *Config) *bool { return &c.CacheClear }, "CACHE_CLEAR"),
	envBool(func(c *Config) *bool { return &c.CacheStrictPerms }, "CACHE_STRICT_PERMS"),
}

func applyEnv(cfg *Config, override bool) {
	if cfg == nil {
		return
	}
	for _, b := range envBindings {
		if !override && b.isSet(cfg) {
			continue
		}
		for _, k := range b.keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" && b.set(cfg, v) {
				break
			}
		}
	}
}

// ApplyEnvToConfig fills the fields of cfg that are still unset from the
// environment.
func ApplyEnvToConfig(cfg *Config) { applyEnv(cfg, false) }

// ApplyEnvOverrides replaces fields of cfg with every environment variable
// that is set, so the environment beats a config file. Flags are applied
// after it.
func ApplyEnvOverrides(cfg *Config) { applyEnv(cfg, true) }

// EnvKeys lists every environment variable the configuration reads.
func EnvKeys() []string {
	var keys []string
	for _, b := range envBindings {
		keys = append(keys, b.keys...)
	}
	return keys
}
