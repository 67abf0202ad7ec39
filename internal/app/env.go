package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

type envVar struct {
	key, value string
}

// LoadEnvFiles applies dotenv files in order, later files overriding earlier
// ones. A variable that is already non-empty in the process environment is
// never replaced. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	preset := make(map[string]bool)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && v != "" {
			preset[k] = true
		}
	}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		vars, err := readEnvFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		for _, v := range vars {
			if !preset[v.key] {
				_ = os.Setenv(v.key, v.value)
			}
		}
	}
	return nil
}

func readEnvFile(path string) ([]envVar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vars, err := parseDotenv(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return vars, nil
}

// parseDotenv reads KEY=VALUE lines. Blank lines and '#' comments are
// skipped and an "export " prefix is accepted. Values are not expanded.
// Lines without a key are logged and ignored.
func parseDotenv(r io.Reader) ([]envVar, error) {
	var out []envVar
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, raw, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			log.Debug().Int("line", n).Msg("dotenv: skipping malformed line")
			continue
		}
		out = append(out, envVar{key: key, value: envValue(strings.TrimSpace(raw))})
	}
	return out, sc.Err()
}

// envValue strips quoting. Double quotes accept Go escapes, single quotes
// are literal, and an unquoted value ends at " #".
func envValue(raw string) string {
	if len(raw) >= 2 {
		switch q := raw[0]; {
		case q == '"' && raw[len(raw)-1] == '"':
			if s, err := strconv.Unquote(raw); err == nil {
				return s
			}
			return raw[1 : len(raw)-1]
		case q == '\'' && raw[len(raw)-1] == '\'':
			return raw[1 : len(raw)-1]
		}
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw
}
