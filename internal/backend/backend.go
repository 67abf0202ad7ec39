// Package backend describes the static set of scraping backends a run can
// choose from. The catalogue is embedded at build time and parsed once.
package backend

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	yaml "gopkg.in/yaml.v3"
)

// Tier is a relative cost ceiling. Tiers are ordered minimal < optimal < premium.
type Tier int

const (
	TierMinimal Tier = iota + 1
	TierOptimal
	TierPremium
)

func (t Tier) String() string {
	switch t {
	case TierMinimal:
		return "minimal"
	case TierOptimal:
		return "optimal"
	case TierPremium:
		return "premium"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier accepts a tier name in any case.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return TierMinimal, nil
	case "optimal":
		return TierOptimal, nil
	case "premium":
		return TierPremium, nil
	}
	return 0, fmt.Errorf("unknown budget tier %q (want minimal, optimal or premium)", s)
}

func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Capability is a feature a backend declares.
type Capability string

const (
	CapJSRendering    Capability = "js-rendering"
	CapPagination     Capability = "pagination"
	CapMarkdownOutput Capability = "markdown-output"
	CapAntiBlocking   Capability = "anti-blocking"
	CapFileDownload   Capability = "file-download"
	CapSitemap        Capability = "sitemap"
)

var knownCaps = map[Capability]bool{
	CapJSRendering: true, CapPagination: true, CapMarkdownOutput: true,
	CapAntiBlocking: true, CapFileDownload: true, CapSitemap: true,
}

// ParseCapabilities parses a comma separated capability list.
func ParseCapabilities(s string) ([]Capability, error) {
	var out []Capability
	for _, p := range strings.Split(s, ",") {
		c := Capability(strings.ToLower(strings.TrimSpace(p)))
		if c == "" {
			continue
		}
		if !knownCaps[c] {
			return nil, fmt.Errorf("unknown capability %q", c)
		}
		out = append(out, c)
	}
	return out, nil
}

// Kind is the closed set of backend implementations. Adding a backend
// implementation means adding a Kind and handling it in the scrape package.
type Kind string

const (
	KindDirect Kind = "direct"
	KindApify  Kind = "apify-actor"
)

// Profile is one catalogue entry.
type Profile struct {
	ID           string         `yaml:"id" json:"id"`
	Name         string         `yaml:"name" json:"name"`
	Kind         Kind           `yaml:"kind" json:"kind"`
	Tier         Tier           `yaml:"tier" json:"tier"`
	Reliability  int            `yaml:"reliability" json:"reliability"`
	RateLimit    float64        `yaml:"rate_limit" json:"rate_limit"`
	Capabilities []Capability   `yaml:"capabilities" json:"capabilities"`
	Input        map[string]any `yaml:"input,omitempty" json:"input,omitempty"`
}

// Has reports whether the profile declares c.
func (p Profile) Has(c Capability) bool {
	for _, have := range p.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// Missing returns the needs that the profile does not declare, in order.
func (p Profile) Missing(needs []Capability) []Capability {
	var out []Capability
	for _, n := range needs {
		if !p.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// Breadth is the number of distinct declared capabilities.
func (p Profile) Breadth() int {
	seen := make(map[Capability]struct{}, len(p.Capabilities))
	for _, c := range p.Capabilities {
		seen[c] = struct{}{}
	}
	return len(seen)
}

// Catalogue is an immutable, ordered set of profiles.
type Catalogue struct {
	profiles []Profile
	byID     map[string]int
}

// NewCatalogue validates profiles and freezes them in the given order.
func NewCatalogue(profiles []Profile) (*Catalogue, error) {
	c := &Catalogue{profiles: make([]Profile, 0, len(profiles)), byID: make(map[string]int, len(profiles))}
	var errs []error
	for i, p := range profiles {
		if err := validate(p); err != nil {
			errs = append(errs, fmt.Errorf("backend %d (%s): %w", i, p.ID, err))
			continue
		}
		if _, dup := c.byID[p.ID]; dup {
			errs = append(errs, fmt.Errorf("backend %d: duplicate id %q", i, p.ID))
			continue
		}
		p.Capabilities = append([]Capability(nil), p.Capabilities...)
		c.byID[p.ID] = len(c.profiles)
		c.profiles = append(c.profiles, p)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func validate(p Profile) error {
	if strings.TrimSpace(p.ID) == "" {
		return errors.New("missing id")
	}
	switch p.Kind {
	case KindDirect, KindApify:
	default:
		return fmt.Errorf("unknown kind %q", p.Kind)
	}
	if p.Tier < TierMinimal || p.Tier > TierPremium {
		return errors.New("missing tier")
	}
	if p.RateLimit < 0 {
		return errors.New("negative rate limit")
	}
	for _, c := range p.Capabilities {
		if !knownCaps[c] {
			return fmt.Errorf("unknown capability %q", c)
		}
	}
	return nil
}

// Profiles returns a copy of the catalogue in declaration order.
func (c *Catalogue) Profiles() []Profile {
	out := make([]Profile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// Lookup finds a profile by id.
func (c *Catalogue) Lookup(id string) (Profile, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Profile{}, false
	}
	return c.profiles[i], true
}

// IDs returns the profile ids sorted alphabetically.
func (c *Catalogue) IDs() []string {
	out := make([]string, 0, len(c.profiles))
	for _, p := range c.profiles {
		out = append(out, p.ID)
	}
	sort.Strings(out)
	return out
}

//go:embed catalogue.yaml
var catalogueYAML []byte

// Parse decodes a catalogue document.
func Parse(b []byte) (*Catalogue, error) {
	var doc struct {
		Backends []Profile `yaml:"backends"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse catalogue: %w", err)
	}
	if len(doc.Backends) == 0 {
		return nil, errors.New("parse catalogue: no backends")
	}
	return NewCatalogue(doc.Backends)
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalogue
	defaultErr  error
)

// Default returns the embedded catalogue.
func Default() (*Catalogue, error) {
	defaultOnce.Do(func() {
		defaultCat, defaultErr = Parse(catalogueYAML)
	})
	return defaultCat, defaultErr
}
