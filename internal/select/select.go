package selecter

import (
	"net/url"
	"sort"
	"strings"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/compliance"
)

// Kind is a coarse classification of the target site, reported in the run
// summary.
type Kind string

const (
	KindDocumentation Kind = "documentation"
	KindBlog          Kind = "blog"
	KindForum         Kind = "forum"
	KindNews          Kind = "news"
	KindGeneral       Kind = "general"
)

// Target is the root URL of a run plus the attributes used for matching.
type Target struct {
	URL    string               `json:"url"`
	Scheme string               `json:"scheme"`
	Host   string               `json:"host"`
	Kind   Kind                 `json:"kind"`
	Needs  []backend.Capability `json:"needs,omitempty"`
}

// NewTarget derives host and scheme from raw. A URL that does not parse still
// yields a Target, with an empty Host, so that the compliance check rejects it.
func NewTarget(raw string, needs []backend.Capability) Target {
	t := Target{URL: strings.TrimSpace(raw), Needs: append([]backend.Capability(nil), needs...)}
	if u, err := url.Parse(t.URL); err == nil && u.Host != "" && u.User == nil {
		t.Scheme = strings.ToLower(u.Scheme)
		t.Host = u.Host
		t.URL = canonicalizeURL(u)
	}
	t.Kind = classifyKind(t.URL)
	return t
}

func classifyKind(raw string) Kind {
	s := strings.ToLower(raw)
	switch {
	case containsAny(s, "docs.", "/docs/", "documentation", "api.", "developer."):
		return KindDocumentation
	case containsAny(s, "/blog/", "blog.", "medium.com", "substack.com"):
		return KindBlog
	case containsAny(s, "forum", "reddit.com", "stackoverflow.com", "discourse"):
		return KindForum
	case containsAny(s, "news", "article", "press", "/story/"):
		return KindNews
	}
	return KindGeneral
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func canonicalizeURL(u *url.URL) string {
	// drop fragments and default ports; lower-case host
	u2 := *u
	u2.Fragment = ""
	u2.Host = strings.ToLower(u2.Host)
	if (u2.Scheme == "http" && strings.HasSuffix(u2.Host, ":80")) || (u2.Scheme == "https" && strings.HasSuffix(u2.Host, ":443")) {
		u2.Host = u2.Hostname()
	}
	if u2.Path == "" {
		u2.Path = "/"
	}
	return u2.String()
}

// RejectReason explains why a backend was not chosen.
type RejectReason string

const (
	RejectRuleMatched        RejectReason = "rule matched"
	RejectCapabilityMismatch RejectReason = "capability mismatch"
	RejectBudgetExceeded     RejectReason = "budget exceeded"
	RejectPreviously         RejectReason = "previously rejected"
)

// Rejection records one backend that did not survive filtering.
type Rejection struct {
	BackendID string       `json:"backend"`
	Reason    RejectReason `json:"reason"`
	Detail    string       `json:"detail,omitempty"`
}

// Terminal reasons for a decision without a chosen backend.
const (
	ReasonComplianceViolation = "compliance violation"
	ReasonExhausted           = "budget/capability exhausted"
)

// Decision is the outcome of one selection attempt.
type Decision struct {
	Chosen     *backend.Profile    `json:"chosen,omitempty"`
	Fallbacks  []backend.Profile   `json:"fallbacks,omitempty"`
	Rejections []Rejection         `json:"rejections,omitempty"`
	Blocked    *compliance.Verdict `json:"blocked,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// OK reports whether a backend was chosen.
func (d Decision) OK() bool { return d.Chosen != nil }

// Selector ranks the catalogue for a target. It holds no mutable state.
type Selector struct {
	Filter    compliance.Filter
	Catalogue *backend.Catalogue
}

// New returns a Selector over cat using the built-in compliance rules.
func New(cat *backend.Catalogue) *Selector {
	return &Selector{Filter: compliance.Default, Catalogue: cat}
}

// Select picks a backend for target under budget, skipping the ids in
// previouslyRejected. Survivors are ordered by tier ascending, reliability
// descending, broader capability set, then catalogue order.
func (s *Selector) Select(target Target, budget backend.Tier, previouslyRejected []string) Decision {
	if v := s.Filter.Classify(target.Host); v.Blocked() {
		return Decision{Blocked: &v, Reason: ReasonComplianceViolation}
	}

	skip := make(map[string]struct{}, len(previouslyRejected))
	for _, id := range previouslyRejected {
		skip[id] = struct{}{}
	}

	var d Decision
	var survivors []backend.Profile
	if s.Catalogue != nil {
		for _, p := range s.Catalogue.Profiles() {
			if v := s.Filter.ClassifyBackend(p.ID, p.Name); v.Blocked() {
				d.Rejections = append(d.Rejections, Rejection{BackendID: p.ID, Reason: RejectRuleMatched, Detail: string(v.Category)})
				continue
			}
			if p.Tier > budget {
				d.Rejections = append(d.Rejections, Rejection{BackendID: p.ID, Reason: RejectBudgetExceeded, Detail: p.Tier.String() + " > " + budget.String()})
				continue
			}
			if missing := p.Missing(target.Needs); len(missing) > 0 {
				d.Rejections = append(d.Rejections, Rejection{BackendID: p.ID, Reason: RejectCapabilityMismatch, Detail: "missing " + joinCaps(missing)})
				continue
			}
			if _, ok := skip[p.ID]; ok {
				d.Rejections = append(d.Rejections, Rejection{BackendID: p.ID, Reason: RejectPreviously})
				continue
			}
			survivors = append(survivors, p)
		}
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		a, b := survivors[i], survivors[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		return a.Breadth() > b.Breadth()
	})

	if len(survivors) == 0 {
		d.Reason = ReasonExhausted
		return d
	}
	chosen := survivors[0]
	d.Chosen = &chosen
	d.Fallbacks = survivors[1:]
	return d
}

func joinCaps(cs []backend.Capability) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
