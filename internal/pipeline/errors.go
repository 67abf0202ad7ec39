package pipeline

import (
	"fmt"
	"sort"
	"strings"
)

// ErrorKind is the class of a fatal run error.
type ErrorKind string

const (
	// ComplianceViolation: the target matches a prohibited-source rule.
	ComplianceViolation ErrorKind = "ComplianceViolation"
	// SelectionExhausted: no backend is left after filtering and fallbacks.
	SelectionExhausted ErrorKind = "SelectionExhausted"
	// RunAborted: too many pages failed extraction, nothing usable was
	// produced, or the run was cancelled.
	RunAborted ErrorKind = "RunAborted"
)

// RunError is the structured reason a run ended FAILED. Per-page extraction
// problems and per-document upload failures never produce one; they are
// counted in the Summary.
type RunError struct {
	Kind      ErrorKind      `json:"kind"`
	Category  string         `json:"category,omitempty"`
	Reasons   []string       `json:"reasons,omitempty"`
	Breakdown map[string]int `json:"breakdown,omitempty"`
}

func (e *RunError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Category != "" {
		b.WriteString(" (" + e.Category + ")")
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": " + strings.Join(e.Reasons, "; "))
	}
	if len(e.Breakdown) > 0 {
		keys := make([]string, 0, len(e.Breakdown))
		for k := range e.Breakdown {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, e.Breakdown[k])
		}
		b.WriteString(" [" + strings.Join(parts, " ") + "]")
	}
	return b.String()
}
