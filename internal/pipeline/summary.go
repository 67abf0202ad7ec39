package pipeline

import (
	"time"

	"github.com/hyperifyio/webcorpus/internal/budget"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

// Summary is the run report written to summary.json.
type Summary struct {
	RunID              string               `json:"run_id"`
	Status             string               `json:"status"`
	Target             string               `json:"target"`
	TargetKind         string               `json:"target_kind"`
	CorpusName         string               `json:"corpus_name"`
	StoreID            string               `json:"store_id,omitempty"`
	StoreType          string               `json:"store_type,omitempty"`
	StoragePersistence string               `json:"storage_persistence,omitempty"`
	BackendUsed        string               `json:"backend_used,omitempty"`
	BackendFallbacks   int                  `json:"backend_fallbacks"`
	Rejections         []selecter.Rejection `json:"rejections,omitempty"`

	PagesAttempted int `json:"pages_attempted"`
	PagesSucceeded int `json:"pages_succeeded"`
	PagesPartial   int `json:"pages_partial"`
	PagesFailed    int `json:"pages_failed"`
	PagesBlocked   int `json:"pages_blocked"`
	PagesExcluded  int `json:"pages_excluded"`

	DocumentsUploaded int `json:"documents_uploaded"`
	DocumentsFailed   int `json:"documents_failed"`
	// FilesIndexed counts pages contained in successfully uploaded documents.
	FilesIndexed int `json:"files_indexed"`

	TotalSizeMB       float64        `json:"total_size_mb"`
	EstimatedTokens   int            `json:"estimated_tokens"`
	IndexingCostUSD   float64        `json:"indexing_cost_usd"`
	QueryCostEstimate string         `json:"query_cost_estimate"`
	Pricing           budget.Pricing `json:"pricing"`
	TruncatedBytes    int            `json:"truncated_bytes"`
	QueryGuide        string         `json:"query_guide,omitempty"`

	Documents []DocumentInfo `json:"documents,omitempty"`

	States     []State   `json:"states"`
	Failure    *RunError `json:"failure,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// DocumentInfo describes one assembled document and what became of it.
type DocumentInfo struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Pages           []string `json:"pages"`
	Bytes           int      `json:"bytes"`
	Tokens          int      `json:"tokens"`
	TruncatedBytes  int      `json:"truncated_bytes,omitempty"`
	SHA256          string   `json:"sha256"`
	Uploaded        bool     `json:"uploaded"`
	Attempts        int      `json:"attempts"`
	StoreDocumentID string   `json:"store_document_id,omitempty"`
	Error           string   `json:"error,omitempty"`
}

// Indexed reports whether the run finished with at least one page in the
// store.
func (s Summary) Indexed() bool {
	return s.Status == string(StateDone) && s.FilesIndexed > 0
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
