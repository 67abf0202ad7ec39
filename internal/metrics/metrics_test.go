package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

var _ pipeline.Observer = (*Collector)(nil)

func TestCollector_CountsEvents(t *testing.T) {
	c := New()
	c.PageExtracted("r", extract.PageResult{Status: extract.StatusSuccess})
	c.PageExtracted("r", extract.PageResult{Status: extract.StatusSuccess})
	c.PageExtracted("r", extract.PageResult{Status: extract.StatusFailed})
	c.BackendAttempted("r", "apify/web", 0, errors.New("timeout"))
	c.BackendAttempted("r", "direct", 3, nil)
	c.DocumentUploaded("r", "doc-0001", 1, 2*time.Second, nil)
	c.DocumentUploaded("r", "doc-0002", 3, time.Second, errors.New("503"))
	c.RunFinished(pipeline.Summary{Status: "DONE", BackendFallbacks: 1, FilesIndexed: 2, FinishedAt: time.Unix(1700000000, 0)})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.pages.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.pages.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("apify/web", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("direct", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.uploads.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.indexed))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("DONE")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.uploadTime))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.RunFinished(pipeline.Summary{Status: "FAILED", FinishedAt: time.Unix(1700000000, 0)})
	path := filepath.Join(t.TempDir(), "webcorpus.prom")
	require.NoError(t, c.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `webcorpus_runs_total{status="FAILED"} 1`)
	assert.Contains(t, string(b), "# TYPE webcorpus_last_run_timestamp_seconds gauge")
}
