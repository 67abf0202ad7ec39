package pipeline

import (
	"time"

	"github.com/hyperifyio/webcorpus/internal/extract"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

// Observer receives run events. Upload events arrive from several
// goroutines, so implementations must be safe for concurrent use.
type Observer interface {
	RunStarted(runID string, in Input, at time.Time)
	SelectionMade(runID string, d selecter.Decision)
	BackendAttempted(runID, backendID string, pages int, err error)
	PageExtracted(runID string, p extract.PageResult)
	DocumentUploaded(runID, docID string, attempts int, elapsed time.Duration, err error)
	RunFinished(s Summary)
}

// NopObserver implements Observer with no-ops; embed it to handle a subset
// of events.
type NopObserver struct{}

func (NopObserver) RunStarted(string, Input, time.Time)                        {}
func (NopObserver) SelectionMade(string, selecter.Decision)                    {}
func (NopObserver) BackendAttempted(string, string, int, error)                {}
func (NopObserver) PageExtracted(string, extract.PageResult)                   {}
func (NopObserver) DocumentUploaded(string, string, int, time.Duration, error) {}
func (NopObserver) RunFinished(Summary)                                        {}
