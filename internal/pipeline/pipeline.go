// Package pipeline drives one corpus-building run through its states:
// backend selection, scraping, extraction, assembly and upload. Fatal
// conditions end the run in FAILED with a *RunError; page and upload
// problems are counted and the run still completes.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/budget"
	"github.com/hyperifyio/webcorpus/internal/compliance"
	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/scrape"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
	"github.com/hyperifyio/webcorpus/internal/store"
)

// State is one step of the run state machine.
type State string

const (
	StateSelecting  State = "SELECTING"
	StateScraping   State = "SCRAPING"
	StateExtracting State = "EXTRACTING"
	StateAssembling State = "ASSEMBLING"
	StateUploading  State = "UPLOADING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// MaxPagesLimit is the hard upper bound on pages per run.
const MaxPagesLimit = 2000

// DefaultMaxPages applies when Input.MaxPages is not positive.
const DefaultMaxPages = 50

// DefaultMaxFailedFraction applies when Options.MaxFailedFraction is nil.
const DefaultMaxFailedFraction = 0.25

// Options tunes a run. Zero values take the defaults noted per field.
type Options struct {
	MaxFallbacks      int           // 2; negative disables fallback
	MaxFailedFraction *float64      // nil means 0.25; share of pages failing extraction, aborts only when strictly exceeded
	ExtractWorkers    int           // 4
	UploadWorkers     int           // 4, clamped to 1..8
	UploadAttempts    int           // 3
	UploadBackoff     time.Duration // 500ms initial interval
	MaxDocBytes       int           // 5 MiB of page content; source headers added on upload are not counted
	MaxDocs           int           // 100
	ScrapeTimeout     time.Duration // 0 means no limit beyond ctx
}

func (o Options) withDefaults() Options {
	if o.MaxFallbacks == 0 {
		o.MaxFallbacks = 2
	} else if o.MaxFallbacks < 0 {
		o.MaxFallbacks = 0
	}
	if o.MaxFailedFraction == nil {
		f := DefaultMaxFailedFraction
		o.MaxFailedFraction = &f
	}
	if o.ExtractWorkers <= 0 {
		o.ExtractWorkers = 4
	}
	if o.UploadWorkers <= 0 {
		o.UploadWorkers = 4
	}
	if o.UploadWorkers > 8 {
		o.UploadWorkers = 8
	}
	if o.UploadAttempts <= 0 {
		o.UploadAttempts = 3
	}
	if o.UploadBackoff <= 0 {
		o.UploadBackoff = 500 * time.Millisecond
	}
	if o.MaxDocBytes <= 0 {
		o.MaxDocBytes = 5 << 20
	}
	if o.MaxDocs <= 0 {
		o.MaxDocs = 100
	}
	return o
}

// Input describes what to build.
type Input struct {
	Target     string               `json:"target"`
	Needs      []backend.Capability `json:"needs,omitempty"`
	Budget     backend.Tier         `json:"budget"`
	MaxPages   int                  `json:"max_pages"`
	CorpusName string               `json:"corpus_name"`
}

// Orchestrator owns no state between runs; each Run builds its own.
type Orchestrator struct {
	Filter    compliance.Filter
	Selector  *selecter.Selector
	Scrapers  scrape.Scraper
	Extractor extract.Extractor
	Store     store.Store
	Options   Options
	Observers []Observer
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run executes the state machine to completion. The returned Summary is
// always populated; the error is a *RunError when the run ended FAILED.
func (o *Orchestrator) Run(ctx context.Context, in Input) (Summary, error) {
	r := o.newRun(in)
	r.each(func(ob Observer) { ob.RunStarted(r.id, r.in, r.summary.StartedAt) })

	state := StateSelecting
	for state != StateDone && state != StateFailed {
		r.summary.States = append(r.summary.States, state)
		r.log.Debug().Str("state", string(state)).Msg("enter state")
		state = r.step(ctx, state)
	}
	r.summary.States = append(r.summary.States, state)
	r.finish(state)

	r.each(func(ob Observer) { ob.RunFinished(r.summary) })
	if r.err != nil {
		return r.summary, r.err
	}
	return r.summary, nil
}

func (o *Orchestrator) newRun(in Input) *run {
	now := o.Now
	if now == nil {
		now = time.Now
	}
	if in.MaxPages <= 0 {
		in.MaxPages = DefaultMaxPages
	}
	if in.MaxPages > MaxPagesLimit {
		in.MaxPages = MaxPagesLimit
	}
	target := selecter.NewTarget(in.Target, in.Needs)
	id := uuid.NewString()
	return &run{
		o:      o,
		opts:   o.Options.withDefaults(),
		now:    now,
		id:     id,
		in:     in,
		target: target,
		log:    log.With().Str("run", id).Str("target", target.URL).Logger(),
		summary: Summary{
			RunID:             id,
			Target:            target.URL,
			TargetKind:        string(target.Kind),
			CorpusName:        in.CorpusName,
			QueryCostEstimate: budget.QueryCostEstimate(),
			StartedAt:         now().UTC(),
		},
	}
}

func (r *run) step(ctx context.Context, s State) State {
	switch s {
	case StateSelecting:
		return r.selecting()
	case StateScraping:
		return r.scraping(ctx)
	case StateExtracting:
		return r.extracting(ctx)
	case StateAssembling:
		return r.assembling()
	case StateUploading:
		return r.uploading(ctx)
	}
	return r.fail(&RunError{Kind: RunAborted, Reasons: []string{fmt.Sprintf("unknown state %q", s)}})
}

func (r *run) each(fn func(Observer)) {
	for _, ob := range r.o.Observers {
		if ob != nil {
			fn(ob)
		}
	}
}
