package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hyperifyio/webcorpus/internal/aggregate"
	"github.com/hyperifyio/webcorpus/internal/assemble"
	"github.com/hyperifyio/webcorpus/internal/budget"
	"github.com/hyperifyio/webcorpus/internal/extract"
	"github.com/hyperifyio/webcorpus/internal/scrape"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
	"github.com/hyperifyio/webcorpus/internal/store"
)

// run is the mutable state of a single Run call.
type run struct {
	o      *Orchestrator
	opts   Options
	now    func() time.Time
	id     string
	in     Input
	target selecter.Target
	log    zerolog.Logger

	rejected    []string
	backendErrs []string
	decision    selecter.Decision
	scrapeErr   error
	raw         []scrape.RawPage
	pages       []extract.PageResult
	docs        []assemble.Document

	uploadedBytes  int64
	uploadedTokens int

	summary Summary
	err     *RunError
}

func (r *run) fail(e *RunError) State {
	r.err = e
	r.summary.Failure = e
	r.log.Error().Str("kind", string(e.Kind)).Strs("reasons", e.Reasons).Msg("run failed")
	return StateFailed
}

func aborted(err error) *RunError {
	return &RunError{Kind: RunAborted, Reasons: []string{"cancelled: " + err.Error()}}
}

func (r *run) selecting() State {
	if r.o.Selector == nil {
		return r.fail(&RunError{Kind: SelectionExhausted, Reasons: []string{"no selector configured"}})
	}
	d := r.o.Selector.Select(r.target, r.in.Budget, r.rejected)
	r.each(func(ob Observer) { ob.SelectionMade(r.id, d) })
	r.summary.Rejections = d.Rejections

	if d.Blocked != nil {
		reason := fmt.Sprintf("host %q matches prohibited source %q", d.Blocked.Host, d.Blocked.Rule)
		if d.Blocked.Rule == "" {
			reason = fmt.Sprintf("host %q cannot be classified", d.Blocked.Host)
		}
		return r.fail(&RunError{Kind: ComplianceViolation, Category: string(d.Blocked.Category), Reasons: []string{reason}})
	}
	if !d.OK() {
		reasons := append([]string(nil), r.backendErrs...)
		for _, rej := range d.Rejections {
			s := rej.BackendID + ": " + string(rej.Reason)
			if rej.Detail != "" {
				s += " (" + rej.Detail + ")"
			}
			reasons = append(reasons, s)
		}
		if len(reasons) == 0 {
			reasons = []string{d.Reason}
		}
		return r.fail(&RunError{Kind: SelectionExhausted, Reasons: reasons})
	}

	r.decision = d
	r.log.Info().
		Str("backend", d.Chosen.ID).
		Str("tier", d.Chosen.Tier.String()).
		Int("alternatives", len(d.Fallbacks)).
		Msg("backend selected")
	return StateScraping
}

func (r *run) scraping(ctx context.Context) State {
	if r.o.Scrapers == nil {
		return r.fail(&RunError{Kind: RunAborted, Reasons: []string{"no scraper configured"}})
	}
	p := *r.decision.Chosen

	sctx, cancel := ctx, context.CancelFunc(func() {})
	if r.opts.ScrapeTimeout > 0 {
		sctx, cancel = context.WithTimeout(ctx, r.opts.ScrapeTimeout)
	}
	start := time.Now()
	raw, err := r.o.Scrapers.Scrape(sctx, p, r.target, r.in.MaxPages)
	cancel()
	if cerr := ctx.Err(); cerr != nil {
		return r.fail(aborted(cerr))
	}
	raw, dupes := aggregate.MergePages(raw)
	if dupes > 0 {
		r.log.Debug().Int("duplicates", dupes).Str("backend", p.ID).Msg("merged duplicate pages")
	}
	if len(raw) > r.in.MaxPages {
		raw = raw[:r.in.MaxPages]
	}

	kept := make([]scrape.RawPage, 0, len(raw))
	blocked := 0
	for _, page := range raw {
		if v := r.o.Filter.ClassifyURL(page.URL); v.Blocked() {
			blocked++
			r.log.Warn().Str("url", page.URL).Str("category", string(v.Category)).Msg("dropping page from prohibited host")
			continue
		}
		kept = append(kept, page)
	}
	r.summary.PagesBlocked = blocked
	r.summary.PagesAttempted = len(raw)

	if len(kept) == 0 {
		if err == nil {
			err = scrape.ErrEmptyResult
			if blocked > 0 {
				err = fmt.Errorf("all %d pages were on prohibited hosts", blocked)
			}
		}
		return r.backendFailed(p.ID, 0, err)
	}
	if err != nil {
		r.log.Warn().Err(err).Str("backend", p.ID).Int("pages", len(kept)).Msg("backend stopped early, keeping collected pages")
	}
	r.log.Info().Str("backend", p.ID).Int("pages", len(kept)).Dur("took", time.Since(start)).Msg("scrape finished")
	r.scrapeErr = err
	r.raw = kept
	return StateExtracting
}

func (r *run) canFallback() bool {
	return r.summary.BackendFallbacks < r.opts.MaxFallbacks && len(r.decision.Fallbacks) > 0
}

// backendFailed re-enters selection without the failed backend, or ends the
// run when the fallback budget or the ranked chain is used up.
func (r *run) backendFailed(id string, pages int, err error) State {
	r.each(func(ob Observer) { ob.BackendAttempted(r.id, id, pages, err) })
	r.backendErrs = append(r.backendErrs, fmt.Sprintf("%s: %v", id, err))
	r.log.Warn().Err(err).Str("backend", id).Msg("backend failed")
	if !r.canFallback() {
		reasons := append([]string{"fallback chain exhausted"}, r.backendErrs...)
		return r.fail(&RunError{Kind: SelectionExhausted, Reasons: reasons})
	}
	r.summary.BackendFallbacks++
	r.rejected = append(r.rejected, id)
	r.raw, r.pages, r.scrapeErr = nil, nil, nil
	return StateSelecting
}

func (r *run) extracting(ctx context.Context) State {
	results := make([]extract.PageResult, len(r.raw))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.ExtractWorkers)
	for i, page := range r.raw {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := r.o.Extractor.Extract(page.URL, page.Payload, page.Format)
			if page.Title != "" && res.Status != extract.StatusFailed {
				res.Title = page.Title
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return r.fail(aborted(err))
	}

	var ok, partial, failed int
	for _, p := range results {
		switch p.Status {
		case extract.StatusSuccess:
			ok++
		case extract.StatusPartial:
			partial++
		default:
			failed++
			r.log.Debug().Str("url", p.URL).Str("reason", p.Reason).Msg("extraction failed")
		}
		r.each(func(ob Observer) { ob.PageExtracted(r.id, p) })
	}

	id := r.decision.Chosen.ID
	if ok == 0 && r.canFallback() {
		return r.backendFailed(id, len(results), fmt.Errorf("no page extracted cleanly (%d partial, %d failed)", partial, failed))
	}
	r.each(func(ob Observer) { ob.BackendAttempted(r.id, id, len(results), r.scrapeErr) })
	r.summary.BackendUsed = id
	r.summary.PagesSucceeded = ok
	r.summary.PagesPartial = partial
	r.summary.PagesFailed = failed

	breakdown := map[string]int{
		"succeeded": ok,
		"partial":   partial,
		"failed":    failed,
		"blocked":   r.summary.PagesBlocked,
	}
	if ok+partial == 0 {
		return r.fail(&RunError{Kind: RunAborted, Reasons: []string{"no usable pages"}, Breakdown: breakdown})
	}
	limit := *r.opts.MaxFailedFraction
	if frac := float64(failed) / float64(len(results)); frac > limit {
		reason := fmt.Sprintf("%.1f%% of pages failed extraction, limit is %.1f%%", frac*100, limit*100)
		return r.fail(&RunError{Kind: RunAborted, Reasons: []string{reason}, Breakdown: breakdown})
	}
	r.pages = results
	r.log.Info().Int("succeeded", ok).Int("partial", partial).Int("failed", failed).Msg("extraction finished")
	return StateAssembling
}

func (r *run) assembling() State {
	res := assemble.Assemble(r.pages, r.opts.MaxDocBytes, r.opts.MaxDocs)
	r.summary.PagesExcluded = len(res.Excluded)
	r.summary.TruncatedBytes = res.TruncatedBytes
	if len(res.Documents) == 0 {
		return r.fail(&RunError{Kind: RunAborted, Reasons: []string{"no content to assemble"}})
	}
	r.docs = res.Documents
	r.log.Info().Int("documents", len(res.Documents)).Int("excluded", len(res.Excluded)).Msg("documents assembled")
	return StateUploading
}

type uploadOutcome struct {
	receipt  store.Receipt
	file     store.File
	attempts int
	elapsed  time.Duration
	err      error
}

func (r *run) uploading(ctx context.Context) State {
	if r.o.Store == nil {
		return r.fail(&RunError{Kind: RunAborted, Reasons: []string{"no store configured"}})
	}
	r.summary.StoreType = r.o.Store.Name()
	r.summary.StoragePersistence = r.o.Store.Persistence()

	storeID, err := retryStore(ctx, r.opts, r.log.With().Str("op", "create").Logger(), func() (string, error) {
		return r.o.Store.Create(ctx, r.in.CorpusName)
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return r.fail(aborted(cerr))
		}
		r.log.Error().Err(err).Msg("store creation failed, no documents uploaded")
		r.summary.DocumentsFailed = len(r.docs)
		for _, doc := range r.docs {
			info := documentInfo(doc, store.Render(doc, r.in.CorpusName))
			info.Error = err.Error()
			r.summary.Documents = append(r.summary.Documents, info)
			r.each(func(ob Observer) { ob.DocumentUploaded(r.id, doc.ID, 0, 0, err) })
		}
		return StateDone
	}
	r.summary.StoreID = storeID

	outcomes := make([]uploadOutcome, len(r.docs))
	var g errgroup.Group
	g.SetLimit(r.opts.UploadWorkers)
	for i, doc := range r.docs {
		g.Go(func() error {
			outcomes[i] = r.upload(ctx, storeID, doc)
			return nil
		})
	}
	_ = g.Wait()
	if cerr := ctx.Err(); cerr != nil {
		return r.fail(aborted(cerr))
	}

	for i, out := range outcomes {
		doc := r.docs[i]
		info := documentInfo(doc, out.file)
		info.Attempts = out.attempts
		if out.err != nil {
			info.Error = out.err.Error()
			r.summary.Documents = append(r.summary.Documents, info)
			r.summary.DocumentsFailed++
			continue
		}
		info.Uploaded = true
		info.StoreDocumentID = out.receipt.DocumentID
		r.summary.Documents = append(r.summary.Documents, info)
		r.summary.DocumentsUploaded++
		r.summary.FilesIndexed += len(doc.Provenance)
		r.uploadedBytes += int64(len(out.file.Body))
		r.uploadedTokens += doc.Tokens
	}
	return StateDone
}

func (r *run) upload(ctx context.Context, storeID string, doc assemble.Document) uploadOutcome {
	f := store.Render(doc, r.in.CorpusName)
	logger := r.log.With().Str("doc", doc.ID).Logger()
	start := time.Now()
	out := uploadOutcome{file: f}
	out.receipt, out.err = retryStore(ctx, r.opts, logger, func() (store.Receipt, error) {
		out.attempts++
		return r.o.Store.Upload(ctx, storeID, f)
	})
	out.elapsed = time.Since(start)
	if out.err != nil {
		logger.Error().Err(out.err).Int("attempt", out.attempts).Msg("upload failed")
	} else {
		logger.Info().Str("document", out.receipt.DocumentID).Int("bytes", out.receipt.Bytes).Int("attempt", out.attempts).Msg("uploaded")
	}
	r.each(func(ob Observer) { ob.DocumentUploaded(r.id, doc.ID, out.attempts, out.elapsed, out.err) })
	return out
}

func documentInfo(doc assemble.Document, f store.File) DocumentInfo {
	sum := sha256.Sum256(f.Body)
	return DocumentInfo{
		ID:             doc.ID,
		Name:           f.Name,
		Pages:          doc.URLs(),
		Bytes:          len(f.Body),
		Tokens:         doc.Tokens,
		TruncatedBytes: doc.TruncatedBytes,
		SHA256:         hex.EncodeToString(sum[:]),
	}
}

// retryStore calls fn up to opts.UploadAttempts times with exponential
// backoff, stopping early on errors store.Retryable rejects.
func retryStore[T any](ctx context.Context, opts Options, logger zerolog.Logger, fn func() (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = opts.UploadBackoff
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opts.UploadAttempts-1)), ctx)
	op := backoff.OperationWithData[T](func() (T, error) {
		v, err := fn()
		if err != nil && !store.Retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	})
	return backoff.RetryNotifyWithData(op, policy, func(err error, next time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", next).Msg("store call failed, retrying")
	})
}

func (r *run) finish(state State) {
	s := &r.summary
	s.Status = string(state)
	s.FinishedAt = r.now().UTC()
	s.EstimatedTokens = r.uploadedTokens
	s.TotalSizeMB = budget.SizeMB(r.uploadedBytes)
	s.IndexingCostUSD = budget.IndexingCostUSD(r.uploadedTokens)
	s.Pricing = budget.RunPricing(s.FilesIndexed)

	ev := r.log.Info()
	if state == StateFailed {
		ev = r.log.Warn()
	}
	ev.Str("status", s.Status).
		Str("backend", s.BackendUsed).
		Int("fallbacks", s.BackendFallbacks).
		Int("files_indexed", s.FilesIndexed).
		Int("documents_failed", s.DocumentsFailed).
		Msg("run finished")
}
