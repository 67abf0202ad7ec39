package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is one row of the runs table.
type Run struct {
	ID                string
	Target            string
	CorpusName        string
	Budget            string
	Status            string
	BackendUsed       string
	BackendFallbacks  int
	FilesIndexed      int
	DocumentsUploaded int
	DocumentsFailed   int
	FailureKind       string
	StartedAt         time.Time
	FinishedAt        time.Time
}

// Attempt is one backend attempt of a run.
type Attempt struct {
	Backend string
	Pages   int
	Error   string
	At      time.Time
}

// Runs returns the most recent runs, newest first. limit <= 0 means 20.
func (l *Ledger) Runs(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, target, corpus_name, budget, status, backend_used, backend_fallbacks,
		       files_indexed, documents_uploaded, documents_failed, failure_kind, started_at, finished_at
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var backendUsed, failure, finished sql.NullString
		var started string
		if err := rows.Scan(&r.ID, &r.Target, &r.CorpusName, &r.Budget, &r.Status, &backendUsed,
			&r.BackendFallbacks, &r.FilesIndexed, &r.DocumentsUploaded, &r.DocumentsFailed,
			&failure, &started, &finished); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.BackendUsed = backendUsed.String
		r.FailureKind = failure.String
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished.String)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return out, nil
}

// Attempts lists the backend attempts of a run in order.
func (l *Ledger) Attempts(ctx context.Context, runID string) ([]Attempt, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT backend, pages, error, created_at FROM attempts WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		var errText sql.NullString
		var at string
		if err := rows.Scan(&a.Backend, &a.Pages, &errText, &at); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.Error = errText.String
		a.At = parseTime(at)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}
	return out, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
