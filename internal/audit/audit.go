// Package audit keeps a SQLite ledger of runs: every selection decision,
// backend attempt and document upload, plus the final summary. It is fed
// through the pipeline.Observer interface.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hyperifyio/webcorpus/internal/audit/migrations"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
	selecter "github.com/hyperifyio/webcorpus/internal/select"
)

const writeTimeout = 5 * time.Second

// timeLayout is fixed width so that stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Ledger is an open audit database. Observer methods log write failures
// instead of returning them; a broken ledger never fails a run.
type Ledger struct {
	pipeline.NopObserver

	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the ledger at path and applies pending migrations.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("audit: empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	// One writer at a time; upload events arrive concurrently.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	l := &Ledger{db: db, path: path, now: time.Now}
	if err := l.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return l, nil
}

func (l *Ledger) Close() error { return l.db.Close() }

func (l *Ledger) Path() string { return l.path }

func (l *Ledger) migrate(fsys fs.FS) error {
	if _, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	var current int
	if err := l.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := l.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
	}
	return nil
}

func (l *Ledger) exec(query string, args ...any) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		log.Warn().Err(err).Str("db", l.path).Msg("audit write failed")
	}
}

func (l *Ledger) stamp() string { return l.now().UTC().Format(timeLayout) }

func errText(err error) any {
	if err == nil {
		return nil
	}
	return err.Error()
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

func (l *Ledger) RunStarted(runID string, in pipeline.Input, at time.Time) {
	l.exec(`INSERT INTO runs (id, target, corpus_name, budget, max_pages, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, in.Target, in.CorpusName, in.Budget.String(), in.MaxPages, at.UTC().Format(timeLayout))
}

func (l *Ledger) SelectionMade(runID string, d selecter.Decision) {
	var chosen, category any
	if d.Chosen != nil {
		chosen = d.Chosen.ID
	}
	if d.Blocked != nil {
		category = string(d.Blocked.Category)
	}
	fallbacks := make([]string, len(d.Fallbacks))
	for i, p := range d.Fallbacks {
		fallbacks[i] = p.ID
	}
	rejections := d.Rejections
	if rejections == nil {
		rejections = []selecter.Rejection{}
	}
	l.exec(`INSERT INTO selections (run_id, chosen, fallbacks, rejections, blocked_category, reason, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, chosen, mustJSON(fallbacks), mustJSON(rejections), category, d.Reason, l.stamp())
}

func (l *Ledger) BackendAttempted(runID, backendID string, pages int, err error) {
	l.exec(`INSERT INTO attempts (run_id, backend, pages, error, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, backendID, pages, errText(err), l.stamp())
}

func (l *Ledger) DocumentUploaded(runID, docID string, attempts int, elapsed time.Duration, err error) {
	l.exec(`INSERT INTO uploads (run_id, document, attempts, elapsed_ms, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, docID, attempts, elapsed.Milliseconds(), errText(err), l.stamp())
}

func (l *Ledger) RunFinished(s pipeline.Summary) {
	var kind any
	if s.Failure != nil {
		kind = string(s.Failure.Kind)
	}
	l.exec(`UPDATE runs SET status = ?, backend_used = ?, backend_fallbacks = ?, files_indexed = ?,
		documents_uploaded = ?, documents_failed = ?, failure_kind = ?, summary = ?, finished_at = ?
		WHERE id = ?`,
		s.Status, s.BackendUsed, s.BackendFallbacks, s.FilesIndexed,
		s.DocumentsUploaded, s.DocumentsFailed, kind, mustJSON(s), s.FinishedAt.UTC().Format(timeLayout),
		s.RunID)
}
