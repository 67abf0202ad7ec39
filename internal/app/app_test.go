package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/webcorpus/internal/backend"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

const para = "This page documents the configuration options of the example service in detail. " +
	"Each option has a name, a default value and a description of how it changes behaviour at runtime. "

func newDocsSite(t *testing.T) *httptest.Server {
	t.Helper()
	page := func(w http.ResponseWriter, title, links string) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title>" + title + "</title></head><body><main><h1>" + title +
			"</h1><p>" + para + "</p><p>" + para + "</p>" + links + "</main></body></html>"))
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case "/":
			page(w, "Home", `<a href="/guide">guide</a> <a href="/api">api</a> <a href="/private/x">x</a>`)
		case "/guide":
			page(w, "Guide", `<a href="/">home</a>`)
		case "/api":
			page(w, "API", "")
		case "/private/x":
			t.Errorf("crawler fetched %s", r.URL.Path)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func localConfig(t *testing.T, target string) Config {
	t.Helper()
	tmp := t.TempDir()
	cfg := DefaultConfig()
	cfg.Target = target
	cfg.CorpusName = "Test Docs"
	cfg.Budget = "minimal"
	cfg.MaxPages = 10
	cfg.Store = "local"
	cfg.LocalStoreDir = filepath.Join(tmp, "corpus")
	cfg.OutDir = filepath.Join(tmp, "out")
	cfg.CacheDir = ""
	cfg.AllowPrivateHosts = true
	cfg.RequestsPerSecond = 1000
	return cfg
}

func TestRun_LocalStoreEndToEnd(t *testing.T) {
	srv := newDocsSite(t)
	cfg := localConfig(t, srv.URL+"/")
	cfg.AuditDB = filepath.Join(t.TempDir(), "audit.db")
	cfg.MetricsTextfile = filepath.Join(t.TempDir(), "webcorpus.prom")
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	sum, art, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Status != "DONE" || sum.BackendUsed != "direct" {
		t.Fatalf("unexpected status=%s backend=%s", sum.Status, sum.BackendUsed)
	}
	if sum.FilesIndexed != 3 {
		t.Fatalf("files indexed = %d, want 3", sum.FilesIndexed)
	}
	if sum.StoreType != "local-directory" {
		t.Fatalf("store type = %q", sum.StoreType)
	}

	for _, p := range []string{art.Summary, art.Guide, art.Manifest, filepath.Join(art.Dir, "SHA256SUMS")} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected artifact %s: %v", p, err)
		}
	}
	if !strings.HasPrefix(filepath.Base(art.Dir), "test-docs-") {
		t.Fatalf("unexpected output dir %s", art.Dir)
	}

	b, err := os.ReadFile(art.Summary)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	var got pipeline.Summary
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if got.QueryGuide != art.Guide || got.FilesIndexed != 3 {
		t.Fatalf("summary.json does not match run: %+v", got)
	}

	guide, _ := os.ReadFile(art.Guide)
	for _, want := range []string{"# Query Guide: Test Docs", "## Manifest", "Reproducibility: ", sum.StoreID} {
		if !strings.Contains(string(guide), want) {
			t.Fatalf("guide missing %q:\n%s", want, guide)
		}
	}

	stored, err := filepath.Glob(filepath.Join(sum.StoreID, "*.md"))
	if err != nil || len(stored) == 0 {
		t.Fatalf("expected documents in local store %s (err=%v)", sum.StoreID, err)
	}

	runs, err := a.Ledger().Runs(context.Background(), 5)
	if err != nil || len(runs) != 1 || runs[0].Status != "DONE" {
		t.Fatalf("audit ledger runs=%+v err=%v", runs, err)
	}
	prom, err := os.ReadFile(cfg.MetricsTextfile)
	if err != nil || !strings.Contains(string(prom), `webcorpus_runs_total{status="DONE"} 1`) {
		t.Fatalf("metrics textfile missing run counter (err=%v):\n%s", err, prom)
	}
}

func TestRun_BlockedTargetWritesFailureSummary(t *testing.T) {
	cfg := localConfig(t, "https://www.instagram.com/someone")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	sum, art, err := a.Run(context.Background())
	var re *pipeline.RunError
	if !errors.As(err, &re) || re.Kind != pipeline.ComplianceViolation {
		t.Fatalf("expected ComplianceViolation, got %v", err)
	}
	if sum.Status != "FAILED" || sum.Failure == nil {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if art.Guide != "" || art.Manifest != "" {
		t.Fatalf("failed run must not produce a guide or manifest: %+v", art)
	}
	if _, err := os.Stat(art.Summary); err != nil {
		t.Fatalf("summary.json not written: %v", err)
	}
}

func TestRun_EmptySiteIsNothingIndexed(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	cfg := localConfig(t, srv.URL+"/")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	sum, _, err := a.Run(context.Background())
	if err == nil || sum.Indexed() {
		t.Fatalf("expected a failed or empty run, got %+v", sum)
	}
}

func TestPlan_DryRunNeedsNoCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = "https://docs.example.com/"
	cfg.DryRun = true
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("dry run should validate without keys: %v", err)
	}
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	plan, err := a.Plan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Decision.Chosen == nil || plan.Decision.Chosen.ID != "direct" {
		t.Fatalf("without an Apify token only the direct crawler is eligible: %+v", plan.Decision)
	}
	if plan.Target.Host != "docs.example.com" {
		t.Fatalf("target host = %q", plan.Target.Host)
	}
	if plan.Pricing.Pages != DefaultMaxPages {
		t.Fatalf("pricing pages = %d", plan.Pricing.Pages)
	}

	if _, _, err := a.Run(context.Background()); err == nil {
		t.Fatalf("dry run app must refuse to upload")
	}
}

func TestPlan_BlockedTarget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Target = "https://m.facebook.com/page"
	cfg.DryRun = true
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()
	plan, err := a.Plan()
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plan.Decision.Blocked == nil || plan.Decision.Chosen != nil {
		t.Fatalf("expected blocked decision, got %+v", plan.Decision)
	}
}

func TestLoadCatalogue_ApifyTokenKeepsActors(t *testing.T) {
	without, err := LoadCatalogue(Config{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, p := range without.Profiles() {
		if p.Kind != backend.KindDirect {
			t.Fatalf("unexpected %s without token", p.ID)
		}
	}
	with, err := LoadCatalogue(Config{ApifyToken: "tok"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(with.Profiles()) <= len(without.Profiles()) {
		t.Fatalf("expected hosted actors with a token")
	}
}

func TestLoadCatalogue_FromFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "catalogue.yaml")
	yml := "backends:\n  - id: direct\n    name: Direct\n    kind: direct\n    tier: minimal\n    reliability: 500\n"
	if err := os.WriteFile(p, []byte(yml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cat, err := LoadCatalogue(Config{CataloguePath: p})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ids := cat.IDs(); len(ids) != 1 || ids[0] != "direct" {
		t.Fatalf("ids = %v", ids)
	}
	if _, err := LoadCatalogue(Config{CataloguePath: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatalf("expected error for missing catalogue")
	}
}

func TestExtractURL(t *testing.T) {
	srv := newDocsSite(t)
	cfg := localConfig(t, srv.URL+"/")
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	res, err := a.ExtractURL(context.Background(), srv.URL+"/guide")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if res.Title != "Guide" || !strings.Contains(res.Text, "configuration options") {
		t.Fatalf("unexpected result title=%q text=%q", res.Title, res.Text)
	}
	if _, err := a.ExtractURL(context.Background(), srv.URL+"/private/x"); err == nil {
		t.Fatalf("robots.txt disallow must be honoured")
	}
	if _, err := a.ExtractURL(context.Background(), "https://www.tiktok.com/@x"); err == nil {
		t.Fatalf("prohibited host must be refused")
	}
}
