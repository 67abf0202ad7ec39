package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperifyio/webcorpus/internal/app"
	"github.com/hyperifyio/webcorpus/internal/pipeline"
)

const para = "This page explains how the example service is configured and deployed. " +
	"Every setting is listed with its default value and the effect it has on a running instance. "

// isolateEnv clears variables that would otherwise leak into the resolved config.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range app.EnvKeys() {
		t.Setenv(k, "")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := execute(context.Background(), append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")), &out, &errb)
	return code, out.String(), errb.String()
}

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := func(title, links string) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte("<html><head><title>" + title + "</title></head><body><main><h1>" + title +
				"</h1><p>" + para + "</p><p>" + para + "</p>" + links + "</main></body></html>"))
		}
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nAllow: /\n"))
		case "/":
			page("Home", `<a href="/setup">setup</a>`)
		case "/setup":
			page("Setup", `<a href="/">home</a>`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClassify_JSON(t *testing.T) {
	isolateEnv(t)
	code, out, _ := runCLI(t, "classify", "--json", "https://www.instagram.com/someone", "docs.example.com")
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	var verdicts []struct {
		Allowed  bool   `json:"allowed"`
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(out), &verdicts); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(verdicts) != 2 || verdicts[0].Allowed || verdicts[0].Category != "social-media" || !verdicts[1].Allowed {
		t.Fatalf("unexpected verdicts %+v", verdicts)
	}
}

func TestClassify_Table(t *testing.T) {
	isolateEnv(t)
	code, out, _ := runCLI(t, "classify", "www.amazon.com")
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	if !strings.Contains(out, "blocked") || !strings.Contains(out, "e-commerce") {
		t.Fatalf("unexpected table:\n%s", out)
	}
}

func TestPlan_DirectWithoutToken(t *testing.T) {
	isolateEnv(t)
	code, out, _ := runCLI(t, "plan", "https://docs.example.com/", "--budget", "minimal")
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	var plan app.Plan
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode plan: %v", err)
	}
	if plan.Decision.Chosen == nil || plan.Decision.Chosen.ID != "direct" {
		t.Fatalf("unexpected decision %+v", plan.Decision)
	}
}

func TestPlan_BlockedTargetExitsTwo(t *testing.T) {
	isolateEnv(t)
	code, out, _ := runCLI(t, "plan", "https://www.linkedin.com/company/x")
	if code != exitRunFailed {
		t.Fatalf("exit = %d, want %d", code, exitRunFailed)
	}
	if !strings.Contains(out, `"blocked"`) {
		t.Fatalf("plan output should carry the verdict:\n%s", out)
	}
}

func TestRun_MissingTargetIsUsageError(t *testing.T) {
	isolateEnv(t)
	code, _, _ := runCLI(t, "run", "--store", "local")
	if code != exitUsage {
		t.Fatalf("exit = %d, want %d", code, exitUsage)
	}
}

func TestRun_LocalStoreThenRuns(t *testing.T) {
	isolateEnv(t)
	srv := newSite(t)
	tmp := t.TempDir()
	db := filepath.Join(tmp, "audit.db")

	code, out, stderr := runCLI(t, "run", srv.URL+"/",
		"--store", "local",
		"--store.localDir", filepath.Join(tmp, "corpus"),
		"--out", filepath.Join(tmp, "out"),
		"--corpus", "Service Docs",
		"--budget", "minimal",
		"--cache.dir", "",
		"--allow-private-hosts",
		"--rps", "1000",
		"--audit.db", db,
	)
	if code != exitOK {
		t.Fatalf("exit = %d\nstdout:\n%s\nstderr:\n%s", code, out, stderr)
	}
	var report runReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Summary.Status != "DONE" || report.Summary.FilesIndexed != 2 || report.Artifacts.Guide == "" {
		t.Fatalf("unexpected report %+v", report)
	}

	code, out, _ = runCLI(t, "runs", "--audit.db", db)
	if code != exitOK {
		t.Fatalf("runs exit = %d", code)
	}
	if !strings.Contains(out, report.Summary.RunID) || !strings.Contains(out, "DONE") {
		t.Fatalf("runs listing misses the run:\n%s", out)
	}
}

func TestRuns_RequiresLedger(t *testing.T) {
	isolateEnv(t)
	if code, _, _ := runCLI(t, "runs"); code != exitUsage {
		t.Fatalf("exit = %d, want %d", code, exitUsage)
	}
}

func TestBackends_DirectOnlyWithoutToken(t *testing.T) {
	isolateEnv(t)
	code, out, _ := runCLI(t, "backends", "--json")
	if code != exitOK {
		t.Fatalf("exit = %d", code)
	}
	var profiles []struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(out), &profiles); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(profiles) == 0 {
		t.Fatalf("expected at least the direct crawler")
	}
	for _, p := range profiles {
		if p.Kind != "direct" {
			t.Fatalf("hosted actor %s listed without a token", p.ID)
		}
	}
}

func TestRunExit(t *testing.T) {
	if runExit(nil) != nil {
		t.Fatalf("nil error must stay nil")
	}
	var ee *exitError
	if err := runExit(&pipeline.RunError{Kind: pipeline.ComplianceViolation}); !errors.As(err, &ee) || ee.code != exitRunFailed {
		t.Fatalf("run errors exit %d: %v", exitRunFailed, err)
	}
	if err := runExit(app.ErrNothingIndexed); !errors.As(err, &ee) || ee.code != exitRunFailed {
		t.Fatalf("empty runs exit %d: %v", exitRunFailed, err)
	}
	if err := runExit(errors.New("boom")); errors.As(err, &ee) {
		t.Fatalf("other errors are usage errors, got code %d", ee.code)
	}
}

func TestVersionFlag(t *testing.T) {
	code, out, _ := runCLI(t, "--version")
	if code != exitOK || !strings.Contains(out, app.VersionString()) {
		t.Fatalf("exit=%d out=%q", code, out)
	}
}
