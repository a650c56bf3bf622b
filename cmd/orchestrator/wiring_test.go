package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/bundle"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/cmd/orchestrator/handlers"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/orchestrator"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/process"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
)

// testConfig loads the defaults with every path under a temp dir.
func testConfig(t *testing.T) *Config {
	t.Helper()
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Storage.OutputDir = filepath.Join(dir, "automated")
	cfg.Storage.BaselineDir = filepath.Join(dir, "baseline")
	cfg.Reports.Dir = filepath.Join(dir, "reports")
	cfg.Database.Path = filepath.Join(dir, "history.db")
	return cfg
}

func newTestApp(t *testing.T, cfg *Config, opts appOptions) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg, logger.NewTestLogger(), opts)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestExpandPort(t *testing.T) {
	got := expandPort([]string{"flutter", "run", "--web-port", "{port}", "--dart-define=URL=http://localhost:{port}"}, 8081)
	assert.Equal(t, []string{"flutter", "run", "--web-port", "8081", "--dart-define=URL=http://localhost:8081"}, got)
}

func TestWebTargetConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Web.Port = 4200
	cfg.Web.Headless = false

	web := webTargetConfig(cfg.Web)
	assert.Equal(t, "http://localhost:4200", web.PageURL())
	assert.Contains(t, web.AppCommand, "4200")
	assert.NotContains(t, web.AppCommand, portPlaceholder)
	assert.False(t, web.Browser.Headless)
	assert.Equal(t, 1280, web.Browser.Width)
	assert.Equal(t, 2*time.Second, web.RenderDelay)
}

func TestNewApp(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Enabled = true

	a := newTestApp(t, cfg, appOptions{history: true, events: true})
	assert.NotNil(t, a.history)
	assert.Equal(t, baseline.ComparatorPresence, a.comparator.Name())

	targets, err := a.buildTargets(&process.Group{})
	require.NoError(t, err)
	for _, k := range report.AllTargets {
		assert.Contains(t, targets, k)
	}

	snap := a.snapshot("default-web")
	assert.Equal(t, "default-web", snap.Scenario)
	assert.Equal(t, filepath.Clean(cfg.Storage.BaselineDir), snap.BaselineDir)
}

func TestNewApp_UnknownComparator(t *testing.T) {
	cfg := testConfig(t)
	cfg.Baseline.Comparator = "perceptual"

	_, err := newApp(context.Background(), cfg, logger.NewTestLogger(), appOptions{})
	assert.Error(t, err)
}

func TestLoadScenario(t *testing.T) {
	sc, err := loadScenario("")
	require.NoError(t, err)
	assert.NotEmpty(t, sc.Actions)

	_, err = loadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestArchiveOutcome(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	a := newTestApp(t, cfg, appOptions{})

	require.NoError(t, a.artifacts.Upload(ctx, "home_1.png", strings.NewReader("png")))
	require.NoError(t, a.artifacts.Upload(ctx, "unrelated_1.png", strings.NewReader("png")))
	require.NoError(t, a.baselines.Upload(ctx, "home.png", strings.NewReader("png")))
	require.NoError(t, a.reports.Upload(ctx, "consolidated-report-1.html", strings.NewReader("<html>")))
	require.NoError(t, a.reports.Upload(ctx, "consolidated-report-1.json", strings.NewReader("{}")))

	outcome := &orchestrator.Outcome{
		RunID: "run-1",
		Runs: []report.TargetRun{{
			Result:      report.RunResult{Target: report.TargetWeb, Success: true, Metadata: map[string]string{}},
			Artifacts:   []capture.Artifact{{Name: "home", Filename: "home_1.png"}},
			Comparisons: []baseline.ComparisonRecord{{Name: "home"}},
		}},
		Written: &report.Written{HTML: "consolidated-report-1.html", JSON: "consolidated-report-1.json"},
	}

	output := filepath.Join(t.TempDir(), "run.tar.zst")
	manifest, err := archiveOutcome(ctx, a, outcome, output)
	require.NoError(t, err)

	var paths []string
	for _, e := range manifest.Entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{
		"automated/home_1.png",
		"baseline/home.png",
		"reports/consolidated-report-1.html",
		"reports/consolidated-report-1.json",
	}, paths)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	read, err := bundle.ReadManifest(f)
	require.NoError(t, err)
	assert.Equal(t, "run-1", read.RunID)
}

func TestArchiveOutcome_NothingProduced(t *testing.T) {
	a := newTestApp(t, testConfig(t), appOptions{})

	_, err := archiveOutcome(context.Background(), a, &orchestrator.Outcome{RunID: "run-1"}, filepath.Join(t.TempDir(), "run.tar.zst"))
	assert.ErrorIs(t, err, bundle.ErrEmptyBundle)
}

type stubRunner struct {
	kinds []report.TargetKind
}

func (s *stubRunner) Start(ctx context.Context, kinds []report.TargetKind) (string, error) {
	s.kinds = kinds
	return "run-42", nil
}

func TestRouter(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Database.Enabled = true
	a := newTestApp(t, cfg, appOptions{history: true})
	require.NoError(t, a.baselines.Upload(ctx, "home.png", strings.NewReader("png")))
	require.NoError(t, a.reports.Upload(ctx, "visual-changes/visual-report-1.html", strings.NewReader("<html>ok</html>")))

	runner := &stubRunner{}
	router := newRouter(a, runner)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: "healthy"},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "empty history", method: http.MethodGet, path: "/api/v1/runs", wantStatus: http.StatusOK, wantBody: `"total":0`},
		{name: "unknown run", method: http.MethodGet, path: "/api/v1/runs/6f1c7a50-7d2c-4f4e-9a51-0c3f5a1b2c3d", wantStatus: http.StatusNotFound},
		{name: "baselines", method: http.MethodGet, path: "/api/v1/baselines", wantStatus: http.StatusOK, wantBody: `"name":"home"`},
		{name: "report file", method: http.MethodGet, path: "/reports/visual-changes/visual-report-1.html", wantStatus: http.StatusOK, wantBody: "<html>ok</html>"},
		{name: "start run", method: http.MethodPost, path: "/api/v1/runs", body: `{"mode":"hosted"}`, wantStatus: http.StatusAccepted, wantBody: "run-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}

	assert.Equal(t, []report.TargetKind{report.TargetHosted}, runner.kinds)
}

func TestPrintOutcome_JSON(t *testing.T) {
	var buf bytes.Buffer
	stdout = &buf
	flagJSON = true
	t.Cleanup(func() {
		stdout = os.Stdout
		flagJSON = false
	})

	res := report.RunResult{Target: report.TargetHosted, Success: true, Screenshots: 10}
	var results report.Results
	results.Set(res)
	consolidated := report.Consolidate("run-1", &report.Report{Results: results}, report.ConfigSnapshot{})

	printOutcome(testConfig(t), &orchestrator.Outcome{
		RunID:        "run-1",
		Runs:         []report.TargetRun{{Result: res}},
		Consolidated: consolidated,
	})

	var got runSummary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Success)
}

func TestConfirmAction(t *testing.T) {
	var out bytes.Buffer
	stdout = &out
	t.Cleanup(func() {
		stdout = os.Stdout
		stdin = os.Stdin
	})

	stdin = strings.NewReader("yes\n")
	assert.True(t, confirmAction("Replace?", false))
	assert.Contains(t, out.String(), "Replace? [y/N]: ")

	stdin = strings.NewReader("\n")
	assert.False(t, confirmAction("Replace?", false))

	assert.True(t, confirmAction("Replace?", true))
}

func TestRouter_StartRunRequiresToken(t *testing.T) {
	cfg := testConfig(t)
	hash, err := handlers.HashToken("s3cret")
	require.NoError(t, err)
	cfg.Server.APITokenHash = hash

	runner := &stubRunner{}
	router := newRouter(newTestApp(t, cfg, appOptions{}), runner)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"mode":"web"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, runner.kinds)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"mode":"web"}`))
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []report.TargetKind{report.TargetWeb}, runner.kinds)
}
