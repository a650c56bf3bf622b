package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/baseline"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/history"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
)

func setupHistory(t *testing.T) history.Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, history.Models()...)
	return history.NewSQLStore(db, logger.NewTestLogger())
}

type fakeRunner struct {
	err   error
	kinds []report.TargetKind
}

func (f *fakeRunner) Start(ctx context.Context, kinds []report.TargetKind) (string, error) {
	f.kinds = kinds
	if f.err != nil {
		return "", f.err
	}
	return "run-1", nil
}

func runRouter(h *RunHandler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/runs", h.List).Methods("GET")
	router.HandleFunc("/runs", h.Create).Methods("POST")
	router.HandleFunc("/runs/{id}", h.GetByID).Methods("GET")
	return router
}

func TestRunHandler_ListAndGet(t *testing.T) {
	store := setupHistory(t)
	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Create(context.Background(), &history.Run{
			Modes:     "web",
			Status:    history.StatusPassed,
			StartedAt: started.Add(time.Duration(i) * time.Minute),
			Targets: []history.RunTarget{{
				Target:      "web",
				Success:     true,
				Screenshots: 1,
				Comparisons: []history.RunComparison{{Name: "home", CurrentPath: "home_1.png", BaselinePath: "home.png"}},
			}},
		}))
	}

	router := runRouter(NewRunHandler(store, nil, logger.NewTestLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs?limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var page struct {
		Items []history.Run `json:"items"`
		Total int           `json:"total"`
		Limit int           `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Limit)
	assert.True(t, page.Items[0].StartedAt.After(page.Items[1].StartedAt))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/"+page.Items[0].ID.String(), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var run history.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	require.Len(t, run.Targets, 1)
	assert.Len(t, run.Targets[0].Comparisons, 1)
}

func TestRunHandler_GetByID_Errors(t *testing.T) {
	router := runRouter(NewRunHandler(setupHistory(t), nil, logger.NewTestLogger()))

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{name: "invalid uuid", path: "/runs/not-a-uuid", wantStatus: http.StatusBadRequest},
		{name: "unknown run", path: "/runs/6f1c7a50-7d2c-4f4e-9a51-0c3f5a1b2c3d", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestRunHandler_HistoryDisabled(t *testing.T) {
	router := runRouter(NewRunHandler(nil, nil, logger.NewTestLogger()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		runnerErr  error
		noRunner   bool
		wantStatus int
		wantKinds  []report.TargetKind
	}{
		{name: "all targets", body: `{"mode":"all"}`, wantStatus: http.StatusAccepted, wantKinds: report.AllTargets},
		{name: "empty mode means all", body: `{}`, wantStatus: http.StatusAccepted, wantKinds: report.AllTargets},
		{name: "unknown mode", body: `{"mode":"desktop"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{"mode":`, wantStatus: http.StatusBadRequest},
		{name: "already running", body: `{"mode":"web"}`, runnerErr: ErrRunInProgress, wantStatus: http.StatusConflict},
		{name: "runner failure", body: `{"mode":"web"}`, runnerErr: errors.New("no launcher"), wantStatus: http.StatusInternalServerError},
		{name: "no runner", body: `{"mode":"web"}`, noRunner: true, wantStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runnerErr}
			h := NewRunHandler(nil, runner, logger.NewTestLogger())
			if tt.noRunner {
				h = NewRunHandler(nil, nil, logger.NewTestLogger())
			}

			w := httptest.NewRecorder()
			runRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantKinds != nil {
				assert.Equal(t, tt.wantKinds, runner.kinds)

				var resp CreateRunResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "run-1", resp.RunID)
			}
		})
	}
}

type fakeBaselines struct {
	entries []baseline.Entry
	err     error
}

func (f fakeBaselines) List(ctx context.Context) ([]baseline.Entry, error) {
	return f.entries, f.err
}

func TestBaselineHandler_List(t *testing.T) {
	h := NewBaselineHandler(fakeBaselines{entries: []baseline.Entry{{Name: "home", Path: "home.png"}}}, logger.NewTestLogger())
	w := httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/baselines", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"home"`)

	log := logger.NewTestLogger()
	h = NewBaselineHandler(fakeBaselines{err: baseline.ErrBaselineStore}, log)
	w = httptest.NewRecorder()
	h.List(w, httptest.NewRequest(http.MethodGet, "/baselines", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.True(t, log.HasMessage("error", "failed to list baselines"))
}

func TestReportHandler(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), "visual-changes/visual-report-1.json", strings.NewReader(`{"summary":{}}`)))

	h := NewReportHandler(store, logger.NewTestLogger())
	router := mux.NewRouter()
	router.HandleFunc("/reports", h.List).Methods("GET")
	router.HandleFunc("/reports/{key:.+}", h.Get).Methods("GET")

	tests := []struct {
		name            string
		path            string
		wantStatus      int
		wantContentType string
		wantBody        string
	}{
		{name: "list", path: "/reports", wantStatus: http.StatusOK, wantBody: "visual-changes/visual-report-1.json"},
		{name: "json report", path: "/reports/visual-changes/visual-report-1.json", wantStatus: http.StatusOK, wantContentType: "application/json", wantBody: `{"summary":{}}`},
		{name: "missing report", path: "/reports/visual-changes/visual-report-2.json", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantContentType != "" {
				assert.Equal(t, tt.wantContentType, w.Header().Get("Content-Type"))
			}
			if tt.wantBody != "" {
				assert.Contains(t, w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name    string
		history bool
		want    HealthResponse
	}{
		{name: "history enabled", history: true, want: HealthResponse{Status: "healthy", Version: "v1.2.0", History: "enabled"}},
		{name: "history disabled", want: HealthResponse{Status: "healthy", Version: "v1.2.0", History: "disabled"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			NewHealthHandler("v1.2.0", tt.history)(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, http.StatusOK, w.Code)
			var got HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestLogger(t *testing.T) {
	log := logger.NewTestLogger()
	handler := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/boom" {
			respondError(w, http.StatusInternalServerError, "boom")
			return
		}
		respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "debug", entries[0].Level)
	assert.Equal(t, http.StatusOK, entries[0].Fields["status"])
	assert.Equal(t, "error", entries[1].Level)
	assert.Equal(t, "/boom", entries[1].Fields["path"])
	assert.Equal(t, http.StatusInternalServerError, entries[1].Fields["status"])
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{query: "", wantLimit: 20, wantOffset: 0},
		{query: "limit=50&offset=10", wantLimit: 50, wantOffset: 10},
		{query: "limit=1000&offset=-1", wantLimit: 20, wantOffset: 0},
		{query: "limit=abc", wantLimit: 20, wantOffset: 0},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			limit, offset := parsePagination(httptest.NewRequest(http.MethodGet, "/runs?"+tt.query, nil))
			assert.Equal(t, tt.wantLimit, limit)
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}
