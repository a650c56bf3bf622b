package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/report"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/scenario"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

// readOnlyStore rejects every upload.
type readOnlyStore struct {
	storage.BlobStorage
}

func (s readOnlyStore) Upload(ctx context.Context, path string, reader io.Reader) error {
	return errors.New("read-only file system")
}

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	stdout = &buf
	t.Cleanup(func() { stdout = os.Stdout })
	return &buf
}

// noDeviceConfig makes the Android target find no attached device.
func noDeviceConfig(t *testing.T) *Config {
	t.Helper()
	cfg := testConfig(t)
	cfg.Android.DevicesCommand = []string{"true"}
	return cfg
}

func TestRunScreenshots_FailedTargetIsNotAnError(t *testing.T) {
	cfg := noDeviceConfig(t)
	out := captureStdout(t)

	err := runScreenshots(context.Background(), cfg, &runOptions{mode: "android"})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "skipped")
	assert.Contains(t, out.String(), "1 failed")

	written, err := filepath.Glob(filepath.Join(cfg.Reports.Dir, "consolidated-report-*.json"))
	require.NoError(t, err)
	assert.Len(t, written, 1)
}

func TestExecuteRun_ReportWriteFailure(t *testing.T) {
	cfg := noDeviceConfig(t)
	captureStdout(t)

	a := newTestApp(t, cfg, appOptions{})
	a.writer = report.NewWriter(readOnlyStore{BlobStorage: a.reports}, cfg.Reports.VisualDir, logger.NewTestLogger())

	err := executeRun(context.Background(), a, []report.TargetKind{report.TargetAndroid}, scenario.DefaultWeb(), "")
	assert.ErrorIs(t, err, report.ErrReportWrite)
}
