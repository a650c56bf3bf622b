package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/testutil"
)

func newStore(t *testing.T, files map[string][]byte) *storage.LocalStorage {
	t.Helper()
	s, err := storage.NewLocalStorage(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	for key, data := range files {
		require.NoError(t, s.Upload(context.Background(), key, bytes.NewReader(data)))
	}
	return s
}

func members(t *testing.T, archive []byte) map[string][]byte {
	t.Helper()
	decoder, err := zstd.NewReader(bytes.NewReader(archive))
	require.NoError(t, err)
	defer decoder.Close()

	out := map[string][]byte{}
	tr := tar.NewReader(decoder)
	first := true
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if first {
			assert.Equal(t, manifestFileName, header.Name)
			first = false
		}
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[header.Name] = data
	}
	return out
}

func TestWrite(t *testing.T) {
	png := testutil.SolidPNG(t, 4, 4, color.White)
	artifacts := newStore(t, map[string][]byte{"home_2024-03-01T10-00-00-000Z.png": png})
	reports := newStore(t, map[string][]byte{
		"consolidated-report-1.html": []byte("<html></html>"),
		"consolidated-report-1.json": []byte("{}"),
	})

	var buf bytes.Buffer
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	manifest, err := Write(context.Background(), &buf, "run-1", now,
		Source{Dir: "automated", Store: artifacts},
		Source{Dir: "reports", Store: reports, Keys: []string{"consolidated-report-1.json"}},
	)
	require.NoError(t, err)

	require.Len(t, manifest.Entries, 2)
	assert.Equal(t, "automated/home_2024-03-01T10-00-00-000Z.png", manifest.Entries[0].Path)
	assert.Equal(t, "screenshot", manifest.Entries[0].Kind)
	assert.Equal(t, int64(len(png)), manifest.Entries[0].Size)
	assert.Len(t, manifest.Entries[0].SHA256, 64)
	assert.Equal(t, "report-json", manifest.Entries[1].Kind)

	files := members(t, buf.Bytes())
	assert.Equal(t, png, files["automated/home_2024-03-01T10-00-00-000Z.png"])
	assert.Equal(t, []byte("{}"), files["reports/consolidated-report-1.json"])
	assert.NotContains(t, files, "reports/consolidated-report-1.html")

	read, err := ReadManifest(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "run-1", read.RunID)
	assert.Equal(t, manifest.Entries, read.Entries)
	assert.True(t, now.Equal(read.CreatedAt))
}

func TestWrite_Empty(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, "", time.Now(), Source{Dir: "automated", Store: newStore(t, nil)})
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestWrite_MissingKey(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, "", time.Now(), Source{Dir: "automated", Store: newStore(t, nil), Keys: []string{"gone.png"}})
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	store := newStore(t, map[string][]byte{"a.png": []byte("a")})
	output := filepath.Join(t.TempDir(), "archives", "run.tar.zst")

	_, err := WriteFile(context.Background(), output, "run-1", time.Now(), Source{Dir: "automated", Store: store})
	require.NoError(t, err)

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	manifest, err := ReadManifest(f)
	require.NoError(t, err)
	assert.Len(t, manifest.Entries, 1)

	_, err = WriteFile(context.Background(), filepath.Join(t.TempDir(), "empty.tar.zst"), "", time.Now(), Source{Dir: "x", Store: newStore(t, nil)})
	assert.ErrorIs(t, err, ErrEmptyBundle)
}

func TestReadManifest_NotAnArchive(t *testing.T) {
	_, err := ReadManifest(strings.NewReader("plain text"))
	assert.Error(t, err)
}

func TestInferKind(t *testing.T) {
	assert.Equal(t, "screenshot", inferKind("a/B.PNG"))
	assert.Equal(t, "report-html", inferKind("r.html"))
	assert.Equal(t, "file", inferKind("notes.txt"))
}
