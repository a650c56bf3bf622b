// Package bundle packs run outputs into a single tar.zst archive with a manifest.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

const manifestFileName = "manifest.yaml"

// ErrEmptyBundle is returned when no source holds any file.
var ErrEmptyBundle = errors.New("nothing to bundle")

// Source is one store copied into the archive under Dir.
type Source struct {
	Dir   string
	Store storage.BlobStorage
	// Keys limits the copy to these keys. Empty means every key in Store.
	Keys []string
}

// Manifest describes an archive.
type Manifest struct {
	Version   string          `yaml:"version"`
	RunID     string          `yaml:"runId,omitempty"`
	CreatedAt time.Time       `yaml:"createdAt"`
	Entries   []ManifestEntry `yaml:"entries"`
}

// ManifestEntry is one archived file.
type ManifestEntry struct {
	Path   string `yaml:"path"`
	Kind   string `yaml:"kind"`
	Size   int64  `yaml:"size"`
	SHA256 string `yaml:"sha256"`
}

type entry struct {
	ManifestEntry
	data []byte
}

// Write archives sources into w. The manifest is the first member.
func Write(ctx context.Context, w io.Writer, runID string, now time.Time, sources ...Source) (*Manifest, error) {
	entries, err := collect(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrEmptyBundle
	}

	manifest := &Manifest{Version: "1", RunID: runID, CreatedAt: now.UTC().Truncate(time.Second)}
	for _, e := range entries {
		manifest.Entries = append(manifest.Entries, e.ManifestEntry)
	}
	manifestBytes, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	encoder, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(encoder)

	if err := writeMember(tw, manifestFileName, manifestBytes, manifest.CreatedAt); err != nil {
		encoder.Close()
		return nil, err
	}
	for _, e := range entries {
		if err := writeMember(tw, e.Path, e.data, manifest.CreatedAt); err != nil {
			encoder.Close()
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("close tar: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("close zstd: %w", err)
	}
	return manifest, nil
}

// WriteFile archives sources into a new file at output.
func WriteFile(ctx context.Context, output, runID string, now time.Time, sources ...Source) (*Manifest, error) {
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	file, err := os.Create(output)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	manifest, err := Write(ctx, file, runID, now, sources...)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(output)
		return nil, err
	}
	return manifest, nil
}

// ReadManifest returns the manifest of an archive.
func ReadManifest(r io.Reader) (*Manifest, error) {
	decoder, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer decoder.Close()

	tr := tar.NewReader(decoder)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%s not found in archive", manifestFileName)
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
		if header.Name != manifestFileName {
			continue
		}

		var manifest Manifest
		if err := yaml.NewDecoder(tr).Decode(&manifest); err != nil {
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		return &manifest, nil
	}
}

func collect(ctx context.Context, sources []Source) ([]entry, error) {
	var entries []entry
	seen := make(map[string]bool)
	for _, src := range sources {
		keys := src.Keys
		if len(keys) == 0 {
			listed, err := src.Store.List(ctx, "")
			if err != nil {
				return nil, fmt.Errorf("list %s: %w", src.Dir, err)
			}
			keys = listed
		}

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			name := path.Join(src.Dir, key)
			if seen[name] {
				continue
			}
			seen[name] = true

			data, err := storage.ReadAll(ctx, src.Store, key)
			if err != nil {
				return nil, fmt.Errorf("read %s/%s: %w", src.Dir, key, err)
			}
			sum := sha256.Sum256(data)
			entries = append(entries, entry{
				ManifestEntry: ManifestEntry{
					Path:   name,
					Kind:   inferKind(name),
					Size:   int64(len(data)),
					SHA256: hex.EncodeToString(sum[:]),
				},
				data: data,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func writeMember(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(data)),
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %q: %w", name, err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

func inferKind(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".png"):
		return "screenshot"
	case strings.HasSuffix(lower, ".html"):
		return "report-html"
	case strings.HasSuffix(lower, ".json"):
		return "report-json"
	default:
		return "file"
	}
}
