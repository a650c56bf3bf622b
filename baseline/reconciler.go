package baseline

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/capture"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

var (
	// ErrNoArtifact is returned when no capture exists for a name.
	ErrNoArtifact = errors.New("no artifact found")

	// ErrBaselineStore is returned when the baseline store cannot be read or written.
	ErrBaselineStore = errors.New("baseline store failure")
)

// ComparisonRecord links one capture to its baseline. Exactly one of
// HadExistingBaseline and IsNewBaseline is true.
type ComparisonRecord struct {
	Name                string   `json:"name"`
	CurrentPath         string   `json:"current"`
	BaselinePath        string   `json:"baseline"`
	HadExistingBaseline bool     `json:"hadExistingBaseline"`
	IsNewBaseline       bool     `json:"isNewBaseline"`
	Comparator          string   `json:"comparator,omitempty"`
	Difference          *float64 `json:"difference,omitempty"`
	Matched             *bool    `json:"matched,omitempty"`
}

// Entry describes one stored baseline.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Key returns the baseline key for a logical name.
func Key(name string) string {
	return name + ".png"
}

// Reconciler creates missing baselines and compares captures against existing ones.
// It assumes a single writer per baseline store.
type Reconciler struct {
	artifacts  storage.BlobStorage
	baselines  storage.BlobStorage
	comparator Comparator
	logger     logger.Logger
}

// NewReconciler creates a Reconciler. A nil comparator means PresenceComparator.
func NewReconciler(artifacts, baselines storage.BlobStorage, comparator Comparator, log logger.Logger) *Reconciler {
	if comparator == nil {
		comparator = PresenceComparator{}
	}
	return &Reconciler{
		artifacts:  artifacts,
		baselines:  baselines,
		comparator: comparator,
		logger:     log,
	}
}

// Reconcile returns one record per artifact, in order. An absent baseline is
// created from the capture; an existing one is never modified.
func (r *Reconciler) Reconcile(ctx context.Context, artifacts []capture.Artifact) ([]ComparisonRecord, error) {
	records := make([]ComparisonRecord, 0, len(artifacts))

	for _, artifact := range artifacts {
		record, err := r.reconcileOne(ctx, artifact)
		if err != nil {
			return records, err
		}
		records = append(records, *record)
	}

	return records, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, artifact capture.Artifact) (*ComparisonRecord, error) {
	key := Key(artifact.Name)
	record := &ComparisonRecord{
		Name:        artifact.Name,
		CurrentPath: artifact.URL,
	}
	if record.CurrentPath == "" {
		record.CurrentPath = artifact.Path
	}

	exists, err := r.baselines.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: check %s: %v", ErrBaselineStore, key, err)
	}

	if !exists {
		if err := storage.Copy(ctx, r.artifacts, artifact.Path, r.baselines, key); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrBaselineStore, key, err)
		}
		record.IsNewBaseline = true
		record.BaselinePath = r.location(ctx, key)
		r.logger.Info(ctx, "new baseline created", map[string]interface{}{
			"name":     artifact.Name,
			"baseline": key,
		})
		return record, nil
	}

	record.HadExistingBaseline = true
	record.BaselinePath = r.location(ctx, key)
	record.Comparator = r.comparator.Name()

	if r.comparator.RequiresPixels() {
		r.compare(ctx, artifact, key, record)
	}

	return record, nil
}

// compare fills the score fields. Decode or read failures leave them unset.
func (r *Reconciler) compare(ctx context.Context, artifact capture.Artifact, key string, record *ComparisonRecord) {
	fields := map[string]interface{}{"name": artifact.Name, "comparator": r.comparator.Name()}

	current, err := storage.ReadAll(ctx, r.artifacts, artifact.Path)
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn(ctx, "failed to read capture for comparison", fields)
		return
	}
	base, err := storage.ReadAll(ctx, r.baselines, key)
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn(ctx, "failed to read baseline for comparison", fields)
		return
	}

	result, err := r.comparator.Compare(ctx, current, base)
	if err != nil {
		fields["error"] = err.Error()
		r.logger.Warn(ctx, "comparison failed", fields)
		return
	}
	if result == nil {
		return
	}

	diff, matched := result.Difference, result.Matched
	record.Difference = &diff
	record.Matched = &matched
	fields["difference"] = diff
	fields["matched"] = matched
	r.logger.Info(ctx, "baseline compared", fields)
}

func (r *Reconciler) location(ctx context.Context, key string) string {
	url, err := r.baselines.GetURL(ctx, key)
	if err != nil {
		return key
	}
	return url
}

// Promote overwrites the baseline for name with a capture. An empty
// artifactPath promotes the newest capture of that name.
func (r *Reconciler) Promote(ctx context.Context, name, artifactPath string) (string, error) {
	if artifactPath == "" {
		latest, err := r.LatestArtifact(ctx, name)
		if err != nil {
			return "", err
		}
		artifactPath = latest
	}

	key := Key(name)
	if err := storage.Copy(ctx, r.artifacts, artifactPath, r.baselines, key); err != nil {
		if errors.Is(err, storage.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoArtifact, artifactPath)
		}
		return "", fmt.Errorf("%w: promote %s: %v", ErrBaselineStore, key, err)
	}

	r.logger.Info(ctx, "baseline promoted", map[string]interface{}{
		"name":     name,
		"artifact": artifactPath,
		"baseline": key,
	})
	return key, nil
}

// LatestArtifact returns the key of the most recent capture of name.
func (r *Reconciler) LatestArtifact(ctx context.Context, name string) (string, error) {
	keys, err := r.artifacts.List(ctx, name+"_")
	if err != nil {
		return "", err
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(name) + `_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}-\d{3}Z\.png$`)
	var latest string
	for _, k := range keys {
		// Timestamps are fixed width, so lexical order is chronological.
		if pattern.MatchString(k) && k > latest {
			latest = k
		}
	}
	if latest == "" {
		return "", fmt.Errorf("%w: %s", ErrNoArtifact, name)
	}
	return latest, nil
}

// List returns every stored baseline, sorted by name.
func (r *Reconciler) List(ctx context.Context) ([]Entry, error) {
	keys, err := r.baselines.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBaselineStore, err)
	}

	entries := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, ".png") || strings.Contains(k, "/") {
			continue
		}
		entries = append(entries, Entry{
			Name: strings.TrimSuffix(k, ".png"),
			Path: k,
			URL:  r.location(ctx, k),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
