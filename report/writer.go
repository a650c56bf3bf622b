package report

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"path"
	"strings"
	"time"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
	"github.com/hairizuan-noorazman/screenshot-orchestrator/storage"
)

// ErrReportWrite is returned when a report cannot be rendered or stored.
var ErrReportWrite = errors.New("failed to write report")

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"deref":     func(f *float64) float64 { return *f },
	"derefBool": func(b *bool) bool { return *b },
}).ParseFS(templateFS, "templates/*.html.tmpl"))

// Written lists the keys a report was stored under.
type Written struct {
	HTML string `json:"html"`
	JSON string `json:"json"`
}

// Writer renders reports as HTML and indented JSON into a store.
type Writer struct {
	store     storage.BlobStorage
	visualDir string
	logger    logger.Logger
}

// NewWriter creates a Writer. Visual reports go under visualDir inside store;
// consolidated reports go to the store root.
func NewWriter(store storage.BlobStorage, visualDir string, log logger.Logger) *Writer {
	return &Writer{
		store:     store,
		visualDir: strings.Trim(visualDir, "/"),
		logger:    log,
	}
}

// VisualKey returns the key stem of a visual report written at t.
func (w *Writer) VisualKey(t time.Time) string {
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(t.UTC().Format("2006-01-02T15:04:05.000Z"))
	return path.Join(w.visualDir, "visual-report-"+ts)
}

// ConsolidatedKey returns the key stem of a consolidated report written at t.
func ConsolidatedKey(t time.Time) string {
	return fmt.Sprintf("consolidated-report-%d", t.UnixMilli())
}

// WriteVisual stores the visual report of one target or run.
func (w *Writer) WriteVisual(ctx context.Context, r *Report) (*Written, error) {
	return w.write(ctx, w.VisualKey(r.Timestamp), "visual.html.tmpl", r)
}

// WriteConsolidated stores the multi-target summary.
func (w *Writer) WriteConsolidated(ctx context.Context, c *ConsolidatedReport) (*Written, error) {
	return w.write(ctx, ConsolidatedKey(c.Timestamp), "consolidated.html.tmpl", c)
}

func (w *Writer) write(ctx context.Context, stem, tmpl string, value interface{}) (*Written, error) {
	var html bytes.Buffer
	if err := templates.ExecuteTemplate(&html, tmpl, value); err != nil {
		return nil, fmt.Errorf("%w: render %s: %v", ErrReportWrite, tmpl, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %v", ErrReportWrite, stem, err)
	}

	written := &Written{HTML: stem + ".html", JSON: stem + ".json"}
	if err := w.store.Upload(ctx, written.HTML, &html); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReportWrite, written.HTML, err)
	}
	if err := w.store.Upload(ctx, written.JSON, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrReportWrite, written.JSON, err)
	}

	w.logger.Info(ctx, "report written", map[string]interface{}{
		"html": written.HTML,
		"json": written.JSON,
	})
	return written, nil
}
