// Package report persists rendered report artifacts to disk.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/hugo-lorenzo-mato/claimpilot/internal/logging"
)

// Artifacts names the files written for one job.
type Artifacts struct {
	HTMLPath string
	PDFPath  string
}

// Writer stores report artifacts under a base directory, one subdirectory
// per job. Writes are atomic so a crash never leaves a partial report where
// a complete one is expected.
type Writer struct {
	dir string
	log *logging.Logger
}

// NewWriter creates a report writer rooted at dir.
func NewWriter(dir string, log *logging.Logger) *Writer {
	return &Writer{dir: dir, log: log.With("component", "report_writer")}
}

// Write persists the report HTML and, when present, the rendered PDF.
func (w *Writer) Write(jobID, html string, pdf []byte) (*Artifacts, error) {
	jobDir := filepath.Join(w.dir, jobID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating report dir for job %s: %w", jobID, err)
	}

	out := &Artifacts{HTMLPath: filepath.Join(jobDir, "report.html")}
	if err := renameio.WriteFile(out.HTMLPath, []byte(html), 0o644); err != nil {
		return nil, fmt.Errorf("writing report html for job %s: %w", jobID, err)
	}

	if len(pdf) > 0 {
		out.PDFPath = filepath.Join(jobDir, "report.pdf")
		if err := renameio.WriteFile(out.PDFPath, pdf, 0o644); err != nil {
			return nil, fmt.Errorf("writing report pdf for job %s: %w", jobID, err)
		}
	}

	w.log.Info("report artifacts written",
		"job_id", jobID, "html", out.HTMLPath, "pdf", out.PDFPath != "")
	return out, nil
}
