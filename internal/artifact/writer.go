// Package artifact serializes analysis findings into the working tree.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/autofix/internal/analysis"
	"github.com/fyrsmithlabs/autofix/internal/config"
)

// Record is the durable analysis artifact committed alongside the patch.
type Record struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	TestLog     string           `json:"test_log"`
	GitDiff     string           `json:"git_diff"`
	Analysis    *analysis.Result `json:"analysis"`
}

// Writer writes the analysis record and optional patch file.
type Writer struct {
	root   string
	config config.ArtifactsConfig
}

// NewWriter creates a writer rooted at the repository checkout.
func NewWriter(root string, cfg config.ArtifactsConfig) *Writer {
	return &Writer{root: root, config: cfg}
}

// Write persists the record and, when the analysis carries a non-empty patch,
// the patch file. It returns the relative paths written, in staging order.
func (w *Writer) Write(record *Record) ([]string, error) {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(w.root, w.config.AnalysisPath), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing analysis record: %w", err)
	}
	paths := []string{w.config.AnalysisPath}

	patch := record.Analysis.Patch
	if strings.TrimSpace(patch) == "" {
		return paths, nil
	}

	if err := os.WriteFile(filepath.Join(w.root, w.config.PatchPath), []byte(patch), 0o644); err != nil {
		return nil, fmt.Errorf("writing patch file: %w", err)
	}
	return append(paths, w.config.PatchPath), nil
}

// ReadTestLog reads the prior test-run log from its fixed relative path.
// A missing file is an empty log, not an error.
func (w *Writer) ReadTestLog() (string, error) {
	data, err := os.ReadFile(filepath.Join(w.root, w.config.TestLogPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading test log: %w", err)
	}
	return string(data), nil
}
