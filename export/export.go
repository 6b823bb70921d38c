// Package export persists finalized runs as JSON documents for offline
// inspection. One run becomes one file containing the full run structure
// with invocation and handoff arrays in sequence order; re-parsing the file
// reproduces the in-memory ordering.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"goa.design/agenttrace/telemetry"
	"goa.design/agenttrace/trace"
)

// DefaultDir is the directory, relative to the working directory, where
// exports land when no explicit path is given.
const DefaultDir = "logs"

type (
	// Exporter writes run snapshots to disk.
	Exporter struct {
		dir    string
		mode   fs.FileMode
		logger telemetry.Logger
		now    func() time.Time
	}

	// Option configures an Exporter.
	Option func(*Exporter)
)

// New constructs an Exporter writing to DefaultDir under the current working
// directory.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		dir:    DefaultDir,
		mode:   0o644,
		logger: telemetry.NewNoopLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithDir overrides the default export directory.
func WithDir(dir string) Option {
	return func(e *Exporter) { e.dir = dir }
}

// WithFileMode overrides the permission bits of written files.
func WithFileMode(mode fs.FileMode) Option {
	return func(e *Exporter) { e.mode = mode }
}

// WithLogger sets the logger used for export diagnostics.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Exporter) { e.logger = l }
}

// WithClock overrides the time source used in default filenames. Intended
// for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// Export serializes the run to path and returns the path written. When path
// is empty the file lands in the exporter's directory, created if absent, as
// trace-<runID>-<unixMillis>.json. Write failures are returned wrapped;
// export is best-effort diagnostics and callers typically log and move on.
func (e *Exporter) Export(ctx context.Context, run *trace.Run, path string) (string, error) {
	if run == nil {
		return "", fmt.Errorf("export: nil run")
	}
	if path == "" {
		path = filepath.Join(e.dir, fmt.Sprintf("trace-%s-%d.json", run.RunID, e.now().UnixMilli()))
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("export %q: create directory: %w", run.RunID, err)
		}
	}

	doc, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("export %q: marshal: %w", run.RunID, err)
	}
	if err := os.WriteFile(path, doc, e.mode); err != nil {
		return "", fmt.Errorf("export %q: write %q: %w", run.RunID, path, err)
	}
	e.logger.Debug(ctx, "trace exported", "run_id", run.RunID, "path", path, "bytes", len(doc))
	return path, nil
}

// Load reads a previously exported run back from disk. It is the inverse of
// Export and exists mainly for offline tooling and tests.
func Load(path string) (*trace.Run, error) {
	doc, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", path, err)
	}
	var run trace.Run
	if err := json.Unmarshal(doc, &run); err != nil {
		return nil, fmt.Errorf("load %q: decode: %w", path, err)
	}
	return &run, nil
}
