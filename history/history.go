// Package history appends Markdown transcripts of measurement runs.
//
// Each run is one block delimited by "---": an "##" timestamp heading,
// bullet metadata and a fenced code block holding the colorless
// transcript. New blocks are prepended so the newest run is first.
// Logging failures are absorbed: the writer disables itself for the
// rest of the run and the measurement carries on.
package history

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxBytes is the history size above which older entries are
// rotated into a compressed sidecar file.
const DefaultMaxBytes = 1 << 20 // 1MB

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)

// Writer accumulates one run transcript in a scratch file and prepends
// it to the history file when the run ends. A Writer is reused across
// runs but only one entry may be active at a time.
type Writer struct {
	path     string
	logger   *slog.Logger
	maxBytes int64
	now      func() time.Time

	scratch     *os.File
	scratchPath string
	active      bool
	warned      bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithLogger sets the logger for disable warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// WithMaxBytes caps the history file size before rotation. Zero
// disables rotation.
func WithMaxBytes(n int64) Option {
	return func(w *Writer) {
		w.maxBytes = n
	}
}

// WithNow sets the time function for testing.
func WithNow(now func() time.Time) Option {
	return func(w *Writer) {
		w.now = now
	}
}

// New creates a Writer for the history file at path.
func New(path string, opts ...Option) *Writer {
	w := &Writer{
		path:     path,
		logger:   slog.Default(),
		maxBytes: DefaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Path returns the history file path.
func (w *Writer) Path() string {
	return w.path
}

// StartEntry opens a fresh scratch buffer and writes the entry header.
// On any failure the writer disables itself for this run, warning once;
// history problems never block the measurement itself.
func (w *Writer) StartEntry(remote, folder, command, runID string) {
	w.active = false

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.disable("creating history directory", err)
		return
	}
	scratch, err := os.CreateTemp(dir, ".scratch-*")
	if err != nil {
		w.disable("creating history scratch file", err)
		return
	}
	w.scratch = scratch
	w.scratchPath = scratch.Name()
	w.active = true

	header := fmt.Sprintf("---\n\n## %s\n\n- Remote: `%s`\n- Folder: `%s`\n- Run: `%s`\n- Command: `%s`\n\n```\n",
		w.now().Format("2006-01-02 15:04:05"), remote, folder, runID, command)
	if _, err := scratch.WriteString(header); err != nil {
		w.disable("writing history header", err)
		w.cleanupScratch()
	}
}

// WriteLine appends one transcript line to the active entry, with
// carriage returns and ANSI escape sequences stripped. No-op when the
// writer is disabled.
func (w *Writer) WriteLine(line string) {
	if !w.active {
		return
	}
	line = strings.ReplaceAll(line, "\r", "")
	line = ansiRe.ReplaceAllString(line, "")
	if _, err := w.scratch.WriteString(line + "\n"); err != nil {
		w.disable("writing history line", err)
		w.cleanupScratch()
	}
}

// EndEntry closes the fenced block and prepends the finished entry to
// the history file. The scratch buffer is removed and the writer reset
// whether or not the prepend succeeds.
func (w *Writer) EndEntry() {
	if !w.active {
		return
	}
	w.active = false
	defer w.cleanupScratch()

	if _, err := w.scratch.WriteString("```\n\n"); err != nil {
		w.disable("closing history entry", err)
		return
	}
	if err := w.scratch.Close(); err != nil {
		w.disable("closing history scratch file", err)
		return
	}
	w.scratch = nil

	if err := w.prepend(); err != nil {
		w.disable("updating history file", err)
	}
}

// prepend writes scratch + existing history to a temp file and renames
// it over the history file. When the combined size would exceed the cap,
// the pre-existing content is rotated into a zstd sidecar instead and
// the new file holds only this entry.
func (w *Writer) prepend() error {
	entry, err := os.ReadFile(w.scratchPath)
	if err != nil {
		return fmt.Errorf("reading scratch file: %w", err)
	}
	existing, err := os.ReadFile(w.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading history file: %w", err)
	}

	if w.maxBytes > 0 && len(existing) > 0 && int64(len(entry)+len(existing)) > w.maxBytes {
		if err := w.rotate(existing); err != nil {
			return err
		}
		existing = nil
	}

	dir := filepath.Dir(w.path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(entry); err != nil {
		return fmt.Errorf("writing entry: %w", err)
	}
	if _, err := tmp.Write(existing); err != nil {
		return fmt.Errorf("writing existing history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing history file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}

// rotate compresses old history content into history-<date>.md.zst
// beside the log.
func (w *Writer) rotate(content []byte) error {
	base := strings.TrimSuffix(w.path, filepath.Ext(w.path))
	dst := fmt.Sprintf("%s-%s.md.zst", base, w.now().Format("20060102-150405"))

	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating rotation file: %w", err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("creating zstd writer: %w", err)
	}
	if _, err := enc.Write(content); err != nil {
		_ = enc.Close()
		_ = f.Close()
		return fmt.Errorf("compressing history: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = f.Close()
		return fmt.Errorf("finishing compression: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing rotation file: %w", err)
	}
	w.logger.Info("rotated history log", "path", dst, "bytes", len(content))
	return nil
}

func (w *Writer) disable(what string, err error) {
	w.active = false
	if !w.warned {
		w.warned = true
		w.logger.Warn("history logging disabled", "reason", what, "error", err)
	}
}

func (w *Writer) cleanupScratch() {
	if w.scratch != nil {
		_ = w.scratch.Close()
		w.scratch = nil
	}
	if w.scratchPath != "" {
		_ = os.Remove(w.scratchPath)
		w.scratchPath = ""
	}
}
