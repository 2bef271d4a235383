// Package sizecache persists measured folder sizes between runs.
//
// The cache is a flat UTF-8 text table, one entry per line in the form
// remote|folder|bytes. Lines starting with '#' are comments and blank
// lines are ignored. Every mutation rewrites the whole file atomically
// (write to a sibling temp file, then rename over the target) so a crash
// mid-write never corrupts the previous valid file.
package sizecache

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrInvalidBytes is returned by Upsert when the byte count is not a
// non-negative integer literal.
var ErrInvalidBytes = fmt.Errorf("sizecache: bytes is not a non-negative integer")

const fileHeader = `# rsize size cache
# one entry per line: remote|folder|bytes
# this file is rewritten in full on every update
`

// Entry is one cached measurement, keyed by (Remote, Folder).
type Entry struct {
	Remote string
	Folder string
	Bytes  uint64
}

// Store is an ordered collection of entries backed by a single file.
// It is owned by one process at a time; no locking beyond the atomic
// rename is needed.
type Store struct {
	path    string
	logger  *slog.Logger
	entries []Entry
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped-line warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open loads the cache file at path. A missing file yields an empty
// store; malformed lines are skipped, not fatal.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Entries returns a copy of all entries in insertion order.
func (s *Store) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Lookup returns the cached byte count for (remote, folder). The match
// is exact and case-sensitive.
func (s *Store) Lookup(remote, folder string) (uint64, bool) {
	for _, e := range s.entries {
		if e.Remote == remote && e.Folder == folder {
			return e.Bytes, true
		}
	}
	return 0, false
}

// Upsert inserts or overwrites the entry for (remote, folder) and
// persists the store. bytes must be a non-negative integer literal;
// anything else leaves the store unchanged and returns ErrInvalidBytes.
func (s *Store) Upsert(remote, folder, bytes string) error {
	n, err := strconv.ParseUint(bytes, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidBytes, bytes)
	}
	for i, e := range s.entries {
		if e.Remote == remote && e.Folder == folder {
			s.entries[i].Bytes = n
			return s.save()
		}
	}
	s.entries = append(s.entries, Entry{Remote: remote, Folder: folder, Bytes: n})
	return s.save()
}

// Clear removes every entry for the given remote and persists the
// store. It returns the number of entries removed; entries for other
// remotes keep their relative order.
func (s *Store) Clear(remote string) (int, error) {
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Remote == remote {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.save()
}

// ClearAll empties the store and persists it.
func (s *Store) ClearAll() error {
	s.entries = s.entries[:0]
	return s.save()
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening cache file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.SplitN(line, "|", 3)
		if len(fields) != 3 {
			s.logger.Debug("skipping malformed cache line", "line", line)
			continue
		}
		n, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			s.logger.Debug("skipping cache line with bad byte count", "line", line)
			continue
		}
		s.entries = append(s.entries, Entry{Remote: fields[0], Folder: fields[1], Bytes: n})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading cache file: %w", err)
	}
	return nil
}

// save rewrites the cache file atomically.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

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

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(fileHeader); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for _, e := range s.entries {
		if _, err := fmt.Fprintf(w, "%s|%s|%d\n", e.Remote, e.Folder, e.Bytes); err != nil {
			return fmt.Errorf("writing entry: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}
