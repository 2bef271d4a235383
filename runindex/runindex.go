// Package runindex keeps a structured record of past measurement runs
// in a bbolt database, so runs can be listed and filtered without
// parsing the Markdown history log.
package runindex

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// Record is one completed measurement run, success or failure.
type Record struct {
	ID       string    `json:"id"`
	Remote   string    `json:"remote"`
	Folder   string    `json:"folder"`
	Command  string    `json:"command"`
	Bytes    uint64    `json:"bytes"`
	HasBytes bool      `json:"has_bytes"`
	Objects  string    `json:"objects,omitempty"`
	Elapsed  string    `json:"elapsed,omitempty"`
	Started  time.Time `json:"started"`
	Success  bool      `json:"success"`
}

// Target renders the remote:folder pair the run measured.
func (r Record) Target() string {
	return r.Remote + ":" + r.Folder
}

// DB is the run index. Keys are ordered by start time so a reverse
// cursor walk yields newest runs first.
type DB struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the logger for the database.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) {
		d.logger = logger
	}
}

// Open opens (creating if needed) the run index at path.
func Open(path string, opts ...Option) (*DB, error) {
	d := &DB{logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening run index: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating runs bucket: %w", err)
	}
	d.db = db
	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Put stores a run record.
func (d *DB) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	key := []byte(rec.Started.UTC().Format(time.RFC3339Nano) + "/" + rec.ID)
	err = d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("storing record: %w", err)
	}
	d.logger.Debug("recorded run", "id", rec.ID, "target", rec.Target(), "success", rec.Success)
	return nil
}

// Recent returns up to limit records, newest first. A non-empty remote
// filters to runs against that remote.
func (d *DB) Recent(limit int, remote string) ([]Record, error) {
	var out []Record
	err := d.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketRuns).Cursor()
		for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				d.logger.Warn("skipping undecodable run record", "key", string(k), "error", err)
				continue
			}
			if remote != "" && rec.Remote != remote {
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return out, nil
}
