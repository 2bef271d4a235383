// Package rsize holds the shared domain types for the rsize tool.
package rsize

// FastListPolicy controls whether the fast-list flag is passed to rclone.
type FastListPolicy string

const (
	// FastListAuto injects the flag only for backends known to benefit.
	FastListAuto FastListPolicy = "auto"
	// FastListOn always injects the flag.
	FastListOn FastListPolicy = "on"
	// FastListOff never injects the flag and strips it from extra args.
	FastListOff FastListPolicy = "off"
)

// Valid reports whether p is one of the recognized policies.
func (p FastListPolicy) Valid() bool {
	switch p {
	case FastListAuto, FastListOn, FastListOff:
		return true
	}
	return false
}

// ProgressEvent is a transient snapshot of an in-flight measurement.
// Each event supersedes the previous one; events are never persisted.
type ProgressEvent struct {
	Listed  uint64 // objects seen so far
	Elapsed string // display string, e.g. "1m2.0s"
}

// RunResult is the outcome of a single measurement run. Bytes is only
// meaningful when HasBytes is set; a run can succeed without a parseable
// total (the cache is then left untouched).
type RunResult struct {
	Bytes     uint64
	HasBytes  bool
	HumanSize string // e.g. "1.17 TiB"
	Objects   string // formatted objects line, e.g. "Total objects: 45,231 (45,231)"
	Elapsed   string // display string from the stream, or wall-clock fallback
}
