// Package parse turns the live output of an rclone size run into
// structured progress events and a final summary.
//
// rclone overwrites its progress line with carriage returns, so '\r' is
// treated as a line terminator equivalent to '\n' before tokenizing.
// Line shapes are matched by content, not position, and repeated summary
// lines follow a last-match-wins rule.
//
// The phrase set below is fixed to rclone's current wording; there is no
// version detection of the output format.
package parse

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	rsize "github.com/tomhaynes/rsize"
)

const (
	labelListed       = "Listed"
	labelElapsed      = "Elapsed time:"
	labelTransferred  = "Transferred:"
	labelTotalSize    = "Total size:"
	labelTotalObjects = "Total objects:"
)

var (
	sizeBytesRe  = regexp.MustCompile(`\((\d+) Bytes?\)`)
	objectsIntRe = regexp.MustCompile(`\((\d+)\)`)
)

// ScanCRLines is a bufio.SplitFunc that terminates tokens on '\r' as
// well as '\n', so carriage-return progress overwrites become discrete
// lines. A "\r\n" pair counts as a single terminator.
func ScanCRLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Parser is a line-classification state machine over rclone output.
// Feed it lines with Line; read the final summary with Result once the
// subprocess has exited.
type Parser struct {
	listed      uint64
	elapsed     string
	sizeLine    string
	objectsLine string
	lastStatus  string
}

// New returns an empty Parser.
func New() *Parser {
	return &Parser{}
}

// Line classifies one line of output and updates parser state. It
// returns a ProgressEvent and true only when the rendered status string
// changed, so callers redraw exactly once per visible change.
func (p *Parser) Line(line string) (rsize.ProgressEvent, bool) {
	if i := strings.Index(line, labelListed); i >= 0 {
		rest := strings.Fields(line[i+len(labelListed):])
		if len(rest) > 0 {
			if n, err := strconv.ParseUint(rsize.StripSeparators(rest[0]), 10, 64); err == nil {
				p.listed = n
			}
		}
	}
	if i := strings.Index(line, labelElapsed); i >= 0 {
		rest := line[i+len(labelElapsed):]
		if j := strings.Index(rest, labelTransferred); j >= 0 {
			rest = rest[:j]
		}
		p.elapsed = strings.TrimSpace(rest)
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, labelTotalSize) {
		p.sizeLine = trimmed
	}
	if strings.HasPrefix(trimmed, labelTotalObjects) {
		p.objectsLine = trimmed
	}

	ev := rsize.ProgressEvent{Listed: p.listed, Elapsed: p.elapsed}
	status := FormatStatus(ev)
	if status == "" || status == p.lastStatus {
		return rsize.ProgressEvent{}, false
	}
	p.lastStatus = status
	return ev, true
}

// FormatStatus renders a progress event as the single-line live status.
func FormatStatus(ev rsize.ProgressEvent) string {
	if ev.Listed == 0 && ev.Elapsed == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Listed ")
	b.WriteString(rsize.GroupDigits(ev.Listed))
	b.WriteString(" objects")
	if ev.Elapsed != "" {
		b.WriteString(", elapsed ")
		b.WriteString(ev.Elapsed)
	}
	return b.String()
}

// Result extracts the final summary from the last-seen "Total size:"
// and "Total objects:" lines. fallbackElapsed is used when the stream
// never carried an "Elapsed time:" label. When no "Total size:" line
// was seen, HasBytes is false and the caller must not update the cache.
func (p *Parser) Result(fallbackElapsed string) rsize.RunResult {
	res := rsize.RunResult{Elapsed: p.elapsed}
	if res.Elapsed == "" {
		res.Elapsed = fallbackElapsed
	}

	if p.sizeLine != "" {
		if m := sizeBytesRe.FindStringSubmatch(p.sizeLine); m != nil {
			if n, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				res.Bytes = n
				res.HasBytes = true
			}
		}
		res.HumanSize = humanBetween(p.sizeLine, labelTotalSize)
	}

	if p.objectsLine != "" {
		if m := objectsIntRe.FindStringSubmatch(p.objectsLine); m != nil {
			if n, err := strconv.ParseUint(m[1], 10, 64); err == nil {
				human := humanBetween(p.objectsLine, labelTotalObjects)
				if human == "" {
					human = rsize.GroupDigits(n)
				}
				res.Objects = labelTotalObjects + " " + human + " (" + rsize.GroupDigits(n) + ")"
			}
		}
	}
	return res
}

// humanBetween returns the trimmed text between a label and the opening
// parenthesis, e.g. "1.17 TiB" out of "Total size: 1.17 TiB (123 Byte)".
func humanBetween(line, label string) string {
	rest := line[len(label):]
	if i := strings.Index(rest, "("); i >= 0 {
		rest = rest[:i]
	}
	return strings.TrimSpace(rest)
}
