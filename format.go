package rsize

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatBytes renders a byte count with IEC units, e.g. "1.17 TiB".
// Values under 1 KiB are rendered as a plain byte count.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// GroupDigits renders n with comma thousands separators, e.g. "45,231".
func GroupDigits(n uint64) string {
	s := strconv.FormatUint(n, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// StripSeparators removes comma thousands separators from a number token.
func StripSeparators(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
