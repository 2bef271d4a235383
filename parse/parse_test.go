package parse

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	rsize "github.com/tomhaynes/rsize"
)

func TestScanCRLines(t *testing.T) {
	scanner := bufio.NewScanner(strings.NewReader("one\rtwo\nthree\r\nfour"))
	scanner.Split(ScanCRLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	require.Equal(t, []string{"one", "two", "three", "four"}, lines)
}

func TestCarriageReturnOverwritesYieldEvents(t *testing.T) {
	stream := "Listed 1,024 objects\rListed 2,048 objects\r"
	scanner := bufio.NewScanner(strings.NewReader(stream))
	scanner.Split(ScanCRLines)

	p := New()
	var events []rsize.ProgressEvent
	for scanner.Scan() {
		if ev, ok := p.Line(scanner.Text()); ok {
			events = append(events, ev)
		}
	}
	require.NoError(t, scanner.Err())
	require.Len(t, events, 2)
	require.Equal(t, uint64(1024), events[0].Listed)
	require.Equal(t, uint64(2048), events[1].Listed)
}

func TestRepeatedStatusIsDeduplicated(t *testing.T) {
	p := New()

	_, ok := p.Line("Listed 1,024 objects")
	require.True(t, ok)

	// Same rendered status again: no redraw.
	_, ok = p.Line("Listed 1,024 objects")
	require.False(t, ok)

	// Unrelated line: status unchanged, no event.
	_, ok = p.Line("some trailing noise")
	require.False(t, ok)
}

func TestElapsedTimeExtraction(t *testing.T) {
	p := New()

	ev, ok := p.Line("Elapsed time:       1m2.0sTransferred: 0 / 0, -")
	require.True(t, ok)
	require.Equal(t, "1m2.0s", ev.Elapsed)

	ev, ok = p.Line("Listed 512 objects")
	require.True(t, ok)
	require.Equal(t, uint64(512), ev.Listed)
	require.Equal(t, "1m2.0s", ev.Elapsed)
}

func TestResultTotalSize(t *testing.T) {
	p := New()
	p.Line("Total size: 1.17 TiB (1286543219876 Byte)")

	res := p.Result("")
	require.True(t, res.HasBytes)
	require.Equal(t, uint64(1286543219876), res.Bytes)
	require.Equal(t, "1.17 TiB", res.HumanSize)
}

func TestResultTotalSizeSingularByte(t *testing.T) {
	p := New()
	p.Line("Total size: 1 B (1 Byte)")

	res := p.Result("")
	require.True(t, res.HasBytes)
	require.Equal(t, uint64(1), res.Bytes)
}

func TestResultTotalObjectsReformatted(t *testing.T) {
	p := New()
	p.Line("Total objects: 45,231 (45231)")

	res := p.Result("")
	require.Equal(t, "Total objects: 45,231 (45,231)", res.Objects)
}

func TestResultTotalObjectsWithoutHumanPrefix(t *testing.T) {
	p := New()
	p.Line("Total objects: (45231)")

	res := p.Result("")
	require.Equal(t, "Total objects: 45,231 (45,231)", res.Objects)
}

func TestLastMatchWins(t *testing.T) {
	p := New()
	p.Line("Total size: 1.00 GiB (1073741824 Byte)")
	p.Line("Total size: 1.17 TiB (1286543219876 Byte)")

	res := p.Result("")
	require.Equal(t, uint64(1286543219876), res.Bytes)
	require.Equal(t, "1.17 TiB", res.HumanSize)
}

func TestMissingTotalSize(t *testing.T) {
	p := New()
	p.Line("Listed 42 objects")

	res := p.Result("3.0s")
	require.False(t, res.HasBytes)
	require.Empty(t, res.HumanSize)
}

func TestElapsedFallback(t *testing.T) {
	p := New()
	p.Line("Total size: 1 B (1 Byte)")

	res := p.Result("7.5s")
	require.Equal(t, "7.5s", res.Elapsed)
}

func TestElapsedFromStreamWins(t *testing.T) {
	p := New()
	p.Line("Elapsed time: 12.3s")

	res := p.Result("99s")
	require.Equal(t, "12.3s", res.Elapsed)
}

func TestFormatStatus(t *testing.T) {
	require.Empty(t, FormatStatus(rsize.ProgressEvent{}))
	require.Equal(t, "Listed 2,048 objects", FormatStatus(rsize.ProgressEvent{Listed: 2048}))
	require.Equal(t, "Listed 2,048 objects, elapsed 5s",
		FormatStatus(rsize.ProgressEvent{Listed: 2048, Elapsed: "5s"}))
}
