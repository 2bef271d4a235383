package sizecache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.txt"))
	require.NoError(t, err)
	return s
}

func TestOpenMissingFile(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nope", "cache.txt"))
	require.NoError(t, err)
	require.Empty(t, s.Entries())
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.txt")
	content := `# header comment
gdrive|Photos|123

not-a-valid-line
s3|backups|456
missing|field
s3|media|12abc
gdrive|Docs|789
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := Open(path)
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 3)
	require.Equal(t, Entry{Remote: "gdrive", Folder: "Photos", Bytes: 123}, entries[0])
	require.Equal(t, Entry{Remote: "s3", Folder: "backups", Bytes: 456}, entries[1])
	require.Equal(t, Entry{Remote: "gdrive", Folder: "Docs", Bytes: 789}, entries[2])
}

func TestUpsertAndLookup(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))

	n, ok := s.Lookup("gdrive", "Photos")
	require.True(t, ok)
	require.Equal(t, uint64(123), n)

	// Keys are exact and case-sensitive.
	_, ok = s.Lookup("gdrive", "photos")
	require.False(t, ok)
	_, ok = s.Lookup("Gdrive", "Photos")
	require.False(t, ok)
}

func TestUpsertOverwrites(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))
	require.NoError(t, s.Upsert("s3", "backups", "456"))
	require.NoError(t, s.Upsert("gdrive", "Photos", "999"))

	entries := s.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, uint64(999), entries[0].Bytes)
	require.Equal(t, "s3", entries[1].Remote)
}

func TestUpsertIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))
	first, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))
	second, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	require.Len(t, s.Entries(), 1)
	require.Equal(t, first, second)
}

func TestUpsertRejectsBadBytes(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))

	for _, bad := range []string{"12abc", "-1", "", "1.5"} {
		err := s.Upsert("gdrive", "Photos", bad)
		require.ErrorIs(t, err, ErrInvalidBytes, "bytes=%q", bad)
	}

	entries := s.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, uint64(123), entries[0].Bytes)
}

func TestClearRemovesOnlyMatchingRemote(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("r1", "a", "1"))
	require.NoError(t, s.Upsert("r2", "b", "2"))
	require.NoError(t, s.Upsert("r1", "c", "3"))
	require.NoError(t, s.Upsert("r2", "d", "4"))

	removed, err := s.Clear("r1")
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	entries := s.Entries()
	require.Len(t, entries, 2)
	require.Equal(t, Entry{Remote: "r2", Folder: "b", Bytes: 2}, entries[0])
	require.Equal(t, Entry{Remote: "r2", Folder: "d", Bytes: 4}, entries[1])
}

func TestClearUnknownRemote(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("r1", "a", "1"))

	removed, err := s.Clear("r9")
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Len(t, s.Entries(), 1)
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("r1", "a", "1"))
	require.NoError(t, s.Upsert("r2", "b", "2"))

	require.NoError(t, s.ClearAll())
	require.Empty(t, s.Entries())

	// The persisted file keeps only the comment header.
	reloaded, err := Open(s.Path())
	require.NoError(t, err)
	require.Empty(t, reloaded.Entries())
}

func TestPersistsAcrossReopen(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))

	reloaded, err := Open(s.Path())
	require.NoError(t, err)

	n, ok := reloaded.Lookup("gdrive", "Photos")
	require.True(t, ok)
	require.Equal(t, uint64(123), n)
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Upsert("gdrive", "Photos", "123"))

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.Path()), ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}
