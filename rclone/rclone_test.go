package rclone

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTypeDirect(t *testing.T) {
	remotes := map[string]RemoteConfig{
		"gdrive": {Type: "drive"},
		"s3":     {Type: "s3"},
	}
	require.Equal(t, "drive", ResolveType(remotes, "gdrive"))
	require.Equal(t, "s3", ResolveType(remotes, "s3"))
}

func TestResolveTypeUnknownRemote(t *testing.T) {
	require.Empty(t, ResolveType(map[string]RemoteConfig{}, "nope"))
}

func TestResolveTypeAliasChain(t *testing.T) {
	remotes := map[string]RemoteConfig{
		"shortcut": {Type: "alias", Remote: "vault:media"},
		"vault":    {Type: "crypt", Remote: "gdrive:encrypted"},
		"gdrive":   {Type: "drive"},
	}
	require.Equal(t, "drive", ResolveType(remotes, "shortcut"))
	require.Equal(t, "drive", ResolveType(remotes, "vault"))
}

func TestResolveTypeDanglingAlias(t *testing.T) {
	remotes := map[string]RemoteConfig{
		"shortcut": {Type: "alias", Remote: "gone:stuff"},
		"empty":    {Type: "alias", Remote: ""},
	}
	require.Empty(t, ResolveType(remotes, "shortcut"))
	require.Empty(t, ResolveType(remotes, "empty"))
}

func TestResolveTypeBoundsHops(t *testing.T) {
	// A cycle must terminate with an empty type, not loop forever.
	remotes := map[string]RemoteConfig{
		"a": {Type: "alias", Remote: "b:"},
		"b": {Type: "alias", Remote: "a:"},
	}
	require.Empty(t, ResolveType(remotes, "a"))
}

func TestParseFolderList(t *testing.T) {
	out := "Photos/\nDocuments/\n\nbackup.tar\n"
	require.Equal(t, []string{"Photos", "Documents", "backup.tar"}, parseFolderList(out))
	require.Empty(t, parseFolderList(""))
}
