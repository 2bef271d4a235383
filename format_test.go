package rsize

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	require.Equal(t, "0 B", FormatBytes(0))
	require.Equal(t, "512 B", FormatBytes(512))
	require.Equal(t, "1.00 KiB", FormatBytes(1024))
	require.Equal(t, "1.17 TiB", FormatBytes(1286543219876))
}

func TestGroupDigits(t *testing.T) {
	require.Equal(t, "0", GroupDigits(0))
	require.Equal(t, "999", GroupDigits(999))
	require.Equal(t, "1,000", GroupDigits(1000))
	require.Equal(t, "45,231", GroupDigits(45231))
	require.Equal(t, "1,286,543,219,876", GroupDigits(1286543219876))
}

func TestStripSeparators(t *testing.T) {
	require.Equal(t, "45231", StripSeparators("45,231"))
	require.Equal(t, "42", StripSeparators("42"))
}

func TestFastListPolicyValid(t *testing.T) {
	require.True(t, FastListAuto.Valid())
	require.True(t, FastListOn.Valid())
	require.True(t, FastListOff.Valid())
	require.False(t, FastListPolicy("maybe").Valid())
}
