package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseModeOfOperation(t *testing.T) {
	for _, m := range []ModeOfOperation{Open, SenderRestricted, ReceiverRestricted, FullyRestricted} {
		parsed, err := ParseModeOfOperation(string(m))
		require.NoError(t, err)
		require.Equal(t, m, parsed)
	}

	_, err := ParseModeOfOperation("not-a-mode")
	require.Error(t, err)
}

func TestModeRequirements(t *testing.T) {
	require.False(t, Open.RequiresRingSignature())
	require.False(t, Open.RequiresEncryption())

	require.True(t, SenderRestricted.RequiresRingSignature())
	require.False(t, SenderRestricted.RequiresEncryption())

	require.False(t, ReceiverRestricted.RequiresRingSignature())
	require.True(t, ReceiverRestricted.RequiresEncryption())

	require.True(t, FullyRestricted.RequiresRingSignature())
	require.True(t, FullyRestricted.RequiresEncryption())
}
