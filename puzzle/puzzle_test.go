package puzzle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/drand"
)

func TestSolveProducesVerifiableSolution(t *testing.T) {
	beacon := drand.Beacon{RoundNumber: 1, Signature: []byte("signature-bytes")}
	data := []byte("hello world")

	for _, difficulty := range []uint8{0, 1, 4, 8, 12} {
		solution := Solve(data, beacon, difficulty)
		require.True(t, Verify(data, beacon, difficulty, solution), "difficulty %d", difficulty)
	}
}

func TestVerifyRejectsWrongData(t *testing.T) {
	beacon := drand.Beacon{RoundNumber: 1, Signature: []byte("signature-bytes")}
	solution := Solve([]byte("hello"), beacon, 8)

	require.False(t, Verify([]byte("goodbye"), beacon, 8, solution))
}

func TestVerifyRejectsWrongBeacon(t *testing.T) {
	beacon := drand.Beacon{RoundNumber: 1, Signature: []byte("signature-bytes")}
	data := []byte("hello")
	solution := Solve(data, beacon, 8)

	other := drand.Beacon{RoundNumber: 1, Signature: []byte("different-signature")}
	require.False(t, Verify(data, other, 8, solution))
}

func TestSatisfiesZeroDifficultyAlwaysTrue(t *testing.T) {
	beacon := drand.Beacon{RoundNumber: 1, Signature: []byte("x")}
	require.True(t, Verify(nil, beacon, 0, 0))
}
