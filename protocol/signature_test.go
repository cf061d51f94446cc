package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/crypto"
)

type plainContent struct {
	Value string `json:"value"`
}

func (c plainContent) SerializeForSignature() ([]byte, error) {
	return serializeForSignature(c)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	_, priv, err := crypto.Generate()
	require.NoError(t, err)

	signed, err := Sign(priv, plainContent{Value: "hello"})
	require.NoError(t, err)
	require.True(t, signed.IsAsymmetric())
	require.True(t, signed.Verify())
}

func TestVerifyRejectsTamperedContent(t *testing.T) {
	_, priv, err := crypto.Generate()
	require.NoError(t, err)

	signed, err := Sign(priv, plainContent{Value: "hello"})
	require.NoError(t, err)
	signed.Content.Value = "tampered"

	require.False(t, signed.Verify())
}

func TestVerifyWithRejectsUnexpectedKey(t *testing.T) {
	_, priv, err := crypto.Generate()
	require.NoError(t, err)
	otherPub, _, err := crypto.Generate()
	require.NoError(t, err)

	signed, err := Sign(priv, plainContent{Value: "hello"})
	require.NoError(t, err)

	require.False(t, signed.VerifyWith(otherPub))
}

func TestRingSignVerifyRoundTrip(t *testing.T) {
	pub1, priv1, err := crypto.RingGenerate()
	require.NoError(t, err)
	pub2, _, err := crypto.RingGenerate()
	require.NoError(t, err)
	ring := crypto.NewRing([]crypto.RingPublicKey{pub1, pub2})

	signed, err := RingSign(priv1, ring, plainContent{Value: "anonymous"})
	require.NoError(t, err)
	require.True(t, signed.IsRingAsymmetric())
	require.True(t, signed.RingVerify(ring))
}

func TestVerifyRejectsWrongSignatureKind(t *testing.T) {
	pub1, priv1, err := crypto.RingGenerate()
	require.NoError(t, err)
	ring := crypto.NewRing([]crypto.RingPublicKey{pub1})

	signed, err := RingSign(priv1, ring, plainContent{Value: "x"})
	require.NoError(t, err)

	require.False(t, signed.Verify())
}
