package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func generateRing(t *testing.T, n int) ([]RingPrivateKey, Ring) {
	t.Helper()
	privs := make([]RingPrivateKey, n)
	pubs := make([]RingPublicKey, n)
	for i := 0; i < n; i++ {
		pub, priv, err := RingGenerate()
		require.NoError(t, err)
		privs[i] = priv
		pubs[i] = pub
	}
	return privs, NewRing(pubs)
}

func TestRingSignVerifyRoundTrip(t *testing.T) {
	privs, ring := generateRing(t, 5)
	data := []byte("publish under this topic")

	for i, priv := range privs {
		sig, err := RingSign(priv, ring, data)
		require.NoError(t, err, "signer %d", i)
		require.True(t, RingVerify(ring, data, sig), "signer %d", i)
	}
}

func TestRingVerifyRejectsTamperedData(t *testing.T) {
	privs, ring := generateRing(t, 3)
	sig, err := RingSign(privs[0], ring, []byte("original"))
	require.NoError(t, err)

	require.False(t, RingVerify(ring, []byte("tampered"), sig))
}

func TestRingVerifyRejectsForeignRing(t *testing.T) {
	privs, ring := generateRing(t, 3)
	_, otherRing := generateRing(t, 3)

	sig, err := RingSign(privs[0], ring, []byte("message"))
	require.NoError(t, err)

	require.False(t, RingVerify(otherRing, []byte("message"), sig))
}

func TestRingSignatureKeyImageLinksRepeatSignatures(t *testing.T) {
	privs, ring := generateRing(t, 4)

	sigA, err := RingSign(privs[1], ring, []byte("message one"))
	require.NoError(t, err)
	sigB, err := RingSign(privs[1], ring, []byte("message two"))
	require.NoError(t, err)

	require.True(t, sigA.keyImage.Equal(sigB.keyImage) == 1,
		"two signatures from the same key must share a key image")
}

func TestRingVerifyAcceptsPermutedRingOrder(t *testing.T) {
	privs, ring := generateRing(t, 4)
	sig, err := RingSign(privs[2], ring, []byte("message"))
	require.NoError(t, err)

	keys := ring.Keys()
	permuted := NewRing([]RingPublicKey{keys[3], keys[1], keys[0], keys[2]})
	require.True(t, RingVerify(permuted, []byte("message"), sig))
}

func TestRingPublicKeyJSONRoundTrip(t *testing.T) {
	pub, _, err := RingGenerate()
	require.NoError(t, err)

	data, err := pub.MarshalJSON()
	require.NoError(t, err)

	var decoded RingPublicKey
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.True(t, pub.Equal(decoded))
}
