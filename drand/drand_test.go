package drand

import (
	"crypto/sha256"
	"testing"

	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign/bls"
	"github.com/stretchr/testify/require"
)

// signOnG1 builds a fresh BLS key pair hashing to G1 under g1DST and signs
// round's unchained message, so Beacon.Verify can be exercised against a
// genuinely valid signature for either of the two on-G1 schemes.
func signOnG1(t *testing.T, round uint64, g1DST string) (publicKey, signature []byte) {
	t.Helper()
	suite := bls12381.NewBLS12381SuiteWithDST([]byte(g1DST), []byte(dstG2))
	scheme := bls.NewSchemeOnG1(suite)
	private, public := bls.NewKeyPair(suite, suite.RandomStream())

	beacon := Beacon{RoundNumber: round}
	sig, err := scheme.Sign(private, beacon.unchainedMessage())
	require.NoError(t, err)

	pubBytes, err := public.MarshalBinary()
	require.NoError(t, err)
	return pubBytes, sig
}

func TestBeaconVerifyUnchainedOnG1(t *testing.T) {
	// The deprecated bls-unchained-on-g1 scheme hashes to G1 under G2's DST.
	pub, sig := signOnG1(t, 42, dstG2)
	randomness := sha256.Sum256(sig)
	beacon := Beacon{RoundNumber: 42, Signature: sig, Randomness: randomness[:]}

	require.NoError(t, beacon.Verify(UnchainedOnG1, pub))
}

func TestBeaconVerifyUnchainedOnG1RFC9380(t *testing.T) {
	pub, sig := signOnG1(t, 42, dstG1)
	randomness := sha256.Sum256(sig)
	beacon := Beacon{RoundNumber: 42, Signature: sig, Randomness: randomness[:]}

	require.NoError(t, beacon.Verify(UnchainedOnG1RFC9380, pub))
}

func TestBeaconVerifyRejectsMismatchedG1Scheme(t *testing.T) {
	// Signed under the RFC9380 DST but checked against the deprecated
	// scheme's (different) DST: the two must not be interchangeable.
	pub, sig := signOnG1(t, 42, dstG1)
	randomness := sha256.Sum256(sig)
	beacon := Beacon{RoundNumber: 42, Signature: sig, Randomness: randomness[:]}

	require.Error(t, beacon.Verify(UnchainedOnG1, pub))
}

func TestBeaconVerifyRejectsWrongRound(t *testing.T) {
	pub, sig := signOnG1(t, 42, dstG1)
	randomness := sha256.Sum256(sig)
	beacon := Beacon{RoundNumber: 43, Signature: sig, Randomness: randomness[:]}

	require.Error(t, beacon.Verify(UnchainedOnG1RFC9380, pub))
}

func TestBeaconVerifyRejectsRandomnessMismatch(t *testing.T) {
	pub, sig := signOnG1(t, 42, dstG1)
	beacon := Beacon{RoundNumber: 42, Signature: sig, Randomness: []byte("not-the-hash")}

	require.Error(t, beacon.Verify(UnchainedOnG1RFC9380, pub))
}

func TestBeaconVerifyUnknownScheme(t *testing.T) {
	pub, sig := signOnG1(t, 42, dstG1)
	randomness := sha256.Sum256(sig)
	beacon := Beacon{RoundNumber: 42, Signature: sig, Randomness: randomness[:]}

	require.Error(t, beacon.Verify(SchemeId("not-a-real-scheme"), pub))
}
