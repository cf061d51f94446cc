// Package drand models the drand public-randomness beacon: the chain
// metadata and signed rounds that deaddrops and documents anchor their
// freshness checks to. It treats the beacon network itself as an external
// dependency — this package only verifies beacons and fetches them over
// HTTP, it never runs a drand node.
package drand

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	bls12381 "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/sign/bls"
)

// RFC9380 hash-to-curve domain separation tags for the two groups. Every
// scheme but the deprecated bls-unchained-on-g1 one uses these as-is.
const (
	dstG1 = "BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_"
	dstG2 = "BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_"
)

// DefaultAPIURL is the public drand HTTP gateway used when no base URL is
// configured.
const DefaultAPIURL = "https://api.drand.sh"

// SchemeId identifies which BLS construction a chain's beacons are signed
// under. The four schemes differ in which group carries the signature
// (G1 or G2) and in whether the signed message chains to the previous
// round's signature.
type SchemeId string

const (
	PedersenBlsChained    SchemeId = "pedersen-bls-chained"
	PedersenBlsUnchained  SchemeId = "pedersen-bls-unchained"
	UnchainedOnG1         SchemeId = "bls-unchained-on-g1"
	UnchainedOnG1RFC9380  SchemeId = "bls-unchained-g1-rfc9380"
)

// ChainInfoMetadata carries the chain's human-readable identifier.
type ChainInfoMetadata struct {
	BeaconID string `json:"beaconID"`
}

// ChainInfo describes a drand chain: which scheme it signs under, its
// group public key, and its round schedule.
type ChainInfo struct {
	SchemeID      SchemeId          `json:"schemeID"`
	PublicKey     []byte            `json:"public_key"`
	ChainHash     []byte            `json:"chain_hash"`
	GroupHash     []byte            `json:"group_hash"`
	GenesisTime   uint64            `json:"genesis_time"`
	PeriodSeconds uint32            `json:"period"`
	Metadata      ChainInfoMetadata `json:"metadata"`
}

// Beacon is a single signed round of randomness.
type Beacon struct {
	RoundNumber       uint64 `json:"round"`
	Randomness        []byte `json:"randomness"`
	Signature         []byte `json:"signature"`
	PreviousSignature []byte `json:"previous_signature,omitempty"`
}

// Verify checks that the beacon's randomness is derived from its signature
// and that the signature is a valid BLS signature over the expected
// per-scheme message, under the chain's public key.
func (b Beacon) Verify(scheme SchemeId, publicKey []byte) error {
	want := sha256.Sum256(b.Signature)
	if string(want[:]) != string(b.Randomness) {
		return fmt.Errorf("beacon randomness does not match sha256(signature)")
	}

	switch scheme {
	case PedersenBlsChained:
		return verifyOnG2(publicKey, b.chainedMessage(), b.Signature)
	case PedersenBlsUnchained:
		return verifyOnG2(publicKey, b.unchainedMessage(), b.Signature)
	case UnchainedOnG1:
		// Deprecated, not spec-compliant: hashes to G1 using G2's DST
		// instead of G1's own RFC9380 DST.
		return verifyOnG1(publicKey, b.unchainedMessage(), b.Signature, dstG2)
	case UnchainedOnG1RFC9380:
		return verifyOnG1(publicKey, b.unchainedMessage(), b.Signature, dstG1)
	default:
		return fmt.Errorf("unknown beacon scheme %q", scheme)
	}
}

func (b Beacon) unchainedMessage() []byte {
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], b.RoundNumber)
	h := sha256.Sum256(roundBytes[:])
	return h[:]
}

func (b Beacon) chainedMessage() []byte {
	h := sha256.New()
	h.Write(b.PreviousSignature)
	var roundBytes [8]byte
	binary.BigEndian.PutUint64(roundBytes[:], b.RoundNumber)
	h.Write(roundBytes[:])
	return h.Sum(nil)
}

// verifyOnG2 checks a BLS signature carried on G2, with the public key on
// G1 — the scheme drand's "pedersen" chains use. Both chains that land here
// hash to curve with the standard RFC9380 DSTs.
func verifyOnG2(publicKey []byte, msg, sig []byte) error {
	suite := bls12381.NewBLS12381SuiteWithDST([]byte(dstG1), []byte(dstG2))
	scheme := bls.NewSchemeOnG2(suite)
	pub := suite.G1().Point()
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("unmarshal beacon public key: %w", err)
	}
	return scheme.Verify(pub, msg, sig)
}

// verifyOnG1 checks a BLS signature carried on G1, with the public key on
// G2 — the two schemes drand's unchained-on-G1 chains use. sigDST is the
// hash-to-curve DST applied on G1, which differs between the two: it is
// *not* always G1's own RFC9380 DST, because bls-unchained-on-g1 predates
// RFC9380 compliance and reused G2's DST by mistake.
func verifyOnG1(publicKey []byte, msg, sig []byte, sigDST string) error {
	suite := bls12381.NewBLS12381SuiteWithDST([]byte(sigDST), []byte(dstG2))
	scheme := bls.NewSchemeOnG1(suite)
	pub := suite.G2().Point()
	if err := pub.UnmarshalBinary(publicKey); err != nil {
		return fmt.Errorf("unmarshal beacon public key: %w", err)
	}
	return scheme.Verify(pub, msg, sig)
}
