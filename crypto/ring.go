package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gtank/ristretto255"
)

// Ring is the set of public keys a ring signature is anonymous within.
type Ring struct {
	keys []RingPublicKey
}

func NewRing(keys []RingPublicKey) Ring {
	return Ring{keys: keys}
}

func (r Ring) Keys() []RingPublicKey {
	return r.keys
}

func (r Ring) Len() int {
	return len(r.keys)
}

// sameMembers reports whether r and other contain the same public keys,
// ignoring order — a ring signature's embedded ring may list members in a
// different order than the caller's trusted ring, but must be the same set.
func (r Ring) sameMembers(other Ring) bool {
	if len(r.keys) != len(other.keys) {
		return false
	}
	for _, k := range r.keys {
		found := false
		for _, ok := range other.keys {
			if k.Equal(ok) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// RingPrivateKey is a Curve25519 (Ristretto) scalar.
type RingPrivateKey struct {
	scalar *ristretto255.Scalar
}

func (k RingPrivateKey) AsBytes() []byte {
	return k.scalar.Encode(nil)
}

func (k RingPrivateKey) PublicKey() RingPublicKey {
	point := ristretto255.NewElement().ScalarBaseMult(k.scalar)
	return RingPublicKey{point: point}
}

func (k RingPrivateKey) String() string {
	return hex.EncodeToString(k.AsBytes())
}

func ParseRingPrivateKey(s string) (RingPrivateKey, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return RingPrivateKey{}, fmt.Errorf("decode ring private key hex: %w", err)
	}
	scalar := ristretto255.NewScalar()
	if err := scalar.Decode(decoded); err != nil {
		return RingPrivateKey{}, fmt.Errorf("decode ring private key: %w", err)
	}
	return RingPrivateKey{scalar: scalar}, nil
}

func (k RingPrivateKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *RingPrivateKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRingPrivateKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RingPublicKey is a Ristretto255 group element.
type RingPublicKey struct {
	point *ristretto255.Element
}

func (k RingPublicKey) AsBytes() []byte {
	return k.point.Encode(nil)
}

func (k RingPublicKey) Equal(other RingPublicKey) bool {
	if k.point == nil || other.point == nil {
		return k.point == other.point
	}
	return k.point.Equal(other.point) == 1
}

func (k RingPublicKey) String() string {
	return hex.EncodeToString(k.AsBytes())
}

func ParseRingPublicKey(s string) (RingPublicKey, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return RingPublicKey{}, fmt.Errorf("decode ring public key hex: %w", err)
	}
	point := ristretto255.NewElement()
	if err := point.Decode(decoded); err != nil {
		return RingPublicKey{}, fmt.Errorf("decode ring public key: %w", err)
	}
	return RingPublicKey{point: point}, nil
}

func (k RingPublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *RingPublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRingPublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// RingGenerate creates a fresh ring key pair.
func RingGenerate() (RingPublicKey, RingPrivateKey, error) {
	scalar, err := randomScalar()
	if err != nil {
		return RingPublicKey{}, RingPrivateKey{}, err
	}
	priv := RingPrivateKey{scalar: scalar}
	return priv.PublicKey(), priv, nil
}

// RingSignature is a BLSAG (linkable spontaneous anonymous group) ring
// signature: a Fiat-Shamir challenge chain closed around the ring, plus a
// key image that links signatures made by the same key without revealing
// which ring member produced them.
type RingSignature struct {
	challenge *ristretto255.Scalar
	responses []*ristretto255.Scalar
	ring      Ring // ring in the exact order used during signing
	keyImage  *ristretto255.Element
}

type ringSignatureWire struct {
	Challenge string   `json:"challenge"`
	Responses []string `json:"responses"`
	Ring      []string `json:"ring"`
	KeyImage  string   `json:"key_image"`
}

func (s RingSignature) MarshalJSON() ([]byte, error) {
	w := ringSignatureWire{
		Challenge: hex.EncodeToString(s.challenge.Encode(nil)),
		KeyImage:  hex.EncodeToString(s.keyImage.Encode(nil)),
	}
	for _, r := range s.responses {
		w.Responses = append(w.Responses, hex.EncodeToString(r.Encode(nil)))
	}
	for _, k := range s.ring.keys {
		w.Ring = append(w.Ring, hex.EncodeToString(k.AsBytes()))
	}
	return json.Marshal(w)
}

func (s *RingSignature) UnmarshalJSON(data []byte) error {
	var w ringSignatureWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	challengeBytes, err := hex.DecodeString(w.Challenge)
	if err != nil {
		return fmt.Errorf("decode challenge hex: %w", err)
	}
	challenge := ristretto255.NewScalar()
	if err := challenge.Decode(challengeBytes); err != nil {
		return fmt.Errorf("decode challenge: %w", err)
	}

	responses := make([]*ristretto255.Scalar, 0, len(w.Responses))
	for _, r := range w.Responses {
		b, err := hex.DecodeString(r)
		if err != nil {
			return fmt.Errorf("decode response hex: %w", err)
		}
		scalar := ristretto255.NewScalar()
		if err := scalar.Decode(b); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		responses = append(responses, scalar)
	}

	ringKeys := make([]RingPublicKey, 0, len(w.Ring))
	for _, r := range w.Ring {
		pub, err := ParseRingPublicKey(r)
		if err != nil {
			return fmt.Errorf("decode ring member: %w", err)
		}
		ringKeys = append(ringKeys, pub)
	}

	keyImageBytes, err := hex.DecodeString(w.KeyImage)
	if err != nil {
		return fmt.Errorf("decode key image hex: %w", err)
	}
	keyImage := ristretto255.NewElement()
	if err := keyImage.Decode(keyImageBytes); err != nil {
		return fmt.Errorf("decode key image: %w", err)
	}

	s.challenge = challenge
	s.responses = responses
	s.ring = NewRing(ringKeys)
	s.keyImage = keyImage
	return nil
}

// RingSign produces a BLSAG signature of data under key, anonymous within
// ring. key's public key must be a member of ring.
func RingSign(key RingPrivateKey, ring Ring, data []byte) (RingSignature, error) {
	pub := key.PublicKey()
	signerIndex := -1
	for i, k := range ring.keys {
		if k.Equal(pub) {
			signerIndex = i
			break
		}
	}
	if signerIndex < 0 {
		return RingSignature{}, errors.New("signing key is not a member of the ring")
	}

	n := len(ring.keys)
	hp := make([]*ristretto255.Element, n)
	for i, k := range ring.keys {
		hp[i] = hashToPoint(k.AsBytes())
	}

	keyImage := ristretto255.NewElement().ScalarMult(key.scalar, hp[signerIndex])

	alpha, err := randomScalar()
	if err != nil {
		return RingSignature{}, err
	}

	challenges := make([]*ristretto255.Scalar, n)
	responses := make([]*ristretto255.Scalar, n)

	l := ristretto255.NewElement().ScalarBaseMult(alpha)
	r := ristretto255.NewElement().ScalarMult(alpha, hp[signerIndex])
	next := (signerIndex + 1) % n
	challenges[next] = challengeScalar(data, l, r)

	for i := next; i != signerIndex; i = (i + 1) % n {
		ri, err := randomScalar()
		if err != nil {
			return RingSignature{}, err
		}
		responses[i] = ri

		// L_i = r_i*G + c_i*P_i
		li := ristretto255.NewElement().ScalarBaseMult(ri)
		li.Add(li, ristretto255.NewElement().ScalarMult(challenges[i], ring.keys[i].point))

		// R_i = r_i*Hp_i + c_i*I
		ri2 := ristretto255.NewElement().ScalarMult(ri, hp[i])
		ri2.Add(ri2, ristretto255.NewElement().ScalarMult(challenges[i], keyImage))

		ni := (i + 1) % n
		challenges[ni] = challengeScalar(data, li, ri2)
	}

	// r_s = alpha - c_s * x_s
	rs := ristretto255.NewScalar().Subtract(alpha, ristretto255.NewScalar().Multiply(challenges[signerIndex], key.scalar))
	responses[signerIndex] = rs

	return RingSignature{
		challenge: challenges[0],
		responses: responses,
		ring:      ring,
		keyImage:  keyImage,
	}, nil
}

// RingVerify checks a BLSAG signature against data, requiring the
// signature's own embedded ring to be the same set of members as the
// caller's trusted ring (order-independent).
func RingVerify(ring Ring, data []byte, sig RingSignature) bool {
	if !ring.sameMembers(sig.ring) {
		return false
	}
	n := len(sig.ring.keys)
	if n == 0 || len(sig.responses) != n {
		return false
	}

	c := sig.challenge
	for i := 0; i < n; i++ {
		hp := hashToPoint(sig.ring.keys[i].AsBytes())

		l := ristretto255.NewElement().ScalarBaseMult(sig.responses[i])
		l.Add(l, ristretto255.NewElement().ScalarMult(c, sig.ring.keys[i].point))

		r := ristretto255.NewElement().ScalarMult(sig.responses[i], hp)
		r.Add(r, ristretto255.NewElement().ScalarMult(c, sig.keyImage))

		c = challengeScalar(data, l, r)
	}
	return string(c.Encode(nil)) == string(sig.challenge.Encode(nil))
}

func randomScalar() (*ristretto255.Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("generate random scalar: %w", err)
	}
	return ristretto255.NewScalar().FromUniformBytes(buf[:]), nil
}

// hashToPoint maps arbitrary bytes onto the Ristretto255 group, used to
// derive each ring member's key-image base point from their public key.
func hashToPoint(data []byte) *ristretto255.Element {
	h := sha512.Sum512(append([]byte("anonycast-ring-hp"), data...))
	return ristretto255.NewElement().FromUniformBytes(h[:])
}

// challengeScalar is the Fiat-Shamir hash used to chain the ring: it binds
// the signed message to the pair of commitment points at each ring step.
func challengeScalar(data []byte, l, r *ristretto255.Element) *ristretto255.Scalar {
	h := sha512.New()
	h.Write(data)
	h.Write(l.Encode(nil))
	h.Write(r.Encode(nil))
	return ristretto255.NewScalar().FromUniformBytes(h.Sum(nil))
}
