// Package protocol defines the messages exchanged between clients and
// deaddrops and the envelope that signs them. Every message that crosses the
// wire is wrapped in a Signed[T], carrying either a plain RSA signature tied
// to a known public key or a BLSAG ring signature that only proves
// membership in a ring.
package protocol

import (
	"encoding/json"
	"fmt"

	"anonycast/crypto"
)

// Signable is implemented by message content types that can be signed: it
// fixes the exact bytes a signature is computed and checked over.
type Signable interface {
	SerializeForSignature() ([]byte, error)
}

// serializeForSignature is the shared implementation behind every
// concrete Signable: the canonical JSON encoding of the value itself, never
// the enclosing envelope.
func serializeForSignature(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serialize for signature: %w", err)
	}
	return data, nil
}

// SignatureKind distinguishes the two ways a Signed value can be
// authenticated.
type SignatureKind string

const (
	SignatureAsymmetric     SignatureKind = "asymmetric"
	SignatureRingAsymmetric SignatureKind = "ring_asymmetric"
)

// Signature is either a plain signature under a named public key, or a ring
// signature that only proves the signer holds one of a set of keys.
type Signature struct {
	Kind          SignatureKind    `json:"kind"`
	Key           *crypto.PublicKey `json:"key,omitempty"`
	Signature     *crypto.Signature `json:"signature,omitempty"`
	RingSignature *crypto.RingSignature `json:"ring_signature,omitempty"`
}

// Signed pairs message content with the signature that authenticates it.
type Signed[T Signable] struct {
	Content   T         `json:"content"`
	Signature Signature `json:"signature"`
}

// Sign produces an asymmetric Signed value: content signed by key, naming
// key's public key as the verification key.
func Sign[T Signable](key crypto.PrivateKey, content T) (Signed[T], error) {
	serialized, err := content.SerializeForSignature()
	if err != nil {
		return Signed[T]{}, err
	}
	sig, err := crypto.Sign(key, serialized)
	if err != nil {
		return Signed[T]{}, fmt.Errorf("sign message: %w", err)
	}
	pub := key.PublicKey()
	return Signed[T]{
		Content: content,
		Signature: Signature{
			Kind:      SignatureAsymmetric,
			Key:       &pub,
			Signature: &sig,
		},
	}, nil
}

// RingSign produces a ring-signed Signed value: content signed by key,
// anonymous within ring.
func RingSign[T Signable](key crypto.RingPrivateKey, ring crypto.Ring, content T) (Signed[T], error) {
	serialized, err := content.SerializeForSignature()
	if err != nil {
		return Signed[T]{}, err
	}
	sig, err := crypto.RingSign(key, ring, serialized)
	if err != nil {
		return Signed[T]{}, fmt.Errorf("ring sign message: %w", err)
	}
	return Signed[T]{
		Content: content,
		Signature: Signature{
			Kind:          SignatureRingAsymmetric,
			RingSignature: &sig,
		},
	}, nil
}

func (s Signed[T]) IsAsymmetric() bool {
	return s.Signature.Kind == SignatureAsymmetric
}

func (s Signed[T]) IsRingAsymmetric() bool {
	return s.Signature.Kind == SignatureRingAsymmetric
}

// Verify checks an asymmetric signature against the key it names.
func (s Signed[T]) Verify() bool {
	if s.Signature.Kind != SignatureAsymmetric || s.Signature.Key == nil || s.Signature.Signature == nil {
		return false
	}
	serialized, err := s.Content.SerializeForSignature()
	if err != nil {
		return false
	}
	return crypto.Verify(*s.Signature.Key, serialized, *s.Signature.Signature)
}

// VerifyWith checks an asymmetric signature, additionally requiring the
// embedded signing key to equal the caller's trusted key.
func (s Signed[T]) VerifyWith(key crypto.PublicKey) bool {
	if s.Signature.Kind != SignatureAsymmetric || s.Signature.Key == nil || s.Signature.Signature == nil {
		return false
	}
	if !s.Signature.Key.Equal(key) {
		return false
	}
	serialized, err := s.Content.SerializeForSignature()
	if err != nil {
		return false
	}
	return crypto.Verify(key, serialized, *s.Signature.Signature)
}

// RingVerify checks a ring signature against the caller's trusted ring.
func (s Signed[T]) RingVerify(ring crypto.Ring) bool {
	if s.Signature.Kind != SignatureRingAsymmetric || s.Signature.RingSignature == nil {
		return false
	}
	serialized, err := s.Content.SerializeForSignature()
	if err != nil {
		return false
	}
	return crypto.RingVerify(ring, serialized, *s.Signature.RingSignature)
}
