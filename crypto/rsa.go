package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const rsaKeyBits = 2048

// PrivateKey is an RSA-2048 private key used for asymmetric signing and
// for decrypting the hybrid-encrypted symmetric keys attached to
// receiver-restricted documents.
type PrivateKey struct {
	key *rsa.PrivateKey
}

// Generate creates a fresh RSA-2048 key pair.
func Generate() (PublicKey, PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return PublicKey{}, PrivateKey{}, fmt.Errorf("generate rsa key: %w", err)
	}
	priv := PrivateKey{key: key}
	return priv.PublicKey(), priv, nil
}

func (k PrivateKey) PublicKey() PublicKey {
	return PublicKey{key: &k.key.PublicKey}
}

func (k PrivateKey) ToBytes() []byte {
	return x509.MarshalPKCS1PrivateKey(k.key)
}

func (k PrivateKey) String() string {
	return hex.EncodeToString(k.ToBytes())
}

func ParsePrivateKey(s string) (PrivateKey, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("decode private key hex: %w", err)
	}
	key, err := x509.ParsePKCS1PrivateKey(decoded)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("parse private key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

func (k PrivateKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PrivateKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePrivateKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// PublicKey is the public half of an RSA-2048 key pair.
type PublicKey struct {
	key *rsa.PublicKey
}

func (k PublicKey) ToBytes() []byte {
	return x509.MarshalPKCS1PublicKey(k.key)
}

func (k PublicKey) String() string {
	return hex.EncodeToString(k.ToBytes())
}

func (k PublicKey) Equal(other PublicKey) bool {
	if k.key == nil || other.key == nil {
		return k.key == other.key
	}
	return k.key.Equal(other.key)
}

func ParsePublicKey(s string) (PublicKey, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("decode public key hex: %w", err)
	}
	key, err := x509.ParsePKCS1PublicKey(decoded)
	if err != nil {
		return PublicKey{}, fmt.Errorf("parse public key: %w", err)
	}
	return PublicKey{key: key}, nil
}

func (k PublicKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePublicKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Signature is a raw PKCS#1v1.5 signature over a SHA-256 digest, signed
// without the usual ASN.1 digest-algorithm prefix (matching the reference
// implementation's "unprefixed" scheme).
type Signature struct {
	bytes []byte
}

func (s Signature) AsBytes() []byte {
	return s.bytes
}

func (s Signature) MarshalJSON() ([]byte, error) {
	return json.Marshal(hex.EncodeToString(s.bytes))
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("decode signature hex: %w", err)
	}
	s.bytes = decoded
	return nil
}

// Sign produces an RSA-2048 PKCS#1v1.5 signature over SHA256(data).
func Sign(key PrivateKey, data []byte) (Signature, error) {
	digest := Sum256(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key.key, crypto.Hash(0), digest.Bytes())
	if err != nil {
		return Signature{}, fmt.Errorf("sign: %w", err)
	}
	return Signature{bytes: sig}, nil
}

// Verify checks an RSA-2048 PKCS#1v1.5 signature over SHA256(data).
func Verify(key PublicKey, data []byte, sig Signature) bool {
	digest := Sum256(data)
	return rsa.VerifyPKCS1v15(key.key, crypto.Hash(0), digest.Bytes(), sig.bytes) == nil
}

// Encrypt wraps data (normally a symmetric key) under an RSA public key
// using PKCS#1v1.5 encryption.
func Encrypt(key PublicKey, data []byte) ([]byte, error) {
	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, key.key, data)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func Decrypt(key PrivateKey, data []byte) ([]byte, error) {
	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, key.key, data)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}
