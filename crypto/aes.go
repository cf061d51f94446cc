package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
)

// SymmetricKey is an AES-256 key.
type SymmetricKey [32]byte

func (k SymmetricKey) AsBytes() []byte {
	return k[:]
}

func SymmetricKeyFromBytes(b []byte) (SymmetricKey, error) {
	var k SymmetricKey
	if len(b) != len(k) {
		return SymmetricKey{}, fmt.Errorf("symmetric key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// SymmetricData is an AES-256-GCM ciphertext with its nonce.
type SymmetricData struct {
	Nonce []byte `json:"nonce"`
	Data  []byte `json:"data"`
}

func (d SymmetricData) MarshalJSON() ([]byte, error) {
	type wire struct {
		Nonce string `json:"nonce"`
		Data  string `json:"data"`
	}
	return json.Marshal(wire{Nonce: hex.EncodeToString(d.Nonce), Data: hex.EncodeToString(d.Data)})
}

func (d *SymmetricData) UnmarshalJSON(data []byte) error {
	type wire struct {
		Nonce string `json:"nonce"`
		Data  string `json:"data"`
	}
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nonce, err := hex.DecodeString(w.Nonce)
	if err != nil {
		return fmt.Errorf("decode nonce hex: %w", err)
	}
	ciphertext, err := hex.DecodeString(w.Data)
	if err != nil {
		return fmt.Errorf("decode ciphertext hex: %w", err)
	}
	d.Nonce = nonce
	d.Data = ciphertext
	return nil
}

// SymmetricGenerate creates a fresh random AES-256 key.
func SymmetricGenerate() (SymmetricKey, error) {
	var k SymmetricKey
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return SymmetricKey{}, fmt.Errorf("generate symmetric key: %w", err)
	}
	return k, nil
}

func newGCM(key SymmetricKey) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.AsBytes())
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// SymmetricEncrypt encrypts data under key with a freshly generated nonce.
func SymmetricEncrypt(key SymmetricKey, data []byte) (SymmetricData, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return SymmetricData{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return SymmetricData{}, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, data, nil)
	return SymmetricData{Nonce: nonce, Data: ciphertext}, nil
}

// SymmetricDecrypt reverses SymmetricEncrypt.
func SymmetricDecrypt(key SymmetricKey, data SymmetricData) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, data.Nonce, data.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt symmetric data: %w", err)
	}
	return plaintext, nil
}
