package storage

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"anonycast/crypto"
)

const saltSize = 16

func newSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate kdf salt: %w", err)
	}
	return salt, nil
}

// deriveKey stretches passphrase into an AES-256 key with scrypt, using
// the parameters scrypt's own documentation recommends for interactive use.
func deriveKey(passphrase, salt []byte) (crypto.SymmetricKey, error) {
	derived, err := scrypt.Key(passphrase, salt, 1<<15, 8, 1, 32)
	if err != nil {
		return crypto.SymmetricKey{}, fmt.Errorf("derive key: %w", err)
	}
	return crypto.SymmetricKeyFromBytes(derived)
}
