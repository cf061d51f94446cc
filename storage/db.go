// Package storage persists client-side state that would otherwise be lost
// between runs: the client's own generated keypairs and the most recently
// verified allowed-keys update from the asset owner. The deaddrop server
// keeps all of its state in memory and does not use this package.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"

	"anonycast/crypto"
	"anonycast/protocol"
)

// Store wraps BadgerDB for client-local persistence. When opened with a
// passphrase, every value is encrypted at rest under a key derived from
// that passphrase; a nil passphrase leaves values in plain JSON, for
// development use or deployments where the data directory is already
// protected some other way.
type Store struct {
	db         *badger.DB
	passphrase []byte
}

// Open opens or creates a BadgerDB database at path. If passphrase is
// non-nil, stored values are encrypted under a key derived from it with
// scrypt, salted per-database.
func Open(path string, passphrase []byte) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	return &Store{db: db, passphrase: passphrase}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var (
	keyPrivateKey     = []byte("private_key")
	keyRingPrivateKey = []byte("ring_private_key")
	keyAllowedUpdate  = []byte("allowed_keys_update")
	keyKDFSalt        = []byte("kdf_salt")
)

func (s *Store) put(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if s.passphrase != nil {
		data, err = s.encrypt(data)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *Store) get(key []byte, out any) (bool, error) {
	var found bool
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			raw = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if s.passphrase != nil {
		decrypted, err := s.decrypt(raw)
		if err != nil {
			return false, fmt.Errorf("decrypt %s: %w", key, err)
		}
		raw = decrypted
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// encrypt wraps data under this store's passphrase-derived key, allocating
// and persisting a fresh per-database KDF salt the first time it runs.
func (s *Store) encrypt(data []byte) ([]byte, error) {
	salt, err := s.kdfSalt()
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return nil, err
	}
	sealed, err := crypto.SymmetricEncrypt(key, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(sealed)
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	salt, err := s.kdfSalt()
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(s.passphrase, salt)
	if err != nil {
		return nil, err
	}
	var sealed crypto.SymmetricData
	if err := json.Unmarshal(data, &sealed); err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	return crypto.SymmetricDecrypt(key, sealed)
}

// kdfSalt returns this database's scrypt salt, generating and persisting
// one in plaintext (a salt need not be secret) on first use.
func (s *Store) kdfSalt() ([]byte, error) {
	var salt []byte
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(keyKDFSalt)
		if err == nil {
			return item.Value(func(val []byte) error {
				salt = append([]byte(nil), val...)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		salt, err = newSalt()
		if err != nil {
			return err
		}
		return txn.Set(keyKDFSalt, salt)
	})
	return salt, err
}

// SavePrivateKey persists the client's RSA signing key.
func (s *Store) SavePrivateKey(key crypto.PrivateKey) error {
	return s.put(keyPrivateKey, key)
}

// LoadPrivateKey returns the previously saved RSA signing key, if any.
func (s *Store) LoadPrivateKey() (crypto.PrivateKey, bool, error) {
	var key crypto.PrivateKey
	found, err := s.get(keyPrivateKey, &key)
	return key, found, err
}

// SaveRingPrivateKey persists the client's ring signing key.
func (s *Store) SaveRingPrivateKey(key crypto.RingPrivateKey) error {
	return s.put(keyRingPrivateKey, key)
}

// LoadRingPrivateKey returns the previously saved ring signing key, if any.
func (s *Store) LoadRingPrivateKey() (crypto.RingPrivateKey, bool, error) {
	var key crypto.RingPrivateKey
	found, err := s.get(keyRingPrivateKey, &key)
	return key, found, err
}

// SaveAllowedKeysUpdate stores update, replacing any previously saved key
// update. It does not verify the update's signature.
func (s *Store) SaveAllowedKeysUpdate(update protocol.Signed[protocol.UpdateAllowedKeys]) error {
	return s.put(keyAllowedUpdate, update)
}

// LoadAllowedKeysUpdate returns the most recently cached key update, if any.
func (s *Store) LoadAllowedKeysUpdate() (protocol.Signed[protocol.UpdateAllowedKeys], bool, error) {
	var update protocol.Signed[protocol.UpdateAllowedKeys]
	found, err := s.get(keyAllowedUpdate, &update)
	return update, found, err
}
