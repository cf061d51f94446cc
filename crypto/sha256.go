package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"crypto/sha256"
)

// Sha256 is a fixed-size digest, used for content hashes, document ids, and
// public-key fingerprints throughout the protocol.
type Sha256 [32]byte

func (h Sha256) Bytes() []byte {
	return h[:]
}

func (h Sha256) String() string {
	return hex.EncodeToString(h[:])
}

func (h Sha256) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Sha256) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode sha256 hex: %w", err)
	}
	if len(decoded) != len(h) {
		return fmt.Errorf("sha256 hex decodes to %d bytes, want %d", len(decoded), len(h))
	}
	copy(h[:], decoded)
	return nil
}

// Sum256 hashes data and returns the digest.
func Sum256(data []byte) Sha256 {
	return Sha256(sha256.Sum256(data))
}
