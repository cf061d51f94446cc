// Package document implements the anonycast document: the signed, optionally
// encrypted payload a client publishes to a deaddrop under a topic, anchored
// to a drand beacon round and admission-gated by a proof-of-work puzzle.
//
// Document deliberately has no dependency on the protocol package: it
// implements SerializeForSignature itself, satisfying protocol.Signable
// structurally, so protocol can depend on document without document ever
// depending back on protocol.
package document

import (
	"encoding/json"
	"fmt"

	"anonycast/crypto"
	"anonycast/drand"
	"anonycast/puzzle"
)

// Id identifies a document independent of its content: the drand round it
// was anchored to, a hash of its (possibly still-encrypted) content, and a
// hash of the publisher's public key.
type Id struct {
	Round         uint64      `json:"round"`
	ContentHash   crypto.Sha256 `json:"content_hash"`
	PublicKeyHash crypto.Sha256 `json:"public_key_hash"`
}

// KeyPair carries one receiver's public key alongside the document's
// symmetric key, encrypted under that public key.
type KeyPair struct {
	PublicKey    crypto.PublicKey `json:"public_key"`
	SymmetricKey []byte           `json:"symmetric_key"`
}

// Content is either plaintext bytes or an AES-256-GCM ciphertext with one
// wrapped symmetric key per intended receiver.
type Content struct {
	Plaintext *[]byte         `json:"plaintext,omitempty"`
	Encrypted *EncryptedContent `json:"encrypted,omitempty"`
}

type EncryptedContent struct {
	Data crypto.SymmetricData `json:"data"`
	Keys []KeyPair            `json:"keys"`
}

// data returns the bytes a document's content hash and puzzle solution are
// computed over: the plaintext itself, or the still-encrypted ciphertext
// when the document is encrypted.
func (c Content) data() []byte {
	if c.Plaintext != nil {
		return *c.Plaintext
	}
	if c.Encrypted != nil {
		return c.Encrypted.Data.Data
	}
	return nil
}

// Drand anchors a document to a specific chain and beacon round, so its
// freshness can be checked against a later, independently verified beacon.
type Drand struct {
	Chain  string         `json:"chain"`
	Beacon drand.Beacon   `json:"beacon"`
	Scheme drand.SchemeId `json:"scheme"`
}

// Document is the full, signable content of an anonycast publication.
type Document struct {
	Id               Id      `json:"id"`
	Topic            string  `json:"topic"`
	Content          Content `json:"content"`
	CryptoDifficulty uint8   `json:"crypto_difficulty"`
	NonceSolution    uint32  `json:"nonce_solution"`
	Drand            Drand   `json:"drand"`
}

// SerializeForSignature gives Document the canonical bytes a signature is
// computed and checked over: its own JSON encoding.
func (d Document) SerializeForSignature() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("serialize document for signature: %w", err)
	}
	return data, nil
}

func newDocument(topic string, content Content, difficulty uint8, publicKeyHash crypto.Sha256, d Drand) Document {
	contentHash := crypto.Sum256(content.data())
	solution := puzzle.Solve(content.data(), d.Beacon, difficulty)
	return Document{
		Id: Id{
			Round:         d.Beacon.RoundNumber,
			ContentHash:   contentHash,
			PublicKeyHash: publicKeyHash,
		},
		Topic:            topic,
		Content:          content,
		CryptoDifficulty: difficulty,
		NonceSolution:    solution,
		Drand:            d,
	}
}

// Plaintext builds a document whose content is visible to anyone who can
// read the deaddrop it is published to.
func Plaintext(topic string, data []byte, difficulty uint8, publicKeyHash crypto.Sha256, d Drand) Document {
	return newDocument(topic, Content{Plaintext: &data}, difficulty, publicKeyHash, d)
}

// Encrypted builds a document whose content is AES-256-GCM encrypted under a
// fresh symmetric key, itself wrapped once per receiver key so that only the
// named receivers can recover it.
func Encrypted(topic string, data []byte, difficulty uint8, publicKeyHash crypto.Sha256, receiverKeys []crypto.PublicKey, d Drand) (Document, error) {
	skey, err := crypto.SymmetricGenerate()
	if err != nil {
		return Document{}, fmt.Errorf("generate document symmetric key: %w", err)
	}

	pairs := make([]KeyPair, 0, len(receiverKeys))
	for _, key := range receiverKeys {
		wrapped, err := crypto.Encrypt(key, skey.AsBytes())
		if err != nil {
			return Document{}, fmt.Errorf("wrap symmetric key for receiver: %w", err)
		}
		pairs = append(pairs, KeyPair{PublicKey: key, SymmetricKey: wrapped})
	}

	encryptedData, err := crypto.SymmetricEncrypt(skey, data)
	if err != nil {
		return Document{}, fmt.Errorf("encrypt document content: %w", err)
	}

	content := Content{Encrypted: &EncryptedContent{Data: encryptedData, Keys: pairs}}
	return newDocument(topic, content, difficulty, publicKeyHash, d), nil
}

// Decrypt replaces an encrypted document's content with its plaintext, using
// key to unwrap the symmetric key meant for key's holder. It is a no-op
// returning true for already-plaintext documents, and returns false if key
// is not among the document's intended receivers.
func (d *Document) Decrypt(key crypto.PrivateKey) (bool, error) {
	if d.Content.Plaintext != nil {
		return true, nil
	}
	if d.Content.Encrypted == nil {
		return false, nil
	}

	public := key.PublicKey()
	var wrapped []byte
	found := false
	for _, pair := range d.Content.Encrypted.Keys {
		if pair.PublicKey.Equal(public) {
			wrapped = pair.SymmetricKey
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}

	skeyBytes, err := crypto.Decrypt(key, wrapped)
	if err != nil {
		return false, fmt.Errorf("unwrap document symmetric key: %w", err)
	}
	skey, err := crypto.SymmetricKeyFromBytes(skeyBytes)
	if err != nil {
		return false, fmt.Errorf("decode document symmetric key: %w", err)
	}

	plaintext, err := crypto.SymmetricDecrypt(skey, d.Content.Encrypted.Data)
	if err != nil {
		return false, fmt.Errorf("decrypt document content: %w", err)
	}

	d.Content = Content{Plaintext: &plaintext}
	return true, nil
}

// IsValid checks a received document against the admission rules: its
// proof-of-work solution, the expected difficulty, the beacon it is
// anchored to, and (when acceptanceWindow is non-zero) that the anchored
// round is not too far behind the latest known round.
func (d Document) IsValid(expectedDifficulty uint8, acceptanceWindow uint64, chain drand.ChainInfo, latestBeacon drand.Beacon) bool {
	if !puzzle.Verify(d.Content.data(), d.Drand.Beacon, d.CryptoDifficulty, d.NonceSolution) {
		return false
	}
	if d.CryptoDifficulty != expectedDifficulty {
		return false
	}
	if err := d.Drand.Beacon.Verify(chain.SchemeID, chain.PublicKey); err != nil {
		return false
	}
	if acceptanceWindow != 0 && d.Drand.Beacon.RoundNumber+acceptanceWindow <= latestBeacon.RoundNumber {
		return false
	}
	return true
}
