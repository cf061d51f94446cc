package document

import (
	"testing"

	"github.com/stretchr/testify/require"

	"anonycast/crypto"
	"anonycast/drand"
)

func testDrand(round uint64) Drand {
	return Drand{
		Chain:  "test-chain",
		Beacon: drand.Beacon{RoundNumber: round, Signature: []byte("sig-for-round")},
		Scheme: drand.PedersenBlsUnchained,
	}
}

func TestPlaintextDocument(t *testing.T) {
	hash := crypto.Sum256([]byte("publisher key"))
	doc := Plaintext("topic/one", []byte("hello"), 0, hash, testDrand(10))

	require.Equal(t, uint64(10), doc.Id.Round)
	require.Equal(t, hash, doc.Id.PublicKeyHash)
	require.NotNil(t, doc.Content.Plaintext)
	require.Equal(t, []byte("hello"), *doc.Content.Plaintext)

	data, err := doc.SerializeForSignature()
	require.NoError(t, err)
	require.NotEmpty(t, data)
}

func TestEncryptedDocumentDecryptRoundTrip(t *testing.T) {
	receiverPub, receiverPriv, err := crypto.Generate()
	require.NoError(t, err)
	otherPub, otherPriv, err := crypto.Generate()
	require.NoError(t, err)

	hash := crypto.Sum256([]byte("publisher key"))
	doc, err := Encrypted("topic/two", []byte("secret payload"), 0, hash,
		[]crypto.PublicKey{receiverPub, otherPub}, testDrand(1))
	require.NoError(t, err)
	require.Nil(t, doc.Content.Plaintext)
	require.NotNil(t, doc.Content.Encrypted)
	require.Len(t, doc.Content.Encrypted.Keys, 2)

	ok, err := doc.Decrypt(receiverPriv)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("secret payload"), *doc.Content.Plaintext)

	_ = otherPriv
}

func TestEncryptedDocumentDecryptRejectsUnintendedReceiver(t *testing.T) {
	receiverPub, _, err := crypto.Generate()
	require.NoError(t, err)
	_, strangerPriv, err := crypto.Generate()
	require.NoError(t, err)

	hash := crypto.Sum256([]byte("publisher key"))
	doc, err := Encrypted("topic", []byte("secret"), 0, hash, []crypto.PublicKey{receiverPub}, testDrand(1))
	require.NoError(t, err)

	ok, err := doc.Decrypt(strangerPriv)
	require.NoError(t, err)
	require.False(t, ok)
	require.NotNil(t, doc.Content.Encrypted, "content must remain encrypted when decryption fails")
}

func TestDecryptPlaintextIsNoOp(t *testing.T) {
	hash := crypto.Sum256([]byte("publisher key"))
	doc := Plaintext("topic", []byte("already plaintext"), 0, hash, testDrand(1))

	_, priv, err := crypto.Generate()
	require.NoError(t, err)

	ok, err := doc.Decrypt(priv)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestIsValidRejectsWrongDifficulty(t *testing.T) {
	hash := crypto.Sum256([]byte("publisher key"))
	doc := Plaintext("topic", []byte("hello"), 5, hash, testDrand(1))

	valid := doc.IsValid(6, 0, drand.ChainInfo{}, doc.Drand.Beacon)
	require.False(t, valid)
}

func TestIsValidRejectsBadPuzzleSolution(t *testing.T) {
	hash := crypto.Sum256([]byte("publisher key"))
	doc := Plaintext("topic", []byte("hello"), 8, hash, testDrand(1))
	doc.NonceSolution = doc.NonceSolution + 1 // almost certainly breaks the PoW

	valid := doc.IsValid(8, 0, drand.ChainInfo{}, doc.Drand.Beacon)
	require.False(t, valid)
}
