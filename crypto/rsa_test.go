package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := Generate()
	require.NoError(t, err)

	data := []byte("sign this message")
	sig, err := Sign(priv, data)
	require.NoError(t, err)

	require.True(t, Verify(pub, data, sig))
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	pub, priv, err := Generate()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("original"))
	require.NoError(t, err)

	require.False(t, Verify(pub, []byte("tampered"), sig))
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := Generate()
	require.NoError(t, err)
	otherPub, _, err := Generate()
	require.NoError(t, err)

	sig, err := Sign(priv, []byte("message"))
	require.NoError(t, err)

	require.False(t, Verify(otherPub, []byte("message"), sig))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	pub, priv, err := Generate()
	require.NoError(t, err)

	plaintext := []byte("a symmetric key's worth of bytes")
	ciphertext, err := Encrypt(pub, plaintext)
	require.NoError(t, err)

	decrypted, err := Decrypt(priv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestPrivateKeyStringRoundTrip(t *testing.T) {
	_, priv, err := Generate()
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(priv.String())
	require.NoError(t, err)
	require.Equal(t, priv.PublicKey().String(), parsed.PublicKey().String())
}

func TestPublicKeyStringRoundTrip(t *testing.T) {
	pub, _, err := Generate()
	require.NoError(t, err)

	parsed, err := ParsePublicKey(pub.String())
	require.NoError(t, err)
	require.True(t, pub.Equal(parsed))
}

func TestPublicKeyJSONRoundTrip(t *testing.T) {
	pub, _, err := Generate()
	require.NoError(t, err)

	data, err := pub.MarshalJSON()
	require.NoError(t, err)

	var decoded PublicKey
	require.NoError(t, decoded.UnmarshalJSON(data))
	require.True(t, pub.Equal(decoded))
}
