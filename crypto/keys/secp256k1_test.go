package keys

import (
	"crypto/sha256"
	"testing"

	sagecrypto "github.com/nostrkv/kvgate/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digest(s string) []byte {
	d := sha256.Sum256([]byte(s))
	return d[:]
}

func TestSecp256k1KeyPair(t *testing.T) {
	t.Run("GenerateKeyPair", func(t *testing.T) {
		keyPair, err := GenerateSecp256k1KeyPair()
		require.NoError(t, err)
		assert.Equal(t, sagecrypto.KeyTypeSecp256k1, keyPair.Type())
		assert.NotNil(t, keyPair.PublicKey())
		assert.NotNil(t, keyPair.PrivateKey())
		assert.Len(t, keyPair.ID(), 64) // hex of 32-byte x-only pubkey
	})

	t.Run("SignAndVerify", func(t *testing.T) {
		keyPair, err := GenerateSecp256k1KeyPair()
		require.NoError(t, err)

		message := digest("event id bytes")
		sig, err := keyPair.Sign(message)
		require.NoError(t, err)
		assert.Len(t, sig, 64)

		require.NoError(t, keyPair.Verify(message, sig))
	})

	t.Run("VerifyRejectsTamperedMessage", func(t *testing.T) {
		keyPair, err := GenerateSecp256k1KeyPair()
		require.NoError(t, err)

		sig, err := keyPair.Sign(digest("original"))
		require.NoError(t, err)

		err = keyPair.Verify(digest("tampered"), sig)
		assert.ErrorIs(t, err, sagecrypto.ErrInvalidSignature)
	})

	t.Run("SignRejectsNonDigestMessage", func(t *testing.T) {
		keyPair, err := GenerateSecp256k1KeyPair()
		require.NoError(t, err)

		_, err = keyPair.Sign([]byte("not a 32-byte digest"))
		assert.Error(t, err)
	})

	t.Run("FromBytesRoundTrip", func(t *testing.T) {
		kp1, err := GenerateSecp256k1KeyPair()
		require.NoError(t, err)
		xOnly := kp1.(*secp256k1KeyPair).PublicKeyXOnly()

		priv := kp1.PrivateKey()
		_ = priv

		kp2, err := NewSecp256k1KeyPairFromBytes(kp1.(*secp256k1KeyPair).privateKey.Serialize())
		require.NoError(t, err)
		assert.Equal(t, kp1.ID(), kp2.ID())
		assert.Equal(t, xOnly, kp2.(*secp256k1KeyPair).PublicKeyXOnly())
	})

	t.Run("ShortSecretRejected", func(t *testing.T) {
		_, err := NewSecp256k1KeyPairFromBytes([]byte{1, 2, 3})
		assert.ErrorIs(t, err, sagecrypto.ErrInvalidKeyFormat)
	})
}

func TestDeriveSharedSecretSymmetric(t *testing.T) {
	alice, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)
	bob, err := GenerateSecp256k1KeyPair()
	require.NoError(t, err)

	aliceECDH := alice.(sagecrypto.ECDHKeyPair)
	bobECDH := bob.(sagecrypto.ECDHKeyPair)

	secretFromAlice, err := aliceECDH.DeriveSharedSecret(bob.(*secp256k1KeyPair).PublicKeyXOnly())
	require.NoError(t, err)

	secretFromBob, err := bobECDH.DeriveSharedSecret(alice.(*secp256k1KeyPair).PublicKeyXOnly())
	require.NoError(t, err)

	assert.Equal(t, secretFromAlice, secretFromBob)
	assert.Len(t, secretFromAlice, 32)
}
