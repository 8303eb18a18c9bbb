package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestV2RoundTrip(t *testing.T) {
	c := NewCodec(PreferV2)
	key := testKey()
	plaintext := []byte(`{"method":"get","params":{"key":"foo"}}`)

	ct, scheme, err := c.Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Equal(t, SchemeV2, scheme)
	assert.NotContains(t, ct, legacyIVMarker)

	pt, scheme, err := c.Decrypt(key, ct)
	require.NoError(t, err)
	assert.Equal(t, SchemeV2, scheme)
	assert.Equal(t, plaintext, pt)
}

func TestV1RoundTrip(t *testing.T) {
	c := NewCodec(PreferV1)
	key := testKey()
	plaintext := []byte(`{"method":"set","params":{"key":"foo","value":"bar"}}`)

	ct, scheme, err := c.Encrypt(key, plaintext)
	require.NoError(t, err)
	assert.Equal(t, SchemeV1, scheme)
	assert.Contains(t, ct, legacyIVMarker)

	pt, scheme, err := c.Decrypt(key, ct)
	require.NoError(t, err)
	assert.Equal(t, SchemeV1, scheme)
	assert.Equal(t, plaintext, pt)
}

func TestDecryptPrefersV2WhenAmbiguous(t *testing.T) {
	c := NewCodec(PreferV2)
	key := testKey()
	ct, _, err := c.Encrypt(key, []byte("hello"))
	require.NoError(t, err)

	pt, scheme, err := c.Decrypt(key, ct)
	require.NoError(t, err)
	assert.Equal(t, SchemeV2, scheme)
	assert.Equal(t, []byte("hello"), pt)
}

func TestDecryptFailsOnWrongKey(t *testing.T) {
	c := NewCodec(PreferV2)
	key := testKey()
	wrongKey := make([]byte, 32)
	copy(wrongKey, key)
	wrongKey[0] ^= 0xFF

	ct, _, err := c.Encrypt(key, []byte("secret"))
	require.NoError(t, err)

	_, _, err = c.Decrypt(wrongKey, ct)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c := NewCodec(PreferV2)
	key := testKey()
	_, _, err := c.Decrypt(key, "not a valid envelope at all")
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecryptV1TamperedMACRejected(t *testing.T) {
	c := NewCodec(PreferV1)
	key := testKey()
	ct, _, err := c.Encrypt(key, []byte("tamper me"))
	require.NoError(t, err)

	tampered := ct[:len(ct)-6] + "AAAAAA"
	_, _, err = c.Decrypt(key, tampered)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestCapabilityReflectsEnabledSchemes(t *testing.T) {
	c := NewCodec(PreferV2)
	cap := c.Capability()
	assert.True(t, cap.V2)
	assert.True(t, cap.V1)
}
