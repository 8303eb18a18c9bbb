package pairing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRandom32(t *testing.T, seed byte) []byte {
	t.Helper()
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed + byte(i)
	}
	return b
}

func TestBech32RoundTrip(t *testing.T) {
	pub := mustRandom32(t, 1)
	encoded, err := EncodePublicKey(pub)
	require.NoError(t, err)
	assert.True(t, len(encoded) > len(hrpPub))

	decoded, err := DecodePublicKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, pub, decoded)
}

func TestBech32RejectsBadChecksum(t *testing.T) {
	pub := mustRandom32(t, 2)
	encoded, err := EncodePublicKey(pub)
	require.NoError(t, err)

	tampered := encoded[:len(encoded)-1] + "x"
	_, err = DecodePublicKey(tampered)
	assert.Error(t, err)
}

func TestURIRoundTrip(t *testing.T) {
	cred := &Credential{
		ServerPubKey: mustRandom32(t, 3),
		Relays:       []string{"wss://relay.one", "wss://relay.two"},
		ClientSecret: mustRandom32(t, 4),
		Namespace:    "appA:",
		Methods:      []string{"get", "set", "del"},
		MPS:          60,
		BPS:          1048576,
		MaxKey:       256,
		MaxVal:       65536,
		MGetMax:      16,
		Name:         "demo-client",
	}

	uri, err := BuildURI(cred)
	require.NoError(t, err)

	parsed, err := ParseURI(uri)
	require.NoError(t, err)

	assert.Equal(t, cred.ServerPubKey, parsed.ServerPubKey)
	assert.Equal(t, cred.ClientSecret, parsed.ClientSecret)
	assert.ElementsMatch(t, cred.Relays, parsed.Relays)
	assert.Equal(t, cred.Namespace, parsed.Namespace)
	assert.Equal(t, cred.Methods, parsed.Methods)
	assert.Equal(t, cred.MPS, parsed.MPS)
	assert.Equal(t, cred.BPS, parsed.BPS)
	assert.Equal(t, cred.MaxKey, parsed.MaxKey)
	assert.Equal(t, cred.MaxVal, parsed.MaxVal)
	assert.Equal(t, cred.MGetMax, parsed.MGetMax)
	assert.Equal(t, cred.Name, parsed.Name)
}

func TestParseURIRejectsWrongScheme(t *testing.T) {
	_, err := ParseURI("https://example.com")
	assert.Error(t, err)
}

func TestParseURIRequiresRelay(t *testing.T) {
	cred := &Credential{
		ServerPubKey: mustRandom32(t, 5),
		ClientSecret: mustRandom32(t, 6),
		Namespace:    "appA:",
	}
	// BuildURI does not itself require relays; simulate a malformed URI.
	uri, err := BuildURI(cred)
	require.NoError(t, err)
	_, err = ParseURI(uri)
	assert.ErrorContains(t, err, "relay")
}
