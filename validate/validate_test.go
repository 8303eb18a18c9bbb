package validate

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyAcceptsAtExactMax(t *testing.T) {
	k := strings.Repeat("a", 256)
	assert.NoError(t, Key(k, 256))
}

func TestKeyRejectsOverMax(t *testing.T) {
	k := strings.Repeat("a", 257)
	err := Key(k, 256)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidKey, err.(*Error).Code)
}

func TestKeyRejectsEmpty(t *testing.T) {
	err := Key("", 256)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidKey, err.(*Error).Code)
}

func TestValueAcceptsAtExactMax(t *testing.T) {
	raw := make([]byte, 65536)
	b64 := base64.StdEncoding.EncodeToString(raw)
	decoded, err := Value(b64, 65536)
	require.NoError(t, err)
	assert.Len(t, decoded, 65536)
}

func TestValueRejectsOverMax(t *testing.T) {
	raw := make([]byte, 65537)
	b64 := base64.StdEncoding.EncodeToString(raw)
	_, err := Value(b64, 65536)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidValue, err.(*Error).Code)
}

func TestValueRejectsBadBase64(t *testing.T) {
	_, err := Value("not-base64!!", 65536)
	require.Error(t, err)
	assert.Equal(t, CodeInvalidValue, err.(*Error).Code)
}

func TestTTLRejectsNonPositive(t *testing.T) {
	assert.Error(t, TTL(0))
	assert.Error(t, TTL(-1))
	assert.NoError(t, TTL(1))
}

func TestKeyBatchAcceptsAtExactMax(t *testing.T) {
	keys := make([]string, 16)
	for i := range keys {
		keys[i] = "k"
	}
	assert.NoError(t, KeyBatch(keys, 256, 16))
}

func TestKeyBatchRejectsOverMax(t *testing.T) {
	keys := make([]string, 17)
	for i := range keys {
		keys[i] = "k"
	}
	err := KeyBatch(keys, 256, 16)
	require.Error(t, err)
	assert.Equal(t, CodePayloadTooLarge, err.(*Error).Code)
}
