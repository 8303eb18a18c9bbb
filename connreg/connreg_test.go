package connreg

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDefault() DefaultConfig {
	return DefaultConfig{
		Namespace: "default:",
		Limits:    Limits{MPS: 60, BPS: 1 << 20, MaxKey: 256, MaxVal: 65536, MGetMax: 16},
	}
}

func TestGetCreatesLazilyWithDefaultPolicy(t *testing.T) {
	r, err := New(nil, testDefault())
	require.NoError(t, err)

	c := r.Get("unknownpubkey")
	assert.Equal(t, "default:", c.Namespace())
	assert.True(t, c.AllowsMethod("get"))
	assert.Equal(t, 1, r.Count())

	again := r.Get("unknownpubkey")
	assert.Same(t, c, again)
}

func TestGetUsesLoadedPolicyForKnownClient(t *testing.T) {
	doc := registryDocument{
		"abc123": Policy{
			Namespace:      "appA:",
			AllowedMethods: []string{"get", "set"},
			Limits:         Limits{MPS: 10, BPS: 1000, MaxKey: 64, MaxVal: 1024, MGetMax: 4},
		},
	}
	r, err := New(doc, testDefault())
	require.NoError(t, err)

	c := r.Get("abc123")
	assert.Equal(t, "appA:", c.Namespace())
	assert.True(t, c.AllowsMethod("set"))
	assert.False(t, c.AllowsMethod("del"))
}

func TestNewRejectsInvalidDefaultNamespace(t *testing.T) {
	_, err := New(nil, DefaultConfig{Namespace: "no-trailing-colon"})
	assert.Error(t, err)
}

func TestConnectionRateAndIdempotencyAreIndependentPerConnection(t *testing.T) {
	r, err := New(nil, testDefault())
	require.NoError(t, err)

	a := r.Get("clientA")
	b := r.Get("clientB")

	now := time.Now()
	for i := 0; i < 60; i++ {
		assert.True(t, a.CheckRate(now))
	}
	assert.False(t, a.CheckRate(now))
	assert.True(t, b.CheckRate(now))

	a.RecordResponse("req-1", []byte(`{"result":{"ok":true}}`), now)
	_, ok := b.IdempotentResponse("req-1", now)
	assert.False(t, ok)
}

func TestIdempotentResponseRoundTrip(t *testing.T) {
	r, err := New(nil, testDefault())
	require.NoError(t, err)
	c := r.Get("clientA")

	now := time.Now()
	_, ok := c.IdempotentResponse("req-1", now)
	assert.False(t, ok)

	c.RecordResponse("req-1", []byte(`{"result":{"ok":true}}`), now)
	got, ok := c.IdempotentResponse("req-1", now)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"result":{"ok":true}}`), got)
}

func TestInstallPrePopulatesConnection(t *testing.T) {
	r, err := New(nil, testDefault())
	require.NoError(t, err)

	r.Install("pre123", Policy{Namespace: "pre:", AllowedMethods: []string{"get"}})
	c := r.Get("pre123")
	assert.Equal(t, "pre:", c.Namespace())
}

func TestLoadDocumentRejectsMalformedNamespace(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/registry.json"
	require.NoError(t, os.WriteFile(path, []byte(`{"abc":{"namespace":"no-colon","allowedMethods":["get"],"limits":{}}}`), 0o600))

	_, err := LoadDocument(path)
	assert.Error(t, err)
}
