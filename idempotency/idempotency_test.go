package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put("req-1", []byte(`{"result":{"ok":true}}`), now)

	got, ok := c.Get("req-1", now)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"result":{"ok":true}}`), got)
}

func TestGetMissUnknownID(t *testing.T) {
	c := New()
	_, ok := c.Get("nope", time.Now())
	assert.False(t, ok)
}

func TestGetExpiresAfterWindow(t *testing.T) {
	c := NewWithWindow(10 * time.Second)
	base := time.Now()
	c.Put("req-1", []byte("x"), base)

	_, ok := c.Get("req-1", base.Add(11*time.Second))
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestSweepEvictsExpired(t *testing.T) {
	c := NewWithWindow(10 * time.Second)
	base := time.Now()
	c.Put("req-1", []byte("x"), base)
	c.Put("req-2", []byte("y"), base.Add(5*time.Second))

	c.Sweep(base.Add(12 * time.Second))
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("req-2", base.Add(12*time.Second))
	assert.True(t, ok)
}

func TestPutStoresCopyNotReference(t *testing.T) {
	c := New()
	now := time.Now()
	buf := []byte("original")
	c.Put("req-1", buf, now)
	buf[0] = 'X'

	got, _ := c.Get("req-1", now)
	assert.Equal(t, []byte("original"), got)
}
