package nsguard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQualifyAlreadyPrefixed(t *testing.T) {
	g := New("appA:")
	q, err := g.Qualify("appA:user:123")
	require.NoError(t, err)
	assert.Equal(t, "appA:user:123", q)
}

func TestQualifyAutoPrefixes(t *testing.T) {
	g := New("appA:")
	q, err := g.Qualify("user:123")
	require.NoError(t, err)
	assert.Equal(t, "appA:user:123", q)
}

func TestQualifyRejectsEmpty(t *testing.T) {
	g := New("appA:")
	_, err := g.Qualify("")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestQualifyRejectsDotDotEscape(t *testing.T) {
	g := New("appA:")
	_, err := g.Qualify("../etc/passwd")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestQualifyRejectsForeignNamespace(t *testing.T) {
	g := New("appA:")
	_, err := g.Qualify("appB:secret")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestQualifyRejectsControlChars(t *testing.T) {
	g := New("appA:")
	_, err := g.Qualify("user\x00name")
	assert.ErrorIs(t, err, ErrRestricted)

	_, err = g.Qualify("user\r\nname")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestQualifyRejectsGlobAndShellPatterns(t *testing.T) {
	g := New("appA:")
	for _, k := range []string{"a*b", "a?b", "a[b]", `a\b`, "${HOME}", "$((1+1))", "eval(x)", "exec(x)"} {
		_, err := g.Qualify(k)
		assert.ErrorIsf(t, err, ErrRestricted, "key %q should be restricted", k)
	}
}

func TestQualifyRejectsWhitespaceOnly(t *testing.T) {
	g := New("appA:")
	_, err := g.Qualify("   ")
	assert.ErrorIs(t, err, ErrRestricted)
}

func TestQualifyAcceptsPlainKeyNoColon(t *testing.T) {
	g := New("appA:")
	q, err := g.Qualify("simplekey")
	require.NoError(t, err)
	assert.Equal(t, "appA:simplekey", q)
}
