// Package nsguard implements C5: validating and canonicalizing a client
// key into its connection's namespace, rejecting escapes (§4.5). One
// Guard is built per distinct namespace string and reused across every
// request from connections sharing that namespace, the way the router
// (§4.6) keeps "a mapping from namespace string to a NamespaceGuard" so
// that guards are reused but never shared across differently-namespaced
// connections.
package nsguard

import (
	"fmt"
	"strings"
)

// ErrRestricted is returned for any key that §4.5 rejects; callers map it
// to the RESTRICTED protocol error code.
var ErrRestricted = fmt.Errorf("RESTRICTED")

var forbiddenSubstrings = []string{
	"..", "*", "?", "[", "]", "\\", "${", "$((", "eval(", "exec(",
}

// Guard canonicalizes keys into one fixed namespace.
type Guard struct {
	namespace string
}

// New builds a Guard for namespace, which must already have been
// validated (trailing ':', charset, length) by the connection registry
// (§4.4).
func New(namespace string) *Guard {
	return &Guard{namespace: namespace}
}

// Namespace returns the guard's fixed namespace string.
func (g *Guard) Namespace() string {
	return g.namespace
}

// Qualify applies §4.5's five-step algorithm to k, returning the
// fully-qualified backend key on success or ErrRestricted on rejection.
func (g *Guard) Qualify(k string) (string, error) {
	if k == "" {
		return "", ErrRestricted
	}
	if containsForbidden(k) {
		return "", ErrRestricted
	}
	if strings.HasPrefix(k, g.namespace) {
		return k, nil
	}
	if idx := strings.IndexByte(k, ':'); idx > 0 {
		return "", ErrRestricted
	}
	return g.namespace + k, nil
}

func containsForbidden(k string) bool {
	for _, r := range k {
		if isForbiddenControl(r) {
			return true
		}
	}
	for _, s := range forbiddenSubstrings {
		if strings.Contains(k, s) {
			return true
		}
	}
	if strings.Contains(k, "...") {
		return true
	}
	if strings.TrimSpace(k) == "" {
		return true
	}
	return false
}

func isForbiddenControl(r rune) bool {
	switch {
	case r == 0x00:
		return true
	case r == '\r' || r == '\n':
		return true
	case r >= 0x00 && r <= 0x08:
		return true
	case r == 0x0B || r == 0x0C:
		return true
	case r >= 0x0E && r <= 0x1F:
		return true
	case r == 0x7F:
		return true
	}
	return false
}
