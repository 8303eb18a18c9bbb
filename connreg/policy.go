// Package connreg implements C4 (the connection registry) and the
// ClientConnection record from §3: the binding of a client public key to
// its authorized policy, plus the per-connection rate, budget, and
// idempotency state that policy governs. Structurally this follows the
// teacher's session.Manager (session/manager.go) — a map behind a
// sync.RWMutex, entries created lazily, a keyed lookup with a fallback —
// narrowed from session objects to connection policies.
package connreg

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Limits is the positive-integer limit vector carried by a policy (§3).
type Limits struct {
	MPS     int `json:"mps"`
	BPS     int `json:"bps"`
	MaxKey  int `json:"maxKey"`
	MaxVal  int `json:"maxVal"`
	MGetMax int `json:"mgetMax"`
}

// Policy is a ConnectionPolicy: namespace, allowed methods, and limits for
// one client public key (§4.4).
type Policy struct {
	Namespace      string   `json:"namespace"`
	AllowedMethods []string `json:"allowedMethods"`
	Limits         Limits   `json:"limits"`
	AppName        string   `json:"appName,omitempty"`
	Created        int64    `json:"created,omitempty"`
}

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+:$`)

func validateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("namespace must be non-empty")
	}
	if len(ns) > 128 {
		return fmt.Errorf("namespace exceeds 128 characters")
	}
	if !namespacePattern.MatchString(ns) {
		return fmt.Errorf("namespace %q must end in ':' and contain only [A-Za-z0-9_-]", ns)
	}
	return nil
}

// allowsMethod reports whether method is in the policy's allowlist.
func (p Policy) allowsMethod(method string) bool {
	for _, m := range p.AllowedMethods {
		if m == method {
			return true
		}
	}
	return false
}

// registryDocument is the on-disk JSON shape: client pubkey hex -> Policy
// (§6 "On-disk registry").
type registryDocument map[string]Policy

// LoadDocument reads and validates a registry JSON document from path.
// Every entry's namespace must pass validateNamespace; a malformed entry
// fails the whole load (§4.4: "must validate namespace format at load
// time and reject malformed entries").
func LoadDocument(path string) (registryDocument, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	var doc registryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse registry %s: %w", path, err)
	}
	for pubkey, p := range doc {
		if err := validateNamespace(p.Namespace); err != nil {
			return nil, fmt.Errorf("registry entry %s: %w", pubkey, err)
		}
	}
	return doc, nil
}

// Save persists the current registry contents to path as JSON, used by
// the (out-of-core-scope) administrative operations mentioned in §4.4.
func Save(path string, doc registryDocument) error {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o600)
}
