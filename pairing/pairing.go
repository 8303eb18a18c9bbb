// Package pairing decodes the textual pairing credential and URI described
// in spec.md §6. It is a boundary concern only: the core request-processing
// pipeline never parses a pairing URI itself (connections are authorized
// from the server-side registry, §4.4), so this package exists to support
// the kvgate-keygen tool and test fixtures, not request handling.
package pairing

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Credential is the decoded form of a nostr+kvconnect:// pairing URI.
type Credential struct {
	ServerPubKey []byte // 32-byte x-only server identity
	Relays       []string
	ClientSecret []byte // 32-byte client signing scalar
	Namespace    string
	Methods      []string
	MPS          int
	BPS          int
	MaxKey       int
	MaxVal       int
	MGetMax      int
	Name         string
}

const (
	scheme  = "nostr+kvconnect"
	hrpPub  = "npub"
	hrpSeck = "nsec"
)

// EncodePublicKey renders a 32-byte x-only public key as a bech32 "npub1..." string.
func EncodePublicKey(pub []byte) (string, error) {
	return bech32Encode(hrpPub, pub)
}

// EncodeSecret renders a 32-byte private scalar as a bech32 "nsec1..." string.
func EncodeSecret(secret []byte) (string, error) {
	return bech32Encode(hrpSeck, secret)
}

// DecodePublicKey parses an "npub1..." string back into 32 raw bytes.
func DecodePublicKey(npub string) ([]byte, error) {
	hrp, raw, err := bech32Decode(npub)
	if err != nil {
		return nil, err
	}
	if hrp != hrpPub {
		return nil, fmt.Errorf("expected %q prefix, got %q", hrpPub, hrp)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte public key, got %d", len(raw))
	}
	return raw, nil
}

// DecodeSecret parses an "nsec1..." string back into a 32-byte scalar.
func DecodeSecret(nsec string) ([]byte, error) {
	hrp, raw, err := bech32Decode(nsec)
	if err != nil {
		return nil, err
	}
	if hrp != hrpSeck {
		return nil, fmt.Errorf("expected %q prefix, got %q", hrpSeck, hrp)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("expected 32-byte secret, got %d", len(raw))
	}
	return raw, nil
}

// ParseURI decodes a nostr+kvconnect:// pairing URI as described in §6.
// The namespace and limits carried here are advisory to the client only;
// the server's own connection registry (§4.4) is authoritative.
func ParseURI(uri string) (*Credential, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse pairing uri: %w", err)
	}
	if u.Scheme != scheme {
		return nil, fmt.Errorf("unexpected scheme %q, want %q", u.Scheme, scheme)
	}

	serverPub, err := DecodePublicKey(u.Host)
	if err != nil {
		return nil, fmt.Errorf("server pubkey: %w", err)
	}

	q := u.Query()
	secret, err := DecodeSecret(q.Get("secret"))
	if err != nil {
		return nil, fmt.Errorf("client secret: %w", err)
	}

	c := &Credential{
		ServerPubKey: serverPub,
		Relays:       q["relay"],
		ClientSecret: secret,
		Namespace:    q.Get("ns"),
		Name:         q.Get("name"),
	}
	if cmds := q.Get("cmds"); cmds != "" {
		c.Methods = strings.Split(cmds, ",")
	}
	c.MPS, err = parsePositiveInt(q.Get("mps"))
	if err != nil {
		return nil, fmt.Errorf("mps: %w", err)
	}
	c.BPS, err = parsePositiveInt(q.Get("bps"))
	if err != nil {
		return nil, fmt.Errorf("bps: %w", err)
	}
	c.MaxKey, err = parsePositiveInt(q.Get("maxkey"))
	if err != nil {
		return nil, fmt.Errorf("maxkey: %w", err)
	}
	c.MaxVal, err = parsePositiveInt(q.Get("maxval"))
	if err != nil {
		return nil, fmt.Errorf("maxval: %w", err)
	}
	c.MGetMax, err = parsePositiveInt(q.Get("mget_max"))
	if err != nil {
		return nil, fmt.Errorf("mget_max: %w", err)
	}
	if len(c.Relays) == 0 {
		return nil, fmt.Errorf("pairing uri must carry at least one relay")
	}
	return c, nil
}

func parsePositiveInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must be non-negative, got %d", n)
	}
	return n, nil
}

// BuildURI renders a Credential back into its textual form. Used by tests
// that need a fixture URI; the
// production pairing-URI minting surface is the (out-of-scope) admin HTTP
// server referenced in spec.md §1.
func BuildURI(c *Credential) (string, error) {
	serverPub, err := EncodePublicKey(c.ServerPubKey)
	if err != nil {
		return "", err
	}
	secret, err := EncodeSecret(c.ClientSecret)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	for _, r := range c.Relays {
		q.Add("relay", r)
	}
	q.Set("secret", secret)
	q.Set("ns", c.Namespace)
	if len(c.Methods) > 0 {
		q.Set("cmds", strings.Join(c.Methods, ","))
	}
	if c.MPS > 0 {
		q.Set("mps", strconv.Itoa(c.MPS))
	}
	if c.BPS > 0 {
		q.Set("bps", strconv.Itoa(c.BPS))
	}
	if c.MaxKey > 0 {
		q.Set("maxkey", strconv.Itoa(c.MaxKey))
	}
	if c.MaxVal > 0 {
		q.Set("maxval", strconv.Itoa(c.MaxVal))
	}
	if c.MGetMax > 0 {
		q.Set("mget_max", strconv.Itoa(c.MGetMax))
	}
	if c.Name != "" {
		q.Set("name", c.Name)
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     serverPub,
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
