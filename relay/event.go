package relay

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// CanonicalID computes the event id per NIP-01: the lowercase hex
// SHA-256 digest of the compact JSON array
// [0, pubkey, created_at, kind, tags, content], with no HTML-escaping of
// the content field so two implementations agree on the exact bytes
// hashed.
func CanonicalID(pubkey string, createdAt int64, kind int, tags [][]string, content string) (string, error) {
	if tags == nil {
		tags = [][]string{}
	}
	row := []interface{}{0, pubkey, createdAt, kind, tags, content}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(row); err != nil {
		return "", err
	}
	serialized := bytes.TrimRight(buf.Bytes(), "\n")

	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// Signer produces a hex-encoded Schnorr signature over message, the
// shape keyring.Keyring.Sign implements.
type Signer interface {
	Sign(message []byte) (string, error)
}

// NewEvent builds and signs an Event addressed to recipientPubKey,
// computing its canonical id and signature under signer (§6 "Wire
// protocol", §4.1).
func NewEvent(signer Signer, selfPubKey, recipientPubKey string, kind int, content string) (*Event, error) {
	createdAt := time.Now().Unix()
	tags := [][]string{{"p", recipientPubKey}}

	id, err := CanonicalID(selfPubKey, createdAt, kind, tags, content)
	if err != nil {
		return nil, err
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return nil, err
	}
	sig, err := signer.Sign(idBytes)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        id,
		PubKey:    selfPubKey,
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
		Sig:       sig,
	}, nil
}

// VerifySig checks e's signature against its own canonical id, the
// per-inbound-event authenticity step (§4.11 "verify signature under
// event.pubkey").
func VerifySig(e *Event, verify func(pubKeyHex string, message []byte, sigHex string) error) error {
	id, err := CanonicalID(e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content)
	if err != nil {
		return err
	}
	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return err
	}
	return verify(e.PubKey, idBytes, e.Sig)
}
