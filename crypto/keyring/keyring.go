// Package keyring implements C1: the server's long-term signing identity
// and conversation-key derivation for the envelope crypto layer (§4.1).
// Modeled on the teacher's crypto.Manager, narrowed to the one key type and
// the two operations the gateway actually needs: sign outbound events and
// derive a symmetric key shared with one counterparty.
package keyring

import (
	"encoding/hex"
	"fmt"

	sagecrypto "github.com/nostrkv/kvgate/crypto"
	"github.com/nostrkv/kvgate/crypto/keys"
	"github.com/nostrkv/kvgate/pairing"
)

// Keyring holds the server's secret scalar and exposes the operations the
// rest of the gateway needs against it. It is immutable for the process
// lifetime (§4.1) and safe for concurrent use.
type Keyring struct {
	kp        sagecrypto.ECDHKeyPair
	pubKeyHex string
}

// New wraps an already-generated key pair.
func New(kp sagecrypto.ECDHKeyPair) *Keyring {
	return &Keyring{kp: kp, pubKeyHex: kp.ID()}
}

// Generate creates a brand new random server identity. Used by the
// kvgate-keygen tool and tests; production servers load a persisted secret
// via Load/LoadBech32 instead, so that the identity (and therefore every
// client's pairing credential) survives a restart.
func Generate() (*Keyring, error) {
	kp, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	return New(kp.(sagecrypto.ECDHKeyPair)), nil
}

// Load constructs a Keyring from a raw 32-byte secret scalar. A malformed
// secret is treated as fatal at startup by the caller (§4.1); Load itself
// just reports the error.
func Load(secret []byte) (*Keyring, error) {
	kp, err := keys.NewSecp256k1KeyPairFromBytes(secret)
	if err != nil {
		return nil, fmt.Errorf("load server secret: %w", err)
	}
	return New(kp.(sagecrypto.ECDHKeyPair)), nil
}

// LoadBech32 constructs a Keyring from an "nsec1..." encoded secret, the
// form server_secret is configured in (§6).
func LoadBech32(nsec string) (*Keyring, error) {
	secret, err := pairing.DecodeSecret(nsec)
	if err != nil {
		return nil, fmt.Errorf("decode server_secret: %w", err)
	}
	return Load(secret)
}

// PublicKey returns the server's 32-byte x-only public key as lowercase hex,
// the form used on the wire and in the connection registry.
func (k *Keyring) PublicKey() string {
	return k.pubKeyHex
}

// PublicKeyBech32 renders the public key as an "npub1..." string for
// display (diagnostics, get_info, the keygen tool).
func (k *Keyring) PublicKeyBech32() (string, error) {
	raw, err := hex.DecodeString(k.pubKeyHex)
	if err != nil {
		return "", err
	}
	return pairing.EncodePublicKey(raw)
}

// Sign signs an event id (or any message) and returns the signature as
// lowercase hex, the form carried in the envelope event's "sig" field.
func (k *Keyring) Sign(message []byte) (string, error) {
	sig, err := k.kp.Sign(message)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig), nil
}

// Verify checks a hex-encoded signature against the given x-only public key
// (the event's own pubkey field), not necessarily this Keyring's identity.
func Verify(pubKeyHex string, message []byte, sigHex string) error {
	pubBytes, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return fmt.Errorf("bad pubkey hex: %w", err)
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("bad signature hex: %w", err)
	}
	pub, err := keys.ParseXOnlyPublicKey(pubBytes)
	if err != nil {
		return err
	}
	return keys.VerifySchnorr(pub, message, sig)
}

// secretExporter is implemented by key pairs that can serialize their raw
// secret scalar.
type secretExporter interface {
	Bytes() []byte
}

// SecretBytes returns the raw 32-byte secret scalar, used by the keygen
// tool to render a freshly generated identity as an "nsec1..." credential.
func (k *Keyring) SecretBytes() ([]byte, error) {
	se, ok := k.kp.(secretExporter)
	if !ok {
		return nil, fmt.Errorf("key pair does not expose its secret bytes")
	}
	return se.Bytes(), nil
}

// ConversationKey derives the 32-byte symmetric key shared with the peer
// identified by peerPubKeyHex. The derivation is deterministic and
// identical regardless of which side calls it (§4.1).
func (k *Keyring) ConversationKey(peerPubKeyHex string) ([]byte, error) {
	peerBytes, err := hex.DecodeString(peerPubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("bad peer pubkey hex: %w", err)
	}
	return k.kp.DeriveSharedSecret(peerBytes)
}
