// Package crypto provides the cryptographic primitives shared across the
// gateway: key pairs, signing, and the storage abstraction used to persist
// them. Domain-specific encryption (the envelope schemes) lives in the
// sibling envelope package.
package crypto

import (
	"crypto"
	"errors"
)

// KeyType identifies the signing algorithm a KeyPair implements.
type KeyType string

const (
	// KeyTypeSecp256k1 is the only signing algorithm this gateway issues
	// server identities with: Nostr events (NIP-01) are signed with
	// BIP-340 Schnorr signatures over secp256k1.
	KeyTypeSecp256k1 KeyType = "Secp256k1"
)

// KeyPair represents a cryptographic key pair capable of signing and,
// via ECDHKeyPair, deriving a shared secret for envelope encryption.
type KeyPair interface {
	PublicKey() crypto.PublicKey
	PrivateKey() crypto.PrivateKey
	Type() KeyType
	Sign(message []byte) ([]byte, error)
	Verify(message, signature []byte) error
	ID() string
}

// ECDHKeyPair is implemented by key pairs that can derive a shared secret
// with a peer's public key (used to derive envelope conversation keys).
type ECDHKeyPair interface {
	KeyPair
	DeriveSharedSecret(peerPubKeyBytes []byte) ([]byte, error)
}

// KeyStorage provides storage for key pairs, keyed by an opaque ID.
type KeyStorage interface {
	Store(id string, keyPair KeyPair) error
	Load(id string) (KeyPair, error)
	Delete(id string) error
	List() ([]string, error)
	Exists(id string) bool
}

// Common errors.
var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrInvalidKeyFormat = errors.New("invalid key format")
	ErrKeyExists        = errors.New("key already exists")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrSignNotSupported = errors.New("signing not supported for this key type")
)
