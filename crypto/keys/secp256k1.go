// Package keys implements the concrete key pairs used by the gateway.
package keys

import (
	"crypto"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"

	sagecrypto "github.com/nostrkv/kvgate/crypto"
)

// secp256k1KeyPair implements sagecrypto.KeyPair and sagecrypto.ECDHKeyPair.
// It is the sole key type the gateway issues: a Nostr identity signs events
// with BIP-340-style Schnorr signatures and derives envelope conversation
// keys via ECDH shared-point hashing (NIP-04 style).
type secp256k1KeyPair struct {
	privateKey *secp256k1.PrivateKey
	publicKey  *secp256k1.PublicKey
	id         string
}

// GenerateSecp256k1KeyPair generates a new random Secp256k1 key pair.
func GenerateSecp256k1KeyPair() (sagecrypto.KeyPair, error) {
	privateKey, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	return newSecp256k1KeyPair(privateKey), nil
}

// NewSecp256k1KeyPairFromBytes constructs a key pair from a 32-byte scalar,
// as decoded from a pairing credential's bech32 secret or server_secret.
func NewSecp256k1KeyPairFromBytes(secretKey []byte) (sagecrypto.KeyPair, error) {
	if len(secretKey) != 32 {
		return nil, fmt.Errorf("%w: secp256k1 private key must be 32 bytes, got %d", sagecrypto.ErrInvalidKeyFormat, len(secretKey))
	}
	privateKey := secp256k1.PrivKeyFromBytes(secretKey)
	return newSecp256k1KeyPair(privateKey), nil
}

func newSecp256k1KeyPair(privateKey *secp256k1.PrivateKey) *secp256k1KeyPair {
	publicKey := privateKey.PubKey()
	return &secp256k1KeyPair{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         hex.EncodeToString(schnorrPubKeyBytes(publicKey)),
	}
}

// schnorrPubKeyBytes returns the 32-byte x-only public key used throughout
// the Nostr wire protocol (event.pubkey, the "p" tag, pairing credentials).
func schnorrPubKeyBytes(pub *secp256k1.PublicKey) []byte {
	return pub.SerializeCompressed()[1:]
}

func (kp *secp256k1KeyPair) PublicKey() crypto.PublicKey { return kp.publicKey }
func (kp *secp256k1KeyPair) PrivateKey() crypto.PrivateKey { return kp.privateKey }
func (kp *secp256k1KeyPair) Type() sagecrypto.KeyType      { return sagecrypto.KeyTypeSecp256k1 }
func (kp *secp256k1KeyPair) ID() string                    { return kp.id }

// PublicKeyXOnly returns the 32-byte x-only public key (hex-decoded form of
// ID()), matching the "pubkey" field of an envelope event.
func (kp *secp256k1KeyPair) PublicKeyXOnly() []byte {
	return schnorrPubKeyBytes(kp.publicKey)
}

// Bytes returns the raw 32-byte secret scalar, used when rendering a
// freshly generated identity as a bech32 "nsec1..." credential.
func (kp *secp256k1KeyPair) Bytes() []byte {
	return kp.privateKey.Serialize()
}

// Sign produces a 64-byte BIP-340 Schnorr signature over message, which
// must already be a 32-byte digest — the NIP-01 event id, a
// sha256(canonical_json), for every caller in this codebase. Signing
// anything other than the id a standards-compliant relay will itself
// recompute and verify against would make every event this server emits
// reject elsewhere (§6).
func (kp *secp256k1KeyPair) Sign(message []byte) ([]byte, error) {
	if len(message) != 32 {
		return nil, fmt.Errorf("schnorr sign: message must be a 32-byte digest, got %d bytes", len(message))
	}
	sig, err := schnorr.Sign(kp.privateKey, message)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify checks a 64-byte Schnorr signature over the 32-byte digest
// message against this key pair's public key.
func (kp *secp256k1KeyPair) Verify(message, signature []byte) error {
	return VerifySchnorr(kp.publicKey, message, signature)
}

// VerifySchnorr verifies a signature produced by Sign against an arbitrary
// public key, used when checking an inbound event signed by a counterparty.
// message must be the same 32-byte digest the signer signed.
func VerifySchnorr(pub *secp256k1.PublicKey, message, signature []byte) error {
	if len(message) != 32 {
		return fmt.Errorf("schnorr verify: message must be a 32-byte digest, got %d bytes", len(message))
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", sagecrypto.ErrInvalidSignature, err)
	}
	if !sig.Verify(message, pub) {
		return sagecrypto.ErrInvalidSignature
	}
	return nil
}

// ParseXOnlyPublicKey parses a 32-byte x-only public key as carried on the
// wire (event.pubkey, "p" tags, registry entries).
func ParseXOnlyPublicKey(xOnly []byte) (*secp256k1.PublicKey, error) {
	if len(xOnly) != 32 {
		return nil, errors.New("x-only public key must be 32 bytes")
	}
	// Compressed SEC1 form with an assumed-even Y, as is conventional for
	// BIP-340 style x-only keys; only the X coordinate participates in the
	// ECDH/Schnorr math we perform against it.
	compressed := append([]byte{0x02}, xOnly...)
	return secp256k1.ParsePubKey(compressed)
}

// DeriveSharedSecret computes the 32-byte ECDH shared secret with a peer's
// x-only public key: SHA-256 of the X coordinate of (our_sk * peer_pk),
// identical on both sides of the channel regardless of who initiates.
func (kp *secp256k1KeyPair) DeriveSharedSecret(peerPubKeyBytes []byte) ([]byte, error) {
	peerPub, err := ParseXOnlyPublicKey(peerPubKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("parse peer public key: %w", err)
	}

	var peerPoint, shared secp256k1.JacobianPoint
	peerPub.AsJacobian(&peerPoint)

	var scalar secp256k1.ModNScalar
	scalar.Set(&kp.privateKey.Key)
	secp256k1.ScalarMultNonConst(&scalar, &peerPoint, &shared)
	shared.ToAffine()

	xBytes := shared.X.Bytes()
	secret := sha256.Sum256(xBytes[:])
	return secret[:], nil
}
