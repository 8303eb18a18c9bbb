// kvgate-keygen generates a new server identity for a gateway process:
// a random secp256k1 key pair rendered as an npub/nsec pair, ready to be
// placed in server_secret (§4.1, §6).
package main

import (
	"fmt"
	"os"

	"github.com/nostrkv/kvgate/pairing"

	"github.com/nostrkv/kvgate/crypto/keyring"
)

func main() {
	kr, err := keyring.Generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate identity: %v\n", err)
		os.Exit(1)
	}

	npub, err := kr.PublicKeyBech32()
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode public key: %v\n", err)
		os.Exit(1)
	}

	secret, err := kr.SecretBytes()
	if err != nil {
		fmt.Fprintf(os.Stderr, "export secret: %v\n", err)
		os.Exit(1)
	}
	nsec, err := pairing.EncodeSecret(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("pubkey (hex): %s\n", kr.PublicKey())
	fmt.Printf("npub:         %s\n", npub)
	fmt.Printf("nsec:         %s\n", nsec)
	fmt.Println()
	fmt.Println("Set server_secret to the nsec value above. Keep it secret; it is the")
	fmt.Println("gateway's whole signing and decryption identity.")
}
