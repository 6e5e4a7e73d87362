package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func newPublicKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}

// NewRandomSignature returns a base58 encoded 64 byte value shaped like a
// transaction signature.
func NewRandomSignature(t *testing.T) string {
	var sig [ed25519.SignatureSize]byte
	_, err := rand.Read(sig[:])
	require.NoError(t, err)
	return base58.Encode(sig[:])
}

// NewRandomWallet returns a base58 encoded wallet public key.
func NewRandomWallet(t *testing.T) string {
	return base58.Encode(newPublicKey(t))
}
