package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

// KeypairWallet signs locally with a private key.
type KeypairWallet struct {
	key  ed25519.PrivateKey
	name string
}

func NewKeypairWallet(key ed25519.PrivateKey) *KeypairWallet {
	return &KeypairWallet{
		key:  key,
		name: "keypair",
	}
}

func (w *KeypairWallet) PublicKey() ed25519.PublicKey {
	return w.key.Public().(ed25519.PublicKey)
}

func (w *KeypairWallet) Name() string {
	return w.name
}

func (w *KeypairWallet) SignTransaction(_ context.Context, txn *solana.Transaction) error {
	return txn.Sign(w.key)
}

// LoadKeypair reads a private key from a file in the Solana CLI format (a
// JSON array of 64 bytes) or as a base58 string.
func LoadKeypair(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keypair file")
	}
	return ParseKeypair(string(data))
}

func ParseKeypair(value string) (ed25519.PrivateKey, error) {
	value = strings.TrimSpace(value)

	var raw []byte
	if strings.HasPrefix(value, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(value), &ints); err != nil {
			return nil, errors.Wrap(err, "invalid keypair json")
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, errors.Errorf("keypair byte %d out of range", i)
			}
			raw[i] = byte(v)
		}
	} else {
		decoded, err := base58.Decode(value)
		if err != nil {
			return nil, errors.Wrap(err, "invalid base58 keypair")
		}
		raw = decoded
	}

	switch len(raw) {
	case ed25519.PrivateKeySize:
		key := ed25519.PrivateKey(raw)
		if !key.Public().(ed25519.PublicKey).Equal(ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]).Public()) {
			return nil, errors.New("keypair public key does not match its seed")
		}
		return key, nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	default:
		return nil, errors.Errorf("invalid keypair length %d", len(raw))
	}
}
