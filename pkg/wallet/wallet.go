// Package wallet models the signing capabilities a staking session can be
// handed. A wallet exposes any subset of them, and callers discover which by
// type assertion.
package wallet

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

var (
	// ErrUserRejected indicates the holder of the key declined to sign.
	ErrUserRejected = errors.New("user rejected the request")

	ErrNoCapability = errors.New("wallet can neither sign nor send transactions")
)

// Wallet is the minimal identity every wallet provides.
type Wallet interface {
	PublicKey() ed25519.PublicKey
}

// Signer signs a transaction in place without broadcasting it.
type Signer interface {
	Wallet

	SignTransaction(ctx context.Context, txn *solana.Transaction) error
}

// Sender signs and broadcasts in one step, returning the transaction
// signature. Implementations may rewrite the transaction (for example to set
// their own blockhash), so the returned signature is authoritative.
type Sender interface {
	Wallet

	SendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error)
}

// Named wallets report an identifier that is forwarded as relay metadata.
type Named interface {
	Name() string
}

// Capabilities holds the optional interfaces a wallet was found to implement.
type Capabilities struct {
	Wallet Wallet
	Signer Signer // nil if unsupported
	Sender Sender // nil if unsupported
	Name   string
}

// ResolveCapabilities inspects w once. A wallet that can neither sign nor
// send is rejected.
func ResolveCapabilities(w Wallet) (*Capabilities, error) {
	if w == nil || len(w.PublicKey()) != ed25519.PublicKeySize {
		return nil, errors.New("wallet has no valid public key")
	}

	c := &Capabilities{Wallet: w, Name: "unknown"}
	if s, ok := w.(Signer); ok {
		c.Signer = s
	}
	if s, ok := w.(Sender); ok {
		c.Sender = s
	}
	if n, ok := w.(Named); ok {
		c.Name = n.Name()
	}

	if c.Signer == nil && c.Sender == nil {
		return nil, ErrNoCapability
	}
	return c, nil
}
