package token

import (
	"crypto/ed25519"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/binary"
)

type AccountState byte

const (
	AccountStateUninitialized AccountState = iota
	AccountStateInitialized
	AccountStateFrozen
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/11b1e3eefdd4e523768d63f7c70a7aa391ea0d02/token/program/src/state.rs#L125
const AccountSize = 165

// Account is an SPL token account.
type Account struct {
	Mint            ed25519.PublicKey
	Owner           ed25519.PublicKey
	Amount          uint64
	Delegate        ed25519.PublicKey
	State           AccountState
	IsNative        *uint64
	DelegatedAmount uint64
	CloseAuthority  ed25519.PublicKey
}

func (a *Account) Marshal() []byte {
	w := binary.NewWriter(AccountSize)
	w.PutKey32(a.Mint)
	w.PutKey32(a.Owner)
	w.PutUint64(a.Amount)
	w.PutCOptionKey32(a.Delegate)
	w.PutUint8(byte(a.State))
	w.PutCOptionUint64(a.IsNative)
	w.PutUint64(a.DelegatedAmount)
	w.PutCOptionKey32(a.CloseAuthority)
	return w.Bytes()
}

func (a *Account) Unmarshal(b []byte) bool {
	if len(b) != AccountSize {
		return false
	}

	r := binary.NewReader(b)
	a.Mint = r.Key32()
	a.Owner = r.Key32()
	a.Amount = r.Uint64()
	a.Delegate = r.COptionKey32()
	a.State = AccountState(r.Uint8())
	a.IsNative = r.COptionUint64()
	a.DelegatedAmount = r.Uint64()
	a.CloseAuthority = r.COptionKey32()

	return r.Err() == nil
}
