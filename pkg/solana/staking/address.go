package staking

import (
	"crypto/ed25519"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

var (
	globalStatePrefix = []byte("global_state")
	userInfoPrefix    = []byte("user_info")
)

const idlSeed = "anchor:idl"

// GetGlobalStateAddress derives the singleton global state. The same address
// is the token authority of the vault.
func (p *Program) GetGlobalStateAddress() (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		p.id,
		globalStatePrefix,
	)
}

type GetUserInfoAddressArgs struct {
	Owner ed25519.PublicKey
}

func (p *Program) GetUserInfoAddress(args *GetUserInfoAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		p.id,
		userInfoPrefix,
		args.Owner,
	)
}

// GetIDLAddress is where `anchor idl init` stores the program's IDL.
func (p *Program) GetIDLAddress() (ed25519.PublicKey, error) {
	base, err := solana.FindProgramAddress(p.id)
	if err != nil {
		return nil, err
	}
	return solana.CreateWithSeed(base, idlSeed, p.id)
}
