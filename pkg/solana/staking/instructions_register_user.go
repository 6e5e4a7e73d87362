package staking

import (
	"crypto/ed25519"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/binary"
)

const (
	RegisterUserInstructionArgsSize = (1 + // option tag
		32) // referrer
)

type RegisterUserInstructionArgs struct {
	Referrer ed25519.PublicKey // optional
}

type RegisterUserInstructionAccounts struct {
	Owner    ed25519.PublicKey
	UserInfo ed25519.PublicKey
}

func (p *Program) NewRegisterUserInstruction(
	accounts *RegisterUserInstructionAccounts,
	args *RegisterUserInstructionArgs,
) solana.Instruction {
	w := binary.NewWriter(DiscriminatorSize + RegisterUserInstructionArgsSize)
	w.PutBytes(p.Discriminator(InstructionRegisterUser))
	w.PutOptionKey32(args.Referrer)

	return solana.NewInstruction(
		p.id,
		w.Bytes(),
		solana.NewAccountMeta(accounts.Owner, true),
		solana.NewAccountMeta(accounts.UserInfo, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SYSVAR_RENT_PUBKEY, false),
	)
}
