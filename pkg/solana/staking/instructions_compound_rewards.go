package staking

import (
	"crypto/ed25519"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const (
	CompoundRewardsInstructionArgsSize = 0
)

type CompoundRewardsInstructionArgs struct {
}

type CompoundRewardsInstructionAccounts struct {
	Owner       ed25519.PublicKey
	GlobalState ed25519.PublicKey
	UserInfo    ed25519.PublicKey
}

func (p *Program) NewCompoundRewardsInstruction(
	accounts *CompoundRewardsInstructionAccounts,
	args *CompoundRewardsInstructionArgs,
) solana.Instruction {
	data := make([]byte, 0, DiscriminatorSize+CompoundRewardsInstructionArgsSize)
	data = append(data, p.Discriminator(InstructionCompoundRewards)...)

	return solana.NewInstruction(
		p.id,
		data,
		solana.NewAccountMeta(accounts.Owner, true),
		solana.NewAccountMeta(accounts.GlobalState, false),
		solana.NewAccountMeta(accounts.UserInfo, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
	)
}
