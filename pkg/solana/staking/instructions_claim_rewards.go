package staking

import (
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const (
	ClaimRewardsInstructionArgsSize = 0
)

type ClaimRewardsInstructionArgs struct {
}

type ClaimRewardsInstructionAccounts = TokenMovementAccounts

func (p *Program) NewClaimRewardsInstruction(
	accounts *ClaimRewardsInstructionAccounts,
	args *ClaimRewardsInstructionArgs,
) solana.Instruction {
	return p.newTokenMovementInstruction(InstructionClaimRewards, accounts, nil)
}
