package staking

import (
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const (
	UnstakeInstructionArgsSize = 8 // amount
)

type UnstakeInstructionArgs struct {
	Amount uint64
}

type UnstakeInstructionAccounts = TokenMovementAccounts

func (p *Program) NewUnstakeInstruction(
	accounts *UnstakeInstructionAccounts,
	args *UnstakeInstructionArgs,
) solana.Instruction {
	return p.newTokenMovementInstruction(InstructionUnstake, accounts, &args.Amount)
}
