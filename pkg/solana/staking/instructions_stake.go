package staking

import (
	"crypto/ed25519"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/binary"
)

const (
	StakeInstructionArgsSize = 8 // amount
)

type StakeInstructionArgs struct {
	Amount uint64
}

// TokenMovementAccounts is the account set shared by stake, unstake and
// claim_rewards.
type TokenMovementAccounts struct {
	Owner            ed25519.PublicKey
	GlobalState      ed25519.PublicKey
	UserInfo         ed25519.PublicKey
	UserTokenAccount ed25519.PublicKey
	Vault            ed25519.PublicKey
}

type StakeInstructionAccounts = TokenMovementAccounts

func (p *Program) NewStakeInstruction(
	accounts *StakeInstructionAccounts,
	args *StakeInstructionArgs,
) solana.Instruction {
	return p.newTokenMovementInstruction(InstructionStake, accounts, &args.Amount)
}

func (p *Program) newTokenMovementInstruction(name string, accounts *TokenMovementAccounts, amount *uint64) solana.Instruction {
	w := binary.NewWriter(DiscriminatorSize + 8)
	w.PutBytes(p.Discriminator(name))
	if amount != nil {
		w.PutUint64(*amount)
	}

	return solana.NewInstruction(
		p.id,
		w.Bytes(),
		solana.NewAccountMeta(accounts.Owner, true),
		solana.NewAccountMeta(accounts.GlobalState, false),
		solana.NewAccountMeta(accounts.UserInfo, false),
		solana.NewAccountMeta(accounts.UserTokenAccount, false),
		solana.NewAccountMeta(accounts.Vault, false),
		solana.NewReadonlyAccountMeta(TOKEN_PROGRAM_ID, false),
		solana.NewReadonlyAccountMeta(SYSTEM_PROGRAM_ID, false),
	)
}
