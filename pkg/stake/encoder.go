package stake

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
)

var ErrSelfReferral = errors.New("wallet cannot refer itself")

// Encoder builds staking program instructions with every account resolved
// through the session's Deriver.
type Encoder struct {
	program *staking.Program
	deriver *Deriver
}

func NewEncoder(program *staking.Program, deriver *Deriver) *Encoder {
	return &Encoder{
		program: program,
		deriver: deriver,
	}
}

// RegisterUser creates the owner's user info account. The referrer is
// optional.
func (e *Encoder) RegisterUser(owner, referrer ed25519.PublicKey) (*PlannedInstruction, error) {
	if len(referrer) > 0 {
		if len(referrer) != ed25519.PublicKeySize {
			return nil, errors.New("invalid referrer")
		}
		if bytes.Equal(owner, referrer) {
			return nil, ErrSelfReferral
		}
	}

	userInfo, err := e.deriver.UserInfo(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive user info")
	}

	ix := e.program.NewRegisterUserInstruction(
		&staking.RegisterUserInstructionAccounts{
			Owner:    owner,
			UserInfo: userInfo.Address,
		},
		&staking.RegisterUserInstructionArgs{
			Referrer: referrer,
		},
	)
	return &PlannedInstruction{
		Instruction: ix,
		Creates:     []ed25519.PublicKey{userInfo.Address},
	}, nil
}

func (e *Encoder) Stake(owner ed25519.PublicKey, amount uint64) (*PlannedInstruction, error) {
	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "stake amount must be positive")
	}

	accounts, err := e.tokenMovementAccounts(owner)
	if err != nil {
		return nil, err
	}

	return &PlannedInstruction{
		Instruction: e.program.NewStakeInstruction(accounts, &staking.StakeInstructionArgs{
			Amount: amount,
		}),
	}, nil
}

func (e *Encoder) Unstake(owner ed25519.PublicKey, amount uint64) (*PlannedInstruction, error) {
	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "unstake amount must be positive")
	}

	accounts, err := e.tokenMovementAccounts(owner)
	if err != nil {
		return nil, err
	}

	return &PlannedInstruction{
		Instruction: e.program.NewUnstakeInstruction(accounts, &staking.UnstakeInstructionArgs{
			Amount: amount,
		}),
	}, nil
}

func (e *Encoder) ClaimRewards(owner ed25519.PublicKey) (*PlannedInstruction, error) {
	accounts, err := e.tokenMovementAccounts(owner)
	if err != nil {
		return nil, err
	}

	return &PlannedInstruction{
		Instruction: e.program.NewClaimRewardsInstruction(accounts, &staking.ClaimRewardsInstructionArgs{}),
	}, nil
}

func (e *Encoder) CompoundRewards(owner ed25519.PublicKey) (*PlannedInstruction, error) {
	globalState, err := e.deriver.GlobalState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive global state")
	}

	userInfo, err := e.deriver.UserInfo(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive user info")
	}

	return &PlannedInstruction{
		Instruction: e.program.NewCompoundRewardsInstruction(
			&staking.CompoundRewardsInstructionAccounts{
				Owner:       owner,
				GlobalState: globalState.Address,
				UserInfo:    userInfo.Address,
			},
			&staking.CompoundRewardsInstructionArgs{},
		),
	}, nil
}

func (e *Encoder) tokenMovementAccounts(owner ed25519.PublicKey) (*staking.TokenMovementAccounts, error) {
	globalState, err := e.deriver.GlobalState()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive global state")
	}

	userInfo, err := e.deriver.UserInfo(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive user info")
	}

	userTokenAccount, err := e.deriver.UserTokenAccount(owner)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive user token account")
	}

	vault, err := e.deriver.Vault()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault")
	}

	return &staking.TokenMovementAccounts{
		Owner:            owner,
		GlobalState:      globalState.Address,
		UserInfo:         userInfo.Address,
		UserTokenAccount: userTokenAccount,
		Vault:            vault,
	}, nil
}

// instructionName is used for logging and metrics only.
func instructionName(program *staking.Program, ix solana.Instruction) string {
	name, err := program.InstructionName(ix)
	if err != nil {
		return "unknown"
	}
	return name
}
