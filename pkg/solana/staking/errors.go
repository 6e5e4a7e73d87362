package staking

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

type ProgramError uint32

// Anchor numbers user defined errors from 6000.
const (
	Unauthorized ProgramError = iota + 0x1770
	InvalidOwner
	InvalidMint
	InvalidVault
	InvalidMintAuthority
	AmountTooSmall
	InsufficientStakedAmount
	NoRewardsToClaim
	InsufficientRewardPool
	PenaltyTooHigh
	ReferralRateTooHigh
)

var programErrorMessages = map[ProgramError]string{
	Unauthorized:             "Unauthorized operation",
	InvalidOwner:             "Invalid owner",
	InvalidMint:              "Invalid mint",
	InvalidVault:             "Invalid vault",
	InvalidMintAuthority:     "Invalid mint authority",
	AmountTooSmall:           "Amount too small",
	InsufficientStakedAmount: "Insufficient staked amount",
	NoRewardsToClaim:         "No rewards to claim",
	InsufficientRewardPool:   "Insufficient reward pool",
	PenaltyTooHigh:           "Early unstake penalty too high (max 50%)",
	ReferralRateTooHigh:      "Referral reward rate too high (max 20%)",
}

var programErrorNames = map[ProgramError]string{
	Unauthorized:             "Unauthorized",
	InvalidOwner:             "InvalidOwner",
	InvalidMint:              "InvalidMint",
	InvalidVault:             "InvalidVault",
	InvalidMintAuthority:     "InvalidMintAuthority",
	AmountTooSmall:           "AmountTooSmall",
	InsufficientStakedAmount: "InsufficientStakedAmount",
	NoRewardsToClaim:         "NoRewardsToClaim",
	InsufficientRewardPool:   "InsufficientRewardPool",
	PenaltyTooHigh:           "PenaltyTooHigh",
	ReferralRateTooHigh:      "ReferralRateTooHigh",
}

func (e ProgramError) Error() string {
	msg, ok := programErrorMessages[e]
	if !ok {
		return fmt.Sprintf("unknown staking program error %d", uint32(e))
	}
	return fmt.Sprintf("%s (%d): %s", programErrorNames[e], uint32(e), msg)
}

func (e ProgramError) Name() string {
	return programErrorNames[e]
}

func (e ProgramError) Code() uint32 {
	return uint32(e)
}

// IsKnown reports whether e is declared by the program.
func (e ProgramError) IsKnown() bool {
	_, ok := programErrorMessages[e]
	return ok
}

// ProgramErrorFromTransactionError extracts the program's custom error from a
// failed transaction. It reports false for runtime errors and for custom codes
// outside the program's range.
func ProgramErrorFromTransactionError(txErr *solana.TransactionError) (ProgramError, bool) {
	if txErr == nil {
		return 0, false
	}

	code, ok := txErr.CustomErrorCode()
	if !ok || code < 0 {
		return 0, false
	}

	pe := ProgramError(code)
	return pe, pe.IsKnown()
}

// AsProgramError walks err's chain for a transaction error carrying one of the
// program's custom codes.
func AsProgramError(err error) (ProgramError, bool) {
	var pe ProgramError
	if errors.As(err, &pe) {
		return pe, true
	}

	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		return ProgramErrorFromTransactionError(txErr)
	}

	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		return ProgramErrorFromTransactionError(rpcErr.TxError)
	}

	return 0, false
}
