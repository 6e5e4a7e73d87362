package token

import (
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/system"
)

// AssociatedTokenAccountProgramKey  is the address of the associated token account program that should be used.
//
// Current key: ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL
var AssociatedTokenAccountProgramKey = ed25519.PublicKey{140, 151, 37, 143, 78, 36, 137, 241, 187, 61, 16, 41, 20, 142, 13, 131, 11, 90, 19, 153, 218, 255, 16, 132, 4, 142, 123, 216, 219, 233, 248, 89}

var ErrOwnerOffCurve = errors.New("token owner is off curve")

const commandCreateIdempotent byte = 1

// GetAssociatedAccount returns the associated account address for an SPL
// token. The owner must be a wallet key; program derived owners need
// GetAssociatedAccountAllowOffCurve.
//
// Reference: https://spl.solana.com/associated-token-account#finding-the-associated-token-account-address
func GetAssociatedAccount(wallet, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	if !solana.IsOnCurve(wallet) {
		return nil, ErrOwnerOffCurve
	}
	return GetAssociatedAccountAllowOffCurve(wallet, mint)
}

// GetAssociatedAccountAllowOffCurve derives the associated account for any
// owner, including program derived addresses such as a vault authority.
func GetAssociatedAccountAllowOffCurve(owner, mint ed25519.PublicKey) (ed25519.PublicKey, error) {
	return solana.FindProgramAddress(
		AssociatedTokenAccountProgramKey,
		owner,
		ProgramKey,
		mint,
	)
}

// CreateAssociatedTokenAccountIdempotent is a no-op on chain if the account
// already exists, which makes it safe to prepend on every submission.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/0639953c7dd0f5228c3ceda3ba68fece3b46ff1d/associated-token-account/program/src/lib.rs#L54
func CreateAssociatedTokenAccountIdempotent(subsidizer, wallet, mint ed25519.PublicKey) (solana.Instruction, ed25519.PublicKey, error) {
	addr, err := GetAssociatedAccountAllowOffCurve(wallet, mint)
	if err != nil {
		return solana.Instruction{}, nil, err
	}

	return solana.NewInstruction(
		AssociatedTokenAccountProgramKey,
		[]byte{commandCreateIdempotent},
		solana.NewAccountMeta(subsidizer, true),
		solana.NewAccountMeta(addr, false),
		solana.NewReadonlyAccountMeta(wallet, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.ProgramKey, false),
		solana.NewReadonlyAccountMeta(ProgramKey, false),
	), addr, nil
}
