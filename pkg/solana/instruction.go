package solana

import (
	"bytes"
	"crypto/ed25519"
)

// AccountMeta describes how an instruction touches an account.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	isPayer   bool
	isProgram bool
}

// NewAccountMeta creates a writable AccountMeta.
func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: true,
	}
}

// NewReadonlyAccountMeta creates a readonly AccountMeta.
func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey: pub,
		IsSigner:  isSigner,
	}
}

// accountOrder sorts account metas the way the runtime expects them in a
// message: payer, signers, writable, then everything else, with programs last.
//
// Reference: https://docs.solana.com/transaction#account-addresses-format
type accountOrder []AccountMeta

func (s accountOrder) Len() int      { return len(s) }
func (s accountOrder) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s accountOrder) Less(i, j int) bool {
	a, b := s[i], s[j]
	switch {
	case a.isPayer != b.isPayer:
		return a.isPayer
	case a.isProgram != b.isProgram:
		return !a.isProgram
	case a.IsSigner != b.IsSigner:
		return a.IsSigner
	case a.IsWritable != b.IsWritable:
		return a.IsWritable
	}
	return bytes.Compare(a.PublicKey, b.PublicKey) < 0
}

// Instruction is a single program invocation within a transaction.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

// NewInstruction creates a new instruction.
func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// References reports whether the instruction references the account, and
// whether any of those references is writable.
func (i Instruction) References(account ed25519.PublicKey) (referenced, writable bool) {
	for _, a := range i.Accounts {
		if !bytes.Equal(a.PublicKey, account) {
			continue
		}

		referenced = true
		if a.IsWritable {
			writable = true
		}
	}
	return referenced, writable
}

// CompiledInstruction is an instruction whose keys have been replaced by
// indexes into the message account list.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}
