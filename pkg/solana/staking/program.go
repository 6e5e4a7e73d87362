package staking

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/system"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/token"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

const DiscriminatorSize = 8

// Instruction names, as declared by the program.
const (
	InstructionRegisterUser    = "register_user"
	InstructionStake           = "stake"
	InstructionUnstake         = "unstake"
	InstructionClaimRewards    = "claim_rewards"
	InstructionCompoundRewards = "compound_rewards"
)

var (
	SYSTEM_PROGRAM_ID  = system.ProgramKey
	SYSVAR_RENT_PUBKEY = system.RentSysVar
	TOKEN_PROGRAM_ID   = token.ProgramKey
)

// Program binds instruction builders and address derivation to a deployed
// staking program. The program id is deployment configuration, so nothing in
// this package hardcodes it.
type Program struct {
	id             ed25519.PublicKey
	discriminators map[string][]byte
}

// NewProgram returns a Program using the standard Anchor discriminators.
func NewProgram(id ed25519.PublicKey) (*Program, error) {
	if len(id) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(ErrInvalidProgram, "length %d", len(id))
	}

	p := &Program{
		id:             append(ed25519.PublicKey{}, id...),
		discriminators: make(map[string][]byte),
	}
	for _, name := range []string{
		InstructionRegisterUser,
		InstructionStake,
		InstructionUnstake,
		InstructionClaimRewards,
		InstructionCompoundRewards,
	} {
		p.discriminators[name] = InstructionDiscriminator(name)
	}
	return p, nil
}

func (p *Program) ID() ed25519.PublicKey {
	return p.id
}

// Discriminator returns the 8 byte prefix for the named instruction.
func (p *Program) Discriminator(name string) []byte {
	return p.discriminators[name]
}

// WithIDL returns a copy of the program whose discriminators come from the
// IDL. The IDL must describe every instruction with the expected arguments.
func (p *Program) WithIDL(idl *IDL) (*Program, error) {
	discriminators, err := idl.discriminators()
	if err != nil {
		return nil, err
	}

	cloned := &Program{
		id:             p.id,
		discriminators: make(map[string][]byte, len(p.discriminators)),
	}
	for name, d := range p.discriminators {
		cloned.discriminators[name] = d
	}
	for name, d := range discriminators {
		cloned.discriminators[name] = d
	}
	return cloned, nil
}

// InstructionDiscriminator is Anchor's sha256("global:<name>")[:8].
func InstructionDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("global:" + name))
	return h[:DiscriminatorSize]
}

// AccountDiscriminator is Anchor's sha256("account:<Name>")[:8].
func AccountDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("account:" + name))
	return h[:DiscriminatorSize]
}

// InstructionName identifies which instruction produced data, if any.
func (p *Program) InstructionName(ix solana.Instruction) (string, error) {
	if !bytes.Equal(ix.Program, p.id) {
		return "", ErrInvalidProgram
	}
	if len(ix.Data) < DiscriminatorSize {
		return "", ErrInvalidInstructionData
	}
	for name, d := range p.discriminators {
		if bytes.Equal(ix.Data[:DiscriminatorSize], d) {
			return name, nil
		}
	}
	return "", ErrInvalidInstructionData
}
