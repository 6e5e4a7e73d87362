package staking

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/binary"
)

var (
	ErrIDLMismatch = errors.New("idl does not match the expected instruction layout")
	ErrIDLNotFound = errors.New("idl account not found")
	ErrInvalidIDL  = errors.New("invalid idl")
)

const (
	idlAccountHeader = DiscriminatorSize + 32 + 4 // discriminator, authority, data length

	// Bounds decompression of on-chain data.
	maxIDLSize = 1 << 20
)

// IDL is the subset of an Anchor IDL needed to build instructions. Both the
// legacy (< 0.30) and current formats are accepted.
type IDL struct {
	Address      string           `json:"address,omitempty"`
	Name         string           `json:"name,omitempty"`
	Version      string           `json:"version,omitempty"`
	Metadata     *IDLMetadata     `json:"metadata,omitempty"`
	Instructions []IDLInstruction `json:"instructions"`
}

type IDLMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type IDLInstruction struct {
	Name          string   `json:"name"`
	Discriminator []int    `json:"discriminator,omitempty"`
	Args          []IDLArg `json:"args"`
}

type IDLArg struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

var expectedArgs = map[string][]string{
	InstructionRegisterUser:    {"option<pubkey>"},
	InstructionStake:           {"u64"},
	InstructionUnstake:         {"u64"},
	InstructionClaimRewards:    {},
	InstructionCompoundRewards: {},
}

// Instructions that must be present for the pipeline to operate.
var requiredInstructions = []string{
	InstructionRegisterUser,
	InstructionStake,
	InstructionUnstake,
	InstructionClaimRewards,
}

func ParseIDL(data []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(data, &idl); err != nil {
		return nil, errors.Wrap(ErrInvalidIDL, err.Error())
	}
	if len(idl.Instructions) == 0 {
		return nil, errors.Wrap(ErrInvalidIDL, "no instructions")
	}
	return &idl, nil
}

func LoadIDLFile(path string) (*IDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read idl file %s", path)
	}
	return ParseIDL(data)
}

// FetchIDL reads the IDL that `anchor idl init` published for the program.
func (p *Program) FetchIDL(ctx context.Context, client solana.Client, commitment solana.Commitment) (*IDL, error) {
	address, err := p.GetIDLAddress()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive idl address")
	}

	info, err := client.GetAccountInfo(ctx, address, commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrIDLNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get idl account")
	}

	return decodeIDLAccount(info.Data)
}

func decodeIDLAccount(data []byte) (*IDL, error) {
	if len(data) < idlAccountHeader {
		return nil, errors.Wrap(ErrInvalidIDL, "account too small")
	}

	r := binary.NewReader(data)
	r.Bytes(DiscriminatorSize)
	r.Key32() // authority
	size := r.Uint32()
	compressed := r.Bytes(int(size))
	if err := r.Err(); err != nil {
		return nil, errors.Wrap(ErrInvalidIDL, "truncated idl data")
	}

	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidIDL, err.Error())
	}
	defer zr.Close()

	raw, err := io.ReadAll(io.LimitReader(zr, maxIDLSize))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidIDL, err.Error())
	}
	return ParseIDL(raw)
}

// discriminators validates the IDL against the expected layout and returns
// the discriminator of every known instruction it declares.
func (idl *IDL) discriminators() (map[string][]byte, error) {
	declared := make(map[string]IDLInstruction)
	for _, ix := range idl.Instructions {
		declared[snakeCase(ix.Name)] = ix
	}

	for _, name := range requiredInstructions {
		if _, ok := declared[name]; !ok {
			return nil, errors.Wrapf(ErrIDLMismatch, "missing instruction %s", name)
		}
	}

	result := make(map[string][]byte)
	for name, want := range expectedArgs {
		ix, ok := declared[name]
		if !ok {
			continue
		}

		if len(ix.Args) != len(want) {
			return nil, errors.Wrapf(ErrIDLMismatch, "%s: expected %d args, got %d", name, len(want), len(ix.Args))
		}
		for i, arg := range ix.Args {
			actual, err := normalizeType(arg.Type)
			if err != nil {
				return nil, errors.Wrapf(ErrIDLMismatch, "%s.%s: %s", name, arg.Name, err.Error())
			}
			if actual != want[i] {
				return nil, errors.Wrapf(ErrIDLMismatch, "%s.%s: expected %s, got %s", name, arg.Name, want[i], actual)
			}
		}

		if len(ix.Discriminator) == 0 {
			result[name] = InstructionDiscriminator(name)
			continue
		}
		if len(ix.Discriminator) != DiscriminatorSize {
			return nil, errors.Wrapf(ErrIDLMismatch, "%s: discriminator length %d", name, len(ix.Discriminator))
		}
		d := make([]byte, DiscriminatorSize)
		for i, v := range ix.Discriminator {
			if v < 0 || v > 255 {
				return nil, errors.Wrapf(ErrIDLMismatch, "%s: discriminator byte %d out of range", name, v)
			}
			d[i] = byte(v)
		}
		result[name] = d
	}
	return result, nil
}

// normalizeType renders an IDL type in a single canonical form, so that
// "publicKey" and "pubkey" compare equal across IDL versions.
func normalizeType(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return normalizeTypeValue(v)
}

func normalizeTypeValue(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		if t == "publicKey" {
			return "pubkey", nil
		}
		return t, nil
	case map[string]interface{}:
		if len(t) != 1 {
			return "", errors.New("unsupported compound type")
		}
		for k, inner := range t {
			s, err := normalizeTypeValue(inner)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s<%s>", k, s), nil
		}
	}
	return "", errors.Errorf("unsupported type %v", v)
}

// snakeCase converts legacy camelCase instruction names.
func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
