package staking

import (
	"bytes"
	"compress/zlib"
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/binary"
)

const legacyIDL = `{
  "version": "0.1.0",
  "name": "referral_staking",
  "instructions": [
    {"name": "registerUser", "accounts": [], "args": [{"name": "referrer", "type": {"option": "publicKey"}}]},
    {"name": "stake", "accounts": [], "args": [{"name": "amount", "type": "u64"}]},
    {"name": "unstake", "accounts": [], "args": [{"name": "amount", "type": "u64"}]},
    {"name": "claimRewards", "accounts": [], "args": []}
  ]
}`

const currentIDL = `{
  "address": "11111111111111111111111111111111",
  "metadata": {"name": "referral_staking", "version": "0.1.0"},
  "instructions": [
    {"name": "register_user", "discriminator": [1, 2, 3, 4, 5, 6, 7, 8], "args": [{"name": "referrer", "type": {"option": "pubkey"}}]},
    {"name": "stake", "discriminator": [206, 176, 202, 18, 200, 209, 179, 108], "args": [{"name": "amount", "type": "u64"}]},
    {"name": "unstake", "discriminator": [90, 95, 107, 42, 205, 124, 50, 225], "args": [{"name": "amount", "type": "u64"}]},
    {"name": "claim_rewards", "discriminator": [4, 144, 132, 71, 116, 23, 151, 80], "args": []},
    {"name": "compound_rewards", "discriminator": [9, 9, 9, 9, 9, 9, 9, 9], "args": []}
  ]
}`

func TestProgram_WithIDL(t *testing.T) {
	p := newTestProgram(t)

	idl, err := ParseIDL([]byte(legacyIDL))
	require.NoError(t, err)
	withLegacy, err := p.WithIDL(idl)
	require.NoError(t, err)
	for _, name := range []string{InstructionRegisterUser, InstructionStake, InstructionUnstake, InstructionClaimRewards, InstructionCompoundRewards} {
		assert.Equal(t, InstructionDiscriminator(name), withLegacy.Discriminator(name), name)
	}

	idl, err = ParseIDL([]byte(currentIDL))
	require.NoError(t, err)
	withCurrent, err := p.WithIDL(idl)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, withCurrent.Discriminator(InstructionRegisterUser))
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9, 9, 9}, withCurrent.Discriminator(InstructionCompoundRewards))
	assert.Equal(t, InstructionDiscriminator(InstructionStake), withCurrent.Discriminator(InstructionStake))

	// The original program is left untouched
	assert.Equal(t, InstructionDiscriminator(InstructionRegisterUser), p.Discriminator(InstructionRegisterUser))

	ix := withCurrent.NewRegisterUserInstruction(
		&RegisterUserInstructionAccounts{Owner: newKey(t), UserInfo: newKey(t)},
		&RegisterUserInstructionArgs{},
	)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0}, ix.Data)
}

func TestProgram_WithIDLMismatch(t *testing.T) {
	p := newTestProgram(t)

	for _, raw := range []string{
		// missing instruction
		`{"instructions": [{"name": "stake", "args": [{"name": "amount", "type": "u64"}]}]}`,
		// wrong arg type
		`{"instructions": [
			{"name": "register_user", "args": [{"name": "referrer", "type": {"option": "pubkey"}}]},
			{"name": "stake", "args": [{"name": "amount", "type": "u32"}]},
			{"name": "unstake", "args": [{"name": "amount", "type": "u64"}]},
			{"name": "claim_rewards", "args": []}
		]}`,
		// extra arg
		`{"instructions": [
			{"name": "register_user", "args": [{"name": "referrer", "type": {"option": "pubkey"}}]},
			{"name": "stake", "args": [{"name": "amount", "type": "u64"}]},
			{"name": "unstake", "args": [{"name": "amount", "type": "u64"}]},
			{"name": "claim_rewards", "args": [{"name": "all", "type": "bool"}]}
		]}`,
		// bad discriminator
		`{"instructions": [
			{"name": "register_user", "args": [{"name": "referrer", "type": {"option": "pubkey"}}]},
			{"name": "stake", "discriminator": [1, 2, 3], "args": [{"name": "amount", "type": "u64"}]},
			{"name": "unstake", "args": [{"name": "amount", "type": "u64"}]},
			{"name": "claim_rewards", "args": []}
		]}`,
	} {
		idl, err := ParseIDL([]byte(raw))
		require.NoError(t, err)

		_, err = p.WithIDL(idl)
		assert.ErrorIs(t, err, ErrIDLMismatch)
	}

	_, err := ParseIDL([]byte(`{"instructions": []}`))
	assert.ErrorIs(t, err, ErrInvalidIDL)

	_, err = ParseIDL([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidIDL)
}

func TestLoadIDLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idl.json")
	require.NoError(t, os.WriteFile(path, []byte(legacyIDL), 0o600))

	idl, err := LoadIDLFile(path)
	require.NoError(t, err)
	assert.Equal(t, "referral_staking", idl.Name)
	assert.Len(t, idl.Instructions, 4)

	_, err = LoadIDLFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

type fakeAccountReader struct {
	solana.Client
	accounts map[string]solana.AccountInfo
}

func (f *fakeAccountReader) GetAccountInfo(_ context.Context, account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	info, ok := f.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

func TestProgram_FetchIDL(t *testing.T) {
	p := newTestProgram(t)
	client := &fakeAccountReader{accounts: map[string]solana.AccountInfo{}}

	_, err := p.FetchIDL(context.Background(), client, solana.CommitmentConfirmed)
	assert.Equal(t, ErrIDLNotFound, err)

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	_, err = zw.Write([]byte(currentIDL))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	w := binary.NewWriter(0)
	w.PutBytes(AccountDiscriminator("IdlAccount"))
	w.PutKey32(newKey(t))
	w.PutUint32(uint32(compressed.Len()))
	w.PutBytes(compressed.Bytes())
	w.PutBytes(make([]byte, 64)) // unused capacity

	address, err := p.GetIDLAddress()
	require.NoError(t, err)
	client.accounts[string(address)] = solana.AccountInfo{Data: w.Bytes()}

	idl, err := p.FetchIDL(context.Background(), client, solana.CommitmentConfirmed)
	require.NoError(t, err)
	require.Len(t, idl.Instructions, 5)
	assert.Equal(t, "referral_staking", idl.Metadata.Name)

	client.accounts[string(address)] = solana.AccountInfo{Data: w.Bytes()[:idlAccountHeader+4]}
	_, err = p.FetchIDL(context.Background(), client, solana.CommitmentConfirmed)
	assert.ErrorIs(t, err, ErrInvalidIDL)
}
