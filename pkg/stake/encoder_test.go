package stake

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
)

func TestEncoder_TokenMovement(t *testing.T) {
	env := setupTestEnv(t)
	d := NewDeriver(env.program, env.mint, nil)
	e := NewEncoder(env.program, d)
	owner := newKey(t)

	globalState, err := d.GlobalState()
	require.NoError(t, err)
	userInfo, err := d.UserInfo(owner)
	require.NoError(t, err)
	ata, err := d.UserTokenAccount(owner)
	require.NoError(t, err)
	vault, err := d.Vault()
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		build  func() (*PlannedInstruction, error)
		amount *uint64
	}{
		{staking.InstructionStake, func() (*PlannedInstruction, error) { return e.Stake(owner, 10_000_000_000) }, ptr(10_000_000_000)},
		{staking.InstructionUnstake, func() (*PlannedInstruction, error) { return e.Unstake(owner, 1) }, ptr(1)},
		{staking.InstructionClaimRewards, func() (*PlannedInstruction, error) { return e.ClaimRewards(owner) }, nil},
	} {
		planned, err := tc.build()
		require.NoError(t, err, tc.name)
		assert.Empty(t, planned.Creates)

		ix := planned.Instruction
		assert.Equal(t, env.program.ID(), ix.Program)
		assert.Equal(t, staking.InstructionDiscriminator(tc.name), ix.Data[:8], tc.name)
		if tc.amount != nil {
			require.Len(t, ix.Data, 16)
			assert.Equal(t, *tc.amount, binary.LittleEndian.Uint64(ix.Data[8:]))
		} else {
			assert.Len(t, ix.Data, 8)
		}

		require.Len(t, ix.Accounts, 7)
		for i, expected := range []solana.AccountMeta{
			solana.NewAccountMeta(owner, true),
			solana.NewAccountMeta(globalState.Address, false),
			solana.NewAccountMeta(userInfo.Address, false),
			solana.NewAccountMeta(ata, false),
			solana.NewAccountMeta(vault, false),
			solana.NewReadonlyAccountMeta(staking.TOKEN_PROGRAM_ID, false),
			solana.NewReadonlyAccountMeta(staking.SYSTEM_PROGRAM_ID, false),
		} {
			assert.Equal(t, expected, ix.Accounts[i], "%s account %d", tc.name, i)
		}

		assert.Equal(t, tc.name, instructionName(env.program, ix))
	}
}

func TestEncoder_RegisterUser(t *testing.T) {
	env := setupTestEnv(t)
	d := NewDeriver(env.program, env.mint, nil)
	e := NewEncoder(env.program, d)
	owner, referrer := newKey(t), newKey(t)

	userInfo, err := d.UserInfo(owner)
	require.NoError(t, err)

	planned, err := e.RegisterUser(owner, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0}, planned.Instruction.Data[8:])
	require.Len(t, planned.Creates, 1)
	assert.Equal(t, userInfo.Address, planned.Creates[0])

	_, writable := planned.Instruction.References(userInfo.Address)
	assert.True(t, writable)

	planned, err = e.RegisterUser(owner, referrer)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{1}, referrer...), planned.Instruction.Data[8:])

	_, err = e.RegisterUser(owner, owner)
	assert.ErrorIs(t, err, ErrSelfReferral)

	_, err = e.RegisterUser(owner, make([]byte, 5))
	assert.Error(t, err)
}

func TestEncoder_CompoundRewards(t *testing.T) {
	env := setupTestEnv(t)
	e := NewEncoder(env.program, NewDeriver(env.program, env.mint, nil))

	planned, err := e.CompoundRewards(newKey(t))
	require.NoError(t, err)
	assert.Equal(t, staking.InstructionDiscriminator(staking.InstructionCompoundRewards), planned.Instruction.Data)
	assert.Len(t, planned.Instruction.Accounts, 4)
}

func TestEncoder_RejectsZeroAmounts(t *testing.T) {
	env := setupTestEnv(t)
	e := NewEncoder(env.program, NewDeriver(env.program, env.mint, nil))
	owner := newKey(t)

	_, err := e.Stake(owner, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.Unstake(owner, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func ptr(v uint64) *uint64 {
	return &v
}
