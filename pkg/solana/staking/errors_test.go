package staking

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

func TestProgramError(t *testing.T) {
	assert.EqualValues(t, 6000, Unauthorized)
	assert.EqualValues(t, 6005, AmountTooSmall)
	assert.EqualValues(t, 6010, ReferralRateTooHigh)

	assert.Equal(t, "AmountTooSmall (6005): Amount too small", AmountTooSmall.Error())
	assert.Equal(t, "InsufficientStakedAmount", InsufficientStakedAmount.Name())
	assert.Contains(t, PenaltyTooHigh.Error(), "Early unstake penalty too high (max 50%)")
	assert.True(t, NoRewardsToClaim.IsKnown())

	unknown := ProgramError(7000)
	assert.False(t, unknown.IsKnown())
	assert.Equal(t, "unknown staking program error 7000", unknown.Error())
}

func TestAsProgramError(t *testing.T) {
	txErr := parseTxError(t, `{"InstructionError":[0,{"Custom":6006}]}`)

	pe, ok := ProgramErrorFromTransactionError(txErr)
	require.True(t, ok)
	assert.Equal(t, InsufficientStakedAmount, pe)

	pe, ok = AsProgramError(errors.Wrap(txErr, "failed to submit"))
	require.True(t, ok)
	assert.Equal(t, InsufficientStakedAmount, pe)

	pe, ok = AsProgramError(&solana.RPCError{Code: -32002, Message: "simulation failed", TxError: txErr})
	require.True(t, ok)
	assert.Equal(t, InsufficientStakedAmount, pe)

	pe, ok = AsProgramError(errors.Wrap(NoRewardsToClaim, "claim"))
	require.True(t, ok)
	assert.Equal(t, NoRewardsToClaim, pe)

	// Custom codes from other programs (e.g. the token program) are not ours
	_, ok = ProgramErrorFromTransactionError(parseTxError(t, `{"InstructionError":[0,{"Custom":1}]}`))
	assert.False(t, ok)

	_, ok = ProgramErrorFromTransactionError(parseTxError(t, `"BlockhashNotFound"`))
	assert.False(t, ok)

	_, ok = ProgramErrorFromTransactionError(nil)
	assert.False(t, ok)

	_, ok = AsProgramError(errors.New("user rejected the request"))
	assert.False(t, ok)
}

func parseTxError(t *testing.T, raw string) *solana.TransactionError {
	d := json.NewDecoder(bytes.NewBufferString(raw))
	d.UseNumber()

	var v interface{}
	require.NoError(t, d.Decode(&v))

	txErr, err := solana.ParseTransactionError(v)
	require.NoError(t, err)
	return txErr
}
