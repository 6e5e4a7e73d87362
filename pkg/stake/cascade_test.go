package stake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

func newTestCascade(t *testing.T, overrides *testOverrides) *Cascade {
	configProvider := withManualTestOverrides(overrides)
	cascade, err := NewCascade(configProvider, NewAssembler(configProvider))
	require.NoError(t, err)
	return cascade
}

func (e *testEnv) planStake(t *testing.T, session *Session, cascade *Cascade) ([]*PlannedInstruction, *Assembled) {
	ix, err := NewEncoder(session.Program, session.Deriver).Stake(session.Owner(), 10_000_000_000)
	require.NoError(t, err)

	plan := []*PlannedInstruction{ix}
	assembled, err := cascade.assembler.Assemble(e.ctx, session, plan, false)
	require.NoError(t, err)
	return plan, assembled
}

func TestCascade_FirstStrategySucceeds(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	session := env.newSession(t, sender, nil)
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)

	assert.Equal(t, CascadeStateSucceeded, result.State)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, StrategyWalletSend, result.Attempts[0].Strategy)
	assert.Equal(t, AttemptOutcomeBroadcast, result.Attempts[0].Outcome)
	assert.Equal(t, assembled.Transaction.Message.RecentBlockhash, result.Attempts[0].Blockhash)
	assert.True(t, result.Broadcast)

	submitted := env.client.getSubmitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, submitted[0].Signatures[0], result.Signature)
	assert.Zero(t, env.client.freshCalls)
}

func TestCascade_DefinitiveRejectionStops(t *testing.T) {
	for _, tc := range []struct {
		name    string
		err     error
		outcome AttemptOutcome
	}{
		{"user rejected", wallet.ErrUserRejected, AttemptOutcomeSignerRejected},
		{"insufficient funds", errors.New("Transaction simulation failed: Attempt to debit an account but found no record of a prior credit. insufficient funds"), AttemptOutcomeNetworkRejected},
		{"program error", &solana.RPCError{Code: -32002, Message: "failed", TxError: txError(t, `"InsufficientFundsForFee"`)}, AttemptOutcomeNetworkRejected},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setupTestEnv(t)
			sender := newFakeSender(t, env.client)
			sender.errBeforeSend = tc.err
			r := &fakeRelay{client: env.client}
			session := env.newSession(t, sender, r)
			cascade := newTestCascade(t, &testOverrides{})

			plan, assembled := env.planStake(t, session, cascade)
			freshBefore := env.client.freshCalls

			result, err := cascade.Submit(env.ctx, session, plan, assembled)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.err) || err == tc.err)

			assert.Equal(t, CascadeStateRejected, result.State)
			require.Len(t, result.Attempts, 1)
			assert.Equal(t, tc.outcome, result.Attempts[0].Outcome)
			assert.Equal(t, ErrorClassDefinitive, result.Attempts[0].Class)

			// Nothing else was tried
			assert.Equal(t, freshBefore, env.client.freshCalls)
			assert.Zero(t, sender.signCalls())
			assert.Zero(t, r.calls)
			assert.Empty(t, env.client.getSubmitted())
			assert.False(t, result.Broadcast)
		})
	}
}

func TestCascade_TransientAdvancesWithFreshBlockhash(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	sender.errBeforeSend = errors.New("WalletSendTransactionError: Unexpected error")
	session := env.newSession(t, sender, nil)
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)
	assert.Equal(t, CascadeStateSucceeded, result.State)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, StrategyWalletSend, result.Attempts[0].Strategy)
	assert.Equal(t, AttemptOutcomeNetworkRejected, result.Attempts[0].Outcome)
	assert.Equal(t, ErrorClassTransient, result.Attempts[0].Class)

	assert.Equal(t, StrategySignAndBroadcast, result.Attempts[1].Strategy)
	assert.Equal(t, AttemptOutcomeBroadcast, result.Attempts[1].Outcome)
	assert.NotEqual(t, result.Attempts[0].Blockhash, result.Attempts[1].Blockhash)
	assert.Equal(t, 1, env.client.freshCalls)

	submitted := env.client.getSubmitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, result.Attempts[1].Blockhash, submitted[0].Message.RecentBlockhash)
	assert.NotEqual(t, assembled.Transaction.Message.RecentBlockhash, submitted[0].Message.RecentBlockhash)
	assert.Equal(t, env.client.blockHeight+150, result.LastValidBlockHeight)
}

func TestCascade_UnavailableStrategiesAdvance(t *testing.T) {
	env := setupTestEnv(t)
	session := env.newSession(t, newFakeSigner(t), nil)
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)
	assert.Equal(t, CascadeStateSucceeded, result.State)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, AttemptOutcomeUnavailable, result.Attempts[0].Outcome)
	assert.Equal(t, ErrorClassUnavailable, result.Attempts[0].Class)
	assert.Equal(t, StrategySignAndBroadcast, result.Attempts[1].Strategy)
	assert.Equal(t, AttemptOutcomeBroadcast, result.Attempts[1].Outcome)
}

func TestCascade_Exhausted(t *testing.T) {
	env := setupTestEnv(t)
	session := env.newSession(t, newFakeSigner(t), nil)
	env.client.submitErrs = []error{solana.ErrServiceError, solana.ErrServiceError, solana.ErrServiceError}
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	assert.ErrorIs(t, err, ErrCascadeExhausted)
	assert.Equal(t, CascadeStateExhausted, result.State)

	require.Len(t, result.Attempts, 3)
	assert.Equal(t, AttemptOutcomeUnavailable, result.Attempts[0].Outcome)
	assert.Equal(t, AttemptOutcomeNetworkRejected, result.Attempts[1].Outcome)
	assert.Equal(t, AttemptOutcomeUnavailable, result.Attempts[2].Outcome)

	// Bounded broadcast retry of one signed transaction
	assert.Len(t, env.client.getSubmitted(), 3)
	require.Len(t, result.Candidates, 1)
	assert.True(t, result.Broadcast)
}

func TestCascade_RelayFallback(t *testing.T) {
	env := setupTestEnv(t)
	signer := newFakeSigner(t)
	r := &fakeRelay{client: env.client}
	session := env.newSession(t, signer, r)

	env.client.submitErrs = []error{solana.ErrServiceError, solana.ErrServiceError, solana.ErrServiceError}
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	// Broadcast failures land nothing, the relay's submission lands.
	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)

	assert.Equal(t, CascadeStateSucceeded, result.State)
	require.Len(t, result.Attempts, 3)
	assert.Equal(t, AttemptOutcomeUnavailable, result.Attempts[0].Outcome)
	assert.Equal(t, AttemptOutcomeNetworkRejected, result.Attempts[1].Outcome)
	assert.Equal(t, StrategyRelay, result.Attempts[2].Strategy)
	assert.Equal(t, AttemptOutcomeBroadcast, result.Attempts[2].Outcome)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []string{"unknown"}, r.names)

	// Each strategy after the first got its own fresh blockhash
	assert.Equal(t, 2, env.client.freshCalls)
	assert.NotEqual(t, result.Attempts[1].Blockhash, result.Attempts[2].Blockhash)
	assert.Len(t, result.Candidates, 2)
}

func TestCascade_BroadcastRetriesTransientOnly(t *testing.T) {
	t.Run("transient", func(t *testing.T) {
		env := setupTestEnv(t)
		session := env.newSession(t, newFakeSigner(t), nil)
		env.client.submitErrs = []error{solana.ErrRateLimited, solana.ErrServiceError}
		cascade := newTestCascade(t, &testOverrides{})

		plan, assembled := env.planStake(t, session, cascade)

		result, err := cascade.Submit(env.ctx, session, plan, assembled)
		require.NoError(t, err)
		assert.Equal(t, CascadeStateSucceeded, result.State)

		submitted := env.client.getSubmitted()
		require.Len(t, submitted, 3)
		// The same signed bytes every time
		assert.Equal(t, submitted[0].Signatures, submitted[2].Signatures)
	})

	t.Run("definitive", func(t *testing.T) {
		env := setupTestEnv(t)
		session := env.newSession(t, newFakeSigner(t), &fakeRelay{client: env.client})
		env.client.submitErrs = []error{&solana.RPCError{
			Code:    -32002,
			Message: "Transaction simulation failed",
			TxError: txError(t, `"InsufficientFundsForFee"`),
		}}
		env.client.landOnSubmit = false
		cascade := newTestCascade(t, &testOverrides{})

		plan, assembled := env.planStake(t, session, cascade)

		result, err := cascade.Submit(env.ctx, session, plan, assembled)
		require.Error(t, err)
		assert.Equal(t, CascadeStateRejected, result.State)
		assert.Len(t, env.client.getSubmitted(), 1)
		require.Len(t, result.Attempts, 2)
		assert.Equal(t, AttemptOutcomeNetworkRejected, result.Attempts[1].Outcome)
	})
}

func TestCascade_AmbiguousFailureThatLandedSucceedsOnce(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	// The wallet sent the transaction, then reported a failure
	sender.errAfterSend = errors.New("Unexpected error")
	session := env.newSession(t, sender, &fakeRelay{client: env.client})
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)

	assert.Equal(t, CascadeStateSucceeded, result.State)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, ErrorClassTransient, result.Attempts[0].Class)

	submitted := env.client.getSubmitted()
	require.Len(t, submitted, 1)
	assert.Equal(t, submitted[0].Signatures[0], result.Signature)
	assert.Zero(t, env.client.freshCalls)
}

func TestCascade_CandidateLandedWithError(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	sender.errAfterSend = errors.New("Unexpected error")
	env.client.landErr = txError(t, `"InstructionError"`)
	session := env.newSession(t, sender, nil)
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.Error(t, err)
	assert.Equal(t, CascadeStateRejected, result.State)
	assert.NotEqual(t, solana.Signature{}, result.Signature)
	assert.Len(t, env.client.getSubmitted(), 1)
}

func TestCascade_AlreadyProcessed(t *testing.T) {
	env := setupTestEnv(t)
	session := env.newSession(t, newFakeSigner(t), nil)
	env.client.submitErrs = []error{&solana.RPCError{
		Code:    -32002,
		Message: "already processed",
		TxError: txError(t, `"AlreadyProcessed"`),
	}}
	env.client.landOnSubmit = false
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)
	assert.Equal(t, CascadeStateSucceeded, result.State)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, AttemptOutcomeBroadcast, result.Attempts[1].Outcome)
	assert.Equal(t, env.client.getSubmitted()[0].Signatures[0], result.Signature)
}

func TestCascade_CanceledBeforeBroadcast(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	session := env.newSession(t, sender, nil)
	cascade := newTestCascade(t, &testOverrides{})

	plan, assembled := env.planStake(t, session, cascade)

	ctx, cancel := context.WithCancel(env.ctx)
	cancel()

	result, err := cascade.Submit(ctx, session, plan, assembled)
	assert.Equal(t, ErrCanceled, err)
	assert.Equal(t, CascadeStateCanceled, result.State)
	assert.False(t, result.Broadcast)
	assert.Empty(t, result.Attempts)
	assert.Empty(t, env.client.getSubmitted())
}

func TestCascade_StrategyOrderIsConfigurable(t *testing.T) {
	env := setupTestEnv(t)
	sender := newFakeSender(t, env.client)
	r := &fakeRelay{client: env.client}
	session := env.newSession(t, sender, r)
	cascade := newTestCascade(t, &testOverrides{strategies: "relay,wallet_send"})

	plan, assembled := env.planStake(t, session, cascade)

	result, err := cascade.Submit(env.ctx, session, plan, assembled)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, StrategyRelay, result.Attempts[0].Strategy)
	assert.Equal(t, 1, r.calls)
	assert.Equal(t, []string{"fake-sender"}, r.names)
	assert.Zero(t, sender.sends)
}

func TestParseStrategies(t *testing.T) {
	configProvider := withManualTestOverrides(&testOverrides{})

	strategies, err := ParseStrategies(configProvider, " sign_and_broadcast , relay ")
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, StrategySignAndBroadcast, strategies[0].Name())
	assert.Equal(t, StrategyRelay, strategies[1].Name())

	_, err = ParseStrategies(configProvider, "wallet_send,carrier_pigeon")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = ParseStrategies(configProvider, "relay,relay")
	assert.Error(t, err)

	_, err = ParseStrategies(configProvider, " , ")
	assert.Error(t, err)
}

func TestCascadeStateMachine(t *testing.T) {
	sm := &cascadeStateMachine{}
	assert.ErrorIs(t, sm.attempt(1), ErrInvalidCascadeStateTransition)
	assert.ErrorIs(t, sm.finish(CascadeStateSucceeded), ErrInvalidCascadeStateTransition)
	assert.ErrorIs(t, sm.finish(CascadeStateAttempting), ErrInvalidCascadeStateTransition)

	require.NoError(t, sm.attempt(0))
	assert.ErrorIs(t, sm.attempt(0), ErrInvalidCascadeStateTransition)
	assert.ErrorIs(t, sm.attempt(2), ErrInvalidCascadeStateTransition)
	require.NoError(t, sm.attempt(1))
	require.NoError(t, sm.finish(CascadeStateSucceeded))

	assert.ErrorIs(t, sm.attempt(2), ErrInvalidCascadeStateTransition)
	assert.ErrorIs(t, sm.finish(CascadeStateExhausted), ErrInvalidCascadeStateTransition)

	sm = &cascadeStateMachine{}
	require.NoError(t, sm.finish(CascadeStateCanceled))
	assert.True(t, sm.state.IsTerminal())
}

var _ relay.Relay = (*fakeRelay)(nil)
