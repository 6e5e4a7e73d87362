package stake

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/broadcast"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

func TestClassify(t *testing.T) {
	programErr := customTxError(t, 6006)

	for _, tc := range []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"user rejected", wallet.ErrUserRejected, ErrorClassDefinitive},
		{"wrapped user rejected", errors.Wrap(wallet.ErrUserRejected, "phantom"), ErrorClassDefinitive},
		{"no capability", wallet.ErrNoCapability, ErrorClassUnavailable},
		{"no endpoints", broadcast.ErrNoEndpoints, ErrorClassUnavailable},
		{"strategy unavailable", errStrategyUnavailable, ErrorClassUnavailable},
		{"relay rejected", relay.ErrRejected, ErrorClassDefinitive},
		{"relay unavailable", relay.ErrUnavailable, ErrorClassTransient},
		{"relay rate limited", relay.ErrRateLimited, ErrorClassTransient},
		{"rpc rate limited", solana.ErrRateLimited, ErrorClassTransient},
		{"rpc service error", errors.Wrap(solana.ErrServiceError, "send failed"), ErrorClassTransient},
		{"deadline", context.DeadlineExceeded, ErrorClassTransient},
		{"already processed", txError(t, `"AlreadyProcessed"`), ErrorClassAlreadyProcessed},
		{"duplicate signature", &solana.RPCError{TxError: txError(t, `"DuplicateSignature"`)}, ErrorClassAlreadyProcessed},
		{"blockhash not found", &solana.RPCError{TxError: txError(t, `"BlockhashNotFound"`)}, ErrorClassTransient},
		{"account in use", txError(t, `"AccountInUse"`), ErrorClassTransient},
		{"insufficient fee funds", txError(t, `"InsufficientFundsForFee"`), ErrorClassDefinitive},
		{"program error", programErr, ErrorClassDefinitive},
		{"wrapped program error", errors.Wrap(&solana.RPCError{Message: "simulation failed", TxError: programErr}, "broadcast"), ErrorClassDefinitive},
		{"message already processed", errors.New("This transaction has already been processed"), ErrorClassAlreadyProcessed},
		{"message user rejected", errors.New("User rejected the request."), ErrorClassDefinitive},
		{"message insufficient funds", errors.New("insufficient funds for rent"), ErrorClassDefinitive},
		{"message custom program error", errors.New("failed to send transaction: custom program error: 0x1776"), ErrorClassDefinitive},
		{"message blockhash", errors.New("Blockhash not found"), ErrorClassTransient},
		{"message unsupported", errors.New("signAndSendTransaction is not supported"), ErrorClassUnavailable},
		{"message timeout", errors.New("request timed out"), ErrorClassTransient},
		{"message status code", errors.New("unexpected status 503"), ErrorClassTransient},
		{"unknown", errors.New("something odd"), ErrorClassTransient},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Classify(tc.err))
		})
	}
}

func TestErrorClass_ShouldAdvance(t *testing.T) {
	assert.True(t, ErrorClassTransient.ShouldAdvance())
	assert.True(t, ErrorClassUnavailable.ShouldAdvance())
	assert.False(t, ErrorClassDefinitive.ShouldAdvance())
	assert.False(t, ErrorClassAlreadyProcessed.ShouldAdvance())
}
