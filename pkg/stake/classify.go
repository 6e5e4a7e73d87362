package stake

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/broadcast"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

// ErrorClass determines whether the cascade moves on to its next strategy.
type ErrorClass uint8

const (
	// ErrorClassTransient failures may succeed through another path.
	ErrorClassTransient ErrorClass = iota

	// ErrorClassDefinitive failures would fail the same way anywhere. The
	// cascade stops.
	ErrorClassDefinitive

	// ErrorClassAlreadyProcessed means the network already has the
	// transaction, which counts as a broadcast.
	ErrorClassAlreadyProcessed

	// ErrorClassUnavailable means the strategy could not be attempted at all.
	ErrorClassUnavailable
)

func (c ErrorClass) String() string {
	switch c {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassDefinitive:
		return "definitive"
	case ErrorClassAlreadyProcessed:
		return "already_processed"
	case ErrorClassUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// ShouldAdvance reports whether the cascade tries the next strategy.
func (c ErrorClass) ShouldAdvance() bool {
	return c == ErrorClassTransient || c == ErrorClassUnavailable
}

var errStrategyUnavailable = errors.New("strategy unavailable")

// Lowercase message fragments, checked in order after the structured checks
// find nothing.
var messageClasses = []struct {
	fragment string
	class    ErrorClass
}{
	{"already processed", ErrorClassAlreadyProcessed},
	{"already been processed", ErrorClassAlreadyProcessed},
	{"user rejected", ErrorClassDefinitive},
	{"user denied", ErrorClassDefinitive},
	{"rejected the request", ErrorClassDefinitive},
	{"insufficient funds", ErrorClassDefinitive},
	{"insufficient lamports", ErrorClassDefinitive},
	{"custom program error", ErrorClassDefinitive},
	{"invalid account data", ErrorClassDefinitive},
	{"blockhash not found", ErrorClassTransient},
	{"block height exceeded", ErrorClassTransient},
	{"unexpected error", ErrorClassTransient},
	{"not supported", ErrorClassUnavailable},
	{"not implemented", ErrorClassUnavailable},
	{"timeout", ErrorClassTransient},
	{"timed out", ErrorClassTransient},
	{"network", ErrorClassTransient},
	{"429", ErrorClassTransient},
	{"503", ErrorClassTransient},
}

// Classify maps a strategy failure onto an ErrorClass. Structured errors are
// inspected first, then the lowercase message. Anything unrecognized is
// treated as transient, since a definitive classification would end the
// cascade on a guess.
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorClassTransient
	}

	switch {
	case errors.Is(err, wallet.ErrUserRejected):
		return ErrorClassDefinitive
	case errors.Is(err, errStrategyUnavailable),
		errors.Is(err, wallet.ErrNoCapability),
		errors.Is(err, broadcast.ErrNoEndpoints):
		return ErrorClassUnavailable
	case errors.Is(err, relay.ErrRejected):
		return ErrorClassDefinitive
	case errors.Is(err, relay.ErrUnavailable),
		errors.Is(err, relay.ErrRateLimited),
		errors.Is(err, solana.ErrRateLimited),
		errors.Is(err, solana.ErrServiceError),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return ErrorClassTransient
	}

	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) && rpcErr.TxError != nil {
		return classifyTransactionError(rpcErr.TxError)
	}

	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		return classifyTransactionError(txErr)
	}

	msg := strings.ToLower(err.Error())
	for _, mc := range messageClasses {
		if strings.Contains(msg, mc.fragment) {
			return mc.class
		}
	}

	return ErrorClassTransient
}

func classifyTransactionError(txErr *solana.TransactionError) ErrorClass {
	switch txErr.ErrorKey() {
	case solana.TransactionErrorAlreadyProcessed, solana.TransactionErrorDuplicateSignature:
		return ErrorClassAlreadyProcessed
	case solana.TransactionErrorBlockhashNotFound,
		solana.TransactionErrorAccountInUse,
		solana.TransactionErrorClusterMaintenance:
		return ErrorClassTransient
	}
	return ErrorClassDefinitive
}
