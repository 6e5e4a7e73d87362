package solana

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/ybbus/jsonrpc"
)

var (
	// ErrRateLimited is returned when the node answers with HTTP 429.
	ErrRateLimited = errors.New("rate limited")
	// ErrServiceError is returned for 5xx responses and node health errors.
	ErrServiceError = errors.New("service error")
	// ErrSignatureNotFound is returned when a node has no status for a signature.
	ErrSignatureNotFound = errors.New("signature not found")
)

// TransactionErrorKey is the string key returned in a transaction error.
//
// Source: https://github.com/solana-labs/solana/blob/fc2bf2d3b669d1c6655ae48b0a05f470938f3676/sdk/src/transaction/mod.rs#L37
type TransactionErrorKey string

const (
	TransactionErrorAccountInUse            TransactionErrorKey = "AccountInUse"
	TransactionErrorAccountNotFound         TransactionErrorKey = "AccountNotFound"
	TransactionErrorProgramAccountNotFound  TransactionErrorKey = "ProgramAccountNotFound"
	TransactionErrorInsufficientFundsForFee TransactionErrorKey = "InsufficientFundsForFee"
	TransactionErrorDuplicateSignature      TransactionErrorKey = "DuplicateSignature"
	TransactionErrorAlreadyProcessed        TransactionErrorKey = "AlreadyProcessed"
	TransactionErrorBlockhashNotFound       TransactionErrorKey = "BlockhashNotFound"
	TransactionErrorInstructionError        TransactionErrorKey = "InstructionError"
	TransactionErrorSignatureFailure        TransactionErrorKey = "SignatureFailure"
	TransactionErrorSanitizeFailure         TransactionErrorKey = "SanitizeFailure"
	TransactionErrorClusterMaintenance      TransactionErrorKey = "ClusterMaintenance"
	TransactionErrorUnsupportedVersion      TransactionErrorKey = "UnsupportedVersion"
	TransactionErrorInvalidWritableAccount  TransactionErrorKey = "InvalidWritableAccount"
)

// InstructionErrorKey is the string key returned in an instruction error.
//
// Source: https://github.com/solana-labs/solana/blob/4e2754341514cd181ae3f373cc2548bd22e918b8/sdk/program/src/instruction.rs#L23
type InstructionErrorKey string

const (
	InstructionErrorGenericError              InstructionErrorKey = "GenericError"
	InstructionErrorInvalidArgument           InstructionErrorKey = "InvalidArgument"
	InstructionErrorInvalidInstructionData    InstructionErrorKey = "InvalidInstructionData"
	InstructionErrorInvalidAccountData        InstructionErrorKey = "InvalidAccountData"
	InstructionErrorInsufficientFunds         InstructionErrorKey = "InsufficientFunds"
	InstructionErrorIncorrectProgramID        InstructionErrorKey = "IncorrectProgramId"
	InstructionErrorMissingRequiredSignature  InstructionErrorKey = "MissingRequiredSignature"
	InstructionErrorAccountAlreadyInitialized InstructionErrorKey = "AccountAlreadyInitialized"
	InstructionErrorUninitializedAccount      InstructionErrorKey = "UninitializedAccount"
	InstructionErrorNotEnoughAccountKeys      InstructionErrorKey = "NotEnoughAccountKeys"
	InstructionErrorCustom                    InstructionErrorKey = "Custom"
)

// CustomError is the numerical error returned by a non-system program.
type CustomError int

func (c CustomError) Error() string {
	return fmt.Sprintf("custom program error: 0x%x", int(c))
}

// InstructionError indicates an instruction returned an error in a transaction.
type InstructionError struct {
	Index int
	Err   error
}

func (i InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %v", i.Index, i.Err)
}

func (i InstructionError) ErrorKey() InstructionErrorKey {
	if i.Err == nil {
		return ""
	}
	if i.CustomError() != nil {
		return InstructionErrorCustom
	}
	return InstructionErrorKey(i.Err.Error())
}

func (i InstructionError) CustomError() *CustomError {
	if ce, ok := i.Err.(CustomError); ok {
		return &ce
	}
	return nil
}

func parseInstructionError(v interface{}) (e InstructionError, err error) {
	values, ok := v.([]interface{})
	if !ok {
		return e, errors.New("unexpected instruction error format")
	}
	if len(values) != 2 {
		return e, errors.Errorf("unexpected entries in InstructionError tuple: %d", len(values))
	}

	if e.Index, err = parseJSONNumber(values[0]); err != nil {
		return e, err
	}

	switch t := values[1].(type) {
	case string:
		e.Err = errors.New(t)
	case map[string]interface{}:
		k, v, ok := singleEntry(t)
		if !ok {
			e.Err = errors.New("unhandled InstructionError")
			return e, errors.Errorf("invalid instruction result size: %d", len(t))
		}

		if k != string(InstructionErrorCustom) {
			e.Err = errors.New(k)
			break
		}

		code, err := parseJSONNumber(v)
		if err != nil {
			e.Err = errors.New("unhandled CustomError")
			break
		}
		e.Err = CustomError(code)
	default:
		e.Err = errors.New("unhandled InstructionError")
	}

	return e, nil
}

// TransactionError contains the transaction error details.
type TransactionError struct {
	transactionError error
	instructionError *InstructionError
	raw              interface{}
}

// ParseTransactionError parses the JSON error returned from the "err" field in various
// RPC methods and fields.
func ParseTransactionError(raw interface{}) (*TransactionError, error) {
	if raw == nil {
		return nil, nil
	}

	switch t := raw.(type) {
	case string:
		return &TransactionError{transactionError: errors.New(t), raw: raw}, nil
	case map[string]interface{}:
		k, v, ok := singleEntry(t)
		if !ok {
			return &TransactionError{
				transactionError: errors.New("unhandled transaction error"),
				raw:              raw,
			}, errors.Errorf("invalid transaction result size: %d", len(t))
		}

		if k != string(TransactionErrorInstructionError) {
			return &TransactionError{transactionError: errors.New(k), raw: raw}, nil
		}

		instructionErr, err := parseInstructionError(v)
		if err != nil {
			return &TransactionError{
				transactionError: errors.New("unhandled transaction error"),
				raw:              raw,
			}, errors.Wrap(err, "failed to parse instruction error")
		}

		return &TransactionError{
			transactionError: errors.New(string(TransactionErrorInstructionError)),
			instructionError: &instructionErr,
			raw:              raw,
		}, nil
	default:
		return nil, errors.New("unhandled error type")
	}
}

func (t TransactionError) Error() string {
	if t.instructionError != nil {
		return t.instructionError.Error()
	}
	if t.transactionError != nil {
		return t.transactionError.Error()
	}
	return ""
}

func (t TransactionError) ErrorKey() TransactionErrorKey {
	if t.transactionError == nil {
		return ""
	}
	return TransactionErrorKey(t.transactionError.Error())
}

func (t TransactionError) InstructionError() *InstructionError {
	return t.instructionError
}

// CustomErrorCode returns the program error code, if the transaction failed
// with one.
func (t TransactionError) CustomErrorCode() (int, bool) {
	if t.instructionError == nil {
		return 0, false
	}
	ce := t.instructionError.CustomError()
	if ce == nil {
		return 0, false
	}
	return int(*ce), true
}

// RPCError is a JSON-RPC error response, along with the transaction error and
// program logs a node attaches to failed sends and simulations.
type RPCError struct {
	Code    int
	Message string
	TxError *TransactionError
	Logs    []string
}

func (e *RPCError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("rpc error %d: %s", e.Code, e.Message))
	if e.TxError != nil {
		sb.WriteString(fmt.Sprintf(" (%s)", e.TxError.Error()))
	}
	return sb.String()
}

// ParseRPCError converts a jsonrpc.RPCError into an RPCError, extracting the
// transaction error and logs from the data field when present.
func ParseRPCError(err *jsonrpc.RPCError) *RPCError {
	if err == nil {
		return nil
	}

	parsed := &RPCError{
		Code:    err.Code,
		Message: err.Message,
	}

	data, ok := err.Data.(map[string]interface{})
	if !ok {
		return parsed
	}

	if raw, ok := data["err"]; ok && raw != nil {
		// A malformed error still yields a usable key, so the parse error is
		// intentionally dropped.
		parsed.TxError, _ = ParseTransactionError(raw)
	}
	if logs, ok := data["logs"].([]interface{}); ok {
		for _, l := range logs {
			if s, ok := l.(string); ok {
				parsed.Logs = append(parsed.Logs, s)
			}
		}
	}

	return parsed
}

func singleEntry(m map[string]interface{}) (string, interface{}, bool) {
	if len(m) != 1 {
		return "", nil, false
	}
	for k, v := range m {
		return k, v, true
	}
	return "", nil, false
}

func parseJSONNumber(v interface{}) (int, error) {
	switch t := v.(type) {
	case json.Number:
		index, err := t.Int64()
		if err != nil {
			return 0, errors.Errorf("non int64 value in InstructionError tuple: %v", v)
		}
		return int(index), nil
	case string:
		index, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, errors.Errorf("non numeric value in InstructionError tuple: %v", v)
		}
		return int(index), nil
	case float64:
		return int(t), nil
	}

	return 0, errors.Errorf("non numeric value in InstructionError tuple: %v", v)
}
