package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/ybbus/jsonrpc"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry/backoff"
)

const (
	ticksPerSec  = 160
	ticksPerSlot = 64
	slotsPerSec  = ticksPerSec / ticksPerSlot

	// PollRate is the rate at which signature statuses should be polled at.
	PollRate = (time.Second / slotsPerSec) / 2

	// Reference: https://github.com/solana-labs/solana/blob/71e9958e061493d7545bd28d4ac7a85aaed6ffbb/client/src/rpc_custom_error.rs#L11
	rpcNodeUnhealthyCode = -32005

	invalidParamCode = -32602

	defaultRequestTimeout = 30 * time.Second
)

type Commitment struct {
	Commitment string `json:"commitment"`
}

const (
	confirmationStatusProcessed = "processed"
	confirmationStatusConfirmed = "confirmed"
	confirmationStatusFinalized = "finalized"
)

var (
	CommitmentProcessed = Commitment{Commitment: confirmationStatusProcessed}
	CommitmentConfirmed = Commitment{Commitment: confirmationStatusConfirmed}
	CommitmentFinalized = Commitment{Commitment: confirmationStatusFinalized}
)

var (
	ErrNoAccountInfo = errors.New("no account info")
	ErrNoBalance     = errors.New("no balance")
)

// AccountInfo contains the Solana account information (not to be confused with a TokenAccount)
type AccountInfo struct {
	Data       []byte
	Owner      ed25519.PublicKey
	Lamports   uint64
	Executable bool
}

type SignatureStatus struct {
	Slot        uint64
	ErrorResult *TransactionError

	// Confirmations will be nil if the transaction has been rooted.
	Confirmations      *int
	ConfirmationStatus string
}

func (s SignatureStatus) Confirmed() bool {
	if s.Finalized() {
		return true
	}
	if s.ConfirmationStatus == confirmationStatusConfirmed {
		return true
	}
	return *s.Confirmations >= 1
}

func (s SignatureStatus) Finalized() bool {
	return s.Confirmations == nil || s.ConfirmationStatus == confirmationStatusFinalized
}

// LatestBlockhash is a blockhash along with the last block height at which
// transactions referencing it are still accepted.
type LatestBlockhash struct {
	Blockhash            Blockhash
	LastValidBlockHeight uint64
}

// SimulationResult is the outcome of simulateTransaction. Err is nil if the
// simulated execution succeeded.
type SimulationResult struct {
	Err           *TransactionError
	Logs          []string
	UnitsConsumed uint64
}

// Client provides an interaction with the Solana JSON RPC API.
//
// Reference: https://docs.solana.com/apps/jsonrpc-api
type Client interface {
	GetAccountInfo(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (AccountInfo, error)
	GetBalance(ctx context.Context, account ed25519.PublicKey) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, account ed25519.PublicKey) (uint64, uint64, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, size uint64) (uint64, error)
	GetSlot(ctx context.Context, commitment Commitment) (uint64, error)
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)

	// GetLatestBlockhash may return a blockhash cached for up to a couple of
	// seconds. GetFreshBlockhash always queries the node.
	GetLatestBlockhash(ctx context.Context) (Blockhash, error)
	GetFreshBlockhash(ctx context.Context, commitment Commitment) (LatestBlockhash, error)

	GetSignatureStatus(ctx context.Context, sig Signature, commitment Commitment) (*SignatureStatus, error)
	GetSignatureStatuses(ctx context.Context, sigs []Signature) ([]*SignatureStatus, error)

	SimulateTransaction(ctx context.Context, txn Transaction, commitment Commitment) (*SimulationResult, error)
	SubmitTransaction(ctx context.Context, txn Transaction, commitment Commitment) (Signature, error)
	RequestAirdrop(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error)
}

type rpcResponse struct {
	Context struct {
		Slot int64 `json:"slot"`
	} `json:"context"`
	Value interface{} `json:"value"`
}

type client struct {
	log        *logrus.Entry
	client     jsonrpc.RPCClient
	strategies []retry.Strategy

	blockMu   sync.RWMutex
	blockhash Blockhash
	lastWrite time.Time
}

// New returns a client using the specified endpoint.
func New(endpoint string) Client {
	return NewWithRPCOptions(endpoint, &jsonrpc.RPCClientOpts{
		HTTPClient: &http.Client{Timeout: defaultRequestTimeout},
	})
}

// NewWithRPCOptions returns a client configured with the specified RPC options.
func NewWithRPCOptions(endpoint string, opts *jsonrpc.RPCClientOpts) Client {
	return &client{
		log:    logrus.StandardLogger().WithField("type", "solana/client"),
		client: jsonrpc.NewClientWithOpts(endpoint, opts),
		strategies: []retry.Strategy{
			retry.RetriableErrors(ErrRateLimited, ErrServiceError),
			retry.Limit(3),
		},
	}
}

func (c *client) call(ctx context.Context, out interface{}, method string, params ...interface{}) error {
	strategies := append([]retry.Strategy{}, c.strategies...)
	strategies = append(strategies, retry.BackoffContext(ctx, backoff.BinaryExponential(500*time.Millisecond), 5*time.Second))

	_, err := retry.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.client.CallFor(out, method, params...)
		if err == nil {
			return nil
		}
		return c.handleRPCError(method, err)
	}, strategies...)

	return err
}

func (c *client) handleRPCError(method string, err error) error {
	err = NormalizeRPCError(err)
	if errors.Is(err, ErrRateLimited) {
		c.log.WithField("method", method).Warn("rate limited")
	}
	return err
}

// NormalizeRPCError maps transport and JSON-RPC failures onto ErrRateLimited,
// ErrServiceError or an *RPCError. Other errors are returned unchanged.
func NormalizeRPCError(err error) error {
	rpcErr, ok := err.(*jsonrpc.RPCError)
	if !ok {
		// HTTP level failures are only surfaced through the message.
		msg := err.Error()
		switch {
		case strings.Contains(msg, "status code: 429"):
			return errors.Wrap(ErrRateLimited, msg)
		case strings.Contains(msg, "status code: 5"):
			return errors.Wrap(ErrServiceError, msg)
		}
		return err
	}

	if rpcErr.Code == 429 {
		return errors.Wrap(ErrRateLimited, rpcErr.Message)
	}
	if rpcErr.Code >= 500 || rpcErr.Code == rpcNodeUnhealthyCode {
		return errors.Wrap(ErrServiceError, rpcErr.Message)
	}

	return ParseRPCError(rpcErr)
}

func (c *client) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (lamports uint64, err error) {
	if err := c.call(ctx, &lamports, "getMinimumBalanceForRentExemption", dataSize); err != nil {
		return 0, errors.Wrap(err, "getMinimumBalanceForRentExemption() failed to send request")
	}
	return lamports, nil
}

func (c *client) GetSlot(ctx context.Context, commitment Commitment) (slot uint64, err error) {
	// note: the commitment must be wrapped in an []interface{}, otherwise the
	//       node rejects the request.
	if err := c.call(ctx, &slot, "getSlot", []interface{}{commitment}); err != nil {
		return 0, errors.Wrap(err, "getSlot() failed to send request")
	}
	return slot, nil
}

func (c *client) GetBlockHeight(ctx context.Context, commitment Commitment) (height uint64, err error) {
	if err := c.call(ctx, &height, "getBlockHeight", []interface{}{commitment}); err != nil {
		return 0, errors.Wrap(err, "getBlockHeight() failed to send request")
	}
	return height, nil
}

func (c *client) GetLatestBlockhash(ctx context.Context) (hash Blockhash, err error) {
	// The refresh window is randomized so concurrent callers don't all
	// refresh on the same tick.
	window := time.Duration(float64(2*time.Second) * (0.8 + rand.Float64()))

	c.blockMu.RLock()
	if time.Since(c.lastWrite) < window {
		hash = c.blockhash
	}
	c.blockMu.RUnlock()

	if hash != (Blockhash{}) {
		return hash, nil
	}

	latest, err := c.GetFreshBlockhash(ctx, CommitmentFinalized)
	if err != nil {
		return hash, err
	}
	return latest.Blockhash, nil
}

func (c *client) GetFreshBlockhash(ctx context.Context, commitment Commitment) (LatestBlockhash, error) {
	var resp struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}

	if err := c.call(ctx, &resp, "getLatestBlockhash", commitment); err != nil {
		return LatestBlockhash{}, errors.Wrap(err, "getLatestBlockhash() failed to send request")
	}

	hashBytes, err := base58.Decode(resp.Value.Blockhash)
	if err != nil || len(hashBytes) != len(Blockhash{}) {
		return LatestBlockhash{}, errors.Errorf("invalid blockhash in response: %q", resp.Value.Blockhash)
	}

	var latest LatestBlockhash
	copy(latest.Blockhash[:], hashBytes)
	latest.LastValidBlockHeight = resp.Value.LastValidBlockHeight

	c.blockMu.Lock()
	c.blockhash = latest.Blockhash
	c.lastWrite = time.Now()
	c.blockMu.Unlock()

	return latest, nil
}

func (c *client) GetBalance(ctx context.Context, account ed25519.PublicKey) (uint64, error) {
	var resp rpcResponse
	if err := c.call(ctx, &resp, "getBalance", base58.Encode(account), CommitmentProcessed); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == invalidParamCode {
			return 0, ErrNoBalance
		}
		return 0, errors.Wrap(err, "getBalance() failed to send request")
	}

	if balance, ok := resp.Value.(float64); ok {
		return uint64(balance), nil
	}
	return 0, errors.New("invalid value in response")
}

// GetTokenAccountBalance returns the raw token amount and the slot it was
// observed at.
func (c *client) GetTokenAccountBalance(ctx context.Context, account ed25519.PublicKey) (uint64, uint64, error) {
	var resp struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Amount   string `json:"amount"`
			Decimals uint64 `json:"decimals"`
		} `json:"value"`
	}
	if err := c.call(ctx, &resp, "getTokenAccountBalance", base58.Encode(account), CommitmentConfirmed); err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) && rpcErr.Code == invalidParamCode {
			return 0, 0, ErrNoBalance
		}
		return 0, 0, errors.Wrap(err, "getTokenAccountBalance() failed to send request")
	}

	quarks, err := strconv.ParseUint(resp.Value.Amount, 10, 64)
	if err != nil {
		return 0, 0, errors.New("invalid value in response")
	}
	return quarks, uint64(resp.Context.Slot), nil
}

func (c *client) GetAccountInfo(ctx context.Context, account ed25519.PublicKey, commitment Commitment) (accountInfo AccountInfo, err error) {
	var resp struct {
		Value *struct {
			Lamports   uint64   `json:"lamports"`
			Owner      string   `json:"owner"`
			Data       []string `json:"data"`
			Executable bool     `json:"executable"`
		} `json:"value"`
	}

	config := struct {
		Commitment string `json:"commitment"`
		Encoding   string `json:"encoding"`
	}{
		Commitment: commitment.Commitment,
		Encoding:   "base64",
	}

	if err := c.call(ctx, &resp, "getAccountInfo", base58.Encode(account), config); err != nil {
		return accountInfo, errors.Wrap(err, "getAccountInfo() failed to send request")
	}
	if resp.Value == nil {
		return accountInfo, ErrNoAccountInfo
	}

	if accountInfo.Owner, err = base58.Decode(resp.Value.Owner); err != nil {
		return accountInfo, errors.Wrap(err, "invalid base58 encoded owner")
	}
	if len(resp.Value.Data) > 0 {
		if accountInfo.Data, err = base64.StdEncoding.DecodeString(resp.Value.Data[0]); err != nil {
			return accountInfo, errors.Wrap(err, "invalid base64 encoded data")
		}
	}

	accountInfo.Lamports = resp.Value.Lamports
	accountInfo.Executable = resp.Value.Executable
	return accountInfo, nil
}

func (c *client) SimulateTransaction(ctx context.Context, txn Transaction, commitment Commitment) (*SimulationResult, error) {
	config := struct {
		SigVerify              bool   `json:"sigVerify"`
		ReplaceRecentBlockhash bool   `json:"replaceRecentBlockhash"`
		Commitment             string `json:"commitment"`
		Encoding               string `json:"encoding"`
	}{
		ReplaceRecentBlockhash: true,
		Commitment:             commitment.Commitment,
		Encoding:               "base64",
	}

	var resp struct {
		Value struct {
			Err           json.RawMessage `json:"err"`
			Logs          []string        `json:"logs"`
			UnitsConsumed uint64          `json:"unitsConsumed"`
		} `json:"value"`
	}
	if err := c.call(ctx, &resp, "simulateTransaction", txn.Base64(), config); err != nil {
		return nil, errors.Wrap(err, "simulateTransaction() failed to send request")
	}

	result := &SimulationResult{
		Logs:          resp.Value.Logs,
		UnitsConsumed: resp.Value.UnitsConsumed,
	}

	txErr, err := decodeTransactionError(resp.Value.Err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse simulation result")
	}
	result.Err = txErr

	return result, nil
}

// SubmitTransaction sends a signed transaction with preflight disabled. The
// returned error is an *RPCError when the node rejected the transaction.
func (c *client) SubmitTransaction(ctx context.Context, txn Transaction, commitment Commitment) (Signature, error) {
	sig := txn.Signatures[0]

	config := struct {
		SkipPreflight       bool   `json:"skipPreflight"`
		PreflightCommitment string `json:"preflightCommitment"`
		Encoding            string `json:"encoding"`
		MaxRetries          uint   `json:"maxRetries"`
	}{
		SkipPreflight:       true,
		PreflightCommitment: commitment.Commitment,
		Encoding:            "base64",
	}

	var sigStr string
	if err := c.call(ctx, &sigStr, "sendTransaction", txn.Base64(), config); err != nil {
		return sig, errors.Wrap(err, "sendTransaction() failed")
	}

	if returned, err := base58.Decode(sigStr); err == nil && len(returned) == len(sig) && !bytes.Equal(returned, sig[:]) {
		c.log.WithFields(logrus.Fields{
			"expected": sig.String(),
			"returned": sigStr,
		}).Warn("node returned an unexpected signature")
	}

	return sig, nil
}

func (c *client) RequestAirdrop(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment Commitment) (Signature, error) {
	var sigStr string
	if err := c.call(ctx, &sigStr, "requestAirdrop", base58.Encode(account), lamports, commitment); err != nil {
		return Signature{}, errors.Wrap(err, "requestAirdrop() failed to send request")
	}

	sigBytes, err := base58.Decode(sigStr)
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return Signature{}, errors.New("invalid signature in response")
	}

	var sig Signature
	copy(sig[:], sigBytes)
	return sig, nil
}

// GetSignatureStatus polls until the signature reaches the commitment, the
// transaction fails, or ctx is done. Cancellation is the caller's timeout.
func (c *client) GetSignatureStatus(ctx context.Context, sig Signature, commitment Commitment) (*SignatureStatus, error) {
	var s *SignatureStatus
	errConfirmationsNotReached := errors.New("confirmations not reached")

	_, err := retry.Retry(
		func() error {
			statuses, err := c.GetSignatureStatuses(ctx, []Signature{sig})
			if err != nil {
				return err
			}

			s = statuses[0]
			if s == nil {
				return ErrSignatureNotFound
			}
			if s.ErrorResult != nil {
				return nil
			}

			switch commitment {
			case CommitmentProcessed:
				return nil
			case CommitmentConfirmed:
				if s.Confirmed() {
					return nil
				}
			case CommitmentFinalized:
				if s.Finalized() {
					return nil
				}
			}

			return errConfirmationsNotReached
		},
		retry.RetriableErrors(ErrSignatureNotFound, errConfirmationsNotReached, ErrRateLimited, ErrServiceError),
		retry.BackoffContext(ctx, backoff.Constant(PollRate), PollRate),
	)
	if err != nil && ctx.Err() != nil {
		return s, ctx.Err()
	}

	return s, err
}

func (c *client) GetSignatureStatuses(ctx context.Context, sigs []Signature) ([]*SignatureStatus, error) {
	b58Sigs := make([]string, len(sigs))
	for i := range sigs {
		b58Sigs[i] = sigs[i].String()
	}

	req := struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}{
		SearchTransactionHistory: true,
	}

	var resp struct {
		Value []*struct {
			Slot               uint64          `json:"slot"`
			Confirmations      *int            `json:"confirmations"`
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	if err := c.call(ctx, &resp, "getSignatureStatuses", b58Sigs, req); err != nil {
		return nil, errors.Wrap(err, "getSignatureStatuses() failed to send request")
	}

	statuses := make([]*SignatureStatus, len(sigs))
	for i, v := range resp.Value {
		if v == nil || i >= len(statuses) {
			continue
		}

		txErr, err := decodeTransactionError(v.Err)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse transaction result")
		}

		statuses[i] = &SignatureStatus{
			Slot:               v.Slot,
			Confirmations:      v.Confirmations,
			ConfirmationStatus: v.ConfirmationStatus,
			ErrorResult:        txErr,
		}
	}

	return statuses, nil
}

func decodeTransactionError(raw json.RawMessage) (*TransactionError, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var v interface{}
	d := json.NewDecoder(bytes.NewBuffer(raw))
	d.UseNumber()
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return ParseTransactionError(v)
}
