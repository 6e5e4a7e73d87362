// Package ledger is a client for the off-chain staking ledger, which caches
// balances and reward accruals derived from confirmed on-chain operations.
package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const (
	confirmEndpointName = "api/staking/confirm"
	infoEndpointName    = "api/staking/info"

	idempotencyKeyHeader = "Idempotency-Key"

	defaultTimeout = 10 * time.Second

	metricsStructName = "ledger.client"
)

var (
	// ErrUnavailable indicates the ledger could not be reached or failed
	// internally. The request may be retried.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrRejected indicates the ledger refused the request. Retrying the same
	// request will not help.
	ErrRejected = errors.New("ledger rejected request")

	ErrNotFound = errors.New("ledger has no record for wallet")
)

// Operation is the kind of confirmed on-chain change being reported.
type Operation string

const (
	OperationRegister Operation = "register"
	OperationStake    Operation = "stake"
	OperationUnstake  Operation = "unstake"
	OperationClaim    Operation = "claim"
	OperationCompound Operation = "compound"
)

// signatureNamespace scopes idempotency keys derived from signatures.
var signatureNamespace = uuid.MustParse("0d5a3c2e-5b7f-4f7c-9a53-3f8a4d9e6b21")

// Record is the ledger's view of a wallet's staking position. Amounts are in
// token base units.
type Record struct {
	Wallet         string
	AmountStaked   uint64
	PendingRewards uint64
	StakedAt       time.Time
	LockExpiresAt  time.Time
}

type Confirmation struct {
	Wallet    ed25519.PublicKey
	Operation Operation
	Amount    uint64
	Signature solana.Signature
}

// Ledger is the subset of the off-chain API used for reconciliation.
type Ledger interface {
	ConfirmOperation(ctx context.Context, confirmation *Confirmation) error
	GetStakingInfo(ctx context.Context, wallet ed25519.PublicKey) (*Record, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a ledger client rooted at baseURL.
func NewClient(baseURL string) *Client {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

type jsonConfirmRequest struct {
	WalletAddress string `json:"walletAddress"`
	Operation     string `json:"operation"`
	Amount        string `json:"amount"`
	Signature     string `json:"transactionSignature"`
}

type jsonStakingInfo struct {
	WalletAddress  string `json:"walletAddress"`
	AmountStaked   string `json:"amountStaked"`
	PendingRewards string `json:"pendingRewards"`
	StakedAt       int64  `json:"stakedAt"`
	LockExpiresAt  int64  `json:"lockExpiresAt"`
}

// ConfirmOperation reports a finalized operation. The request carries an
// idempotency key derived from the signature, and the ledger answering that
// the operation is already recorded counts as success.
func (c *Client) ConfirmOperation(ctx context.Context, confirmation *Confirmation) error {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ConfirmOperation")
	defer tracer.End()

	body, err := json.Marshal(&jsonConfirmRequest{
		WalletAddress: base58.Encode(confirmation.Wallet),
		Operation:     string(confirmation.Operation),
		Amount:        strconv.FormatUint(confirmation.Amount, 10),
		Signature:     confirmation.Signature.String(),
	})
	if err != nil {
		return errors.Wrap(err, "error marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+confirmEndpointName, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "error creating http request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(idempotencyKeyHeader, IdempotencyKey(confirmation.Signature))

	_, err = c.do(req)
	if err != nil {
		tracer.OnError(err)
	}
	return err
}

// GetStakingInfo fetches the ledger's cached position for a wallet.
func (c *Client) GetStakingInfo(ctx context.Context, wallet ed25519.PublicKey) (*Record, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetStakingInfo")
	defer tracer.End()

	url := fmt.Sprintf("%s%s/%s", c.baseURL, infoEndpointName, base58.Encode(wallet))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "error creating http request")
	}

	respBody, err := c.do(req)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	var parsed jsonStakingInfo
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, errors.Wrap(err, "error unmarshalling json response")
	}

	record := &Record{
		Wallet: parsed.WalletAddress,
	}
	if record.AmountStaked, err = parseAmount(parsed.AmountStaked); err != nil {
		return nil, errors.Wrap(err, "invalid amountStaked")
	}
	if record.PendingRewards, err = parseAmount(parsed.PendingRewards); err != nil {
		return nil, errors.Wrap(err, "invalid pendingRewards")
	}
	if parsed.StakedAt > 0 {
		record.StakedAt = time.Unix(parsed.StakedAt, 0)
	}
	if parsed.LockExpiresAt > 0 {
		record.LockExpiresAt = time.Unix(parsed.LockExpiresAt, 0)
	}
	return record, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, "error reading response body")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode == http.StatusConflict:
		// Already recorded under this idempotency key
		return respBody, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, errors.Wrapf(ErrUnavailable, "received http status %d: %s", resp.StatusCode, string(respBody))
	default:
		return nil, errors.Wrapf(ErrRejected, "received http status %d: %s", resp.StatusCode, string(respBody))
	}
}

// IdempotencyKey is stable for a signature, so retried confirmations of the
// same transaction collapse into one ledger entry.
func IdempotencyKey(sig solana.Signature) string {
	return uuid.NewSHA1(signatureNamespace, sig[:]).String()
}

func parseAmount(v string) (uint64, error) {
	if v == "" {
		return 0, nil
	}

	return strconv.ParseUint(v, 10, 64)
}
