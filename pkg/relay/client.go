// Package relay hands signed transactions to a trusted off-chain service that
// broadcasts them on the client's behalf.
package relay

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/rate"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const (
	defaultTimeout = 15 * time.Second

	requestIDHeader = "X-Request-Id"

	metricsStructName = "relay.client"
)

var (
	// ErrRateLimited is returned without contacting the relay when the wallet
	// has exceeded its local submission budget.
	ErrRateLimited = errors.New("relay submissions rate limited")

	ErrUnavailable = errors.New("relay unavailable")

	// ErrRejected indicates the relay refused the transaction itself.
	ErrRejected = errors.New("relay rejected transaction")
)

// WalletMetadata identifies the wallet that signed a relayed transaction.
type WalletMetadata struct {
	PublicKey ed25519.PublicKey
	Name      string
}

type Relay interface {
	Submit(ctx context.Context, txn solana.Transaction, wallet *WalletMetadata) (solana.Signature, error)
}

type Client struct {
	log        *logrus.Entry
	url        string
	httpClient *http.Client
	limiter    rate.Limiter
}

// NewClient returns a relay client posting to url. Submissions are limited
// per wallet by limiter.
func NewClient(url string, limiter rate.Limiter) *Client {
	if limiter == nil {
		limiter = &rate.NoLimiter{}
	}

	return &Client{
		log:        logrus.StandardLogger().WithField("type", "relay/client"),
		url:        url,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    limiter,
	}
}

type jsonWallet struct {
	PublicKey string `json:"publicKey"`
	Name      string `json:"name"`
}

type jsonSubmitRequest struct {
	RequestID   string     `json:"requestId"`
	Transaction string     `json:"transaction"`
	Encoding    string     `json:"encoding"`
	Wallet      jsonWallet `json:"wallet"`
}

type jsonSubmitResponse struct {
	Signature string `json:"signature"`
	Error     string `json:"error"`
}

// Submit posts the signed transaction and returns the signature the relay
// reports for it.
func (c *Client) Submit(ctx context.Context, txn solana.Transaction, wallet *WalletMetadata) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Submit")
	defer tracer.End()

	sig := txn.Signatures[0]
	walletAddress := base58.Encode(wallet.PublicKey)

	allowed, err := c.limiter.Allow(walletAddress)
	if err != nil {
		return sig, errors.Wrap(err, "error checking rate limit")
	} else if !allowed {
		return sig, ErrRateLimited
	}

	requestID := uuid.New().String()
	body, err := json.Marshal(&jsonSubmitRequest{
		RequestID:   requestID,
		Transaction: txn.Base64(),
		Encoding:    "base64",
		Wallet: jsonWallet{
			PublicKey: walletAddress,
			Name:      wallet.Name,
		},
	})
	if err != nil {
		return sig, errors.Wrap(err, "error marshalling request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return sig, errors.Wrap(err, "error creating http request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(requestIDHeader, requestID)

	log := c.log.WithFields(logrus.Fields{
		"method":     "Submit",
		"request_id": requestID,
		"signature":  sig.String(),
		"wallet":     walletAddress,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return sig, ctxErr
		}
		tracer.OnError(err)
		return sig, errors.Wrap(ErrUnavailable, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return sig, errors.Wrap(ErrUnavailable, "error reading response body")
	}

	var parsed jsonSubmitResponse
	// Error bodies are not guaranteed to be JSON
	_ = json.Unmarshal(respBody, &parsed)
	message := parsed.Error
	if message == "" {
		message = string(respBody)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		err = errors.Wrapf(ErrUnavailable, "received http status %d: %s", resp.StatusCode, message)
	case resp.StatusCode >= 400:
		err = errors.Wrapf(ErrRejected, "received http status %d: %s", resp.StatusCode, message)
	case resp.StatusCode != http.StatusOK:
		err = errors.Wrapf(ErrUnavailable, "unexpected http status %d", resp.StatusCode)
	}
	if err != nil {
		log.WithError(err).Warn("relay submission failed")
		tracer.OnError(err)
		return sig, err
	}

	returned, err := base58.Decode(parsed.Signature)
	if err != nil || len(returned) != len(sig) {
		log.WithField("returned", parsed.Signature).Warn("relay returned an invalid signature")
		return sig, nil
	}

	var relayed solana.Signature
	copy(relayed[:], returned)
	if relayed != sig {
		log.WithField("returned", parsed.Signature).Warn("relay returned an unexpected signature")
	}
	return relayed, nil
}
