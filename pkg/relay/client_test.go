package relay

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xrate "golang.org/x/time/rate"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/rate"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/computebudget"
)

type fakeRelay struct {
	status   int
	response interface{}
	received []jsonSubmitRequest
}

func (f *fakeRelay) server(t *testing.T) *httptest.Server {
	r := mux.NewRouter()
	r.HandleFunc("/relay", func(w http.ResponseWriter, req *http.Request) {
		var body jsonSubmitRequest
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, body.RequestID, req.Header.Get(requestIDHeader))
		f.received = append(f.received, body)

		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(f.response)
	}).Methods(http.MethodPost)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server
}

func signedTransaction(t *testing.T) (solana.Transaction, ed25519.PublicKey) {
	pub, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	txn := solana.NewLegacyTransaction(pub, computebudget.SetComputeUnitPrice(1))
	require.NoError(t, txn.Sign(key))
	return txn, pub
}

func TestSubmit(t *testing.T) {
	txn, pub := signedTransaction(t)
	relay := &fakeRelay{
		status:   http.StatusOK,
		response: map[string]string{"signature": txn.Signatures[0].String()},
	}
	server := relay.server(t)

	client := NewClient(server.URL+"/relay", nil)
	sig, err := client.Submit(context.Background(), txn, &WalletMetadata{PublicKey: pub, Name: "phantom"})
	require.NoError(t, err)
	assert.Equal(t, txn.Signatures[0], sig)

	require.Len(t, relay.received, 1)
	assert.Equal(t, "base64", relay.received[0].Encoding)
	assert.Equal(t, base58.Encode(pub), relay.received[0].Wallet.PublicKey)
	assert.Equal(t, "phantom", relay.received[0].Wallet.Name)
	assert.NotEmpty(t, relay.received[0].RequestID)

	raw, err := base64.StdEncoding.DecodeString(relay.received[0].Transaction)
	require.NoError(t, err)
	assert.Equal(t, txn.Marshal(), raw)
}

func TestSubmit_Failures(t *testing.T) {
	txn, pub := signedTransaction(t)

	for _, tc := range []struct {
		status   int
		expected error
	}{
		{http.StatusBadRequest, ErrRejected},
		{http.StatusUnprocessableEntity, ErrRejected},
		{http.StatusTooManyRequests, ErrUnavailable},
		{http.StatusBadGateway, ErrUnavailable},
	} {
		relay := &fakeRelay{
			status:   tc.status,
			response: map[string]string{"error": "Transaction simulation failed: insufficient funds"},
		}
		server := relay.server(t)

		sig, err := NewClient(server.URL+"/relay", nil).Submit(context.Background(), txn, &WalletMetadata{PublicKey: pub})
		assert.True(t, errors.Is(err, tc.expected), "status %d: %v", tc.status, err)
		assert.Contains(t, err.Error(), "insufficient funds")
		assert.Equal(t, txn.Signatures[0], sig)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	txn, pub := signedTransaction(t)
	relay := &fakeRelay{
		status:   http.StatusOK,
		response: map[string]string{"signature": txn.Signatures[0].String()},
	}
	server := relay.server(t)

	client := NewClient(server.URL+"/relay", rate.NewLocalRateLimiter(xrate.Limit(1)))

	_, err := client.Submit(context.Background(), txn, &WalletMetadata{PublicKey: pub})
	require.NoError(t, err)

	_, err = client.Submit(context.Background(), txn, &WalletMetadata{PublicKey: pub})
	assert.Equal(t, ErrRateLimited, err)
	assert.Len(t, relay.received, 1)

	// Other wallets have their own budget
	other, _ := signedTransaction(t)
	_, err = client.Submit(context.Background(), other, &WalletMetadata{PublicKey: other.Message.Accounts[0]})
	assert.NoError(t, err)
}

func TestSubmit_InvalidSignatureResponse(t *testing.T) {
	txn, pub := signedTransaction(t)
	relay := &fakeRelay{
		status:   http.StatusOK,
		response: map[string]string{"signature": "not-a-signature"},
	}
	server := relay.server(t)

	sig, err := NewClient(server.URL+"/relay", nil).Submit(context.Background(), txn, &WalletMetadata{PublicKey: pub})
	require.NoError(t, err)
	assert.Equal(t, txn.Signatures[0], sig)
}
