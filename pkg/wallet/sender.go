package wallet

import (
	"context"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

type sendingWallet struct {
	Signer

	client     solana.Client
	commitment solana.Commitment
}

// WithSender adds a combined sign-and-send capability to a signer, submitting
// through client the way browser wallets submit through their own node.
func WithSender(s Signer, client solana.Client) Sender {
	return &sendingWallet{
		Signer:     s,
		client:     client,
		commitment: solana.CommitmentConfirmed,
	}
}

func (w *sendingWallet) Name() string {
	if n, ok := w.Signer.(Named); ok {
		return n.Name() + "+send"
	}
	return "send"
}

func (w *sendingWallet) SendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error) {
	if err := w.SignTransaction(ctx, txn); err != nil {
		return solana.Signature{}, err
	}

	sig, err := w.client.SubmitTransaction(ctx, *txn, w.commitment)
	if err != nil {
		return sig, errors.Wrap(err, "failed to send transaction")
	}
	return sig, nil
}
