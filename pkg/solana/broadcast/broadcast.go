// Package broadcast submits already signed transactions to one or more RPC
// endpoints, bypassing any wallet.
package broadcast

import (
	"context"
	"sync/atomic"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ybbus "github.com/ybbus/jsonrpc"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

const metricsStructName = "broadcast.failover"

var ErrNoEndpoints = errors.New("no broadcast endpoints configured")

// Broadcaster sends signed transaction bytes to the network.
type Broadcaster interface {
	Broadcast(ctx context.Context, txn solana.Transaction) (solana.Signature, error)
}

type clientBroadcaster struct {
	sc         solana.Client
	commitment solana.Commitment
}

// NewClientBroadcaster broadcasts through the session's own RPC client.
func NewClientBroadcaster(sc solana.Client) Broadcaster {
	return &clientBroadcaster{
		sc:         sc,
		commitment: solana.CommitmentConfirmed,
	}
}

func (b *clientBroadcaster) Broadcast(ctx context.Context, txn solana.Transaction) (solana.Signature, error) {
	return b.sc.SubmitTransaction(ctx, txn, b.commitment)
}

type failover struct {
	log       *logrus.Entry
	endpoints []string

	clients []*rpc.Client
	index   uint64
}

// NewFailover broadcasts round-robin across endpoints, moving to the next one
// when an endpoint fails for transport reasons. A node that rejects the
// transaction itself ends the attempt.
func NewFailover(endpoints ...string) (Broadcaster, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	clients := make([]*rpc.Client, 0, len(endpoints))
	for _, endpoint := range endpoints {
		clients = append(clients, rpc.New(endpoint))
	}

	return &failover{
		log:       logrus.StandardLogger().WithField("type", "solana/broadcast/failover"),
		endpoints: endpoints,
		clients:   clients,
	}, nil
}

func (f *failover) Broadcast(ctx context.Context, txn solana.Transaction) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Broadcast")
	defer tracer.End()

	sig := txn.Signatures[0]
	encoded := txn.Base64()

	clients := f.clients
	var lastErr error
	for attempt := 0; attempt < len(clients); attempt++ {
		if err := ctx.Err(); err != nil {
			return sig, err
		}

		index := (atomic.AddUint64(&f.index, 1) - 1) % uint64(len(clients))
		_, err := clients[index].SendEncodedTransactionWithOpts(ctx, encoded, rpc.TransactionOpts{
			SkipPreflight:       true,
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
		if err == nil {
			return sig, nil
		}

		lastErr = normalize(err)

		log := f.log.WithFields(logrus.Fields{
			"endpoint":  f.endpoints[index],
			"attempt":   attempt + 1,
			"signature": sig.String(),
		})

		var rpcErr *solana.RPCError
		if errors.As(lastErr, &rpcErr) && rpcErr.TxError != nil {
			log.WithError(lastErr).Info("transaction rejected by node")
			tracer.OnError(lastErr)
			return sig, lastErr
		}
		log.WithError(lastErr).Warn("broadcast failed, trying next endpoint")
	}

	tracer.OnError(lastErr)
	return sig, errors.Wrapf(lastErr, "broadcast failed on all %d endpoints", len(clients))
}

// normalize converts errors from the solana-go JSON-RPC client into the same
// shape pkg/solana produces, so classification is transport independent.
func normalize(err error) error {
	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		return solana.NormalizeRPCError(&ybbus.RPCError{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Data:    rpcErr.Data,
		})
	}
	return solana.NormalizeRPCError(err)
}
