package stake

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry/backoff"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

type StrategyName string

const (
	StrategyWalletSend       StrategyName = "wallet_send"
	StrategySignAndBroadcast StrategyName = "sign_and_broadcast"
	StrategyRelay            StrategyName = "relay"
)

var ErrUnknownStrategy = errors.New("unknown submission strategy")

// Strategy is one way of getting a transaction signed and onto the network.
//
// Execute may leave txn signed even when it fails, in which case the
// signature is still a candidate for having landed.
type Strategy interface {
	Name() StrategyName
	Available(session *Session) bool
	Execute(ctx context.Context, session *Session, txn *solana.Transaction) (solana.Signature, error)
}

// ParseStrategies parses a comma separated, ordered list of strategy names.
func ParseStrategies(configProvider ConfigProvider, value string) ([]Strategy, error) {
	conf := configProvider()

	var res []Strategy
	seen := make(map[StrategyName]struct{})
	for _, part := range strings.Split(value, ",") {
		name := StrategyName(strings.TrimSpace(part))
		if len(name) == 0 {
			continue
		}
		if _, ok := seen[name]; ok {
			return nil, errors.Errorf("strategy %s listed more than once", name)
		}
		seen[name] = struct{}{}

		switch name {
		case StrategyWalletSend:
			res = append(res, &walletSendStrategy{})
		case StrategySignAndBroadcast:
			res = append(res, newSignAndBroadcastStrategy(conf))
		case StrategyRelay:
			res = append(res, &relayStrategy{})
		default:
			return nil, errors.Wrap(ErrUnknownStrategy, string(name))
		}
	}

	if len(res) == 0 {
		return nil, errors.New("no submission strategies configured")
	}
	return res, nil
}

type walletSendStrategy struct{}

func (s *walletSendStrategy) Name() StrategyName {
	return StrategyWalletSend
}

func (s *walletSendStrategy) Available(session *Session) bool {
	return session.Wallet.Sender != nil
}

func (s *walletSendStrategy) Execute(ctx context.Context, session *Session, txn *solana.Transaction) (solana.Signature, error) {
	if !s.Available(session) {
		return solana.Signature{}, errStrategyUnavailable
	}
	return session.Wallet.Sender.SendTransaction(ctx, txn)
}

type signAndBroadcastStrategy struct {
	log  *logrus.Entry
	conf *conf
}

func newSignAndBroadcastStrategy(conf *conf) *signAndBroadcastStrategy {
	return &signAndBroadcastStrategy{
		log:  logrus.StandardLogger().WithField("type", "stake/strategy/sign_and_broadcast"),
		conf: conf,
	}
}

func (s *signAndBroadcastStrategy) Name() StrategyName {
	return StrategySignAndBroadcast
}

func (s *signAndBroadcastStrategy) Available(session *Session) bool {
	return session.Wallet.Signer != nil && session.Broadcaster != nil
}

// Execute signs once and then broadcasts the same bytes, retrying transient
// broadcast failures only. Rebroadcasting an identical signed transaction is
// safe since the network deduplicates by signature.
func (s *signAndBroadcastStrategy) Execute(ctx context.Context, session *Session, txn *solana.Transaction) (solana.Signature, error) {
	if !s.Available(session) {
		return solana.Signature{}, errStrategyUnavailable
	}

	if err := session.Wallet.Signer.SignTransaction(ctx, txn); err != nil {
		return solana.Signature{}, err
	}

	log := s.log.WithField("signature", txn.ID())

	var sig solana.Signature
	attempts, err := retry.Retry(
		func() error {
			var err error
			sig, err = session.Broadcaster.Broadcast(ctx, *txn)
			if err != nil {
				log.WithError(err).Debug("broadcast failed")
			}
			return err
		},
		retry.Limit(uint(s.conf.broadcastMaxAttempts.Get(ctx))),
		retry.RetriableFunc(func(err error) bool {
			return Classify(err) == ErrorClassTransient && ctx.Err() == nil
		}),
		retry.BackoffContext(
			ctx,
			backoff.BinaryExponential(s.conf.broadcastBaseBackoff.Get(ctx)),
			s.conf.broadcastMaxBackoff.Get(ctx),
		),
	)
	if err != nil {
		log.WithError(err).WithField("attempts", attempts).Info("broadcast gave up")
		return solana.Signature{}, err
	}
	return sig, nil
}

type relayStrategy struct{}

func (s *relayStrategy) Name() StrategyName {
	return StrategyRelay
}

func (s *relayStrategy) Available(session *Session) bool {
	return session.Relay != nil && session.Wallet.Signer != nil
}

func (s *relayStrategy) Execute(ctx context.Context, session *Session, txn *solana.Transaction) (solana.Signature, error) {
	if !s.Available(session) {
		return solana.Signature{}, errStrategyUnavailable
	}

	if err := session.Wallet.Signer.SignTransaction(ctx, txn); err != nil {
		return solana.Signature{}, err
	}

	return session.Relay.Submit(ctx, *txn, &relay.WalletMetadata{
		PublicKey: session.Owner(),
		Name:      session.Wallet.Name,
	})
}
