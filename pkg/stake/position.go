package stake

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/ledger"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
)

type PositionSource string

const (
	PositionSourceChain  PositionSource = "chain"
	PositionSourceLedger PositionSource = "ledger"
)

var ErrGlobalStateNotFound = errors.New("staking program global state not found")

// Position is a wallet's staking position. Amounts are in base units.
type Position struct {
	Wallet     ed25519.PublicKey
	Registered bool

	StakedAmount   uint64
	PendingRewards uint64
	StakedAt       time.Time
	UnlockTime     time.Time
	Locked         bool
	Referrer       ed25519.PublicKey

	// Program wide values. Zero when the position came from the ledger.
	APY                 float64
	MinStakeAmount      uint64
	LockPeriod          time.Duration
	EarlyUnstakePenalty uint64 // basis points

	Source    PositionSource
	FetchedAt time.Time
}

// EstimatedPenalty previews what unstaking amount at now would forfeit. It
// is only meaningful for positions read from chain.
func (p *Position) EstimatedPenalty(amount uint64, now time.Time) uint64 {
	if !p.Locked || now.After(p.UnlockTime) {
		return 0
	}
	return staking.BasisPoints(amount, p.EarlyUnstakePenalty)
}

// FetchPosition reads the position from chain, falling back to the ledger
// when the chain is unreachable. The result is cached on the session for
// pipeline pre-checks.
func FetchPosition(ctx context.Context, session *Session, l ledger.Ledger) (*Position, error) {
	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type":   "stake/position",
		"wallet": session.Wallet.Name,
	})

	position, err := fetchChainPosition(ctx, session, time.Now())
	if err == nil {
		session.setPosition(position)
		return position, nil
	}
	if err == ErrGlobalStateNotFound || l == nil {
		return nil, err
	}

	log.WithError(err).Warn("failed to read position from chain, falling back to ledger")

	record, ledgerErr := l.GetStakingInfo(ctx, session.Owner())
	if ledgerErr == ledger.ErrNotFound {
		position = &Position{
			Wallet:    session.Owner(),
			Source:    PositionSourceLedger,
			FetchedAt: time.Now(),
		}
		session.setPosition(position)
		return position, nil
	} else if ledgerErr != nil {
		return nil, errors.Wrapf(err, "ledger fallback failed: %s", ledgerErr.Error())
	}

	now := time.Now()
	position = &Position{
		Wallet:         session.Owner(),
		Registered:     true,
		StakedAmount:   record.AmountStaked,
		PendingRewards: record.PendingRewards,
		StakedAt:       record.StakedAt,
		UnlockTime:     record.LockExpiresAt,
		Locked:         now.Before(record.LockExpiresAt),
		Source:         PositionSourceLedger,
		FetchedAt:      now,
	}
	session.setPosition(position)
	return position, nil
}

func fetchChainPosition(ctx context.Context, session *Session, now time.Time) (*Position, error) {
	globalStateAddress, err := session.Deriver.GlobalState()
	if err != nil {
		return nil, err
	}

	info, err := session.Client.GetAccountInfo(ctx, globalStateAddress.Address, solana.CommitmentConfirmed)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrGlobalStateNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get global state")
	}

	var globalState staking.GlobalStateAccount
	if err := globalState.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrap(err, "failed to decode global state")
	}

	position := &Position{
		Wallet:              session.Owner(),
		APY:                 globalState.APY(),
		MinStakeAmount:      globalState.MinStakeAmount,
		LockPeriod:          globalState.UnlockPeriod(),
		EarlyUnstakePenalty: globalState.EarlyUnstakePenalty,
		Source:              PositionSourceChain,
		FetchedAt:           now,
	}

	userInfoAddress, err := session.Deriver.UserInfo(session.Owner())
	if err != nil {
		return nil, err
	}

	info, err = session.Client.GetAccountInfo(ctx, userInfoAddress.Address, solana.CommitmentConfirmed)
	if err == solana.ErrNoAccountInfo {
		return position, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "failed to get user info")
	}

	var userInfo staking.UserInfoAccount
	if err := userInfo.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrap(err, "failed to decode user info")
	}

	position.Registered = true
	position.StakedAmount = userInfo.StakedAmount
	position.PendingRewards = userInfo.PendingRewards(&globalState, now)
	if userInfo.StakedAmount > 0 {
		position.StakedAt = time.Unix(userInfo.LastStakeTime, 0)
	}
	position.UnlockTime = userInfo.UnlockTime(&globalState)
	position.Locked = userInfo.IsLocked(&globalState, now)
	position.Referrer = userInfo.Referrer

	return position, nil
}
