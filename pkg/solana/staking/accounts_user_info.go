package staking

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

const (
	UserInfoAccountSize = (8 + // discriminator
		32 + // owner
		8 + // staked_amount
		8 + // rewards
		8 + // last_stake_time
		8 + // last_claim_time
		1 + 32 + // referrer
		8 + // referral_count
		8) // total_referral_rewards
)

var UserInfoAccountDiscriminator = []byte{0x53, 0x86, 0xc8, 0x38, 0x90, 0x38, 0x0a, 0x3e}

type UserInfoAccount struct {
	Owner                ed25519.PublicKey
	StakedAmount         uint64
	Rewards              uint64
	LastStakeTime        int64
	LastClaimTime        int64
	Referrer             ed25519.PublicKey // optional
	ReferralCount        uint64
	TotalReferralRewards uint64
}

type userInfoLayout struct {
	Owner                [32]byte
	StakedAmount         uint64
	Rewards              uint64
	LastStakeTime        int64
	LastClaimTime        int64
	Referrer             *[32]byte
	ReferralCount        uint64
	TotalReferralRewards uint64
}

func (obj *UserInfoAccount) Unmarshal(data []byte) (err error) {
	// Anchor allocates room for a present referrer, so an absent one leaves
	// 32 trailing bytes that borsh must not see.
	const referrerTagOffset = 8 + 32 + 8 + 8 + 8 + 8
	if len(data) < referrerTagOffset+1+8+8 {
		return ErrInvalidAccountData
	}
	if !bytes.Equal(data[:DiscriminatorSize], UserInfoAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	size := UserInfoAccountSize
	if data[referrerTagOffset] == 0 {
		size -= 32
	}
	if len(data) < size {
		return ErrInvalidAccountData
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrInvalidAccountData, "borsh panic: %v", r)
		}
	}()

	var layout userInfoLayout
	if err := borsh.Deserialize(&layout, data[DiscriminatorSize:size]); err != nil {
		return errors.Wrap(ErrInvalidAccountData, err.Error())
	}

	obj.Owner = append(ed25519.PublicKey{}, layout.Owner[:]...)
	obj.StakedAmount = layout.StakedAmount
	obj.Rewards = layout.Rewards
	obj.LastStakeTime = layout.LastStakeTime
	obj.LastClaimTime = layout.LastClaimTime
	obj.Referrer = nil
	if layout.Referrer != nil {
		obj.Referrer = append(ed25519.PublicKey{}, layout.Referrer[:]...)
	}
	obj.ReferralCount = layout.ReferralCount
	obj.TotalReferralRewards = layout.TotalReferralRewards

	return nil
}

// PendingRewards is the claimable amount at now: stored rewards plus what has
// accrued on the staked amount since the last stake.
func (obj *UserInfoAccount) PendingRewards(state *GlobalStateAccount, now time.Time) uint64 {
	pending := obj.Rewards
	if obj.StakedAmount > 0 && now.Unix() > obj.LastStakeTime {
		elapsed := uint64(now.Unix() - obj.LastStakeTime)
		pending += CalculateReward(obj.StakedAmount, elapsed, state.RewardRate)
	}
	return pending
}

// UnlockTime is zero when nothing is staked.
func (obj *UserInfoAccount) UnlockTime(state *GlobalStateAccount) time.Time {
	if obj.StakedAmount == 0 {
		return time.Time{}
	}
	return time.Unix(obj.LastStakeTime+state.UnlockDuration, 0)
}

func (obj *UserInfoAccount) IsLocked(state *GlobalStateAccount, now time.Time) bool {
	unlock := obj.UnlockTime(state)
	return !unlock.IsZero() && now.Before(unlock)
}

func (obj *UserInfoAccount) String() string {
	referrer := "<nil>"
	if len(obj.Referrer) > 0 {
		referrer = base58.Encode(obj.Referrer)
	}

	return fmt.Sprintf(
		"UserInfoAccount{owner=%s,staked_amount=%d,rewards=%d,last_stake_time=%d,last_claim_time=%d,referrer=%s,referral_count=%d,total_referral_rewards=%d}",
		base58.Encode(obj.Owner),
		obj.StakedAmount,
		obj.Rewards,
		obj.LastStakeTime,
		obj.LastClaimTime,
		referrer,
		obj.ReferralCount,
		obj.TotalReferralRewards,
	)
}
