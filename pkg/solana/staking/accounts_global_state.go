package staking

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/mr-tron/base58"
	"github.com/near/borsh-go"
	"github.com/pkg/errors"
)

const (
	GlobalStateAccountSize = (8 + // discriminator
		32 + // authority
		32 + // token_mint
		32 + // vault
		8 + // reward_rate
		8 + // unlock_duration
		8 + // early_unstake_penalty
		8 + // min_stake_amount
		8 + // referral_reward_rate
		8 + // total_staked
		8 + // stakers_count
		8 + // reward_pool
		8 + // last_update_time
		1) // bump

	basisPointsDenominator = 10_000
	secondsPerDay          = 86_400
)

var GlobalStateAccountDiscriminator = []byte{0xa3, 0x2e, 0x4a, 0xa8, 0xd8, 0x7b, 0x85, 0x62}

type GlobalStateAccount struct {
	Authority           ed25519.PublicKey
	TokenMint           ed25519.PublicKey
	Vault               ed25519.PublicKey
	RewardRate          uint64 // daily, basis points
	UnlockDuration      int64  // seconds
	EarlyUnstakePenalty uint64 // basis points
	MinStakeAmount      uint64
	ReferralRewardRate  uint64 // basis points
	TotalStaked         uint64
	StakersCount        uint64
	RewardPool          uint64
	LastUpdateTime      int64
	Bump                uint8
}

type globalStateLayout struct {
	Authority           [32]byte
	TokenMint           [32]byte
	Vault               [32]byte
	RewardRate          uint64
	UnlockDuration      int64
	EarlyUnstakePenalty uint64
	MinStakeAmount      uint64
	ReferralRewardRate  uint64
	TotalStaked         uint64
	StakersCount        uint64
	RewardPool          uint64
	LastUpdateTime      int64
	Bump                uint8
}

func (obj *GlobalStateAccount) Unmarshal(data []byte) (err error) {
	if len(data) < GlobalStateAccountSize {
		return ErrInvalidAccountData
	}
	if !bytes.Equal(data[:DiscriminatorSize], GlobalStateAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrInvalidAccountData, "borsh panic: %v", r)
		}
	}()

	var layout globalStateLayout
	if err := borsh.Deserialize(&layout, data[DiscriminatorSize:GlobalStateAccountSize]); err != nil {
		return errors.Wrap(ErrInvalidAccountData, err.Error())
	}

	obj.Authority = append(ed25519.PublicKey{}, layout.Authority[:]...)
	obj.TokenMint = append(ed25519.PublicKey{}, layout.TokenMint[:]...)
	obj.Vault = append(ed25519.PublicKey{}, layout.Vault[:]...)
	obj.RewardRate = layout.RewardRate
	obj.UnlockDuration = layout.UnlockDuration
	obj.EarlyUnstakePenalty = layout.EarlyUnstakePenalty
	obj.MinStakeAmount = layout.MinStakeAmount
	obj.ReferralRewardRate = layout.ReferralRewardRate
	obj.TotalStaked = layout.TotalStaked
	obj.StakersCount = layout.StakersCount
	obj.RewardPool = layout.RewardPool
	obj.LastUpdateTime = layout.LastUpdateTime
	obj.Bump = layout.Bump

	return nil
}

// APY is the simple annualized yield, in percent, of the daily reward rate.
func (obj *GlobalStateAccount) APY() float64 {
	return float64(obj.RewardRate) / 100.0 * 365.0
}

func (obj *GlobalStateAccount) UnlockPeriod() time.Duration {
	return time.Duration(obj.UnlockDuration) * time.Second
}

// ReferralReward is what a referrer earns when amount is staked by a referee.
func (obj *GlobalStateAccount) ReferralReward(amount uint64) uint64 {
	return BasisPoints(amount, obj.ReferralRewardRate)
}

func (obj *GlobalStateAccount) String() string {
	return fmt.Sprintf(
		"GlobalStateAccount{authority=%s,token_mint=%s,vault=%s,reward_rate=%d,unlock_duration=%d,early_unstake_penalty=%d,min_stake_amount=%d,referral_reward_rate=%d,total_staked=%d,stakers_count=%d,reward_pool=%d,last_update_time=%d,bump=%d}",
		base58.Encode(obj.Authority),
		base58.Encode(obj.TokenMint),
		base58.Encode(obj.Vault),
		obj.RewardRate,
		obj.UnlockDuration,
		obj.EarlyUnstakePenalty,
		obj.MinStakeAmount,
		obj.ReferralRewardRate,
		obj.TotalStaked,
		obj.StakersCount,
		obj.RewardPool,
		obj.LastUpdateTime,
		obj.Bump,
	)
}

// CalculateReward accrues the daily rate on amount over elapsed seconds.
// Intermediate values are unbounded and the result truncates to 64 bits, the
// same as the program's u128 arithmetic.
func CalculateReward(amount, elapsedSeconds, dailyRate uint64) uint64 {
	daily := sdkmath.NewIntFromUint64(amount).
		Mul(sdkmath.NewIntFromUint64(dailyRate)).
		QuoRaw(basisPointsDenominator)

	return truncateUint64(daily.
		Mul(sdkmath.NewIntFromUint64(elapsedSeconds)).
		QuoRaw(secondsPerDay))
}

// BasisPoints applies rate, in hundredths of a percent, to amount.
func BasisPoints(amount, rate uint64) uint64 {
	return truncateUint64(sdkmath.NewIntFromUint64(amount).
		Mul(sdkmath.NewIntFromUint64(rate)).
		QuoRaw(basisPointsDenominator))
}

func truncateUint64(v sdkmath.Int) uint64 {
	if v.IsUint64() {
		return v.Uint64()
	}
	return v.BigInt().Uint64()
}
