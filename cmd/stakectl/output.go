package main

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"time"

	"github.com/mr-tron/base58"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
)

type jsonAttempt struct {
	Strategy  string `json:"strategy"`
	Outcome   string `json:"outcome"`
	Signature string `json:"signature,omitempty"`
	Class     string `json:"class,omitempty"`
	Error     string `json:"error,omitempty"`
	Duration  string `json:"duration"`
}

type jsonConfirmation struct {
	Status       string `json:"status"`
	Slot         uint64 `json:"slot,omitempty"`
	Error        string `json:"error,omitempty"`
	ProgramError string `json:"program_error,omitempty"`
}

type jsonResult struct {
	Operation    string            `json:"operation"`
	Status       string            `json:"status"`
	Signature    string            `json:"signature,omitempty"`
	Amount       string            `json:"amount,omitempty"`
	Reconciled   bool              `json:"reconciled"`
	Error        string            `json:"error,omitempty"`
	Warnings     []string          `json:"warnings,omitempty"`
	Attempts     []*jsonAttempt    `json:"attempts,omitempty"`
	Confirmation *jsonConfirmation `json:"confirmation,omitempty"`
}

func toJSONResult(res *stake.Result, decimals uint8) *jsonResult {
	out := &jsonResult{
		Operation:  string(res.Operation),
		Status:     res.Status.String(),
		Reconciled: res.Reconciled,
		Warnings:   res.Warnings,
	}
	if res.Signature != nil {
		out.Signature = res.Signature.String()
	}
	if res.Amount > 0 {
		out.Amount = stake.FormatAmount(res.Amount, decimals)
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}

	for _, attempt := range res.Attempts {
		a := &jsonAttempt{
			Strategy: string(attempt.Strategy),
			Outcome:  attempt.Outcome.String(),
			Duration: attempt.Duration.Round(time.Millisecond).String(),
		}
		if attempt.Signature != nil {
			a.Signature = attempt.Signature.String()
		}
		if attempt.Err != nil {
			a.Class = attempt.Class.String()
			a.Error = attempt.Err.Error()
		}
		out.Attempts = append(out.Attempts, a)
	}

	if c := res.Confirmation; c != nil {
		out.Confirmation = &jsonConfirmation{
			Status: c.Status.String(),
			Slot:   c.Slot,
		}
		if c.Err != nil {
			out.Confirmation.Error = c.Err.Error()
		}
		if c.ProgramError != nil {
			out.Confirmation.ProgramError = c.ProgramError.Name()
		}
	}

	return out
}

type jsonPosition struct {
	Wallet         string  `json:"wallet"`
	Source         string  `json:"source"`
	Registered     bool    `json:"registered"`
	StakedAmount   string  `json:"staked_amount"`
	PendingRewards string  `json:"pending_rewards"`
	Locked         bool    `json:"locked"`
	StakedAt       *string `json:"staked_at,omitempty"`
	UnlockTime     *string `json:"unlock_time,omitempty"`
	Referrer       string  `json:"referrer,omitempty"`
	APY            float64 `json:"apy,omitempty"`
	MinStakeAmount string  `json:"min_stake_amount,omitempty"`
	LockPeriod     string  `json:"lock_period,omitempty"`
}

func toJSONPosition(p *stake.Position, decimals uint8) *jsonPosition {
	out := &jsonPosition{
		Wallet:         encodeKey(p.Wallet),
		Source:         string(p.Source),
		Registered:     p.Registered,
		StakedAmount:   stake.FormatAmount(p.StakedAmount, decimals),
		PendingRewards: stake.FormatAmount(p.PendingRewards, decimals),
		Locked:         p.Locked,
		Referrer:       encodeKey(p.Referrer),
		APY:            p.APY,
	}
	if !p.StakedAt.IsZero() {
		v := p.StakedAt.UTC().Format(time.RFC3339)
		out.StakedAt = &v
	}
	if !p.UnlockTime.IsZero() {
		v := p.UnlockTime.UTC().Format(time.RFC3339)
		out.UnlockTime = &v
	}
	if p.MinStakeAmount > 0 {
		out.MinStakeAmount = stake.FormatAmount(p.MinStakeAmount, decimals)
	}
	if p.LockPeriod > 0 {
		out.LockPeriod = p.LockPeriod.String()
	}
	return out
}

func encodeKey(key ed25519.PublicKey) string {
	if len(key) == 0 {
		return ""
	}
	return base58.Encode(key)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
