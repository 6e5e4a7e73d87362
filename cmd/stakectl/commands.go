package main

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	async_recheck "github.com/berzslv/hackedsolanaatm-sub002/pkg/async/recheck"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
)

var errOperationFailed = errors.New("operation failed")

func newRegisterCmd() *cobra.Command {
	var referrer string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create the wallet's staking account",
		Args:  cobra.NoArgs,
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			var referrerKey ed25519.PublicKey
			if len(referrer) > 0 {
				var err error
				referrerKey, err = decodePublicKey(referrer)
				if err != nil {
					return errors.Wrap(err, "invalid referrer")
				}
			}
			return printResult(config.StakingDecimals)(d.pipeline.Register(ctx, d.session, referrerKey))
		}),
	}
	cmd.Flags().StringVar(&referrer, "referrer", "", "Referrer wallet address")
	return cmd
}

func newStakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stake <amount>",
		Short: "Stake tokens, registering the wallet first if needed",
		Args:  cobra.ExactArgs(1),
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, args []string) error {
			if err := refreshPosition(ctx, d); err != nil {
				return err
			}
			return printResult(config.StakingDecimals)(d.pipeline.Stake(ctx, d.session, args[0]))
		}),
	}
}

func newUnstakeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unstake <amount>",
		Short: "Unstake tokens",
		Args:  cobra.ExactArgs(1),
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, args []string) error {
			if err := refreshPosition(ctx, d); err != nil {
				return err
			}
			return printResult(config.StakingDecimals)(d.pipeline.Unstake(ctx, d.session, args[0]))
		}),
	}
}

func newClaimCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "claim",
		Short: "Claim pending rewards",
		Args:  cobra.NoArgs,
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			return printResult(config.StakingDecimals)(d.pipeline.Claim(ctx, d.session))
		}),
	}
}

func newCompoundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compound",
		Short: "Restake pending rewards",
		Args:  cobra.NoArgs,
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			return printResult(config.StakingDecimals)(d.pipeline.Compound(ctx, d.session))
		}),
	}
}

func newRecheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recheck <signature>",
		Short: "Re-check finality of a pending submission",
		Args:  cobra.ExactArgs(1),
		RunE: withDeps(false, func(ctx context.Context, config *Config, d *deps, args []string) error {
			return printResult(config.StakingDecimals)(d.pipeline.Recheck(ctx, args[0]))
		}),
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the wallet's staking position",
		Args:  cobra.NoArgs,
		RunE: withDeps(true, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			position, err := stake.FetchPosition(ctx, d.session, d.ledger)
			if err != nil {
				return err
			}
			return printJSON(toJSONPosition(position, config.StakingDecimals))
		}),
	}
}

func newDeriveCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the staking program's derived addresses",
		Args:  cobra.NoArgs,
		RunE: withDeps(false, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			deriver := d.session.Deriver

			globalState, err := deriver.GlobalState()
			if err != nil {
				return err
			}
			vaultAuthority, err := deriver.VaultAuthority()
			if err != nil {
				return err
			}
			vault, err := deriver.Vault()
			if err != nil {
				return err
			}

			out := map[string]string{
				"program":         encodeKey(d.program.ID()),
				"mint":            encodeKey(d.session.Mint),
				"global_state":    encodeKey(globalState.Address),
				"vault_authority": encodeKey(vaultAuthority.Address),
				"vault":           encodeKey(vault),
			}

			if len(owner) > 0 {
				ownerKey, err := decodePublicKey(owner)
				if err != nil {
					return errors.Wrap(err, "invalid owner")
				}

				userInfo, err := deriver.UserInfo(ownerKey)
				if err != nil {
					return err
				}
				tokenAccount, err := deriver.UserTokenAccount(ownerKey)
				if err != nil {
					return err
				}

				out["owner"] = owner
				out["user_info"] = encodeKey(userInfo.Address)
				out["user_token_account"] = encodeKey(tokenAccount)
			}

			return printJSON(out)
		}),
	}
	cmd.Flags().StringVar(&owner, "owner", "", "Wallet to derive user accounts for")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background re-check and reconciliation worker",
		Args:  cobra.NoArgs,
		RunE: withDeps(false, func(ctx context.Context, config *Config, d *deps, _ []string) error {
			d.log.WithField("interval", config.RecheckInterval).Info("starting re-check worker")

			service := async_recheck.New(d.store, d.pipeline, async_recheck.WithEnvConfigs())
			err := service.Start(ctx, config.RecheckInterval)
			if err == context.Canceled {
				return nil
			}
			return err
		}),
	}
}

// refreshPosition loads the position the pipeline's pre-checks run against.
// An unreadable position only skips the pre-checks.
func refreshPosition(ctx context.Context, d *deps) error {
	_, err := stake.FetchPosition(ctx, d.session, d.ledger)
	if err == stake.ErrGlobalStateNotFound {
		return err
	} else if err != nil {
		d.log.WithError(err).Warn("failed to load position, skipping pre-checks")
	}
	return nil
}

// printResult writes a pipeline result to stdout. A failed operation still
// prints before exiting non-zero.
func printResult(decimals uint8) func(*stake.Result, error) error {
	return func(res *stake.Result, err error) error {
		if err != nil {
			return err
		}

		if err := printJSON(toJSONResult(res, decimals)); err != nil {
			return err
		}

		if res.Status == stake.ResultStatusFailed {
			return errOperationFailed
		}
		return nil
	}
}
