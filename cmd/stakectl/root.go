package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
)

// rootCmd wires the CLI surface. Every subcommand loads configuration, sets up
// logging and metrics, then builds its dependencies through withDeps.
var rootCmd = &cobra.Command{
	Use:           "stakectl",
	Short:         "Submit and track staking program transactions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagConfig string

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "config.yaml", "Configuration file path")

	rootCmd.AddCommand(
		newRegisterCmd(),
		newStakeCmd(),
		newUnstakeCmd(),
		newClaimCmd(),
		newCompoundCmd(),
		newRecheckCmd(),
		newInfoCmd(),
		newDeriveCmd(),
		newWorkerCmd(),
	)
}

const defaultShutdownTimeout = 10 * time.Second

type runFunc func(ctx context.Context, config *Config, d *deps, args []string) error

// withDeps adapts fn into a cobra RunE.
func withDeps(requireWallet bool, fn runFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(flagConfig)
		if err != nil {
			return err
		}

		metricsProvider, err := newMetricsProvider(config)
		if err != nil {
			return err
		}
		configureLogger(config, metricsProvider)

		ctx := cmd.Context()
		if metricsProvider != nil {
			ctx = metrics.WithApplication(ctx, metricsProvider)
			defer metricsProvider.Shutdown(defaultShutdownTimeout)
		}

		d, err := buildDeps(ctx, config, requireWallet)
		if err != nil {
			return err
		}
		defer d.Close()

		return fn(ctx, config, d, args)
	}
}
