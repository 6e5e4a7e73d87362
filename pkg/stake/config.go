package stake

import (
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/env"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/memory"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/wrapper"
)

const (
	envConfigPrefix = "STAKE_PIPELINE_"

	StrategiesConfigEnvName = envConfigPrefix + "STRATEGIES"
	defaultStrategies       = "wallet_send,sign_and_broadcast,relay"

	BroadcastMaxAttemptsConfigEnvName = envConfigPrefix + "BROADCAST_MAX_ATTEMPTS"
	defaultBroadcastMaxAttempts       = 3

	BroadcastBaseBackoffConfigEnvName = envConfigPrefix + "BROADCAST_BASE_BACKOFF"
	defaultBroadcastBaseBackoff       = 500 * time.Millisecond

	BroadcastMaxBackoffConfigEnvName = envConfigPrefix + "BROADCAST_MAX_BACKOFF"
	defaultBroadcastMaxBackoff       = 4 * time.Second

	ComputeUnitLimitConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_LIMIT"
	defaultComputeUnitLimit       = 0

	ComputeUnitPriceConfigEnvName = envConfigPrefix + "COMPUTE_UNIT_PRICE"
	defaultComputeUnitPrice       = 0

	EnableSimulationConfigEnvName = envConfigPrefix + "ENABLE_SIMULATION"
	defaultEnableSimulation       = false

	EnablePrerequisitePlanningConfigEnvName = envConfigPrefix + "ENABLE_PREREQUISITE_PLANNING"
	defaultEnablePrerequisitePlanning       = true

	ConfirmationCommitmentConfigEnvName = envConfigPrefix + "CONFIRMATION_COMMITMENT"
	defaultConfirmationCommitment       = "finalized"

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = 90 * time.Second

	ConfirmationPollIntervalConfigEnvName = envConfigPrefix + "CONFIRMATION_POLL_INTERVAL"
	defaultConfirmationPollInterval       = time.Second

	// Bounds the work done after a broadcast once the caller's context is gone
	DetachedTimeoutConfigEnvName = envConfigPrefix + "DETACHED_TIMEOUT"
	defaultDetachedTimeout       = 2 * time.Minute

	ReconcileCacheSizeConfigEnvName = envConfigPrefix + "RECONCILE_CACHE_SIZE"
	defaultReconcileCacheSize       = 10_000
)

type conf struct {
	strategies                 config.String
	broadcastMaxAttempts       config.Uint64
	broadcastBaseBackoff       config.Duration
	broadcastMaxBackoff        config.Duration
	computeUnitLimit           config.Uint64
	computeUnitPrice           config.Uint64
	enableSimulation           config.Bool
	enablePrerequisitePlanning config.Bool
	confirmationCommitment     config.String
	confirmationTimeout        config.Duration
	confirmationPollInterval   config.Duration
	detachedTimeout            config.Duration
	reconcileCacheSize         config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			strategies:                 env.NewStringConfig(StrategiesConfigEnvName, defaultStrategies),
			broadcastMaxAttempts:       env.NewUint64Config(BroadcastMaxAttemptsConfigEnvName, defaultBroadcastMaxAttempts),
			broadcastBaseBackoff:       env.NewDurationConfig(BroadcastBaseBackoffConfigEnvName, defaultBroadcastBaseBackoff),
			broadcastMaxBackoff:        env.NewDurationConfig(BroadcastMaxBackoffConfigEnvName, defaultBroadcastMaxBackoff),
			computeUnitLimit:           env.NewUint64Config(ComputeUnitLimitConfigEnvName, defaultComputeUnitLimit),
			computeUnitPrice:           env.NewUint64Config(ComputeUnitPriceConfigEnvName, defaultComputeUnitPrice),
			enableSimulation:           env.NewBoolConfig(EnableSimulationConfigEnvName, defaultEnableSimulation),
			enablePrerequisitePlanning: env.NewBoolConfig(EnablePrerequisitePlanningConfigEnvName, defaultEnablePrerequisitePlanning),
			confirmationCommitment:     env.NewStringConfig(ConfirmationCommitmentConfigEnvName, defaultConfirmationCommitment),
			confirmationTimeout:        env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			confirmationPollInterval:   env.NewDurationConfig(ConfirmationPollIntervalConfigEnvName, defaultConfirmationPollInterval),
			detachedTimeout:            env.NewDurationConfig(DetachedTimeoutConfigEnvName, defaultDetachedTimeout),
			reconcileCacheSize:         env.NewUint64Config(ReconcileCacheSizeConfigEnvName, defaultReconcileCacheSize),
		}
	}
}

type testOverrides struct {
	strategies                  string
	broadcastMaxAttempts        uint64
	computeUnitLimit            uint64
	computeUnitPrice            uint64
	enableSimulation            bool
	disablePrerequisitePlanning bool
	confirmationTimeout         time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	strategies := overrides.strategies
	if len(strategies) == 0 {
		strategies = defaultStrategies
	}

	maxAttempts := overrides.broadcastMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = defaultBroadcastMaxAttempts
	}

	confirmationTimeout := overrides.confirmationTimeout
	if confirmationTimeout == 0 {
		confirmationTimeout = time.Second
	}

	return func() *conf {
		return &conf{
			strategies:                 wrapper.NewStringConfig(memory.NewConfig(strategies), defaultStrategies),
			broadcastMaxAttempts:       wrapper.NewUint64Config(memory.NewConfig(maxAttempts), defaultBroadcastMaxAttempts),
			broadcastBaseBackoff:       wrapper.NewDurationConfig(memory.NewConfig(time.Millisecond), defaultBroadcastBaseBackoff),
			broadcastMaxBackoff:        wrapper.NewDurationConfig(memory.NewConfig(5*time.Millisecond), defaultBroadcastMaxBackoff),
			computeUnitLimit:           wrapper.NewUint64Config(memory.NewConfig(overrides.computeUnitLimit), defaultComputeUnitLimit),
			computeUnitPrice:           wrapper.NewUint64Config(memory.NewConfig(overrides.computeUnitPrice), defaultComputeUnitPrice),
			enableSimulation:           wrapper.NewBoolConfig(memory.NewConfig(overrides.enableSimulation), defaultEnableSimulation),
			enablePrerequisitePlanning: wrapper.NewBoolConfig(memory.NewConfig(!overrides.disablePrerequisitePlanning), defaultEnablePrerequisitePlanning),
			confirmationCommitment:     wrapper.NewStringConfig(memory.NewConfig(defaultConfirmationCommitment), defaultConfirmationCommitment),
			confirmationTimeout:        wrapper.NewDurationConfig(memory.NewConfig(confirmationTimeout), defaultConfirmationTimeout),
			confirmationPollInterval:   wrapper.NewDurationConfig(memory.NewConfig(5*time.Millisecond), defaultConfirmationPollInterval),
			detachedTimeout:            wrapper.NewDurationConfig(memory.NewConfig(5*time.Second), defaultDetachedTimeout),
			reconcileCacheSize:         wrapper.NewUint64Config(memory.NewConfig(uint64(100)), defaultReconcileCacheSize),
		}
	}
}
