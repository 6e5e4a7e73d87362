package async_recheck

import (
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/env"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/memory"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/config/wrapper"
)

const (
	envConfigPrefix = "RECHECK_SERVICE_"

	PendingBatchSizeConfigEnvName = envConfigPrefix + "PENDING_BATCH_SIZE"
	defaultPendingBatchSize       = 100

	UnreconciledBatchSizeConfigEnvName = envConfigPrefix + "UNRECONCILED_BATCH_SIZE"
	defaultUnreconciledBatchSize       = 100

	// Pending records younger than this are still being confirmed by the
	// operation that broadcast them
	MinPendingAgeConfigEnvName = envConfigPrefix + "MIN_PENDING_AGE"
	defaultMinPendingAge       = 30 * time.Second

	// A reconciliation claim held longer than this is assumed abandoned by a
	// process that died mid call
	StaleClaimAgeConfigEnvName = envConfigPrefix + "STALE_CLAIM_AGE"
	defaultStaleClaimAge       = 10 * time.Minute

	MaxConcurrencyConfigEnvName = envConfigPrefix + "MAX_CONCURRENCY"
	defaultMaxConcurrency       = 10
)

type conf struct {
	pendingBatchSize      config.Uint64
	unreconciledBatchSize config.Uint64
	minPendingAge         config.Duration
	staleClaimAge         config.Duration
	maxConcurrency        config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			pendingBatchSize:      env.NewUint64Config(PendingBatchSizeConfigEnvName, defaultPendingBatchSize),
			unreconciledBatchSize: env.NewUint64Config(UnreconciledBatchSizeConfigEnvName, defaultUnreconciledBatchSize),
			minPendingAge:         env.NewDurationConfig(MinPendingAgeConfigEnvName, defaultMinPendingAge),
			staleClaimAge:         env.NewDurationConfig(StaleClaimAgeConfigEnvName, defaultStaleClaimAge),
			maxConcurrency:        env.NewUint64Config(MaxConcurrencyConfigEnvName, defaultMaxConcurrency),
		}
	}
}

type testOverrides struct {
	pendingBatchSize uint64
	minPendingAge    time.Duration
	staleClaimAge    time.Duration
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	batchSize := overrides.pendingBatchSize
	if batchSize == 0 {
		batchSize = defaultPendingBatchSize
	}

	staleClaimAge := overrides.staleClaimAge
	if staleClaimAge == 0 {
		staleClaimAge = defaultStaleClaimAge
	}

	return func() *conf {
		return &conf{
			pendingBatchSize:      wrapper.NewUint64Config(memory.NewConfig(batchSize), defaultPendingBatchSize),
			unreconciledBatchSize: wrapper.NewUint64Config(memory.NewConfig(uint64(defaultUnreconciledBatchSize)), defaultUnreconciledBatchSize),
			minPendingAge:         wrapper.NewDurationConfig(memory.NewConfig(overrides.minPendingAge), defaultMinPendingAge),
			staleClaimAge:         wrapper.NewDurationConfig(memory.NewConfig(staleClaimAge), defaultStaleClaimAge),
			maxConcurrency:        wrapper.NewUint64Config(memory.NewConfig(uint64(4)), defaultMaxConcurrency),
		}
	}
}
