package main

import (
	"os"
	"strings"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	metrics_util "github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"
	storeRedis    = "redis"
)

// Config is the CLI's deployment configuration. Pipeline tuning lives in the
// STAKE_PIPELINE_ and RECHECK_SERVICE_ environment configs of the packages
// that consume it.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	AppName  string `mapstructure:"app_name"`

	SolanaRPCEndpoint        string   `mapstructure:"solana_rpc_endpoint"`
	SolanaBroadcastEndpoints []string `mapstructure:"solana_broadcast_endpoints"`
	UseVersionedTransactions bool     `mapstructure:"use_versioned_transactions"`

	StakingProgram  string `mapstructure:"staking_program"`
	StakingMint     string `mapstructure:"staking_mint"`
	StakingDecimals uint8  `mapstructure:"staking_decimals"`
	VaultOverride   string `mapstructure:"vault_override"`
	IDLFile         string `mapstructure:"idl_file"`
	FetchIDL        bool   `mapstructure:"fetch_idl"`

	WalletKeypairFile string `mapstructure:"wallet_keypair_file"`
	WalletPrivateKey  string `mapstructure:"wallet_private_key"`

	RelayURL       string  `mapstructure:"relay_url"`
	RelayRateLimit float64 `mapstructure:"relay_rate_limit"`

	LedgerURL string `mapstructure:"ledger_url"`

	SubmissionStore string `mapstructure:"submission_store"`
	PostgresDSN     string `mapstructure:"postgres_dsn"`
	RedisURL        string `mapstructure:"redis_url"`

	RecheckInterval time.Duration `mapstructure:"recheck_interval"`

	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = Config{
	LogLevel: "info",
	AppName:  "stakectl",

	SolanaRPCEndpoint: "devnet",

	StakingDecimals: 9,

	RelayRateLimit: 1,

	SubmissionStore: storeMemory,

	RecheckInterval: 10 * time.Second,
}

func init() {
	_ = viper.BindEnv("log_level", "LOG_LEVEL")
	_ = viper.BindEnv("app_name", "APP_NAME")

	_ = viper.BindEnv("solana_rpc_endpoint", "SOLANA_RPC_ENDPOINT")
	_ = viper.BindEnv("solana_broadcast_endpoints", "SOLANA_BROADCAST_ENDPOINTS")
	_ = viper.BindEnv("use_versioned_transactions", "USE_VERSIONED_TRANSACTIONS")

	_ = viper.BindEnv("staking_program", "STAKING_PROGRAM")
	_ = viper.BindEnv("staking_mint", "STAKING_MINT")
	_ = viper.BindEnv("staking_decimals", "STAKING_DECIMALS")
	_ = viper.BindEnv("vault_override", "VAULT_OVERRIDE")
	_ = viper.BindEnv("idl_file", "IDL_FILE")
	_ = viper.BindEnv("fetch_idl", "FETCH_IDL")

	_ = viper.BindEnv("wallet_keypair_file", "WALLET_KEYPAIR_FILE")
	_ = viper.BindEnv("wallet_private_key", "WALLET_PRIVATE_KEY")

	_ = viper.BindEnv("relay_url", "RELAY_URL")
	_ = viper.BindEnv("relay_rate_limit", "RELAY_RATE_LIMIT")

	_ = viper.BindEnv("ledger_url", "LEDGER_URL")

	_ = viper.BindEnv("submission_store", "SUBMISSION_STORE")
	_ = viper.BindEnv("postgres_dsn", "POSTGRES_DSN")
	_ = viper.BindEnv("redis_url", "REDIS_URL")

	_ = viper.BindEnv("recheck_interval", "RECHECK_INTERVAL")

	_ = viper.BindEnv("new_relic_license_key", "NEW_RELIC_LICENSE_KEY")
}

// loadConfig reads the optional config file, then layers environment
// variables on top of the defaults.
func loadConfig(configPath string) (*Config, error) {
	// viper.ReadInConfig only returns ConfigFileNotFoundError when searching for
	// a default file, so an explicit path that doesn't exist is checked here.
	if len(configPath) > 0 {
		if _, err := os.Stat(configPath); err == nil {
			viper.SetConfigFile(configPath)
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrap(err, "failed to check if config exists")
		}
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return nil, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	// Env values arrive as a single comma separated string
	if len(config.SolanaBroadcastEndpoints) == 1 && strings.Contains(config.SolanaBroadcastEndpoints[0], ",") {
		config.SolanaBroadcastEndpoints = strings.Split(config.SolanaBroadcastEndpoints[0], ",")
	}

	if len(config.StakingProgram) == 0 {
		return nil, errors.New("STAKING_PROGRAM is required")
	}
	if len(config.StakingMint) == 0 {
		return nil, errors.New("STAKING_MINT is required")
	}
	if len(config.LedgerURL) == 0 {
		return nil, errors.New("LEDGER_URL is required")
	}

	switch config.SubmissionStore {
	case storeMemory:
	case storePostgres:
		if len(config.PostgresDSN) == 0 {
			return nil, errors.New("POSTGRES_DSN is required for the postgres submission store")
		}
	case storeRedis:
		if len(config.RedisURL) == 0 {
			return nil, errors.New("REDIS_URL is required for the redis submission store")
		}
	default:
		return nil, errors.Errorf("unknown submission store %q", config.SubmissionStore)
	}

	return &config, nil
}

func newMetricsProvider(config *Config) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	return newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
}

func configureLogger(config *Config, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	// Results go to stdout
	logrus.SetOutput(os.Stderr)
}
