package main

import (
	"context"
	"crypto/ed25519"
	"io"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	submission_memory "github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission/memory"
	submission_postgres "github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission/postgres"
	submission_redis "github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission/redis"
	pg "github.com/berzslv/hackedsolanaatm-sub002/pkg/database/postgres"
	redis_util "github.com/berzslv/hackedsolanaatm-sub002/pkg/database/redis"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/ledger"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/rate"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/broadcast"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

// deps is everything a command needs, built once from Config.
type deps struct {
	log *logrus.Entry

	client   solana.Client
	program  *staking.Program
	session  *stake.Session
	ledger   ledger.Ledger
	store    submission.Store
	pipeline *stake.Pipeline

	closers []io.Closer
}

func (d *deps) Close() {
	for _, c := range d.closers {
		if err := c.Close(); err != nil {
			d.log.WithError(err).Warn("failure closing dependency")
		}
	}
}

// buildDeps wires the pipeline. Commands that never sign, like derive, pass
// requireWallet=false.
func buildDeps(ctx context.Context, config *Config, requireWallet bool) (*deps, error) {
	d := &deps{
		log: logrus.StandardLogger().WithField("type", "stakectl/deps"),
	}

	d.client = solana.New(solana.EndpointFor(config.SolanaRPCEndpoint))

	program, err := buildProgram(ctx, config, d.client)
	if err != nil {
		return nil, err
	}
	d.program = program

	mint, err := decodePublicKey(config.StakingMint)
	if err != nil {
		return nil, errors.Wrap(err, "invalid staking mint")
	}

	var vaultOverride ed25519.PublicKey
	if len(config.VaultOverride) > 0 {
		vaultOverride, err = decodePublicKey(config.VaultOverride)
		if err != nil {
			return nil, errors.Wrap(err, "invalid vault override")
		}
	}

	var broadcaster broadcast.Broadcaster
	if len(config.SolanaBroadcastEndpoints) > 0 {
		endpoints := make([]string, len(config.SolanaBroadcastEndpoints))
		for i, endpoint := range config.SolanaBroadcastEndpoints {
			endpoints[i] = solana.EndpointFor(endpoint)
		}

		broadcaster, err = broadcast.NewFailover(endpoints...)
		if err != nil {
			return nil, errors.Wrap(err, "failed to configure broadcast endpoints")
		}
	}

	var relayClient relay.Relay
	if len(config.RelayURL) > 0 {
		relayClient = relay.NewClient(config.RelayURL, rate.NewLocalRateLimiter(xrate.Limit(config.RelayRateLimit)))
	}

	d.ledger = ledger.NewClient(config.LedgerURL)

	var w wallet.Wallet
	if requireWallet {
		w, err = buildWallet(config, d.client)
		if err != nil {
			return nil, err
		}
	} else {
		// Read only commands still need a session for address derivation
		w = wallet.NewKeypairWallet(ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize)))
	}

	version := solana.MessageVersionLegacy
	if config.UseVersionedTransactions {
		version = solana.MessageVersion0
	}

	d.session, err = stake.NewSession(&stake.SessionConfig{
		Wallet:  w,
		Client:  d.client,
		Version: version,

		Program:  program,
		Mint:     mint,
		Decimals: config.StakingDecimals,

		VaultOverride: vaultOverride,
		Broadcaster:   broadcaster,
		Relay:         relayClient,
	})
	if err != nil {
		return nil, err
	}

	d.store, err = buildStore(ctx, config, d)
	if err != nil {
		d.Close()
		return nil, err
	}

	d.pipeline, err = stake.NewPipeline(stake.WithEnvConfigs(), d.client, d.store, d.ledger)
	if err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func buildProgram(ctx context.Context, config *Config, client solana.Client) (*staking.Program, error) {
	id, err := decodePublicKey(config.StakingProgram)
	if err != nil {
		return nil, errors.Wrap(err, "invalid staking program")
	}

	program, err := staking.NewProgram(id)
	if err != nil {
		return nil, err
	}

	var idl *staking.IDL
	switch {
	case len(config.IDLFile) > 0:
		idl, err = staking.LoadIDLFile(config.IDLFile)
		if err != nil {
			return nil, err
		}
	case config.FetchIDL:
		idl, err = program.FetchIDL(ctx, client, solana.CommitmentFinalized)
		if err != nil {
			return nil, errors.Wrap(err, "failed to fetch on-chain idl")
		}
	default:
		return program, nil
	}

	return program.WithIDL(idl)
}

func buildWallet(config *Config, client solana.Client) (wallet.Wallet, error) {
	var key ed25519.PrivateKey
	var err error

	switch {
	case len(config.WalletPrivateKey) > 0:
		key, err = wallet.ParseKeypair(config.WalletPrivateKey)
	case len(config.WalletKeypairFile) > 0:
		key, err = wallet.LoadKeypair(config.WalletKeypairFile)
	default:
		return nil, errors.New("one of WALLET_PRIVATE_KEY or WALLET_KEYPAIR_FILE is required")
	}
	if err != nil {
		return nil, err
	}

	return wallet.WithSender(wallet.NewKeypairWallet(key), client), nil
}

func buildStore(ctx context.Context, config *Config, d *deps) (submission.Store, error) {
	switch config.SubmissionStore {
	case storePostgres:
		db, err := pg.NewFromDSN(config.PostgresDSN, &pg.Config{})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, db)
		return submission_postgres.New(db), nil
	case storeRedis:
		client, err := redis_util.NewClient(ctx, config.RedisURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, client)
		return submission_redis.New(client), nil
	default:
		d.log.Debug("using in-memory submission store, pending submissions will not survive a restart")
		return submission_memory.New(), nil
	}
}

func decodePublicKey(value string) (ed25519.PublicKey, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return nil, err
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid public key length %d", len(decoded))
	}
	return decoded, nil
}
