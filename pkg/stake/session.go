package stake

import (
	"crypto/ed25519"
	"sync"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/broadcast"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

// SessionConfig holds everything a Session is built from.
type SessionConfig struct {
	Wallet  wallet.Wallet
	Client  solana.Client
	Version solana.MessageVersion

	Program  *staking.Program
	Mint     ed25519.PublicKey
	Decimals uint8

	// Optional. Defaults to the vault authority's associated token account.
	VaultOverride ed25519.PublicKey

	// Optional. Defaults to broadcasting through Client.
	Broadcaster broadcast.Broadcaster

	// Optional. The relay strategy is unavailable without one.
	Relay relay.Relay
}

// Session is the per wallet context every pipeline call runs in. It is built
// once and passed explicitly.
type Session struct {
	Wallet  *wallet.Capabilities
	Client  solana.Client
	Version solana.MessageVersion

	Program  *staking.Program
	Mint     ed25519.PublicKey
	Decimals uint8

	Deriver     *Deriver
	Broadcaster broadcast.Broadcaster
	Relay       relay.Relay

	positionMu sync.RWMutex
	position   *Position
}

func NewSession(cfg *SessionConfig) (*Session, error) {
	if cfg.Client == nil {
		return nil, errors.New("solana client is required")
	}
	if cfg.Program == nil {
		return nil, errors.New("staking program is required")
	}
	if len(cfg.Mint) != ed25519.PublicKeySize {
		return nil, errors.New("invalid staking mint")
	}
	if len(cfg.VaultOverride) != 0 && len(cfg.VaultOverride) != ed25519.PublicKeySize {
		return nil, errors.New("invalid vault override")
	}

	capabilities, err := wallet.ResolveCapabilities(cfg.Wallet)
	if err != nil {
		return nil, err
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = broadcast.NewClientBroadcaster(cfg.Client)
	}

	return &Session{
		Wallet:  capabilities,
		Client:  cfg.Client,
		Version: cfg.Version,

		Program:  cfg.Program,
		Mint:     cfg.Mint,
		Decimals: cfg.Decimals,

		Deriver:     NewDeriver(cfg.Program, cfg.Mint, cfg.VaultOverride),
		Broadcaster: broadcaster,
		Relay:       cfg.Relay,
	}, nil
}

// Owner is the wallet that signs and pays for every transaction.
func (s *Session) Owner() ed25519.PublicKey {
	return s.Wallet.Wallet.PublicKey()
}

// CachedPosition returns the last known position, or nil if none has been
// loaded since the last state changing operation.
func (s *Session) CachedPosition() *Position {
	s.positionMu.RLock()
	defer s.positionMu.RUnlock()

	if s.position == nil {
		return nil
	}
	cloned := *s.position
	return &cloned
}

func (s *Session) setPosition(position *Position) {
	s.positionMu.Lock()
	defer s.positionMu.Unlock()

	if position == nil {
		s.position = nil
		return
	}
	cloned := *position
	s.position = &cloned
}

func (s *Session) invalidatePosition() {
	s.setPosition(nil)
}
