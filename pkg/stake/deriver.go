package stake

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/cache"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/token"
)

const (
	// Every derived entry has a weight of one
	deriverCacheBudget = 1024
)

// DerivedAddress is a program derived address with its canonical bump.
type DerivedAddress struct {
	Address ed25519.PublicKey
	Bump    uint8
}

func (a *DerivedAddress) clone() *DerivedAddress {
	return &DerivedAddress{
		Address: append(ed25519.PublicKey{}, a.Address...),
		Bump:    a.Bump,
	}
}

// Deriver resolves the accounts a staking instruction touches. Results are
// memoized for the life of the Deriver, which is owned by a single Session.
type Deriver struct {
	program       *staking.Program
	mint          ed25519.PublicKey
	vaultOverride ed25519.PublicKey

	cache cache.Cache
}

// NewDeriver returns a Deriver for the program and staking mint. A non-empty
// vaultOverride is used as the vault instead of the vault authority's
// associated token account.
func NewDeriver(program *staking.Program, mint, vaultOverride ed25519.PublicKey) *Deriver {
	return &Deriver{
		program:       program,
		mint:          mint,
		vaultOverride: vaultOverride,
		cache:         cache.NewCache(deriverCacheBudget),
	}
}

// Derive finds the program address for arbitrary seeds. Failures such as
// solana.ErrDerivationExhausted are fatal and are not cached.
func (d *Deriver) Derive(program ed25519.PublicKey, seeds ...[]byte) (*DerivedAddress, error) {
	encoded := make([]string, len(seeds))
	for i, seed := range seeds {
		encoded[i] = hex.EncodeToString(seed)
	}
	key := "pda:" + base58.Encode(program) + ":" + strings.Join(encoded, "/")

	return d.cached(key, func() (ed25519.PublicKey, uint8, error) {
		return solana.FindProgramAddressAndBump(program, seeds...)
	})
}

// GlobalState is the program's singleton configuration account.
func (d *Deriver) GlobalState() (*DerivedAddress, error) {
	return d.cached("global_state", d.program.GetGlobalStateAddress)
}

// VaultAuthority owns the vault token account. The program reuses the
// global state address for it.
func (d *Deriver) VaultAuthority() (*DerivedAddress, error) {
	return d.GlobalState()
}

// Vault is the token account holding staked funds.
func (d *Deriver) Vault() (ed25519.PublicKey, error) {
	if len(d.vaultOverride) > 0 {
		return d.vaultOverride, nil
	}

	authority, err := d.VaultAuthority()
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault authority")
	}

	derived, err := d.cached("vault", func() (ed25519.PublicKey, uint8, error) {
		vault, err := token.GetAssociatedAccountAllowOffCurve(authority.Address, d.mint)
		return vault, 0, err
	})
	if err != nil {
		return nil, err
	}
	return derived.Address, nil
}

// UserInfo is the per wallet staking position account.
func (d *Deriver) UserInfo(owner ed25519.PublicKey) (*DerivedAddress, error) {
	return d.cached("user_info:"+base58.Encode(owner), func() (ed25519.PublicKey, uint8, error) {
		return d.program.GetUserInfoAddress(&staking.GetUserInfoAddressArgs{
			Owner: owner,
		})
	})
}

// UserTokenAccount is the owner's associated token account for the staking
// mint. The owner must be a wallet key.
func (d *Deriver) UserTokenAccount(owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	derived, err := d.cached("user_token_account:"+base58.Encode(owner), func() (ed25519.PublicKey, uint8, error) {
		ata, err := token.GetAssociatedAccount(owner, d.mint)
		return ata, 0, err
	})
	if err != nil {
		return nil, err
	}
	return derived.Address, nil
}

func (d *Deriver) cached(key string, fn func() (ed25519.PublicKey, uint8, error)) (*DerivedAddress, error) {
	if v, ok := d.cache.Retrieve(key); ok {
		return v.(*DerivedAddress).clone(), nil
	}

	address, bump, err := fn()
	if err != nil {
		return nil, err
	}

	derived := &DerivedAddress{Address: address, Bump: bump}

	// A concurrent derivation of the same key may have won the insert, and
	// both results are identical.
	_ = d.cache.Insert(key, derived, 1)

	return derived.clone(), nil
}
