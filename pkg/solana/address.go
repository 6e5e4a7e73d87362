package solana

import (
	"crypto/ed25519"
	"crypto/sha256"
	"math"

	"github.com/jdgcs/ed25519/edwards25519"
	"github.com/pkg/errors"
)

const (
	maxSeeds      = 16
	maxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	ErrTooManySeeds          = errors.New("too many seeds")
	ErrMaxSeedLengthExceeded = errors.New("max seed length exceeded")

	ErrInvalidPublicKey = errors.New("invalid public key")

	// ErrDerivationExhausted indicates no bump seed in [0, 255] produced an
	// off-curve address. It points at a seed design defect and is never retried.
	ErrDerivationExhausted = errors.New("unable to find a viable program address bump seed")
)

var (
	programHashCtor = sha256.New
)

// CreateProgramAddress mirrors the implementation of the Solana SDK's CreateProgramAddress.
//
// ProgramAddresses are public keys that _do not_ lie on the ed25519 curve to ensure that
// there is no associated private key. In the event that the program and seed parameters
// result in a valid public key, ErrInvalidPublicKey is returned.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L158
func CreateProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	if len(seeds) > maxSeeds {
		return nil, ErrTooManySeeds
	}

	h := programHashCtor()
	for _, s := range seeds {
		if len(s) > maxSeedLength {
			return nil, ErrMaxSeedLengthExceeded
		}

		if _, err := h.Write(s); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	for _, v := range [][]byte{program, []byte(pdaMarker)} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}

	var pub [32]byte
	copy(pub[:], h.Sum(nil))

	// The generated key is rejected if it's a valid compressed Edwards point,
	// since a private key could then exist for it.
	//
	// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L182-L187
	if isOnCurve(&pub) {
		return nil, ErrInvalidPublicKey
	}

	return pub[:], nil
}

// FindProgramAddressAndBump mirrors the implementation of the Solana SDK's
// FindProgramAddress. It returns the address and bump seed.
//
// ErrDerivationExhausted is returned if every bump in [0, 255] lands on the curve.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L234
func FindProgramAddressAndBump(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := math.MaxUint8; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}

		pub, err := CreateProgramAddress(program, withBump...)
		if err == nil {
			return pub, uint8(bump), nil
		}
		if err != ErrInvalidPublicKey {
			return nil, 0, err
		}
	}

	return nil, 0, ErrDerivationExhausted
}

// FindProgramAddress mirrors the implementation of the Solana SDK's FindProgramAddress.
// It only returns the address.
func FindProgramAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, error) {
	pub, _, err := FindProgramAddressAndBump(program, seeds...)
	return pub, err
}

// CreateWithSeed mirrors Pubkey::create_with_seed from the Solana SDK.
//
// Reference: https://github.com/solana-labs/solana/blob/5548e599fe4920b71766e0ad1d121755ce9c63d5/sdk/program/src/pubkey.rs#L147
func CreateWithSeed(base ed25519.PublicKey, seed string, owner ed25519.PublicKey) (ed25519.PublicKey, error) {
	if len(seed) > maxSeedLength {
		return nil, ErrMaxSeedLengthExceeded
	}
	if len(owner) >= len(pdaMarker) && string(owner[len(owner)-len(pdaMarker):]) == pdaMarker {
		return nil, errors.New("owner cannot end with the program derived address marker")
	}

	h := sha256.New()
	for _, v := range [][]byte{base, []byte(seed), owner} {
		if _, err := h.Write(v); err != nil {
			return nil, errors.Wrap(err, "failed to hash seed")
		}
	}
	return h.Sum(nil), nil
}

// IsOnCurve reports whether the key is a valid ed25519 point, and therefore
// may have a private key.
func IsOnCurve(pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}

	var b [32]byte
	copy(b[:], pub)
	return isOnCurve(&b)
}

// The edwards25519.ExtendedGroupElement is internal to golang.org/x/crypto, so we
// rely on a deprecated open source alternative for the point decoding.
func isOnCurve(pub *[32]byte) bool {
	var A edwards25519.ExtendedGroupElement
	return A.FromBytes(pub)
}
