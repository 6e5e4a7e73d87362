package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Taken from: https://github.com/solana-labs/solana/blob/14339dec0a960e8161d1165b6a8e5cfb73e78f23/sdk/src/transaction.rs#L523
const rustGenerated = "AUc7Cbu+gZalFSGeSFdukHhP7oSGaSdmdNEd5ZokaSysdoMWfIOzjrAbdaBZZuDMAfyNAogAJdrhgVya+jthsgoBAAEDnON0wdcmjhYIDuXvd10F2qEjAyEAJGSe/CGhYbk+WWMBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="

// The above example does not have the correct public key encoded in the keypair.
// This is the above example with the correctly generated keypair.
const rustGeneratedAdjusted = "ATMfBMZ8phHEheLph8K9TJhRKhnE4qNZvWiXdUdJRmlTCRsQjWmW2CkQJeRHBCcsqFm2gynjL40M9mTe0Dxp4QIBAAEDfEya6wnC7f3Cv53qnOEywwIJ928rIdqAlfXYI1adXroBAQEEBQYHCAkJCQkJCQkJCQkJCQkJCQkIBwYFBAEBAQICAgQFBgcICQEBAQEBAQEBAQEBAQEBCQgHBgUEAgICAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAABAgIAAQMBAgM="

func TestLegacyTransaction_CrossImpl(t *testing.T) {
	keypair := ed25519.PrivateKey{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32, 255, 101, 36, 24, 124, 23,
		167, 21, 132, 204, 155, 5, 185, 58, 121, 75, 156, 227, 116, 193, 215, 38, 142, 22, 8,
		14, 229, 239, 119, 93, 5, 218, 161, 35, 3, 33, 0, 36, 100, 158, 252, 33, 161, 97, 185,
		62, 89, 99}
	programID := ed25519.PublicKey{2, 2, 2, 4, 5, 6, 7, 8, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6, 5, 4,
		2, 2, 2}
	to := ed25519.PublicKey{1, 1, 1, 4, 5, 6, 7, 8, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 8, 7, 6, 5, 4, 1, 1, 1}

	tx := NewLegacyTransaction(
		keypair.Public().(ed25519.PublicKey),
		NewInstruction(
			programID,
			[]byte{1, 2, 3},
			NewAccountMeta(keypair.Public().(ed25519.PublicKey), true),
			NewAccountMeta(to, false),
		),
	)
	require.NoError(t, tx.Sign(keypair))

	generated, err := base64.StdEncoding.DecodeString(rustGenerated)
	require.NoError(t, err)
	assert.Equal(t, generated, tx.Marshal())
}

func TestLegacyTransaction_GenerateValidCrossImpl(t *testing.T) {
	keypair := ed25519.NewKeyFromSeed([]byte{48, 83, 2, 1, 1, 48, 5, 6, 3, 43, 101, 112, 4, 34, 4, 32, 255, 101, 36, 24, 124, 23,
		167, 21, 132, 204, 155, 5, 185, 58, 121, 75})
	programID := ed25519.PublicKey{2, 2, 2, 4, 5, 6, 7, 8, 9, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 9, 8, 7, 6, 5, 4,
		2, 2, 2}
	to := ed25519.PublicKey{1, 1, 1, 4, 5, 6, 7, 8, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 8, 7, 6, 5, 4, 1, 1, 1}

	tx := NewLegacyTransaction(
		keypair.Public().(ed25519.PublicKey),
		NewInstruction(
			programID,
			[]byte{1, 2, 3},
			NewAccountMeta(keypair.Public().(ed25519.PublicKey), true),
			NewAccountMeta(to, false),
		),
	)
	require.NoError(t, tx.Sign(keypair))
	assert.Equal(t, rustGeneratedAdjusted, base64.StdEncoding.EncodeToString(tx.Marshal()))
}

func TestLegacyTransaction_EmptyAccount(t *testing.T) {
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	tx := NewLegacyTransaction(
		pub,
		NewInstruction(
			program,
			[]byte{1, 2, 3},
			NewAccountMeta(nil, false),
		),
	)
	assert.NoError(t, tx.Sign(priv))

	var rtt Transaction
	assert.NoError(t, rtt.Unmarshal(tx.Marshal()))
}

func TestLegacyTransaction_MarshalRoundTrip(t *testing.T) {
	expected := "AaZAGNONKTsNypCfvwHGipcWmAX/J03VfLQEHgMDSuHz0ktydqlLb7I4tZnX0Yw8KMTbma28M+yiZPaRolOJGgwBAAgQCR2hNbdxjAiYwC9CSEo2Vso3yq8OXlgoCbepyseaRXoIFE8MTz2ZtOsdNl55fj/zi0S+ArjIP4zJ3Y+MC4tKyQu7s1JPy6Hur6YbU0nF+1XBJYwii/dKtLsNFU/pTo19J7jOgutpJBZbNIhC5ppqC/OYlbzW1KqamkV3p+cslAoyBJxvWrSMXX+X0Ih0+sEzarslIYSV0T/NuLFcjpX8S7ajCdht+3+POhvGcGFzDyc4kIgjN/SAdypJM1Grs+eEtzXhQGM4VMy0p0J2CiOH+k2kwfya5F7fSaYXWOi3CJUGp9UXGSxWjuCKhF9z0peIzwNcMUWyGrNE2AYuqUAAAAan1RcZLFxRIYzJTD1K8X9Y2u4Im6H9ROPb2YoAAAAABt324ddloZPZy+FGzut5rBy0he1fWzeROoz1hX7/AKlDDB9w5G7eh4xhLJIgxblM0E4dxW+ZTABRcCVBt2LcH8b6evO+2606PWXzaqvJdDGxu+TC0vbg5HymAgNFL11hDcYoaKd+VYB6HNWIyaKadms+4q7NwH3gjP6RB91LMWUAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAMGRm/lIRcy/+ytunLDm+e8jOW7xfcSayxDmzpAAAAAjJclj04kifG7PRApFI4NgwtaE5na/xCEBI572Nvp+FmMVCZzhQC2pwD9u6aAm8haUDNRSZG/a7c1U/ltYtc+KAUNAwIHAAQEAAAADgAJA+gDAAAAAAAADgAFAkjoAQAPBwADCgsNCQgBAQwLAAUBBAwMBgwMAwlcCAoCAAAAmhMJCgIAAAAAAUgAAABlmEW1THFmZqyjBehuSli5bMSJBNiQMkZcr19LINSM4KF/whE1IayV174tmVwC9MMlQSmG3j6aJVhIDGMUITUNXRMTAAAAAAA="
	decoded, err := base64.StdEncoding.DecodeString(expected)
	require.NoError(t, err)
	var txn Transaction
	require.NoError(t, txn.Unmarshal(decoded))
	assert.Equal(t, decoded, txn.Marshal())
}

func TestTransaction_AccountOrdering(t *testing.T) {
	keys := generateKeys(t, 3)
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(public(keys[i]), public(keys[j])) < 0
	})
	payer, program, program2 := keys[0], keys[1], keys[2]

	keys = generateKeys(t, 6)
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(public(keys[i]), public(keys[j])) < 0
	})

	for _, version := range []MessageVersion{MessageVersionLegacy, MessageVersion0} {
		// keys[0] and keys[1] get promoted by the second instruction, while
		// keys[2] and keys[3] must not be downgraded by it.
		tx := NewTransaction(
			version,
			public(payer),
			NewInstruction(
				public(program2),
				[]byte{1, 2, 3},
				NewReadonlyAccountMeta(public(keys[0]), true),
				NewReadonlyAccountMeta(public(keys[1]), false),
				NewAccountMeta(public(keys[2]), false),
				NewAccountMeta(public(keys[3]), true),
			),
			NewInstruction(
				public(program),
				[]byte{3, 4, 5},
				NewReadonlyAccountMeta(public(keys[3]), false),
				NewReadonlyAccountMeta(public(keys[2]), false),
				NewAccountMeta(public(keys[0]), false),
				NewAccountMeta(public(keys[1]), true),
				NewAccountMeta(public(keys[4]), true),
				NewReadonlyAccountMeta(public(keys[5]), false),
			),
		)

		// Signing order must not matter.
		require.NoError(t, tx.Sign(keys[4], keys[3], payer, keys[1], keys[0]))
		assert.True(t, tx.IsSigned())
		assert.Equal(t, version, tx.Message.Version)

		require.Len(t, tx.Signatures, 5)
		require.Len(t, tx.Message.Accounts, 9)
		assert.EqualValues(t, 5, tx.Message.Header.NumSignatures)
		assert.EqualValues(t, 0, tx.Message.Header.NumReadonlySigned)
		assert.EqualValues(t, 3, tx.Message.Header.NumReadOnly)

		expectedOrder := []ed25519.PublicKey{
			public(payer),
			public(keys[0]),
			public(keys[1]),
			public(keys[3]),
			public(keys[4]),
			public(keys[2]),
			public(keys[5]),
			public(program),
			public(program2),
		}
		assert.Equal(t, expectedOrder, tx.Message.Accounts)
		assert.Equal(t, expectedOrder[:5], tx.RequiredSigners())

		message := tx.Message.Marshal()
		for i, signer := range expectedOrder[:5] {
			assert.True(t, ed25519.Verify(signer, message, tx.Signatures[i][:]))
		}

		assert.Equal(t, byte(8), tx.Message.Instructions[0].ProgramIndex)
		assert.Equal(t, []byte{1, 2, 5, 3}, tx.Message.Instructions[0].Accounts)
		assert.Equal(t, byte(7), tx.Message.Instructions[1].ProgramIndex)
		assert.Equal(t, []byte{3, 5, 1, 2, 4, 6}, tx.Message.Instructions[1].Accounts)

		var decoded Transaction
		require.NoError(t, decoded.Unmarshal(tx.Marshal()))
		assert.Equal(t, version, decoded.Message.Version)
		assert.Equal(t, tx.Marshal(), decoded.Marshal())
	}
}

func TestTransaction_VersionPrefix(t *testing.T) {
	keys := generateKeys(t, 2)
	ix := NewInstruction(public(keys[1]), []byte{9}, NewAccountMeta(public(keys[0]), true))

	legacy := NewLegacyTransaction(public(keys[0]), ix)
	v0 := NewV0Transaction(public(keys[0]), ix)

	assert.EqualValues(t, 1, legacy.Message.Marshal()[0])
	assert.EqualValues(t, 0x80, v0.Message.Marshal()[0])

	// v0 carries an empty lookup table vector at the end
	assert.Len(t, v0.Message.Marshal(), len(legacy.Message.Marshal())+2)
}

func TestTransaction_InvalidIndexes(t *testing.T) {
	keys := generateKeys(t, 2)
	newTx := func() Transaction {
		return NewLegacyTransaction(
			public(keys[0]),
			NewInstruction(public(keys[1]), nil, NewAccountMeta(public(keys[0]), true)),
		)
	}

	tx := newTx()
	tx.Message.Instructions[0].ProgramIndex = 2
	assert.Error(t, tx.Unmarshal(tx.Marshal()))

	tx = newTx()
	tx.Message.Instructions[0].Accounts = []byte{2}
	assert.Error(t, tx.Unmarshal(tx.Marshal()))

	var empty Message
	assert.Error(t, empty.Unmarshal(nil))
}

func TestTransaction_AddSignature(t *testing.T) {
	keys := generateKeys(t, 3)
	tx := NewLegacyTransaction(
		public(keys[0]),
		NewInstruction(public(keys[1]), nil, NewAccountMeta(public(keys[0]), true)),
	)
	assert.False(t, tx.IsSigned())

	var sig Signature
	copy(sig[:], ed25519.Sign(keys[0], tx.Message.Marshal()))
	require.NoError(t, tx.AddSignature(public(keys[0]), sig))
	assert.True(t, tx.IsSigned())
	assert.Equal(t, sig.String(), tx.ID())

	err := tx.AddSignature(public(keys[2]), sig)
	assert.ErrorIs(t, err, ErrUnknownSigner)

	// program accounts are never signers
	err = tx.AddSignature(public(keys[1]), sig)
	assert.ErrorIs(t, err, ErrUnknownSigner)

	tx.ClearSignatures()
	assert.False(t, tx.IsSigned())
}

func TestParseMessageVersion(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected MessageVersion
		err      bool
	}{
		{"legacy", MessageVersionLegacy, false},
		{"", MessageVersionLegacy, false},
		{"v0", MessageVersion0, false},
		{"V0", MessageVersion0, false},
		{"0", MessageVersion0, false},
		{"v1", 0, true},
	} {
		actual, err := ParseMessageVersion(tc.in)
		if tc.err {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tc.expected, actual)
		assert.Equal(t, tc.expected.String(), actual.String())
	}
}

func TestInstruction_References(t *testing.T) {
	keys := generateKeys(t, 4)
	ix := NewInstruction(
		public(keys[0]),
		nil,
		NewReadonlyAccountMeta(public(keys[1]), false),
		NewAccountMeta(public(keys[2]), false),
		NewReadonlyAccountMeta(public(keys[2]), false),
	)

	referenced, writable := ix.References(public(keys[1]))
	assert.True(t, referenced)
	assert.False(t, writable)

	referenced, writable = ix.References(public(keys[2]))
	assert.True(t, referenced)
	assert.True(t, writable)

	referenced, _ = ix.References(public(keys[3]))
	assert.False(t, referenced)
}

func TestV0Transaction_MarshalRoundTrip(t *testing.T) {
	expected := "Abyp+nvyM7ZEdWoZTeADD5Cz8QJVVjhTr6CnzVj/CX2MwosyMNzT0tVNJ3gIUo8qxW8V+KclAAntCexlsvc2TQiAAQAEBYNezk00yE7eeJ8KVQSTMRnfgqKr2TuCkI2OvY6VqupmBqfVFxksVo7gioRfc9KXiM8DXDFFshqzRNgGLqlAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAMGRm/lIRcy/+ytunLDm+e8jOW7xfcSayxDmzpAAAAAmu3bzcyfl+oHt1b29uzQvgBqO8OA3K6s5S0u4S+oQYqcHxhrhTySMLI0fOjClaCEkXjCshHIi9E63Co6m/5ZfgQCAwcBAAQEAAAAAwAFAkANAwADAAkD6AMAAAAAAAAEBQUGCAkKCgABAgMEBQYHCAkBtCdbdeueeYQHgQ6Wzm4pItAtbgGigO5L8M2bbV6t3zoDAgMAAwQFBg=="
	decoded, err := base64.StdEncoding.DecodeString(expected)
	require.NoError(t, err)
	var txn Transaction
	require.NoError(t, txn.Unmarshal(decoded))
	assert.Equal(t, decoded, txn.Marshal())
}

func public(priv ed25519.PrivateKey) ed25519.PublicKey {
	return priv.Public().(ed25519.PublicKey)
}

func generateKeys(t *testing.T, amount int) []ed25519.PrivateKey {
	keys := make([]ed25519.PrivateKey, amount)

	for i := 0; i < amount; i++ {
		_, priv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = priv
	}

	return keys
}
