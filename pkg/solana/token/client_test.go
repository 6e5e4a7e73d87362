package token

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

type fakeAccountReader struct {
	solana.Client
	accounts map[string]solana.AccountInfo
}

func (f *fakeAccountReader) GetAccountInfo(_ context.Context, account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	info, ok := f.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

func TestClient_GetAccount(t *testing.T) {
	keys := generateKeys(t, 5)
	mint, owner := keys[0], keys[1]
	valid, wrongMint, wrongProgram := keys[2], keys[3], keys[4]

	account := Account{Mint: mint, Owner: owner, Amount: 42, State: AccountStateInitialized}
	other := Account{Mint: owner, Owner: owner, Amount: 1, State: AccountStateInitialized}

	sc := &fakeAccountReader{accounts: map[string]solana.AccountInfo{
		string(valid):        {Owner: ProgramKey, Data: account.Marshal()},
		string(wrongMint):    {Owner: ProgramKey, Data: other.Marshal()},
		string(wrongProgram): {Owner: owner, Data: account.Marshal()},
	}}
	client := NewClient(sc, mint)
	assert.Equal(t, mint, client.Mint())

	actual, err := client.GetAccount(context.Background(), valid, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.EqualValues(t, 42, actual.Amount)
	assert.Equal(t, owner, actual.Owner)

	_, err = client.GetAccount(context.Background(), wrongMint, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	_, err = client.GetAccount(context.Background(), wrongProgram, solana.CommitmentConfirmed)
	assert.Equal(t, ErrInvalidTokenAccount, err)

	_, err = client.GetAccount(context.Background(), owner, solana.CommitmentConfirmed)
	assert.Equal(t, ErrAccountNotFound, err)

	exists, err := client.Exists(context.Background(), valid, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = client.Exists(context.Background(), owner, solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.False(t, exists)
}
