package stake

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	memory_submission_store "github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission/memory"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/ledger"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/relay"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/token"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

const testDecimals = 9

type testEnv struct {
	ctx     context.Context
	client  *fakeClient
	program *staking.Program
	mint    ed25519.PublicKey
	store   submission.Store
	ledger  *fakeLedger
}

func setupTestEnv(t *testing.T) *testEnv {
	program, err := staking.NewProgram(newKey(t))
	require.NoError(t, err)

	return &testEnv{
		ctx:     context.Background(),
		client:  newFakeClient(),
		program: program,
		mint:    newKey(t),
		store:   memory_submission_store.New(),
		ledger:  &fakeLedger{},
	}
}

func (e *testEnv) newSession(t *testing.T, w wallet.Wallet, r relay.Relay) *Session {
	cfg := &SessionConfig{
		Wallet:   w,
		Client:   e.client,
		Version:  solana.MessageVersionLegacy,
		Program:  e.program,
		Mint:     e.mint,
		Decimals: testDecimals,
	}
	if r != nil {
		cfg.Relay = r
	}

	session, err := NewSession(cfg)
	require.NoError(t, err)
	return session
}

func (e *testEnv) newPipeline(t *testing.T, overrides *testOverrides) *Pipeline {
	p, err := NewPipeline(withManualTestOverrides(overrides), e.client, e.store, e.ledger)
	require.NoError(t, err)
	return p
}

// createTokenAccount and createUserInfo make a wallet look like it has
// staked before, so no prerequisites are planned.
func (e *testEnv) createTokenAccount(t *testing.T, session *Session) {
	ata, err := session.Deriver.UserTokenAccount(session.Owner())
	require.NoError(t, err)

	account := &token.Account{
		Mint:   e.mint,
		Owner:  session.Owner(),
		Amount: 1_000 * 1_000_000_000,
		State:  token.AccountStateInitialized,
	}
	e.client.setAccount(ata, solana.AccountInfo{Data: account.Marshal(), Owner: token.ProgramKey})
}

func (e *testEnv) createUserInfo(t *testing.T, session *Session, staked uint64) {
	address, err := session.Deriver.UserInfo(session.Owner())
	require.NoError(t, err)

	e.client.setAccount(address.Address, solana.AccountInfo{
		Data:  encodeUserInfo(session.Owner(), staked),
		Owner: e.program.ID(),
	})
}

func (e *testEnv) createGlobalState(t *testing.T, session *Session, minStake uint64) {
	address, err := session.Deriver.GlobalState()
	require.NoError(t, err)

	e.client.setAccount(address.Address, solana.AccountInfo{
		Data:  encodeGlobalState(e.mint, minStake),
		Owner: e.program.ID(),
	})
}

func encodeUserInfo(owner ed25519.PublicKey, staked uint64) []byte {
	data := append([]byte{}, staking.UserInfoAccountDiscriminator...)
	data = append(data, owner...)
	data = binary.LittleEndian.AppendUint64(data, staked)
	data = binary.LittleEndian.AppendUint64(data, 0)             // rewards
	data = binary.LittleEndian.AppendUint64(data, 1_700_000_000) // last stake
	data = binary.LittleEndian.AppendUint64(data, 1_700_000_000) // last claim
	data = append(data, 0)                                       // no referrer
	data = binary.LittleEndian.AppendUint64(data, 0)
	data = binary.LittleEndian.AppendUint64(data, 0)
	return append(data, make([]byte, 32)...)
}

func encodeGlobalState(mint ed25519.PublicKey, minStake uint64) []byte {
	data := append([]byte{}, staking.GlobalStateAccountDiscriminator...)
	data = append(data, make([]byte, 32)...) // authority
	data = append(data, mint...)
	data = append(data, make([]byte, 32)...) // vault
	data = binary.LittleEndian.AppendUint64(data, 30)       // reward rate
	data = binary.LittleEndian.AppendUint64(data, 7*86_400) // unlock duration
	data = binary.LittleEndian.AppendUint64(data, 1_000)    // penalty
	data = binary.LittleEndian.AppendUint64(data, minStake)
	data = binary.LittleEndian.AppendUint64(data, 500) // referral rate
	data = binary.LittleEndian.AppendUint64(data, 0)
	data = binary.LittleEndian.AppendUint64(data, 0)
	data = binary.LittleEndian.AppendUint64(data, 0)
	data = binary.LittleEndian.AppendUint64(data, 1_700_000_000)
	return append(data, 255)
}

// txError parses a transaction error from its RPC JSON form.
func txError(t *testing.T, raw string) *solana.TransactionError {
	var v interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &v))

	parsed, err := solana.ParseTransactionError(v)
	require.NoError(t, err)
	return parsed
}

func customTxError(t *testing.T, code interface{}) *solana.TransactionError {
	return txError(t, fmt.Sprintf(`{"InstructionError":[0,{"Custom":%d}]}`, code))
}

func newKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub
}

func newPrivateKey(t *testing.T) ed25519.PrivateKey {
	_, key, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return key
}

type fakeClient struct {
	solana.Client

	mu sync.Mutex

	accounts map[string]solana.AccountInfo
	statuses map[solana.Signature]*solana.SignatureStatus

	submitted  []solana.Transaction
	submitErrs []error

	// When false, successful submissions never land
	landOnSubmit bool
	landErr      *solana.TransactionError

	blockhashCounter uint64
	blockHeight      uint64
	latestCalls      int
	freshCalls       int
	statusCalls      int
	calls            int

	simulation *solana.SimulationResult
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		accounts:     make(map[string]solana.AccountInfo),
		statuses:     make(map[solana.Signature]*solana.SignatureStatus),
		landOnSubmit: true,
		blockHeight:  1_000,
	}
}

func (c *fakeClient) setAccount(address ed25519.PublicKey, info solana.AccountInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.accounts[string(address)] = info
}

// land records a finalized status for sig.
func (c *fakeClient) land(sig solana.Signature, txErr *solana.TransactionError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statuses[sig] = &solana.SignatureStatus{
		Slot:               42,
		ErrorResult:        txErr,
		ConfirmationStatus: "finalized",
	}
}

func (c *fakeClient) getCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls
}

func (c *fakeClient) getSubmitted() []solana.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]solana.Transaction{}, c.submitted...)
}

func (c *fakeClient) GetAccountInfo(_ context.Context, account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	info, ok := c.accounts[string(account)]
	if !ok {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	}
	return info, nil
}

func (c *fakeClient) GetBlockHeight(_ context.Context, _ solana.Commitment) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	return c.blockHeight, nil
}

func (c *fakeClient) GetLatestBlockhash(_ context.Context) (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.latestCalls++
	return c.nextBlockhash(), nil
}

func (c *fakeClient) GetFreshBlockhash(_ context.Context, _ solana.Commitment) (solana.LatestBlockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.freshCalls++
	return solana.LatestBlockhash{
		Blockhash:            c.nextBlockhash(),
		LastValidBlockHeight: c.blockHeight + 150,
	}, nil
}

func (c *fakeClient) nextBlockhash() solana.Blockhash {
	c.blockhashCounter++

	var bh solana.Blockhash
	binary.LittleEndian.PutUint64(bh[:], c.blockhashCounter)
	bh[31] = 1
	return bh
}

func (c *fakeClient) GetSignatureStatuses(_ context.Context, sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.statusCalls++

	res := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if status, ok := c.statuses[sig]; ok {
			cloned := *status
			res[i] = &cloned
		}
	}
	return res, nil
}

func (c *fakeClient) SimulateTransaction(_ context.Context, _ solana.Transaction, _ solana.Commitment) (*solana.SimulationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if c.simulation != nil {
		return c.simulation, nil
	}
	return &solana.SimulationResult{}, nil
}

func (c *fakeClient) SubmitTransaction(_ context.Context, txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	c.submitted = append(c.submitted, txn)

	sig := txn.Signatures[0]
	if len(c.submitErrs) > 0 {
		err := c.submitErrs[0]
		c.submitErrs = c.submitErrs[1:]
		if err != nil {
			return sig, err
		}
	}

	if c.landOnSubmit {
		c.statuses[sig] = &solana.SignatureStatus{
			Slot:               42,
			ErrorResult:        c.landErr,
			ConfirmationStatus: "finalized",
		}
	}
	return sig, nil
}

// fakeSigner signs locally. It fails with err when set.
type fakeSigner struct {
	key ed25519.PrivateKey

	mu    sync.Mutex
	err   error
	calls int
}

func newFakeSigner(t *testing.T) *fakeSigner {
	return &fakeSigner{key: newPrivateKey(t)}
}

func (w *fakeSigner) PublicKey() ed25519.PublicKey {
	return w.key.Public().(ed25519.PublicKey)
}

func (w *fakeSigner) SignTransaction(_ context.Context, txn *solana.Transaction) error {
	w.mu.Lock()
	w.calls++
	err := w.err
	w.mu.Unlock()

	if err != nil {
		return err
	}
	return txn.Sign(w.key)
}

func (w *fakeSigner) signCalls() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.calls
}

// fakeSender is a browser style wallet that signs and submits through its
// own node.
type fakeSender struct {
	*fakeSigner

	client *fakeClient

	mu sync.Mutex

	// Returned after a successful submission, simulating a wallet that
	// reports an error for a transaction it did send
	errAfterSend error
	// Returned without signing or sending anything
	errBeforeSend error
	sends         int
}

func newFakeSender(t *testing.T, client *fakeClient) *fakeSender {
	return &fakeSender{
		fakeSigner: newFakeSigner(t),
		client:     client,
	}
}

func (w *fakeSender) Name() string {
	return "fake-sender"
}

func (w *fakeSender) SendTransaction(ctx context.Context, txn *solana.Transaction) (solana.Signature, error) {
	w.mu.Lock()
	w.sends++
	before, after := w.errBeforeSend, w.errAfterSend
	w.mu.Unlock()

	if before != nil {
		return solana.Signature{}, before
	}

	if err := w.SignTransaction(ctx, txn); err != nil {
		return solana.Signature{}, err
	}

	sig, err := w.client.SubmitTransaction(ctx, *txn, solana.CommitmentConfirmed)
	if err != nil {
		return solana.Signature{}, err
	}
	if after != nil {
		return solana.Signature{}, after
	}
	return sig, nil
}

type fakeRelay struct {
	client *fakeClient

	mu    sync.Mutex
	err   error
	calls int
	names []string
}

func (r *fakeRelay) Submit(ctx context.Context, txn solana.Transaction, metadata *relay.WalletMetadata) (solana.Signature, error) {
	r.mu.Lock()
	r.calls++
	r.names = append(r.names, metadata.Name)
	err := r.err
	r.mu.Unlock()

	if err != nil {
		return solana.Signature{}, err
	}
	return r.client.SubmitTransaction(ctx, txn, solana.CommitmentConfirmed)
}

type fakeLedger struct {
	mu            sync.Mutex
	confirmations []*ledger.Confirmation
	errs          []error
	record        *ledger.Record
	infoErr       error
}

func (l *fakeLedger) ConfirmOperation(_ context.Context, confirmation *ledger.Confirmation) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.errs) > 0 {
		err := l.errs[0]
		l.errs = l.errs[1:]
		if err != nil {
			return err
		}
	}

	l.confirmations = append(l.confirmations, confirmation)
	return nil
}

func (l *fakeLedger) GetStakingInfo(_ context.Context, _ ed25519.PublicKey) (*ledger.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.infoErr != nil {
		return nil, l.infoErr
	}
	if l.record == nil {
		return nil, ledger.ErrNotFound
	}
	return l.record, nil
}

func (l *fakeLedger) getConfirmations() []*ledger.Confirmation {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]*ledger.Confirmation{}, l.confirmations...)
}

func (l *fakeLedger) failNext(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.errs = append(l.errs, errs...)
}
