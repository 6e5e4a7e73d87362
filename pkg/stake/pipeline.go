package stake

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/ledger"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/sync"
)

const (
	walletLockStripes = 256

	// Submissions assembled against a cached blockhash have no recorded
	// expiry. One never seen after this long can no longer land.
	untrackedSubmissionExpiry = 5 * time.Minute
)

var (
	// ErrInsufficientStake is returned before any network call when an
	// unstake exceeds the cached staked balance.
	ErrInsufficientStake = errors.New("unstake amount exceeds staked balance")

	// ErrAmountTooSmall is returned before any network call when a stake is
	// below the program's cached minimum.
	ErrAmountTooSmall = errors.New("stake amount below program minimum")
)

type ResultStatus uint8

const (
	ResultStatusFailed ResultStatus = iota
	ResultStatusPending
	ResultStatusSuccess
)

func (s ResultStatus) String() string {
	switch s {
	case ResultStatusSuccess:
		return "success"
	case ResultStatusPending:
		return "pending"
	case ResultStatusFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the outcome of one staking operation.
//
// A pending result means the transaction was broadcast but finality was not
// observed in time. Its signature can be passed to Recheck later.
type Result struct {
	Operation submission.Operation
	Status    ResultStatus
	Signature *solana.Signature
	Amount    uint64

	Attempts     []*Attempt
	Warnings     []string
	Confirmation *Confirmation

	// Whether the ledger has acknowledged the operation. A successful
	// operation may be unreconciled, in which case the re-check worker
	// retries later.
	Reconciled bool

	// Why the operation failed, or why it is still pending
	Err error
}

// Pipeline runs staking operations end to end: pre-checks, encoding,
// assembly, the submission cascade, confirmation and reconciliation.
type Pipeline struct {
	log  *logrus.Entry
	conf *conf

	client solana.Client
	store  submission.Store

	assembler  *Assembler
	cascade    *Cascade
	confirmer  *Confirmer
	reconciler *Reconciler

	walletLocks *sync.StripedLock
}

// NewPipeline returns a Pipeline. The client is used for re-checks, which
// run outside of any session.
func NewPipeline(configProvider ConfigProvider, client solana.Client, store submission.Store, l ledger.Ledger) (*Pipeline, error) {
	if client == nil {
		return nil, errors.New("solana client is required")
	}
	if store == nil {
		return nil, errors.New("submission store is required")
	}
	if l == nil {
		return nil, errors.New("ledger is required")
	}

	assembler := NewAssembler(configProvider)

	cascade, err := NewCascade(configProvider, assembler)
	if err != nil {
		return nil, err
	}

	reconciler, err := NewReconciler(configProvider, l, store)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		log:  logrus.StandardLogger().WithField("type", "stake/pipeline"),
		conf: configProvider(),

		client: client,
		store:  store,

		assembler:  assembler,
		cascade:    cascade,
		confirmer:  NewConfirmer(configProvider),
		reconciler: reconciler,

		walletLocks: sync.NewStripedLock(walletLockStripes),
	}, nil
}

// Register creates the session wallet's user info account. The referrer is
// optional.
func (p *Pipeline) Register(ctx context.Context, session *Session, referrer ed25519.PublicKey) (*Result, error) {
	encoder := NewEncoder(session.Program, session.Deriver)
	ix, err := encoder.RegisterUser(session.Owner(), referrer)
	if err != nil {
		return nil, err
	}

	return p.run(ctx, session, submission.OperationRegister, 0, false, ix)
}

// Stake deposits amount, a decimal string in whole tokens.
func (p *Pipeline) Stake(ctx context.Context, session *Session, amount string) (*Result, error) {
	quarks, err := ScaleAmountString(amount, session.Decimals)
	if err != nil {
		return nil, err
	}

	if position := session.CachedPosition(); position != nil && position.MinStakeAmount > 0 && quarks < position.MinStakeAmount {
		return nil, errors.Wrapf(
			ErrAmountTooSmall,
			"%s is below the minimum of %s",
			FormatAmount(quarks, session.Decimals),
			FormatAmount(position.MinStakeAmount, session.Decimals),
		)
	}

	ix, err := NewEncoder(session.Program, session.Deriver).Stake(session.Owner(), quarks)
	if err != nil {
		return nil, err
	}

	return p.run(ctx, session, submission.OperationStake, quarks, true, ix)
}

// Unstake withdraws amount, a decimal string in whole tokens. Unstaking
// while locked forfeits the program's early unstake penalty.
func (p *Pipeline) Unstake(ctx context.Context, session *Session, amount string) (*Result, error) {
	quarks, err := ScaleAmountString(amount, session.Decimals)
	if err != nil {
		return nil, err
	}

	position := session.CachedPosition()
	if position != nil && quarks > position.StakedAmount {
		return nil, errors.Wrapf(
			ErrInsufficientStake,
			"requested %s with %s staked",
			FormatAmount(quarks, session.Decimals),
			FormatAmount(position.StakedAmount, session.Decimals),
		)
	}

	ix, err := NewEncoder(session.Program, session.Deriver).Unstake(session.Owner(), quarks)
	if err != nil {
		return nil, err
	}

	res, err := p.run(ctx, session, submission.OperationUnstake, quarks, true, ix)
	if res != nil && position != nil {
		if penalty := position.EstimatedPenalty(quarks, time.Now()); penalty > 0 {
			res.Warnings = append(res.Warnings, "early unstake penalty of "+FormatAmount(penalty, session.Decimals)+" applies")
		}
	}
	return res, err
}

// Claim transfers pending rewards to the wallet's token account.
func (p *Pipeline) Claim(ctx context.Context, session *Session) (*Result, error) {
	ix, err := NewEncoder(session.Program, session.Deriver).ClaimRewards(session.Owner())
	if err != nil {
		return nil, err
	}

	return p.run(ctx, session, submission.OperationClaim, 0, true, ix)
}

// Compound restakes pending rewards.
func (p *Pipeline) Compound(ctx context.Context, session *Session) (*Result, error) {
	ix, err := NewEncoder(session.Program, session.Deriver).CompoundRewards(session.Owner())
	if err != nil {
		return nil, err
	}

	return p.run(ctx, session, submission.OperationCompound, 0, false, ix)
}

// run takes the operation from planning through reconciliation. Errors
// returned before anything was broadcast leave no trace on chain or in the
// store. Once broadcast, failures are reported in the result.
func (p *Pipeline) run(ctx context.Context, session *Session, operation submission.Operation, amount uint64, withPrerequisites bool, ix *PlannedInstruction) (*Result, error) {
	start := time.Now()

	log := p.log.WithFields(logrus.Fields{
		"method":    "run",
		"operation": operation,
		"wallet":    base58.Encode(session.Owner()),
		"amount":    amount,
	})

	ctx, endTxn := metrics.StartTransaction(ctx, "stake/"+string(operation))
	defer endTxn()

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "run")
	defer tracer.End()

	lock := p.walletLocks.Get(session.Owner())
	lock.Lock()
	cascadeResult, assembled, err := p.submit(ctx, session, withPrerequisites, ix)
	lock.Unlock()
	if err != nil && cascadeResult == nil {
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		tracer.OnError(err)
		return nil, err
	}

	if cascadeResult.State == CascadeStateCanceled && !cascadeResult.Broadcast {
		return nil, ErrCanceled
	}

	res := &Result{
		Operation: operation,
		Amount:    amount,
		Attempts:  cascadeResult.Attempts,
		Warnings:  assembled.Warnings,
	}
	defer func() {
		recordOperationEvent(ctx, operation, res, time.Since(start))
	}()

	// Anything past this point has been broadcast and must be tracked even
	// if the caller goes away.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.conf.detachedTimeout.Get(ctx))
	defer cancel()

	strategy := ""
	if len(cascadeResult.Attempts) > 0 {
		strategy = string(cascadeResult.Attempts[len(cascadeResult.Attempts)-1].Strategy)
	}

	switch cascadeResult.State {
	case CascadeStateSucceeded:
	case CascadeStateRejected:
		res.Status = ResultStatusFailed
		res.Err = err
		if programErr, ok := staking.AsProgramError(err); ok {
			res.Err = programErr
		}

		if cascadeResult.Signature != (solana.Signature{}) {
			// Landed with an error
			sig := cascadeResult.Signature
			res.Signature = &sig
			p.recordFailure(ctx, log, session, operation, amount, strategy, sig, cascadeResult.LastValidBlockHeight, err)
			p.handOffCandidates(ctx, log, session, operation, amount, cascadeResult.Candidates, sig)
			return res, nil
		}

		p.handOffCandidates(ctx, log, session, operation, amount, cascadeResult.Candidates, solana.Signature{})
		return res, nil
	default:
		// Exhausted, or canceled after something was broadcast. Whatever
		// may still land is left to the re-check worker.
		p.handOffCandidates(ctx, log, session, operation, amount, cascadeResult.Candidates, solana.Signature{})
		res.Err = err
		if len(cascadeResult.Candidates) > 0 {
			last := cascadeResult.Candidates[len(cascadeResult.Candidates)-1].Signature
			res.Signature = &last
			res.Status = ResultStatusPending
		} else {
			res.Status = ResultStatusFailed
		}
		return res, nil
	}

	sig := cascadeResult.Signature
	res.Signature = &sig
	log = log.WithField("signature", sig.String())

	p.putPending(ctx, log, session, operation, amount, strategy, sig, cascadeResult.LastValidBlockHeight)
	// Earlier attempts may still land on their own
	p.handOffCandidates(ctx, log, session, operation, amount, cascadeResult.Candidates, sig)
	session.invalidatePosition()

	confirmation, err := p.confirmer.Wait(ctx, session.Client, sig, p.confirmer.Commitment(ctx), p.confirmer.Timeout(ctx))
	if err != nil {
		log.WithError(err).Warn("confirmation interrupted")
		res.Status = ResultStatusPending
		res.Err = err
		return res, nil
	}
	res.Confirmation = confirmation

	p.applyConfirmation(ctx, log, res, confirmation)
	return res, nil
}

func (p *Pipeline) submit(ctx context.Context, session *Session, withPrerequisites bool, ix *PlannedInstruction) (*CascadeResult, *Assembled, error) {
	var plan []*PlannedInstruction
	if withPrerequisites {
		prerequisites, err := p.assembler.PlanPrerequisites(ctx, session, true)
		if err != nil {
			return nil, nil, err
		}
		plan = append(plan, prerequisites...)
	}
	plan = append(plan, ix)

	assembled, err := p.assembler.Assemble(ctx, session, plan, false)
	if err != nil {
		return nil, nil, err
	}

	result, err := p.cascade.Submit(ctx, session, plan, assembled)
	return result, assembled, err
}

// Recheck resolves a previously pending signature: it updates the stored
// state once finality is observed and reconciles confirmed operations that
// the ledger has not acknowledged yet.
func (p *Pipeline) Recheck(ctx context.Context, signature string) (*Result, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Recheck")
	defer tracer.End()

	log := p.log.WithFields(logrus.Fields{
		"method":    "Recheck",
		"signature": signature,
	})

	record, err := p.store.Get(ctx, signature)
	if err != nil {
		tracer.OnError(err)
		return nil, err
	}

	sig, err := parseSignature(record.Signature)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Operation: record.Operation,
		Signature: &sig,
		Amount:    record.Amount,
	}

	switch record.State {
	case submission.StatePending:
		confirmation, err := p.confirmer.Check(ctx, p.client, sig, p.confirmer.Commitment(ctx), record.LastValidBlockHeight)
		if err != nil {
			tracer.OnError(err)
			return nil, err
		}
		if confirmation.Status == ConfirmationPending && !confirmation.Seen &&
			record.LastValidBlockHeight == 0 && time.Since(record.CreatedAt) > untrackedSubmissionExpiry {
			confirmation.Status = ConfirmationFailed
			confirmation.Err = ErrBlockhashExpired
		}

		res.Confirmation = confirmation
		p.applyConfirmation(ctx, log, res, confirmation)
	case submission.StateConfirmed:
		res.Status = ResultStatusSuccess
		res.Reconciled, res.Err = p.reconcile(ctx, log, signature)
	case submission.StateFailed:
		res.Status = ResultStatusFailed
		if record.Error != nil {
			res.Err = errors.New(*record.Error)
		}
	default:
		return nil, errors.Errorf("unexpected submission state %s", record.State)
	}

	return res, nil
}

// applyConfirmation persists a confirmation and, on success, reconciles.
func (p *Pipeline) applyConfirmation(ctx context.Context, log *logrus.Entry, res *Result, confirmation *Confirmation) {
	signature := confirmation.Signature.String()

	switch confirmation.Status {
	case ConfirmationPending:
		res.Status = ResultStatusPending
		log.Info("transaction not yet finalized")
	case ConfirmationFailed:
		res.Status = ResultStatusFailed
		res.Err = confirmation.Err
		if confirmation.ProgramError != nil {
			res.Err = *confirmation.ProgramError
		}
		p.updateState(ctx, log, signature, submission.StateFailed, pointer.String(confirmation.Err.Error()))
	case ConfirmationFinalized:
		res.Status = ResultStatusSuccess
		p.updateState(ctx, log, signature, submission.StateConfirmed, nil)
		res.Reconciled, res.Err = p.reconcile(ctx, log, signature)
	}
}

// reconcile never fails the operation. The error is informational.
func (p *Pipeline) reconcile(ctx context.Context, log *logrus.Entry, signature string) (bool, error) {
	reconciled, err := p.reconciler.Reconcile(ctx, signature)
	if err != nil {
		log.WithError(err).Warn("reconciliation deferred to re-check")
	}
	return reconciled, err
}

func (p *Pipeline) putPending(ctx context.Context, log *logrus.Entry, session *Session, operation submission.Operation, amount uint64, strategy string, sig solana.Signature, lastValidBlockHeight uint64) {
	err := p.store.Put(ctx, &submission.Record{
		Signature:            sig.String(),
		Wallet:               base58.Encode(session.Owner()),
		Operation:            operation,
		Amount:               amount,
		Strategy:             strategy,
		LastValidBlockHeight: lastValidBlockHeight,
		State:                submission.StatePending,
	})
	if err != nil && err != submission.ErrAlreadyExists {
		log.WithError(err).WithField("signature", sig.String()).Warn("failed to record submission")
	}
}

// handOffCandidates records every candidate other than tracked as pending,
// leaving them to the re-check worker.
func (p *Pipeline) handOffCandidates(ctx context.Context, log *logrus.Entry, session *Session, operation submission.Operation, amount uint64, candidates []Candidate, tracked solana.Signature) {
	for _, candidate := range candidates {
		if candidate.Signature == tracked {
			continue
		}
		p.putPending(ctx, log, session, operation, amount, string(candidate.Strategy), candidate.Signature, candidate.LastValidBlockHeight)
	}
}

func (p *Pipeline) recordFailure(ctx context.Context, log *logrus.Entry, session *Session, operation submission.Operation, amount uint64, strategy string, sig solana.Signature, lastValidBlockHeight uint64, cause error) {
	p.putPending(ctx, log, session, operation, amount, strategy, sig, lastValidBlockHeight)

	var errMsg *string
	if cause != nil {
		errMsg = pointer.String(cause.Error())
	}
	p.updateState(ctx, log, sig.String(), submission.StateFailed, errMsg)
}

// updateState tolerates losing a race to another updater, such as the
// re-check worker, provided the record ended up in the same state.
func (p *Pipeline) updateState(ctx context.Context, log *logrus.Entry, signature string, to submission.State, errMsg *string) {
	err := p.store.UpdateState(ctx, signature, submission.StatePending, to, errMsg)
	if err == submission.ErrStaleState {
		record, getErr := p.store.Get(ctx, signature)
		if getErr == nil && record.State == to {
			return
		}
	}
	if err != nil {
		log.WithError(err).WithField("state", to.String()).Warn("failed to update submission state")
	}
}

func parseSignature(value string) (solana.Signature, error) {
	decoded, err := base58.Decode(value)
	if err != nil || len(decoded) != len(solana.Signature{}) {
		return solana.Signature{}, errors.Errorf("invalid signature %q", value)
	}

	var sig solana.Signature
	copy(sig[:], decoded)
	return sig, nil
}
