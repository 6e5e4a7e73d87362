package stake

import (
	"context"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/wallet"
)

var (
	// ErrCanceled is returned when the caller gave up before anything was
	// broadcast. The transaction is discarded.
	ErrCanceled = errors.New("submission canceled before broadcast")

	ErrCascadeExhausted = errors.New("all submission strategies failed")

	ErrInvalidCascadeStateTransition = errors.New("invalid cascade state transition")
)

type CascadeState uint8

const (
	CascadeStateUnsubmitted CascadeState = iota
	CascadeStateAttempting
	CascadeStateSucceeded
	CascadeStateRejected
	CascadeStateExhausted
	CascadeStateCanceled
)

func (s CascadeState) String() string {
	switch s {
	case CascadeStateUnsubmitted:
		return "unsubmitted"
	case CascadeStateAttempting:
		return "attempting"
	case CascadeStateSucceeded:
		return "succeeded"
	case CascadeStateRejected:
		return "rejected"
	case CascadeStateExhausted:
		return "exhausted"
	case CascadeStateCanceled:
		return "canceled"
	}
	return "unknown"
}

func (s CascadeState) IsTerminal() bool {
	switch s {
	case CascadeStateSucceeded, CascadeStateRejected, CascadeStateExhausted, CascadeStateCanceled:
		return true
	}
	return false
}

type AttemptOutcome uint8

const (
	AttemptOutcomeUnknown AttemptOutcome = iota
	AttemptOutcomeBroadcast
	AttemptOutcomeSignerRejected
	AttemptOutcomeNetworkRejected
	AttemptOutcomeUnavailable
)

func (o AttemptOutcome) String() string {
	switch o {
	case AttemptOutcomeBroadcast:
		return "broadcast"
	case AttemptOutcomeSignerRejected:
		return "signer_rejected"
	case AttemptOutcomeNetworkRejected:
		return "network_rejected"
	case AttemptOutcomeUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Attempt records what a single strategy did.
type Attempt struct {
	Strategy  StrategyName
	Outcome   AttemptOutcome
	Signature *solana.Signature
	Class     ErrorClass
	Err       error
	Blockhash solana.Blockhash
	Duration  time.Duration
}

// Candidate is a signature an attempt produced, which may have landed
// regardless of what the attempt reported.
type Candidate struct {
	Signature solana.Signature
	Strategy  StrategyName

	// Zero when the blockhash came from the client's cache
	LastValidBlockHeight uint64
}

// CascadeResult is the outcome of running every strategy the cascade needed.
type CascadeResult struct {
	State    CascadeState
	Attempts []*Attempt

	// Set when State is CascadeStateSucceeded, or when a candidate was found
	// to have landed with an error.
	Signature            solana.Signature
	LastValidBlockHeight uint64

	// Every signature any attempt produced
	Candidates []Candidate

	// Whether anything may have reached the network
	Broadcast bool

	Err error
}

// cascadeStateMachine guards the Unsubmitted -> Attempting(i) -> terminal
// progression.
type cascadeStateMachine struct {
	state CascadeState
	index int
}

func (m *cascadeStateMachine) attempt(index int) error {
	switch m.state {
	case CascadeStateUnsubmitted:
		if index != 0 {
			return errors.Wrapf(ErrInvalidCascadeStateTransition, "%s -> attempting(%d)", m.state, index)
		}
	case CascadeStateAttempting:
		if index != m.index+1 {
			return errors.Wrapf(ErrInvalidCascadeStateTransition, "attempting(%d) -> attempting(%d)", m.index, index)
		}
	default:
		return errors.Wrapf(ErrInvalidCascadeStateTransition, "%s -> attempting(%d)", m.state, index)
	}

	m.state = CascadeStateAttempting
	m.index = index
	return nil
}

func (m *cascadeStateMachine) finish(to CascadeState) error {
	if !to.IsTerminal() || m.state.IsTerminal() {
		return errors.Wrapf(ErrInvalidCascadeStateTransition, "%s -> %s", m.state, to)
	}
	if m.state == CascadeStateUnsubmitted && to != CascadeStateCanceled && to != CascadeStateExhausted {
		return errors.Wrapf(ErrInvalidCascadeStateTransition, "%s -> %s", m.state, to)
	}

	m.state = to
	return nil
}

// Cascade submits a transaction through an ordered list of strategies, one
// at a time, until one succeeds, one fails definitively or none remain.
type Cascade struct {
	log        *logrus.Entry
	conf       *conf
	assembler  *Assembler
	strategies []Strategy
}

func NewCascade(configProvider ConfigProvider, assembler *Assembler) (*Cascade, error) {
	conf := configProvider()

	strategies, err := ParseStrategies(configProvider, conf.strategies.Get(context.Background()))
	if err != nil {
		return nil, err
	}

	return newCascadeWithStrategies(configProvider, assembler, strategies...), nil
}

func newCascadeWithStrategies(configProvider ConfigProvider, assembler *Assembler, strategies ...Strategy) *Cascade {
	return &Cascade{
		log:        logrus.StandardLogger().WithField("type", "stake/cascade"),
		conf:       configProvider(),
		assembler:  assembler,
		strategies: strategies,
	}
}

// Submit runs the cascade. The first strategy uses initial as is. Every
// later strategy re-assembles plan against a freshly fetched blockhash.
//
// The returned result is never nil. The error is nil only when the result
// state is CascadeStateSucceeded.
func (c *Cascade) Submit(ctx context.Context, session *Session, plan []*PlannedInstruction, initial *Assembled) (*CascadeResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Cascade.Submit")
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method": "Submit",
		"wallet": base58.Encode(session.Owner()),
	})

	sm := &cascadeStateMachine{}
	result := &CascadeResult{}
	addCandidate := func(sig solana.Signature, strategy StrategyName, lastValid uint64) {
		for _, existing := range result.Candidates {
			if existing.Signature == sig {
				return
			}
		}
		result.Candidates = append(result.Candidates, Candidate{Signature: sig, Strategy: strategy, LastValidBlockHeight: lastValid})
	}

	finish := func(state CascadeState, err error) (*CascadeResult, error) {
		if transitionErr := sm.finish(state); transitionErr != nil {
			log.WithError(transitionErr).Warn("unexpected cascade transition")
			err = transitionErr
		}
		result.State = sm.state
		result.Err = err
		recordCascadeEvent(ctx, session, result)
		return result, err
	}

	// Once anything may have been broadcast, the caller's cancellation no
	// longer applies to figuring out whether it landed.
	lookupCtx := func() (context.Context, context.CancelFunc) {
		if ctx.Err() == nil {
			return ctx, func() {}
		}
		return context.WithTimeout(context.WithoutCancel(ctx), c.conf.detachedTimeout.Get(ctx))
	}

	checkCandidates := func() (bool, CascadeState, error) {
		if len(result.Candidates) == 0 {
			return false, 0, nil
		}

		lctx, cancel := lookupCtx()
		defer cancel()

		found, status, err := c.findLanded(lctx, session, result.Candidates)
		if err != nil {
			log.WithError(err).Warn("failed to look up candidate signatures")
			return false, 0, nil
		}
		if found == nil {
			return false, 0, nil
		}

		result.Signature = found.Signature
		result.LastValidBlockHeight = found.LastValidBlockHeight
		if status.ErrorResult != nil && classifyTransactionError(status.ErrorResult) != ErrorClassAlreadyProcessed {
			return true, CascadeStateRejected, status.ErrorResult
		}
		return true, CascadeStateSucceeded, nil
	}

	for i, strategy := range c.strategies {
		if ctx.Err() != nil {
			if !result.Broadcast {
				return finish(CascadeStateCanceled, ErrCanceled)
			}
			if ok, state, err := checkCandidates(); ok {
				return finish(state, err)
			}
			return finish(CascadeStateCanceled, errors.Wrap(ctx.Err(), "submission canceled after broadcast"))
		}

		if err := sm.attempt(i); err != nil {
			return finish(CascadeStateExhausted, err)
		}

		attempt := &Attempt{Strategy: strategy.Name()}
		result.Attempts = append(result.Attempts, attempt)

		attemptLog := log.WithFields(logrus.Fields{
			"strategy": strategy.Name(),
			"index":    i,
		})

		if !strategy.Available(session) {
			attempt.Outcome = AttemptOutcomeUnavailable
			attempt.Class = ErrorClassUnavailable
			attempt.Err = errStrategyUnavailable
			attemptLog.Debug("strategy unavailable, advancing")
			continue
		}

		assembled := initial
		if i > 0 {
			var err error
			assembled, err = c.assembler.Assemble(ctx, session, plan, true)
			if err != nil {
				attempt.Err = err
				attempt.Class = Classify(err)
				attempt.Outcome = AttemptOutcomeUnavailable
				attemptLog.WithError(err).Warn("failed to re-assemble transaction")
				if attempt.Class.ShouldAdvance() {
					continue
				}
				return finish(CascadeStateRejected, err)
			}
		}

		txn := assembled.Transaction
		attempt.Blockhash = txn.Message.RecentBlockhash

		start := time.Now()
		sig, err := strategy.Execute(ctx, session, &txn)
		attempt.Duration = time.Since(start)

		if err == nil || txn.IsSigned() {
			result.Broadcast = true
		}

		if err == nil {
			attempt.Outcome = AttemptOutcomeBroadcast
			attempt.Signature = &sig
			addCandidate(sig, strategy.Name(), assembled.LastValidBlockHeight)

			result.Signature = sig
			result.LastValidBlockHeight = assembled.LastValidBlockHeight
			attemptLog.WithField("signature", sig.String()).Info("transaction broadcast")
			return finish(CascadeStateSucceeded, nil)
		}

		attempt.Err = err
		attempt.Class = Classify(err)

		var signed *solana.Signature
		if txn.IsSigned() {
			var s solana.Signature
			copy(s[:], txn.Signature())
			signed = &s
			addCandidate(s, strategy.Name(), assembled.LastValidBlockHeight)
		}

		attemptLog = attemptLog.WithError(err).WithField("class", attempt.Class.String())

		switch attempt.Class {
		case ErrorClassAlreadyProcessed:
			if signed != nil {
				attempt.Outcome = AttemptOutcomeBroadcast
				attempt.Signature = signed
				result.Signature = *signed
				result.LastValidBlockHeight = assembled.LastValidBlockHeight
				attemptLog.Info("transaction already processed")
				return finish(CascadeStateSucceeded, nil)
			}
			// Nothing to track without a signature
			attempt.Class = ErrorClassTransient
			attempt.Outcome = AttemptOutcomeNetworkRejected
		case ErrorClassDefinitive:
			if errors.Is(err, wallet.ErrUserRejected) {
				attempt.Outcome = AttemptOutcomeSignerRejected
			} else {
				attempt.Outcome = AttemptOutcomeNetworkRejected
			}
			attemptLog.Info("definitive rejection, not advancing")
			if ok, state, landedErr := checkCandidates(); ok {
				return finish(state, landedErr)
			}
			return finish(CascadeStateRejected, err)
		case ErrorClassUnavailable:
			attempt.Outcome = AttemptOutcomeUnavailable
		default:
			attempt.Outcome = AttemptOutcomeNetworkRejected
		}

		attemptLog.Info("strategy failed, checking candidates before advancing")
		if ok, state, landedErr := checkCandidates(); ok {
			return finish(state, landedErr)
		}
	}

	if ok, state, err := checkCandidates(); ok {
		return finish(state, err)
	}

	var last error
	if len(result.Attempts) > 0 {
		last = result.Attempts[len(result.Attempts)-1].Err
	}
	if last != nil {
		return finish(CascadeStateExhausted, errors.Wrap(ErrCascadeExhausted, last.Error()))
	}
	return finish(CascadeStateExhausted, ErrCascadeExhausted)
}

// findLanded returns the first candidate the network has a status for.
func (c *Cascade) findLanded(ctx context.Context, session *Session, candidates []Candidate) (*Candidate, *solana.SignatureStatus, error) {
	sigs := make([]solana.Signature, len(candidates))
	for i, candidate := range candidates {
		sigs[i] = candidate.Signature
	}

	statuses, err := session.Client.GetSignatureStatuses(ctx, sigs)
	if err != nil {
		return nil, nil, err
	}

	for i, status := range statuses {
		if status == nil || i >= len(candidates) {
			continue
		}
		return &candidates[i], status, nil
	}
	return nil, nil, nil
}
