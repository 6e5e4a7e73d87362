package stake

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/ledger"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
)

var (
	// ErrReconcileInProgress indicates another caller holds the right to
	// report the signature to the ledger.
	ErrReconcileInProgress = errors.New("reconciliation already in progress")

	ErrNotConfirmed = errors.New("submission is not confirmed")
)

// Reconciler reports confirmed submissions to the ledger, at most once per
// signature.
type Reconciler struct {
	log    *logrus.Entry
	ledger ledger.Ledger
	store  submission.Store

	// Signatures known to be reconciled. Saves a store round trip, the
	// store's compare-and-set is what enforces at most once.
	done *lru.Cache
}

func NewReconciler(configProvider ConfigProvider, l ledger.Ledger, store submission.Store) (*Reconciler, error) {
	conf := configProvider()

	done, err := lru.New(int(conf.reconcileCacheSize.Get(context.Background())))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create reconcile cache")
	}

	return &Reconciler{
		log:    logrus.StandardLogger().WithField("type", "stake/reconciler"),
		ledger: l,
		store:  store,
		done:   done,
	}, nil
}

// Reconcile tells the ledger about a confirmed submission. It reports true
// once the ledger has acknowledged the signature, whether by this call or an
// earlier one.
//
// A ledger failure releases the claim so a later call can retry.
func (r *Reconciler) Reconcile(ctx context.Context, signature string) (bool, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Reconciler.Reconcile")
	defer tracer.End()

	log := r.log.WithFields(logrus.Fields{
		"method":    "Reconcile",
		"signature": signature,
	})

	if r.done.Contains(signature) {
		return true, nil
	}

	record, err := r.store.Get(ctx, signature)
	if err != nil {
		tracer.OnError(err)
		return false, err
	}

	switch {
	case record.State != submission.StateConfirmed:
		return false, errors.Wrapf(ErrNotConfirmed, "state is %s", record.State)
	case record.ReconcileState == submission.ReconcileDone:
		r.done.Add(signature, struct{}{})
		return true, nil
	case record.ReconcileState == submission.ReconcileInFlight:
		return false, ErrReconcileInProgress
	}

	err = r.store.UpdateReconcileState(ctx, signature, submission.ReconcileNone, submission.ReconcileInFlight)
	if err == submission.ErrStaleState {
		return r.resolveLostClaim(ctx, signature)
	} else if err != nil {
		tracer.OnError(err)
		return false, errors.Wrap(err, "failed to claim reconciliation")
	}

	confirmation, err := toLedgerConfirmation(record)
	if err != nil {
		r.release(ctx, log, signature)
		return false, err
	}

	if err := r.ledger.ConfirmOperation(ctx, confirmation); err != nil {
		log.WithError(err).Warn("ledger did not accept confirmation, releasing claim")
		r.release(ctx, log, signature)
		recordReconcileEvent(ctx, record, false, err)
		tracer.OnError(err)
		return false, err
	}

	if err := r.store.UpdateReconcileState(ctx, signature, submission.ReconcileInFlight, submission.ReconcileDone); err != nil {
		// The ledger has it. Its idempotency key covers the retry that
		// follows if the claim is later released.
		log.WithError(err).Warn("failed to mark submission reconciled")
		tracer.OnError(err)
		return true, nil
	}

	r.done.Add(signature, struct{}{})
	recordReconcileEvent(ctx, record, true, nil)
	log.Debug("submission reconciled")
	return true, nil
}

func (r *Reconciler) resolveLostClaim(ctx context.Context, signature string) (bool, error) {
	record, err := r.store.Get(ctx, signature)
	if err != nil {
		return false, err
	}
	if record.ReconcileState == submission.ReconcileDone {
		r.done.Add(signature, struct{}{})
		return true, nil
	}
	return false, ErrReconcileInProgress
}

func (r *Reconciler) release(ctx context.Context, log *logrus.Entry, signature string) {
	err := r.store.UpdateReconcileState(ctx, signature, submission.ReconcileInFlight, submission.ReconcileNone)
	if err != nil {
		log.WithError(err).Warn("failed to release reconciliation claim")
	}
}

func toLedgerConfirmation(record *submission.Record) (*ledger.Confirmation, error) {
	owner, err := base58.Decode(record.Wallet)
	if err != nil {
		return nil, errors.Wrap(err, "invalid wallet on submission")
	}

	decoded, err := base58.Decode(record.Signature)
	if err != nil || len(decoded) != len(solana.Signature{}) {
		return nil, errors.New("invalid signature on submission")
	}

	var sig solana.Signature
	copy(sig[:], decoded)

	return &ledger.Confirmation{
		Wallet:    owner,
		Operation: ledger.Operation(record.Operation),
		Amount:    record.Amount,
		Signature: sig,
	}, nil
}
