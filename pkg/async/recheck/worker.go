package async_recheck

import (
	"context"
	base "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/sync"
)

func (p *service) pendingWorker(serviceCtx context.Context, interval time.Duration) error {
	var cursor query.Cursor
	delay := interval

	err := retry.Loop(
		func() (err error) {
			select {
			case <-serviceCtx.Done():
				return serviceCtx.Err()
			case <-time.After(delay):
			}

			tracedCtx, end := metrics.StartTransaction(serviceCtx, "async__recheck_service__handle_pending")
			defer end()

			next, err := p.processPendingBatch(tracedCtx, cursor)
			if err != nil {
				cursor = query.EmptyCursor
				return err
			}
			cursor = next
			return nil
		},
		retry.NonRetriableErrors(context.Canceled),
	)

	return err
}

// processPendingBatch rechecks one page of pending submissions and returns
// the cursor for the next page. An empty cursor starts over.
func (p *service) processPendingBatch(ctx context.Context, cursor query.Cursor) (query.Cursor, error) {
	items, err := p.store.GetAllByState(
		ctx,
		submission.StatePending,
		cursor,
		p.conf.pendingBatchSize.Get(ctx),
		query.Ascending,
	)
	if err == submission.ErrNotFound {
		return query.EmptyCursor, nil
	} else if err != nil {
		return nil, err
	}

	minAge := p.conf.minPendingAge.Get(ctx)

	var eligible []*submission.Record
	for _, item := range items {
		if time.Since(item.CreatedAt) < minAge {
			continue
		}
		eligible = append(eligible, item)
	}

	p.forEach(ctx, eligible, func(record *submission.Record) {
		p.recheck(ctx, record)
	})

	return query.ToCursor(items[len(items)-1].Id), nil
}

func (p *service) unreconciledWorker(serviceCtx context.Context, interval time.Duration) error {
	delay := interval

	err := retry.Loop(
		func() (err error) {
			select {
			case <-serviceCtx.Done():
				return serviceCtx.Err()
			case <-time.After(delay):
			}

			tracedCtx, end := metrics.StartTransaction(serviceCtx, "async__recheck_service__handle_unreconciled")
			defer end()

			return p.processUnreconciledBatch(tracedCtx)
		},
		retry.NonRetriableErrors(context.Canceled),
	)

	return err
}

func (p *service) processUnreconciledBatch(ctx context.Context) error {
	items, err := p.store.GetAllUnreconciled(ctx, p.conf.unreconciledBatchSize.Get(ctx))
	if err == submission.ErrNotFound {
		return nil
	} else if err != nil {
		return err
	}

	staleClaimAge := p.conf.staleClaimAge.Get(ctx)

	var eligible []*submission.Record
	for _, item := range items {
		if item.ReconcileState == submission.ReconcileInFlight {
			if time.Since(item.UpdatedAt) < staleClaimAge {
				continue
			}
			if !p.releaseStaleClaim(ctx, item) {
				continue
			}
		}
		eligible = append(eligible, item)
	}

	p.forEach(ctx, eligible, func(record *submission.Record) {
		p.recheck(ctx, record)
	})
	return nil
}

// releaseStaleClaim frees a reconciliation claim whose holder went away
// before finishing. The ledger deduplicates on signature, so a holder that
// is merely slow causes a duplicate call rather than a duplicate record.
func (p *service) releaseStaleClaim(ctx context.Context, record *submission.Record) bool {
	log := p.log.WithFields(logrus.Fields{
		"method":    "releaseStaleClaim",
		"signature": record.Signature,
	})

	err := p.store.UpdateReconcileState(ctx, record.Signature, submission.ReconcileInFlight, submission.ReconcileNone)
	switch err {
	case nil:
		log.Info("released stale reconciliation claim")
		recordStaleClaimEvent(ctx, record)
		return true
	case submission.ErrStaleState:
		return false
	default:
		log.WithError(err).Warn("failed to release stale reconciliation claim")
		return false
	}
}

func (p *service) recheck(ctx context.Context, record *submission.Record) {
	log := p.log.WithFields(logrus.Fields{
		"method":    "recheck",
		"signature": record.Signature,
		"state":     record.State.String(),
	})

	res, err := p.rechecker.Recheck(ctx, record.Signature)
	if err != nil {
		log.WithError(err).Warn("failed to recheck submission")
		return
	}

	if res.Status != stake.ResultStatusPending {
		recordRecheckEvent(ctx, record, res)
	}

	if res.Err != nil && res.Status != stake.ResultStatusFailed {
		log.WithError(res.Err).Debug("submission not settled yet")
	}
}

// forEach runs fn over records. Records are striped by wallet, so a wallet's
// submissions are handled one at a time and in order.
func (p *service) forEach(ctx context.Context, records []*submission.Record, fn func(*submission.Record)) {
	if len(records) == 0 {
		return
	}

	workers := p.conf.maxConcurrency.Get(ctx)
	if workers == 0 {
		workers = 1
	}

	striped := sync.NewStripedChannel(uint(workers), uint(len(records)))

	var wg base.WaitGroup
	for _, receiver := range striped.GetChannels() {
		wg.Add(1)

		go func(receiver <-chan interface{}) {
			defer wg.Done()

			for value := range receiver {
				fn(value.(*submission.Record))
			}
		}(receiver)
	}

	for _, record := range records {
		striped.BlockingSend([]byte(record.Wallet), record)
	}
	striped.Close()

	wg.Wait()
}
