package async_recheck

import (
	"context"
	"time"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
)

const (
	submissionCountEventName = "SubmissionCountPollingCheck"
	recheckEventName         = "SubmissionRechecked"
	staleClaimEventName      = "StaleReconcileClaimReleased"
)

func (p *service) metricsGaugeWorker(ctx context.Context) error {
	delay := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
			start := time.Now()

			for _, state := range []submission.State{
				submission.StatePending,
				submission.StateConfirmed,
				submission.StateFailed,
			} {
				count, err := p.store.CountByState(ctx, state)
				if err != nil {
					continue
				}
				recordSubmissionCountEvent(ctx, state, count)
			}

			delay = time.Second - time.Since(start)
		}
	}
}

func recordSubmissionCountEvent(ctx context.Context, state submission.State, count uint64) {
	metrics.RecordEvent(ctx, submissionCountEventName, map[string]interface{}{
		"count": count,
		"state": state.String(),
	})
}

func recordRecheckEvent(ctx context.Context, record *submission.Record, res *stake.Result) {
	kvPairs := map[string]interface{}{
		"signature":  record.Signature,
		"operation":  string(record.Operation),
		"from_state": record.State.String(),
		"status":     res.Status.String(),
		"reconciled": res.Reconciled,
		"age_ms":     time.Since(record.CreatedAt).Milliseconds(),
	}
	if res.Err != nil {
		kvPairs["error"] = res.Err.Error()
	}
	metrics.RecordEvent(ctx, recheckEventName, kvPairs)
}

func recordStaleClaimEvent(ctx context.Context, record *submission.Record) {
	metrics.RecordEvent(ctx, staleClaimEventName, map[string]interface{}{
		"signature": record.Signature,
		"operation": string(record.Operation),
	})
}
