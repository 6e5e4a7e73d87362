package stake

import (
	"context"
	"time"

	"github.com/mr-tron/base58"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
)

const (
	metricsStructName = "stake.pipeline"

	cascadeEventName   = "StakeCascade"
	reconcileEventName = "StakeReconcile"
	operationEventName = "StakeOperation"

	operationDurationMetricName = "Stake/OperationDuration"
	reconcileFailureMetricName  = "Stake/ReconcileFailures"
)

func recordCascadeEvent(ctx context.Context, session *Session, result *CascadeResult) {
	kvs := map[string]interface{}{
		"wallet":     base58.Encode(session.Owner()),
		"wallet_app": session.Wallet.Name,
		"state":      result.State.String(),
		"attempts":   len(result.Attempts),
		"candidates": len(result.Candidates),
		"broadcast":  result.Broadcast,
	}
	if len(result.Attempts) > 0 {
		last := result.Attempts[len(result.Attempts)-1]
		kvs["last_strategy"] = string(last.Strategy)
		kvs["last_outcome"] = last.Outcome.String()
		kvs["last_class"] = last.Class.String()
	}
	if result.Err != nil {
		kvs["error"] = result.Err.Error()
	}
	metrics.RecordEvent(ctx, cascadeEventName, kvs)
}

func recordReconcileEvent(ctx context.Context, record *submission.Record, success bool, err error) {
	kvs := map[string]interface{}{
		"signature": record.Signature,
		"operation": string(record.Operation),
		"success":   success,
	}
	if err != nil {
		kvs["error"] = err.Error()
		metrics.RecordCount(ctx, reconcileFailureMetricName, 1)
	}
	metrics.RecordEvent(ctx, reconcileEventName, kvs)
}

func recordOperationEvent(ctx context.Context, operation submission.Operation, result *Result, elapsed time.Duration) {
	kvs := map[string]interface{}{
		"operation":  string(operation),
		"status":     result.Status.String(),
		"attempts":   len(result.Attempts),
		"reconciled": result.Reconciled,
		"warnings":   len(result.Warnings),
	}
	if result.Signature != nil {
		kvs["signature"] = result.Signature.String()
	}
	if result.Err != nil {
		kvs["error"] = result.Err.Error()
	}
	metrics.RecordEvent(ctx, operationEventName, kvs)
	metrics.RecordDuration(ctx, operationDurationMetricName, elapsed)
}
