package metrics

import (
	"context"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// MethodTracer is a segment within the transaction on the context. A nil
// tracer is valid and records nothing.
type MethodTracer struct {
	txn *newrelic.Transaction
	seg *newrelic.Segment
}

// TraceMethodCall starts a segment named after the component and method.
// It returns nil when ctx has no transaction.
func TraceMethodCall(ctx context.Context, component, method string) *MethodTracer {
	txn := newrelic.FromContext(ctx)
	if txn == nil {
		return nil
	}

	return &MethodTracer{
		txn: txn,
		seg: txn.StartSegment(component + " " + method),
	}
}

// AddAttribute attaches metadata to the segment
func (t *MethodTracer) AddAttribute(key string, value interface{}) {
	if t == nil {
		return
	}
	t.seg.AddAttribute(key, value)
}

// OnError reports a non-nil err against the transaction
func (t *MethodTracer) OnError(err error) {
	if t == nil || err == nil {
		return
	}
	t.txn.NoticeError(err)
}

// End closes the segment
func (t *MethodTracer) End() {
	if t == nil {
		return
	}
	t.seg.End()
}
