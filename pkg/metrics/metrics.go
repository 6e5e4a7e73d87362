// Package metrics records custom events, metrics and traces to New Relic
// when an application is attached to the context. Without one every call is
// a no-op, so callers never need to check.
package metrics

import (
	"context"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

type applicationContextKey struct{}

// WithApplication returns a context carrying app. A nil app leaves the
// context unchanged, which disables recording.
func WithApplication(ctx context.Context, app *newrelic.Application) context.Context {
	if app == nil {
		return ctx
	}
	return context.WithValue(ctx, applicationContextKey{}, app)
}

func applicationFromContext(ctx context.Context) (*newrelic.Application, bool) {
	app, ok := ctx.Value(applicationContextKey{}).(*newrelic.Application)
	return app, ok
}

// StartTransaction starts a background transaction named name. The returned
// end function is always safe to call.
func StartTransaction(ctx context.Context, name string) (context.Context, func()) {
	app, ok := applicationFromContext(ctx)
	if !ok {
		return ctx, func() {}
	}

	txn := app.StartTransaction(name)
	return newrelic.NewContext(ctx, txn), txn.End
}

// RecordEvent records a custom event with a set of attributes
func RecordEvent(ctx context.Context, eventName string, attributes map[string]interface{}) {
	if app, ok := applicationFromContext(ctx); ok {
		app.RecordCustomEvent(eventName, attributes)
	}
}

// RecordCount records a count metric
func RecordCount(ctx context.Context, metricName string, count uint64) {
	if app, ok := applicationFromContext(ctx); ok {
		app.RecordCustomMetric(metricName, float64(count))
	}
}

// RecordDuration records a duration metric in milliseconds
func RecordDuration(ctx context.Context, metricName string, duration time.Duration) {
	if app, ok := applicationFromContext(ctx); ok {
		app.RecordCustomMetric(metricName, float64(duration)/float64(time.Millisecond))
	}
}
