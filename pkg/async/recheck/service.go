package async_recheck

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/async"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/data/submission"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/stake"
)

// Rechecker resolves a stored submission. *stake.Pipeline implements it.
type Rechecker interface {
	Recheck(ctx context.Context, signature string) (*stake.Result, error)
}

type service struct {
	log       *logrus.Entry
	conf      *conf
	store     submission.Store
	rechecker Rechecker
}

// New returns the service that settles submissions the foreground pipeline
// could not: pending signatures whose finality was never observed, and
// confirmed operations the ledger has not acknowledged.
func New(store submission.Store, rechecker Rechecker, configProvider ConfigProvider) async.Service {
	return &service{
		log:       logrus.StandardLogger().WithField("service", "recheck"),
		conf:      configProvider(),
		store:     store,
		rechecker: rechecker,
	}
}

func (p *service) Start(ctx context.Context, interval time.Duration) error {
	go func() {
		err := p.pendingWorker(ctx, interval)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("pending submission processing loop terminated unexpectedly")
		}
	}()

	go func() {
		err := p.unreconciledWorker(ctx, interval)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("reconciliation processing loop terminated unexpectedly")
		}
	}()

	go func() {
		err := p.metricsGaugeWorker(ctx)
		if err != nil && err != context.Canceled {
			p.log.WithError(err).Warn("submission metrics gauge loop terminated unexpectedly")
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	}
}
