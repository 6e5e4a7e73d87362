package stake

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/metrics"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/retry/backoff"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana"
	"github.com/berzslv/hackedsolanaatm-sub002/pkg/solana/staking"
)

// ErrBlockhashExpired indicates a transaction was never seen and its
// blockhash is no longer valid, so it can never land.
var ErrBlockhashExpired = errors.New("transaction blockhash expired before it landed")

type ConfirmationStatus uint8

const (
	ConfirmationPending ConfirmationStatus = iota
	ConfirmationFinalized
	ConfirmationFailed
)

func (s ConfirmationStatus) String() string {
	switch s {
	case ConfirmationPending:
		return "pending"
	case ConfirmationFinalized:
		return "finalized"
	case ConfirmationFailed:
		return "failed"
	}
	return "unknown"
}

// Confirmation is what the network last said about a signature.
type Confirmation struct {
	Signature solana.Signature
	Status    ConfirmationStatus
	Slot      uint64

	// Whether the network reported any status at all
	Seen bool

	// The on-chain error, verbatim, when Status is ConfirmationFailed
	Err error

	// Set when Err is one of the staking program's own errors
	ProgramError *staking.ProgramError
}

// ParseCommitment accepts "processed", "confirmed" or "finalized".
func ParseCommitment(value string) (solana.Commitment, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "processed":
		return solana.CommitmentProcessed, nil
	case "confirmed":
		return solana.CommitmentConfirmed, nil
	case "finalized", "":
		return solana.CommitmentFinalized, nil
	}
	return solana.Commitment{}, errors.Errorf("invalid commitment %q", value)
}

type Confirmer struct {
	log  *logrus.Entry
	conf *conf
}

func NewConfirmer(configProvider ConfigProvider) *Confirmer {
	return &Confirmer{
		log:  logrus.StandardLogger().WithField("type", "stake/confirmer"),
		conf: configProvider(),
	}
}

// Commitment is the configured commitment Wait and Check resolve against.
func (c *Confirmer) Commitment(ctx context.Context) solana.Commitment {
	commitment, err := ParseCommitment(c.conf.confirmationCommitment.Get(ctx))
	if err != nil {
		c.log.WithError(err).Warn("invalid confirmation commitment, using finalized")
		return solana.CommitmentFinalized
	}
	return commitment
}

// Timeout is the configured time Wait polls for.
func (c *Confirmer) Timeout(ctx context.Context) time.Duration {
	return c.conf.confirmationTimeout.Get(ctx)
}

var errCommitmentNotReached = errors.New("commitment not reached")

// Wait polls the signature status until it reaches commitment or timeout
// elapses. A timeout is not an error: the confirmation is returned as
// ConfirmationPending so the signature can be re-checked later.
func (c *Confirmer) Wait(ctx context.Context, client solana.Client, sig solana.Signature, commitment solana.Commitment, timeout time.Duration) (*Confirmation, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Confirmer.Wait")
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method":     "Wait",
		"signature":  sig.String(),
		"commitment": commitment.Commitment,
	})

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pollInterval := c.conf.confirmationPollInterval.Get(ctx)

	res := &Confirmation{
		Signature: sig,
		Status:    ConfirmationPending,
	}

	_, err := retry.Retry(
		func() error {
			statuses, err := client.GetSignatureStatuses(waitCtx, []solana.Signature{sig})
			if err != nil {
				log.WithError(err).Debug("failed to get signature status")
				return err
			}
			if len(statuses) == 0 || statuses[0] == nil {
				return errCommitmentNotReached
			}

			status := statuses[0]
			res.Seen = true
			res.Slot = status.Slot
			if !commitmentReached(status, commitment) {
				return errCommitmentNotReached
			}

			applyStatus(res, status)
			return nil
		},
		retry.RetriableFunc(func(error) bool {
			return waitCtx.Err() == nil
		}),
		retry.BackoffContext(waitCtx, backoff.Constant(pollInterval), pollInterval),
	)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.Info("timed out waiting for confirmation")
		return res, nil
	}

	if res.Status == ConfirmationFailed {
		log.WithError(res.Err).Info("transaction failed on chain")
	}
	return res, nil
}

// Check looks up the signature once. A signature the network has never seen
// is reported as failed once the block height passes lastValidBlockHeight.
// Zero disables the expiry check.
func (c *Confirmer) Check(ctx context.Context, client solana.Client, sig solana.Signature, commitment solana.Commitment, lastValidBlockHeight uint64) (*Confirmation, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Confirmer.Check")
	defer tracer.End()

	res := &Confirmation{
		Signature: sig,
		Status:    ConfirmationPending,
	}

	statuses, err := client.GetSignatureStatuses(ctx, []solana.Signature{sig})
	if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to get signature status")
	}

	if len(statuses) > 0 && statuses[0] != nil {
		res.Seen = true
		res.Slot = statuses[0].Slot
		if commitmentReached(statuses[0], commitment) {
			applyStatus(res, statuses[0])
		}
		return res, nil
	}

	if lastValidBlockHeight == 0 {
		return res, nil
	}

	height, err := client.GetBlockHeight(ctx, solana.CommitmentFinalized)
	if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to get block height")
	}
	if height > lastValidBlockHeight {
		res.Status = ConfirmationFailed
		res.Err = ErrBlockhashExpired
	}
	return res, nil
}

func commitmentReached(status *solana.SignatureStatus, commitment solana.Commitment) bool {
	switch commitment {
	case solana.CommitmentProcessed:
		return true
	case solana.CommitmentConfirmed:
		return status.Confirmed()
	default:
		return status.Finalized()
	}
}

func applyStatus(res *Confirmation, status *solana.SignatureStatus) {
	if status.ErrorResult == nil {
		res.Status = ConfirmationFinalized
		return
	}

	res.Status = ConfirmationFailed
	res.Err = status.ErrorResult
	if programErr, ok := staking.ProgramErrorFromTransactionError(status.ErrorResult); ok {
		res.ProgramError = &programErr
	}
}
