package submission

import (
	"context"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/database/query"
)

var (
	ErrNotFound          = errors.New("submission not found")
	ErrAlreadyExists     = errors.New("submission already exists")
	ErrInvalidTransition = errors.New("invalid submission state transition")

	// ErrStaleState indicates a compare-and-set lost: the record was not in
	// the expected state.
	ErrStaleState = errors.New("submission state is stale")
)

type Store interface {
	// Put creates a submission record for a broadcast transaction.
	//
	// Returns ErrAlreadyExists if a record for the signature exists.
	Put(ctx context.Context, record *Record) error

	// Get gets the submission record for a transaction signature.
	//
	// Returns ErrNotFound if no record is found.
	Get(ctx context.Context, signature string) (*Record, error)

	// UpdateState moves a record from one state to another, recording errMsg
	// when moving to StateFailed.
	//
	// Checks are applied in order: ErrInvalidTransition if the transition is
	// not allowed, without reading the record, then ErrNotFound if no record
	// exists, then ErrStaleState if the record is not in the from state.
	UpdateState(ctx context.Context, signature string, from, to State, errMsg *string) error

	// UpdateReconcileState is a compare-and-set on the reconcile guard of a
	// confirmed record. Exactly one concurrent caller can win the move from
	// ReconcileNone to ReconcileInFlight.
	//
	// Errors follow the same order as UpdateState. ErrStaleState also covers
	// records that are not confirmed.
	UpdateReconcileState(ctx context.Context, signature string, from, to ReconcileState) error

	// GetAllByState gets records in a state, paged by id.
	//
	// Returns ErrNotFound if no records are found.
	GetAllByState(ctx context.Context, state State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// GetAllUnreconciled gets confirmed records the ledger has not been told
	// about, oldest first.
	//
	// Returns ErrNotFound if no records are found.
	GetAllUnreconciled(ctx context.Context, limit uint64) ([]*Record, error)

	// CountByState counts records in a state.
	CountByState(ctx context.Context, state State) (uint64, error)
}
