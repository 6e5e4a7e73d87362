package submission

import (
	"time"

	"github.com/pkg/errors"

	"github.com/berzslv/hackedsolanaatm-sub002/pkg/pointer"
)

// State is the on-chain outcome of a broadcast transaction.
type State uint8

const (
	StateUnknown   State = iota
	StatePending         // Broadcast, finality not yet observed
	StateConfirmed       // Finalized without error
	StateFailed          // Finalized with an error, or expired
)

// ReconcileState tracks whether the off-chain ledger has been told about a
// confirmed transaction.
type ReconcileState uint8

const (
	ReconcileNone     ReconcileState = iota
	ReconcileInFlight                // A process holds the right to call the ledger
	ReconcileDone
)

type Operation string

const (
	OperationRegister Operation = "register"
	OperationStake    Operation = "stake"
	OperationUnstake  Operation = "unstake"
	OperationClaim    Operation = "claim"
	OperationCompound Operation = "compound"
)

type Record struct {
	Id uint64

	Signature string
	Wallet    string
	Operation Operation
	Amount    uint64

	Strategy             string
	LastValidBlockHeight uint64

	State          State
	ReconcileState ReconcileState
	Error          *string

	Version uint64

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Signature) == 0 {
		return errors.New("signature is required")
	}

	if len(r.Wallet) == 0 {
		return errors.New("wallet is required")
	}

	switch r.Operation {
	case OperationRegister, OperationStake, OperationUnstake, OperationClaim, OperationCompound:
	default:
		return errors.Errorf("invalid operation: %q", r.Operation)
	}

	if r.State == StateUnknown {
		return errors.New("state is required")
	}

	if r.State != StateFailed && r.Error != nil {
		return errors.New("error can only be set on failed records")
	}

	if r.ReconcileState != ReconcileNone && r.State != StateConfirmed {
		return errors.New("only confirmed records can be reconciled")
	}

	return nil
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Signature: r.Signature,
		Wallet:    r.Wallet,
		Operation: r.Operation,
		Amount:    r.Amount,

		Strategy:             r.Strategy,
		LastValidBlockHeight: r.LastValidBlockHeight,

		State:          r.State,
		ReconcileState: r.ReconcileState,
		Error:          pointer.StringCopy(r.Error),

		Version: r.Version,

		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Signature = r.Signature
	dst.Wallet = r.Wallet
	dst.Operation = r.Operation
	dst.Amount = r.Amount

	dst.Strategy = r.Strategy
	dst.LastValidBlockHeight = r.LastValidBlockHeight

	dst.State = r.State
	dst.ReconcileState = r.ReconcileState
	dst.Error = pointer.StringCopy(r.Error)

	dst.Version = r.Version

	dst.CreatedAt = r.CreatedAt
	dst.UpdatedAt = r.UpdatedAt
}

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateConfirmed:
		return "confirmed"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// IsTerminal reports whether the state can no longer change.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

func (s ReconcileState) String() string {
	switch s {
	case ReconcileNone:
		return "none"
	case ReconcileInFlight:
		return "in_flight"
	case ReconcileDone:
		return "done"
	}
	return "unknown"
}

// ValidStateTransition reports whether a record may move between states.
// Terminal states are final.
func ValidStateTransition(from, to State) bool {
	switch from {
	case StatePending:
		return to == StateConfirmed || to == StateFailed
	}
	return false
}

// ValidReconcileTransition reports whether the reconcile guard may move
// between states. Releasing an in flight claim returns it to none.
func ValidReconcileTransition(from, to ReconcileState) bool {
	switch from {
	case ReconcileNone:
		return to == ReconcileInFlight
	case ReconcileInFlight:
		return to == ReconcileDone || to == ReconcileNone
	}
	return false
}
