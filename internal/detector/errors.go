package detector

import (
	"fmt"

	"influence-monitoring/internal/store"

	"github.com/pkg/errors"
)

// ErrorKind classifies engine failures.
type ErrorKind int

const (
	// KindStorageUnavailable aborts the phase it happened in. Later
	// phases still run.
	KindStorageUnavailable ErrorKind = iota + 1

	// KindLedgerQuery skips the before-check of the affected vote.
	KindLedgerQuery
)

func (k ErrorKind) String() string {
	switch k {
	case KindStorageUnavailable:
		return "storage unavailable"
	case KindLedgerQuery:
		return "ledger query failure"
	default:
		return "unknown"
	}
}

// Phase names one step of transaction processing.
type Phase string

const (
	PhaseProposals Phase = "ingest-proposals"
	PhaseVotes     Phase = "ingest-votes"
	PhaseAfter     Phase = "scan-after"
	PhaseSweep     Phase = "sweep"
)

// Error is returned by Monitor.HandleTransaction, joined when several
// phases fail.
type Error struct {
	Kind   ErrorKind
	Phase  Phase
	TxHash string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v (tx %v): %v", e.Phase, e.Kind, e.TxHash, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func ledgerError(err error, format string, args ...interface{}) error {
	return &Error{
		Kind: KindLedgerQuery,
		Err:  errors.Wrapf(err, format, args...),
	}
}

// phaseError stamps err with the phase and transaction. Errors that are not
// ledger failures are storage failures.
func phaseError(phase Phase, txHash string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		e.Phase = phase
		e.TxHash = txHash
		return e
	}
	if !errors.Is(err, store.ErrUnavailable) {
		err = errors.Wrap(store.ErrUnavailable, err.Error())
	}
	return &Error{
		Kind:   KindStorageUnavailable,
		Phase:  phase,
		TxHash: txHash,
		Err:    err,
	}
}

// IsKind reports whether err, or any error joined into it, is of kind k.
func IsKind(err error, k ErrorKind) bool {
	if err == nil {
		return false
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsKind(e, k) {
				return true
			}
		}
		return false
	}
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}
