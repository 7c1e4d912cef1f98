// Errors surfaced by the wallet's public Operation API, following spec.md
// §7's error-kind table. Every error returned across the pkg/wallet
// boundary is a *Error carrying a Kind discriminant plus the wrapped
// cause, the same "Kind"-tagged shape the teacher uses for its
// DisclosureType/TaskType enums, applied here to error handling instead of
// domain objects.
package wallet

import (
	"errors"
	"fmt"

	"github.com/zdoge/shieldwallet/internal/chain"
	"github.com/zdoge/shieldwallet/internal/coinselect"
	"github.com/zdoge/shieldwallet/internal/identity"
	"github.com/zdoge/shieldwallet/internal/memo"
	"github.com/zdoge/shieldwallet/internal/orchestrator"
	"github.com/zdoge/shieldwallet/internal/pending"
)

// Kind discriminates the category of failure, matching spec.md §7.
type Kind string

const (
	KindIdentity            Kind = "identity"
	KindStorage             Kind = "storage"
	KindChain               Kind = "chain"
	KindSelectionInsuff     Kind = "selection_insufficient"
	KindSpendNoteNotOnChain Kind = "spend_note_not_on_chain"
	KindSpendAlreadySpent   Kind = "spend_already_spent"
	KindProof               Kind = "proof"
	KindValueConservation   Kind = "value_conservation"
	KindMemoTooLarge        Kind = "memo_too_large"
	KindNotFound            Kind = "not_found"
)

// Error is the typed error value every pkg/wallet entry point returns on
// failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("wallet: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// classify maps an error from a lower layer to its spec.md §7 Kind. Errors
// that don't match a known sentinel fall back to the category of the
// package that produced them.
func classify(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, identity.ErrSignRefused), errors.Is(err, identity.ErrMismatchRederived):
		return wrap(KindIdentity, err)
	case errors.Is(err, coinselect.ErrInsufficient), errors.Is(err, coinselect.ErrSelfTransferSharedOutput):
		return wrap(KindSelectionInsuff, err)
	case errors.Is(err, orchestrator.ErrNoteNotOnChain):
		return wrap(KindSpendNoteNotOnChain, err)
	case errors.Is(err, orchestrator.ErrAlreadySpent):
		return wrap(KindSpendAlreadySpent, err)
	case errors.Is(err, orchestrator.ErrValueConservation):
		return wrap(KindValueConservation, err)
	case errors.Is(err, chain.ErrRangeTooWide), errors.Is(err, chain.ErrTooManyResults),
		errors.Is(err, chain.ErrLeafNotIndexed), errors.Is(err, chain.ErrBadEvent):
		return wrap(KindChain, err)
	case errors.Is(err, memo.ErrTooLarge):
		return wrap(KindMemoTooLarge, err)
	case errors.Is(err, pending.ErrNotFound), errors.Is(err, pending.ErrAlreadyTracked):
		return wrap(KindNotFound, err)
	default:
		return wrap(fallback, err)
	}
}
