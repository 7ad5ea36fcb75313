package hotswap

import (
	"errors"
	"fmt"
	"strings"
)

// Runtime errors
var (
	// Usage errors
	ErrCheckNotIdle      = errors.New("check() is only allowed in idle status")
	ErrApplyNotReady     = errors.New("apply() is only allowed in ready status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoTransport       = errors.New("no update transport configured")

	// Loader errors
	ErrModuleNotFound = errors.New("module not found")
	ErrModuleRemoved  = errors.New("module was removed by a hot update")
	ErrNilFactory     = errors.New("module factory is nil")
	ErrEmptyModuleID  = errors.New("module id cannot be empty")

	// Resolver abort errors
	ErrSelfDeclined = errors.New("update aborted because of self decline")
	ErrDeclined     = errors.New("update aborted because of declined dependency")
	ErrUnaccepted   = errors.New("update aborted because module is not accepted")

	// Linking errors
	ErrNoLinker            = errors.New("no linker configured for wire-delivered modules")
	ErrFactoryNotInCatalog = errors.New("factory not registered in catalog")
)

// AbortError is returned when the resolver refuses an update. It carries the
// outcome that caused the abort, including its propagation chain. The whole
// batch is rejected before any module is disposed.
type AbortError struct {
	Outcome Outcome
}

func (e *AbortError) Error() string {
	switch o := e.Outcome.(type) {
	case SelfDeclined:
		return fmt.Sprintf("%s: %s%s", ErrSelfDeclined, o.Module, chainInfo(o.Chain))
	case Declined:
		return fmt.Sprintf("%s: %s in %s%s", ErrDeclined, o.Module, o.Parent, chainInfo(o.Chain))
	case Unaccepted:
		return fmt.Sprintf("%s: %s%s", ErrUnaccepted, o.Module, chainInfo(o.Chain))
	default:
		return fmt.Sprintf("update aborted: %s", e.Outcome.ModuleID())
	}
}

// Unwrap maps the outcome kind to its sentinel so callers can use errors.Is.
func (e *AbortError) Unwrap() error {
	switch e.Outcome.(type) {
	case SelfDeclined:
		return ErrSelfDeclined
	case Declined:
		return ErrDeclined
	case Unaccepted:
		return ErrUnaccepted
	default:
		return nil
	}
}

// Chain returns the propagation chain of the aborting outcome.
func (e *AbortError) Chain() []string {
	switch o := e.Outcome.(type) {
	case SelfDeclined:
		return o.Chain
	case Declined:
		return o.Chain
	case Unaccepted:
		return o.Chain
	default:
		return nil
	}
}

func chainInfo(chain []string) string {
	if len(chain) == 0 {
		return ""
	}
	return "\nUpdate propagation: " + strings.Join(chain, " -> ")
}

// ErrorKind classifies errors raised by user callbacks during an apply.
type ErrorKind string

const (
	KindDisposeErrored                ErrorKind = "dispose-errored"
	KindRuntimeErrored                ErrorKind = "runtime-errored"
	KindAcceptErrored                 ErrorKind = "accept-errored"
	KindAcceptErrorHandlerErrored     ErrorKind = "accept-error-handler-errored"
	KindSelfAcceptErrored             ErrorKind = "self-accept-errored"
	KindSelfAcceptErrorHandlerErrored ErrorKind = "self-accept-error-handler-errored"
)

// CallbackError wraps an error raised by a user callback so the failing
// module and dependency stay attached when it surfaces from Apply.
type CallbackError struct {
	Kind         ErrorKind
	ModuleID     string
	DependencyID string
	Err          error
}

func (e *CallbackError) Error() string {
	if e.DependencyID != "" {
		return fmt.Sprintf("%s in %s (dependency %s): %v", e.Kind, e.ModuleID, e.DependencyID, e.Err)
	}
	return fmt.Sprintf("%s in %s: %v", e.Kind, e.ModuleID, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// PanicError is produced when a user callback panics instead of returning an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

// Unwrap returns the panic value when it was an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// safeCall runs fn and converts a panic into a *PanicError.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return fn()
}
