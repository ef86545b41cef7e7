package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel kinds for the four failure families of the integration.
// Interactive paths surface ErrConfiguration and ErrValidation to the user;
// background paths catch per item and aggregate (see the sync package).

// ErrNotFound indicates that a requested record could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrConfiguration indicates missing required setup (e.g. fiscal territory).
// Must interrupt the triggering user action; never silently degrade.
var ErrConfiguration = errors.New("configuration error")

// ErrValidation indicates malformed or missing document data. Blocks only the
// specific operation.
var ErrValidation = errors.New("validation error")

// ErrRemoteProtocol indicates a transport- or protocol-level failure from the
// e-Factura gateway.
var ErrRemoteProtocol = errors.New("remote protocol error")

// ErrAmbiguousResult indicates that a remote search returned multiple
// unexpected matches. Never auto-resolved.
var ErrAmbiguousResult = errors.New("ambiguous remote result")

// Configuration builds a configuration error with a user-facing message.
func Configuration(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Validation builds a validation error naming the offending field.
func Validation(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, reason)
}

// RemoteError wraps a gateway failure with the originating operation name.
// Callers never see raw transport errors, only this uniform kind.
type RemoteError struct {
	Op  string // SOAP operation name, e.g. "CheckInvoicesStatus"
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("e-factura %s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrRemoteProtocol) match any RemoteError.
func (e *RemoteError) Is(target error) bool { return target == ErrRemoteProtocol }

// Remote wraps err as a RemoteError for the given operation.
func Remote(op string, err error) error {
	return &RemoteError{Op: op, Err: err}
}

// Ambiguous builds an ambiguous-result error with match count context.
func Ambiguous(correlationID string, matches int) error {
	return fmt.Errorf("%w: %d invoices match correlation id %s", ErrAmbiguousResult, matches, correlationID)
}
