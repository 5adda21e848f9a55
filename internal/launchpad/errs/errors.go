// Package errs defines the error taxonomy shared across the launchpad
// packages: a fixed set of kinds the orchestrator uses to decide
// between retrying a step and failing a process terminally.
package errs

import "errors"

// Kind classifies a failure for the orchestrator's retry logic.
type Kind string

const (
	KindInvalidArgument     Kind = "InvalidArgument"
	KindUnauthorized        Kind = "Unauthorized"
	KindRateLimited         Kind = "RateLimited"
	KindInsufficientBalance Kind = "InsufficientBalance"
	KindNameAlreadyUsed     Kind = "NameAlreadyUsed"
	KindNetworkError        Kind = "NetworkError"
	KindSigningError        Kind = "SigningError"
	KindBroadcastRejected   Kind = "BroadcastRejected"
	KindBroadcastLost       Kind = "BroadcastLost"
	KindConfirmationStalled Kind = "ConfirmationStalled"
	KindInternal            Kind = "Internal"
)

// Retriable reports whether the orchestrator may retry a step that
// failed with this kind.
func (k Kind) Retriable() bool {
	switch k {
	case KindRateLimited, KindNetworkError, KindBroadcastLost:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with a classification kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind. If err is nil, New returns nil.
func New(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf extracts the classification kind from err, defaulting to
// KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retriable reports whether err's kind permits a retry.
func Retriable(err error) bool {
	return KindOf(err).Retriable()
}

// Sentinel errors for conditions referenced by name across packages.
var (
	ErrInvalidRuneName      = errors.New("invalid rune name")
	ErrInvalidSymbol        = errors.New("invalid symbol")
	ErrInvalidDivisibility  = errors.New("divisibility out of range")
	ErrInvalidTermsWindow   = errors.New("terms height window invalid")
	ErrNegativePremine      = errors.New("premine must be non-negative")
	ErrNameNotUnique        = errors.New("rune name already registered")
	ErrKeyInUse             = errors.New("rune key already in use")
	ErrRuneNotFound         = errors.New("rune not found")
	ErrProcessNotFound      = errors.New("etching process not found")
	ErrInvalidLimit         = errors.New("limit must be between 1 and 1000")
	ErrInvalidOffset        = errors.New("offset out of range")
	ErrInsufficientFunds    = errors.New("insufficient confirmed balance for requested transaction")
	ErrNoUTXOSelection      = errors.New("no UTXO selection satisfies the requested budget")
	ErrOwnerImmutable       = errors.New("owner role cannot be revoked or reassigned except by transfer")
	ErrRoleTooLow           = errors.New("caller role insufficient for this operation")
	ErrProcessNotCancelable = errors.New("process has a broadcast txid and can no longer be cancelled")
	ErrRetriesExhausted     = errors.New("retry count exhausted")
	ErrAlreadyBroadcast     = errors.New("transaction already observed in mempool")
	ErrUnauthorized         = errors.New("caller role insufficient for this operation")
	ErrInvalidRole          = errors.New("unrecognized role")
	ErrCannotRevokeOwner    = errors.New("owner role cannot be revoked")
	ErrRateLimited          = errors.New("caller exceeded request rate limit")
)
