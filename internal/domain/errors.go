package domain

import "errors"

// Hard failures surfaced to the caller. Partial market data is never an error.
var (
	// ErrInvalidWallet means the wallet identifier is malformed (caller error)
	ErrInvalidWallet = errors.New("invalid wallet")
	// ErrInvalidTarget means the target allocation is invalid (caller error)
	ErrInvalidTarget = errors.New("invalid target allocation")
	// ErrSourceUnavailable means the holdings source could not be reached
	ErrSourceUnavailable = errors.New("source unavailable")
)

// IsCallerError reports whether err stems from invalid caller input
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidWallet) || errors.Is(err, ErrInvalidTarget)
}
