package arnsmachine

import (
	"errors"
	"fmt"
)

// Tier separates malformed input from well formed input that the ledger refuses.
type Tier int

const (
	// Validation errors are raised before any engine reads state.
	Validation Tier = iota + 1
	// Rejection errors are business rules enforced against current state.
	Rejection
)

func (t Tier) String() string {
	switch t {
	case Validation:
		return "validation"
	case Rejection:
		return "rejection"
	}
	return "unknown"
}

// ActionError aborts an action with no state mutation. Reason is the stable name reported
// to the caller; Detail is free text for logs.
type ActionError struct {
	Tier   Tier
	Reason string
	Detail string
}

func (e *ActionError) Error() string {
	if e.Detail == "" {
		return e.Tier.String() + ": " + e.Reason
	}
	return e.Tier.String() + ": " + e.Reason + ": " + e.Detail
}

// Is matches on tier and reason so sentinels work with errors.Is regardless of detail.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	if !ok {
		return false
	}
	return t.Tier == e.Tier && t.Reason == e.Reason
}

// With returns a copy of a sentinel carrying detail for the logs.
func (e *ActionError) With(format string, args ...interface{}) *ActionError {
	return &ActionError{Tier: e.Tier, Reason: e.Reason, Detail: fmt.Sprintf(format, args...)}
}

// Invalid builds a validation error.
func Invalid(reason string, format string, args ...interface{}) *ActionError {
	return &ActionError{Tier: Validation, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Reject builds a business-rule rejection.
func Reject(reason string, format string, args ...interface{}) *ActionError {
	return &ActionError{Tier: Rejection, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// ReasonOf returns the named reason of an action error, or "" for anything else.
func ReasonOf(err error) string {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// TierOf returns the tier of an action error, or 0.
func TierOf(err error) Tier {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Tier
	}
	return 0
}

// Validation sentinels.
var (
	ErrInvalidQuantity    = &ActionError{Tier: Validation, Reason: "invalid-quantity"}
	ErrInvalidAddress     = &ActionError{Tier: Validation, Reason: "invalid-address"}
	ErrInvalidName        = &ActionError{Tier: Validation, Reason: "invalid-name"}
	ErrInvalidYears       = &ActionError{Tier: Validation, Reason: "invalid-years"}
	ErrInvalidType        = &ActionError{Tier: Validation, Reason: "invalid-type"}
	ErrInvalidContractID  = &ActionError{Tier: Validation, Reason: "invalid-contract-tx-id"}
	ErrInvalidLockLength  = &ActionError{Tier: Validation, Reason: "invalid-lock-length"}
	ErrInvalidSettings    = &ActionError{Tier: Validation, Reason: "invalid-gateway-settings"}
	ErrInvalidObservation = &ActionError{Tier: Validation, Reason: "invalid-observation"}
	ErrUnknownAction      = &ActionError{Tier: Validation, Reason: "unknown-action"}
	ErrInvalidSignature   = &ActionError{Tier: Validation, Reason: "invalid-signature"}
	ErrReservedCaller     = &ActionError{Tier: Validation, Reason: "reserved-caller"}
)

// Business-rule sentinels.
var (
	ErrInsufficientBalance   = &ActionError{Tier: Rejection, Reason: "insufficient-balance"}
	ErrSelfTransfer          = &ActionError{Tier: Rejection, Reason: "self-transfer"}
	ErrVaultNotFound         = &ActionError{Tier: Rejection, Reason: "vault-not-found"}
	ErrVaultExpired          = &ActionError{Tier: Rejection, Reason: "vault-expired"}
	ErrNameNotAvailable      = &ActionError{Tier: Rejection, Reason: "name-not-available"}
	ErrNameReserved          = &ActionError{Tier: Rejection, Reason: "name-reserved"}
	ErrNameInAuction         = &ActionError{Tier: Rejection, Reason: "name-in-auction"}
	ErrAuctionRequired       = &ActionError{Tier: Rejection, Reason: "auction-required"}
	ErrRecordNotFound        = &ActionError{Tier: Rejection, Reason: "record-not-found"}
	ErrRecordIsPermabuy      = &ActionError{Tier: Rejection, Reason: "record-is-permabuy"}
	ErrRecordExpired         = &ActionError{Tier: Rejection, Reason: "record-expired"}
	ErrMaxLeaseExceeded      = &ActionError{Tier: Rejection, Reason: "max-lease-exceeded"}
	ErrMaxUndernamesExceeded = &ActionError{Tier: Rejection, Reason: "max-undernames-exceeded"}
	ErrAuctionNotFound       = &ActionError{Tier: Rejection, Reason: "auction-not-found"}
	ErrAuctionExpired        = &ActionError{Tier: Rejection, Reason: "auction-expired"}
	ErrBidTooLow             = &ActionError{Tier: Rejection, Reason: "bid-too-low"}
	ErrGatewayExists         = &ActionError{Tier: Rejection, Reason: "gateway-exists"}
	ErrGatewayNotFound       = &ActionError{Tier: Rejection, Reason: "gateway-not-found"}
	ErrGatewayLeaving        = &ActionError{Tier: Rejection, Reason: "gateway-leaving"}
	ErrObserverWalletTaken   = &ActionError{Tier: Rejection, Reason: "observer-wallet-taken"}
	ErrStakeTooLow           = &ActionError{Tier: Rejection, Reason: "stake-below-minimum"}
	ErrDelegationDisabled    = &ActionError{Tier: Rejection, Reason: "delegation-disabled"}
	ErrTooManyDelegates      = &ActionError{Tier: Rejection, Reason: "max-delegates-reached"}
	ErrDelegateNotFound      = &ActionError{Tier: Rejection, Reason: "delegate-not-found"}
	ErrNotPrescribedObserver = &ActionError{Tier: Rejection, Reason: "not-prescribed-observer"}
	ErrObservationTooEarly   = &ActionError{Tier: Rejection, Reason: "observation-too-early"}
	ErrDuplicateAction       = &ActionError{Tier: Rejection, Reason: "duplicate-action"}
)

// ErrHeightRegression is fatal: the replica was fed its log out of order. It is not an
// ActionError and MUST NOT be reported as a rejection.
var ErrHeightRegression = errors.New("height is behind the last ticked height")
