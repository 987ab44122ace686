package domain

import "errors"

var (
	ErrMarketNotFound     = errors.New("market not found")
	ErrMarketNotActive    = errors.New("market not active")
	ErrMarketNotResolved  = errors.New("market not resolved")
	ErrMarketExpired      = errors.New("market expired")
	ErrDeadlineNotReached = errors.New("deadline not reached")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmptyQuestion      = errors.New("question must not be empty")
	ErrDurationTooShort   = errors.New("duration below minimum")
	ErrFeeTooHigh         = errors.New("fee rate exceeds cap")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidOutcome     = errors.New("invalid outcome")
	ErrBetBelowMinimum    = errors.New("bet below minimum stake")
	ErrTransferFailed     = errors.New("transfer failed")
	ErrAlreadySettled     = errors.New("already settled")
	ErrNoWinnings         = errors.New("no winnings")
	ErrNoFeeRecipient     = errors.New("fee recipient not set")
	ErrFeesAlreadySwept   = errors.New("fees already swept")
	ErrNoFailedPayout     = errors.New("no failed payout recorded")
	ErrNotFound           = errors.New("not found")
	ErrLockHeld           = errors.New("lock already held")

	// ErrPayoutPending means the withdrawn flag was committed but the
	// outbound transfer failed. The entitlement is preserved as a
	// FailedPayout and must be released through the operator recovery path;
	// retrying the withdrawal would reopen the double-payment window.
	ErrPayoutPending = errors.New("payout recorded but transfer failed")
)
