package staking

import "errors"

var (
	// ErrInvalidAmount rejects zero or negative stake amounts.
	ErrInvalidAmount = errors.New("staking: amount must be greater than zero")
	// ErrNotFound is returned when the stake id is unknown.
	ErrNotFound = errors.New("staking: stake not found")
	// ErrNotOwner is returned when the caller does not own the stake.
	ErrNotOwner = errors.New("staking: caller is not the stake owner")
	// ErrAlreadyClaimed is returned for a second claim on the same stake.
	ErrAlreadyClaimed = errors.New("staking: stake already claimed")
	// ErrLockNotElapsed is returned while the tier lock is still running.
	ErrLockNotElapsed = errors.New("staking: lock period not elapsed")
	// ErrInsufficientFee is returned when the attached fee is below the
	// gate's current requirement.
	ErrInsufficientFee = errors.New("staking: insufficient fee")
	// ErrUnauthorized is returned when a custody primitive is invoked by
	// anything other than the registered platform, or a privileged
	// operation by a caller without the required role.
	ErrUnauthorized = errors.New("staking: unauthorized")
	// ErrInsufficientEscrow is returned when no principal is escrowed for
	// the (owner, stake id) pair.
	ErrInsufficientEscrow = errors.New("staking: insufficient escrow")
	// ErrInsufficientRewardPool signals the reward pool cannot cover the
	// payout. Requires an admin top-up, not a user retry.
	ErrInsufficientRewardPool = errors.New("staking: insufficient reward pool")
	// ErrNoFundsToWithdraw is returned by sweep operations on an empty
	// balance.
	ErrNoFundsToWithdraw = errors.New("staking: no funds to withdraw")
	// ErrTransferFailed wraps an external token failure that aborted the
	// enclosing operation.
	ErrTransferFailed = errors.New("staking: token transfer failed")
)
