// Package reverts defines the reasons a pool or factory call is rejected.
//
// A rejected call has no effect: the surrounding transaction is reverted in
// full. Call sites wrap these sentinels with context, callers match them with
// errors.Is.
package reverts

import "errors"

// Validation errors (caller mistakes).
var (
	ErrIncorrectPrice       = errors.New("pool price is not correct")
	ErrInvalidLockTier      = errors.New("lock time type is not correct")
	ErrTokensMustDiffer     = errors.New("tokens must be different")
	ErrAmountAboveLimit     = errors.New("amount above limit")
	ErrAmountTooHigh        = errors.New("amount to withdraw too high")
	ErrFeeInsufficient      = errors.New("fee is not enough")
	ErrClaimFeeInsufficient = errors.New("claim fee is not enough")
	ErrFundingMissing       = errors.New("reward supply has not been transferred to the pool")
	ErrZeroAmount           = errors.New("amount must be greater than zero")
	ErrStakeCapExceeded     = errors.New("deposit amount exceed the max stake token amount")
	ErrNothingToClaim       = errors.New("no reward to claim")
	ErrUnconsumedValue      = errors.New("call does not accept this payment")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrInvalidFees          = errors.New("invalid fee schedule")
)

// Authorization errors.
var (
	ErrNotOwner      = errors.New("caller is not the owner")
	ErrNotAuthorized = errors.New("caller is neither pool owner nor admin")
)

// Temporal and state errors.
var (
	ErrLockTimeNotElapsed = errors.New("you should wait until lock time")
	ErrPoolNotEnded       = errors.New("pool is not ended yet")
	ErrPoolClosed         = errors.New("pool is closed")
	ErrAlreadyFunded      = errors.New("pool is already funded")
)

// Arithmetic safety.
var (
	ErrNoStakers          = errors.New("no tokens staked in pool")
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
)

// Token transfer failures. ErrTransferFailed wraps the more specific reason
// reported by the token.
var (
	ErrTransferFailed        = errors.New("token transfer failed")
	ErrInsufficientBalance   = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

type coded struct {
	err  error
	code string
}

// Ordered most specific first: a transfer failure reports the token's reason.
var codes = []coded{
	{ErrInsufficientBalance, "InsufficientBalance"},
	{ErrInsufficientAllowance, "InsufficientAllowance"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrIncorrectPrice, "IncorrectPrice"},
	{ErrInvalidLockTier, "InvalidLockTier"},
	{ErrTokensMustDiffer, "TokensMustDiffer"},
	{ErrAmountAboveLimit, "AmountAboveLimit"},
	{ErrAmountTooHigh, "AmountTooHigh"},
	{ErrFeeInsufficient, "FeeInsufficient"},
	{ErrClaimFeeInsufficient, "ClaimFeeInsufficient"},
	{ErrFundingMissing, "FundingMissing"},
	{ErrZeroAmount, "ZeroAmount"},
	{ErrStakeCapExceeded, "StakeCapExceeded"},
	{ErrNothingToClaim, "NothingToClaim"},
	{ErrUnconsumedValue, "UnconsumedValue"},
	{ErrUnknownPool, "UnknownPool"},
	{ErrInvalidFees, "InvalidFees"},
	{ErrNotOwner, "NotOwner"},
	{ErrNotAuthorized, "NotAuthorized"},
	{ErrLockTimeNotElapsed, "LockTimeNotElapsed"},
	{ErrPoolNotEnded, "PoolNotEnded"},
	{ErrPoolClosed, "PoolClosed"},
	{ErrAlreadyFunded, "AlreadyFunded"},
	{ErrNoStakers, "NoStakers"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
}

// Code returns the short name of the revert reason carried by err, or ""
// when err is not a revert.
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// IsRevert reports whether err carries one of the revert reasons.
func IsRevert(err error) bool {
	return Code(err) != ""
}
