package domain

import "errors"

// Sentinel errors. They mark programmer errors in the calling agent or
// market logic; none of them is a recoverable simulation state.
var (
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrOrderNotFound   = errors.New("order_not_found")
	ErrOverWithdraw    = errors.New("withdraw_exceeds_outstanding")
	ErrInvalidSide     = errors.New("invalid_side")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidDelay    = errors.New("invalid_delay")
	ErrTimeReversed    = errors.New("time_reversed")
	ErrInvalidPricing  = errors.New("invalid_pricing")
	ErrAccountNotFound = errors.New("account_not_found")
	ErrUnknownMarket   = errors.New("unknown_market")
)

// ValidationError represents an invalid configuration value.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
