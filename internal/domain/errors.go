package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyTraded      = errors.New("asset already being traded")
	ErrNotTraded          = errors.New("asset not being traded")
	ErrInvalidOrderSide   = errors.New("invalid order side")
	ErrPriceUnavailable   = errors.New("price unavailable")
	ErrAccountUnavailable = errors.New("account data unavailable")
	ErrOrderRejected      = errors.New("order rejected by brokerage")
	ErrLockHeld           = errors.New("lock already held")
	ErrContextDone        = errors.New("context cancelled")
)
