package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseOrderSide maps a raw signal string onto an OrderSide. It returns
// ErrInvalidOrderSide for anything other than "buy" or "sell"
// (case-insensitive handling is the caller's job; signals arrive lowercased).
func ParseOrderSide(s string) (OrderSide, error) {
	switch OrderSide(s) {
	case OrderSideBuy:
		return OrderSideBuy, nil
	case OrderSideSell:
		return OrderSideSell, nil
	default:
		return "", ErrInvalidOrderSide
	}
}

// OrderKind is the execution type of an order. Only market orders are
// supported; the constant exists so order tickets are explicit on the wire.
type OrderKind string

const OrderKindMarket OrderKind = "market"

// TimeInForce is the order's lifetime policy.
type TimeInForce string

const TimeInForceGTC TimeInForce = "gtc"

// OrderTicket is a request to submit a single order to the brokerage.
type OrderTicket struct {
	ClientOrderID string
	Symbol        string
	Quantity      float64
	Side          OrderSide
	Kind          OrderKind
	TimeInForce   TimeInForce
}

// OrderResult wraps the brokerage response after order submission.
type OrderResult struct {
	OrderID      string
	Status       string // brokerage-native status, e.g. "filled", "rejected"
	FilledQty    float64
	FilledPrice  float64
	RejectReason string
	SubmittedAt  time.Time
}

// Rejected reports whether the brokerage declined the order.
func (r OrderResult) Rejected() bool {
	return r.Status == "rejected"
}

// Filled reports whether the brokerage has already filled the order.
func (r OrderResult) Filled() bool {
	return r.Status == "filled"
}
