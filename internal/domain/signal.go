package domain

// TradeSignal is an inbound instruction to act on a symbol. Terminate forces
// an unconditional exit on sell signals, overriding the minimum exit margin.
type TradeSignal struct {
	Symbol    string
	Side      OrderSide
	Terminate bool
}

// StatusCode is an informational outcome code from the trade decision path.
// The taxonomy is closed; the transport layer maps these onto its own wire
// format (they happen to be valid HTTP statuses, which the HTTP handler uses
// directly).
type StatusCode int

const (
	StatusOK               StatusCode = 200
	StatusInvalidOrderSide StatusCode = 400
	StatusAlreadyTraded    StatusCode = 401
	StatusPortfolioLimit   StatusCode = 402
	StatusTradeLimit       StatusCode = 403
	StatusOrderRejected    StatusCode = 404
	StatusInternalError    StatusCode = 405
	StatusNotTraded        StatusCode = 406
	StatusCloseFailed      StatusCode = 407
)

// Outcome is the result of a trade-initiation decision: a human-readable
// message plus a status code from the closed taxonomy.
type Outcome struct {
	Message string     `json:"message"`
	Code    StatusCode `json:"code"`
}

// OK reports whether the outcome is informational rather than a fault. Soft
// rejections (margin not met, duplicate signals) are OK outcomes.
func (o Outcome) OK() bool {
	return o.Code == StatusOK
}
