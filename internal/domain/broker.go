package domain

import "context"

// AssetInfo describes a tradable asset's class and whether the brokerage
// allows fractional quantities for it.
type AssetInfo struct {
	Symbol       string
	Class        AssetClass
	Fractionable bool
}

// BrokerGateway is the brokerage capability surface the trading core
// consumes. Implementations are external collaborators; all calls are
// blocking I/O and honour the passed context.
type BrokerGateway interface {
	// ListOpenPositions returns a snapshot of every open position on the
	// account.
	ListOpenPositions(ctx context.Context) ([]BrokerPosition, error)

	// BuyingPower returns the funds available for new trades.
	BuyingPower(ctx context.Context) (float64, error)

	// SubmitOrder places an order and returns the brokerage's response.
	// A declined order is reported through OrderResult.Rejected, not an
	// error; errors are transport or account failures.
	SubmitOrder(ctx context.Context, ticket OrderTicket) (OrderResult, error)

	// Asset returns classification metadata for a symbol.
	Asset(ctx context.Context, symbol string) (AssetInfo, error)
}

// BarSource is the primary market-data source: the close of the latest
// minute bar.
type BarSource interface {
	LatestBarClose(ctx context.Context, symbol string) (float64, error)
}

// QuoteSource is the secondary market-data source, used when the bar
// endpoint does not cover the asset class: the ask of the latest quote.
type QuoteSource interface {
	LatestQuoteAsk(ctx context.Context, symbol string) (float64, error)
}

// PriceSource resolves a current market price for a symbol. The pricing
// resolver composes BarSource and QuoteSource behind this interface; it
// returns ErrPriceUnavailable only once both are exhausted.
type PriceSource interface {
	CurrentPrice(ctx context.Context, symbol string) (float64, error)
}
