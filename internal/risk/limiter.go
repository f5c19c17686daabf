// Package risk implements the pure pre-trade risk checks: converting account
// state and a quoted price into an allowed trade size, or a typed rejection.
// Nothing in this package performs I/O, so every rule is independently
// testable with plain values.
package risk

import (
	"errors"
	"math"

	"github.com/quantara/tradewatch/internal/domain"
)

// Rejection reasons. Callers should not retry these without changed market
// conditions.
var (
	ErrPortfolioLimitExceeded    = errors.New("risk: portfolio limit exceeded")
	ErrTradeTooSmall             = errors.New("risk: computed quantity rounds to zero")
	ErrTradeExceedsPerTradeLimit = errors.New("risk: trade exceeds per-trade limit")
)

// Limits is the immutable risk configuration applied to every entry decision.
type Limits struct {
	// MaxTotalPortfolioFraction caps total exposure as a fraction of buying
	// power (default 0.20).
	MaxTotalPortfolioFraction float64

	// MaxSingleTradeFraction caps a single trade's funds as a fraction of
	// buying power (default 0.02).
	MaxSingleTradeFraction float64

	// ProfitLossRatio scales the take-profit distance relative to the
	// stop-loss distance (default 1.0: equal distances).
	ProfitLossRatio float64

	// StopLossFraction is the fractional distance of the stop below entry
	// (default 0.01).
	StopLossFraction float64

	// MinExitMarginEquity and MinExitMarginCrypto are the minimum amounts
	// above entry price a sell signal must clear before a position is closed
	// without the terminate override. Crypto is quoted in larger increments.
	MinExitMarginEquity float64
	MinExitMarginCrypto float64
}

// Input is the market and account state an entry decision is evaluated
// against.
type Input struct {
	Price        float64
	BuyingPower  float64
	Exposure     float64 // market value of all currently open positions
	AssetClass   domain.AssetClass
	Fractionable bool
}

// Decision is an accepted trade size.
type Decision struct {
	Quantity      float64
	MaxTradeFunds float64
}

// Evaluate applies the risk limits to the given input and returns either the
// allowed quantity or a rejection.
//
// The portfolio guard checks existing exposure against the cap before the
// new trade's funds are added: once exposure has reached
// BuyingPower * MaxTotalPortfolioFraction, no further entries are allowed.
func (l Limits) Evaluate(in Input) (Decision, error) {
	maxTradeFunds := in.BuyingPower * l.MaxSingleTradeFraction

	if in.BuyingPower*l.MaxTotalPortfolioFraction <= in.Exposure {
		return Decision{}, ErrPortfolioLimitExceeded
	}

	qty := maxTradeFunds / in.Price

	// Fractional quantities only for crypto assets the brokerage marks
	// fractionable; everything else trades whole units.
	if !(in.Fractionable && in.AssetClass == domain.AssetClassCrypto) {
		qty = math.Trunc(qty)
	}

	if qty == 0 {
		return Decision{}, ErrTradeTooSmall
	}

	// Guard against rounding drift between the fraction check and the
	// truncated quantity: the submitted notional must not round above the
	// per-trade cap.
	actual := roundTo(Round5(qty)*in.Price, 1)
	if actual > roundTo(maxTradeFunds, 1) {
		return Decision{}, ErrTradeExceedsPerTradeLimit
	}

	return Decision{Quantity: Round5(qty), MaxTradeFunds: maxTradeFunds}, nil
}

// StopLoss derives the stop-loss threshold from an entry price.
func (l Limits) StopLoss(entry float64) float64 {
	return entry * (1 - l.StopLossFraction)
}

// TakeProfit derives the take-profit threshold from an entry price. The
// distance above entry is the stop-loss distance scaled by ProfitLossRatio.
func (l Limits) TakeProfit(entry float64) float64 {
	return entry + l.ProfitLossRatio*(entry-l.StopLoss(entry))
}

// MinExitMargin returns the asset-class-dependent minimum exit margin.
func (l Limits) MinExitMargin(class domain.AssetClass) float64 {
	if class == domain.AssetClassCrypto {
		return l.MinExitMarginCrypto
	}
	return l.MinExitMarginEquity
}

// Round5 rounds to 5 decimal places. All price comparisons in the decision
// and monitoring paths use this precision to avoid flapping on sub-cent
// brokerage noise.
func Round5(v float64) float64 {
	return roundTo(v, 5)
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
