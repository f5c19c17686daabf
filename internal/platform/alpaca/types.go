package alpaca

import (
	"fmt"
	"strconv"
	"time"
)

// accountResponse is the trading API's account payload. Numeric fields
// arrive as strings.
type accountResponse struct {
	AccountNumber string `json:"account_number"`
	Status        string `json:"status"`
	BuyingPower   string `json:"buying_power"`
	Cash          string `json:"cash"`
	Currency      string `json:"currency"`
}

// positionResponse is one entry of the trading API's open-positions payload.
type positionResponse struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	CurrentPrice   string `json:"current_price"`
	MarketValue    string `json:"market_value"`
	UnrealizedPL   string `json:"unrealized_pl"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	AssetClass     string `json:"asset_class"`
	Side           string `json:"side"`
	Exchange       string `json:"exchange"`
	QtyAvailable   string `json:"qty_available"`
	ChangeToday    string `json:"change_today"`
	LastdayPrice   string `json:"lastday_price"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

// orderRequest is the trading API's order submission payload.
type orderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// orderResponse is the trading API's order payload.
type orderResponse struct {
	ID             string     `json:"id"`
	ClientOrderID  string     `json:"client_order_id"`
	Status         string     `json:"status"`
	Symbol         string     `json:"symbol"`
	Qty            string     `json:"qty"`
	FilledQty      string     `json:"filled_qty"`
	FilledAvgPrice *string    `json:"filled_avg_price"`
	SubmittedAt    *time.Time `json:"submitted_at"`
	FailedAt       *time.Time `json:"failed_at"`
}

// assetResponse is the trading API's asset metadata payload.
type assetResponse struct {
	ID           string `json:"id"`
	Symbol       string `json:"symbol"`
	Class        string `json:"class"`
	Exchange     string `json:"exchange"`
	Status       string `json:"status"`
	Tradable     bool   `json:"tradable"`
	Fractionable bool   `json:"fractionable"`
}

// barsResponse is the market-data API's bars payload. Only the close is
// consumed.
type barsResponse struct {
	Bars []struct {
		Close     float64   `json:"c"`
		Open      float64   `json:"o"`
		High      float64   `json:"h"`
		Low       float64   `json:"l"`
		Volume    float64   `json:"v"`
		Timestamp time.Time `json:"t"`
	} `json:"bars"`
	Symbol        string `json:"symbol"`
	NextPageToken string `json:"next_page_token"`
}

// cryptoQuotesResponse is the market-data API's latest crypto quotes payload,
// keyed by pair symbol.
type cryptoQuotesResponse struct {
	Quotes map[string]struct {
		AskPrice float64   `json:"ap"`
		AskSize  float64   `json:"as"`
		BidPrice float64   `json:"bp"`
		BidSize  float64   `json:"bs"`
		Ts       time.Time `json:"t"`
	} `json:"quotes"`
}

// apiError is the error body both Alpaca APIs return on non-2xx statuses.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// parseDecimal parses one of Alpaca's string-encoded numeric fields. An
// empty string parses as zero, which several optional fields use.
func parseDecimal(field, value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("alpaca: parse %s %q: %w", field, value, err)
	}
	return v, nil
}
