// Package alpaca implements the brokerage gateway against the Alpaca trading
// and market-data REST APIs.
package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
)

// ClientConfig holds endpoints and credentials for the Alpaca APIs.
type ClientConfig struct {
	// TradeURL is the trading API root, e.g.
	// "https://paper-api.alpaca.markets".
	TradeURL string

	// DataURL is the market-data API root, e.g.
	// "https://data.alpaca.markets".
	DataURL string

	APIKey    string
	APISecret string
}

// Client is the REST client for the Alpaca trading and market-data APIs. It
// implements domain.BrokerGateway plus the two market-data source
// interfaces.
type Client struct {
	tradeURL   string
	dataURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates an Alpaca REST client.
func NewClient(cfg ClientConfig) *Client {
	return &Client{
		tradeURL:  cfg.TradeURL,
		dataURL:   cfg.DataURL,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BuyingPower returns the account's funds available for new trades.
func (c *Client) BuyingPower(ctx context.Context) (float64, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.tradeURL+"/v2/account", nil)
	if err != nil {
		return 0, fmt.Errorf("alpaca: get account: %w", err)
	}

	var acct accountResponse
	if err := json.Unmarshal(body, &acct); err != nil {
		return 0, fmt.Errorf("alpaca: decode account: %w", err)
	}
	return parseDecimal("buying_power", acct.BuyingPower)
}

// ListOpenPositions returns every open position on the account. The
// per-unit unrealized P/L is derived from the position's total P/L and
// quantity.
func (c *Client) ListOpenPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.tradeURL+"/v2/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("alpaca: list positions: %w", err)
	}

	var raw []positionResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("alpaca: decode positions: %w", err)
	}

	positions := make([]domain.BrokerPosition, 0, len(raw))
	for _, pos := range raw {
		qty, err := parseDecimal("qty", pos.Qty)
		if err != nil {
			return nil, err
		}
		currentPrice, err := parseDecimal("current_price", pos.CurrentPrice)
		if err != nil {
			return nil, err
		}
		marketValue, err := parseDecimal("market_value", pos.MarketValue)
		if err != nil {
			return nil, err
		}
		totalPnL, err := parseDecimal("unrealized_pl", pos.UnrealizedPL)
		if err != nil {
			return nil, err
		}

		var unitPnL float64
		if qty != 0 {
			unitPnL = totalPnL / qty
		}

		positions = append(positions, domain.BrokerPosition{
			Symbol:        pos.Symbol,
			Quantity:      qty,
			CurrentPrice:  currentPrice,
			MarketValue:   marketValue,
			UnrealizedPnL: unitPnL,
			AssetClass:    domain.AssetClass(pos.AssetClass),
		})
	}
	return positions, nil
}

// SubmitOrder places an order. A brokerage-declined order comes back with
// status "rejected" in the result, not as an error.
func (c *Client) SubmitOrder(ctx context.Context, ticket domain.OrderTicket) (domain.OrderResult, error) {
	payload, err := json.Marshal(orderRequest{
		Symbol:        ticket.Symbol,
		Qty:           strconv.FormatFloat(ticket.Quantity, 'f', -1, 64),
		Side:          string(ticket.Side),
		Type:          string(ticket.Kind),
		TimeInForce:   string(ticket.TimeInForce),
		ClientOrderID: ticket.ClientOrderID,
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: marshal order: %w", err)
	}

	body, err := c.doRequest(ctx, http.MethodPost, c.tradeURL+"/v2/orders", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: submit order %s %s: %w", ticket.Side, ticket.Symbol, err)
	}

	var order orderResponse
	if err := json.Unmarshal(body, &order); err != nil {
		return domain.OrderResult{}, fmt.Errorf("alpaca: decode order: %w", err)
	}

	result := domain.OrderResult{
		OrderID: order.ID,
		Status:  order.Status,
	}
	if result.Rejected() {
		result.RejectReason = "order rejected by brokerage"
	}
	if order.FilledQty != "" {
		if result.FilledQty, err = parseDecimal("filled_qty", order.FilledQty); err != nil {
			return domain.OrderResult{}, err
		}
	}
	if order.FilledAvgPrice != nil {
		if result.FilledPrice, err = parseDecimal("filled_avg_price", *order.FilledAvgPrice); err != nil {
			return domain.OrderResult{}, err
		}
	}
	if order.SubmittedAt != nil {
		result.SubmittedAt = *order.SubmittedAt
	}
	return result, nil
}

// Asset returns classification metadata for a symbol.
func (c *Client) Asset(ctx context.Context, symbol string) (domain.AssetInfo, error) {
	path := c.tradeURL + "/v2/assets/" + url.PathEscape(symbol)
	body, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.AssetInfo{}, fmt.Errorf("alpaca: get asset %s: %w", symbol, err)
	}

	var asset assetResponse
	if err := json.Unmarshal(body, &asset); err != nil {
		return domain.AssetInfo{}, fmt.Errorf("alpaca: decode asset: %w", err)
	}
	return domain.AssetInfo{
		Symbol:       asset.Symbol,
		Class:        domain.AssetClass(asset.Class),
		Fractionable: asset.Fractionable,
	}, nil
}

// doRequest executes an authenticated request against either API root and
// returns the response body. Non-2xx statuses are converted to errors
// carrying the API's message.
func (c *Client) doRequest(ctx context.Context, method, rawURL string, payload []byte) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Compile-time interface checks.
var (
	_ domain.BrokerGateway = (*Client)(nil)
	_ domain.BarSource     = (*Client)(nil)
	_ domain.QuoteSource   = (*Client)(nil)
)
