package alpaca

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// LatestBarClose returns the close of the most recent minute bar for an
// equity symbol. The bars endpoint does not cover every asset class; callers
// fall back to LatestQuoteAsk when it fails.
func (c *Client) LatestBarClose(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("timeframe", "1Min")
	params.Set("limit", "1")

	rawURL := fmt.Sprintf("%s/v2/stocks/%s/bars?%s", c.dataURL, url.PathEscape(symbol), params.Encode())
	body, err := c.doRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest bar %s: %w", symbol, err)
	}

	var resp barsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("alpaca: decode bars: %w", err)
	}
	if len(resp.Bars) == 0 {
		return 0, fmt.Errorf("alpaca: latest bar %s: no bars returned", symbol)
	}
	return resp.Bars[len(resp.Bars)-1].Close, nil
}

// LatestQuoteAsk returns the ask price of the latest quote for a crypto pair
// from the secondary market-data endpoint.
func (c *Client) LatestQuoteAsk(ctx context.Context, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", symbol)

	rawURL := c.dataURL + "/v1beta3/crypto/us/latest/quotes?" + params.Encode()
	body, err := c.doRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("alpaca: latest quote %s: %w", symbol, err)
	}

	var resp cryptoQuotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("alpaca: decode quotes: %w", err)
	}
	quote, ok := resp.Quotes[symbol]
	if !ok {
		return 0, fmt.Errorf("alpaca: latest quote %s: symbol not in response", symbol)
	}
	return quote.AskPrice, nil
}
