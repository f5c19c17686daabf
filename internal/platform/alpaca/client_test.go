package alpaca

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quantara/tradewatch/internal/domain"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(ClientConfig{
		TradeURL:  srv.URL,
		DataURL:   srv.URL,
		APIKey:    "test-key",
		APISecret: "test-secret",
	})
}

func checkAuthHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("APCA-API-KEY-ID"); got != "test-key" {
		t.Errorf("APCA-API-KEY-ID = %q, want test-key", got)
	}
	if got := r.Header.Get("APCA-API-SECRET-KEY"); got != "test-secret" {
		t.Errorf("APCA-API-SECRET-KEY = %q, want test-secret", got)
	}
}

func TestBuyingPower(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/account" {
			t.Errorf("path = %q, want /v2/account", r.URL.Path)
		}
		checkAuthHeaders(t, r)
		w.Write([]byte(`{"account_number":"PA123","status":"ACTIVE","buying_power":"10000.5","cash":"9000","currency":"USD"}`))
	}))

	bp, err := c.BuyingPower(context.Background())
	if err != nil {
		t.Fatalf("BuyingPower returned error: %v", err)
	}
	if bp != 10000.5 {
		t.Errorf("buying power = %v, want 10000.5", bp)
	}
}

func TestListOpenPositionsDerivesUnitPnL(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/positions" {
			t.Errorf("path = %q, want /v2/positions", r.URL.Path)
		}
		w.Write([]byte(`[
			{"symbol":"AAPL","qty":"4","current_price":"155","market_value":"620","unrealized_pl":"20","asset_class":"us_equity"},
			{"symbol":"BTCUSD","qty":"0.005","current_price":"30000","market_value":"150","unrealized_pl":"0","asset_class":"crypto"}
		]`))
	}))

	positions, err := c.ListOpenPositions(context.Background())
	if err != nil {
		t.Fatalf("ListOpenPositions returned error: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("len(positions) = %d, want 2", len(positions))
	}

	aapl := positions[0]
	if aapl.Symbol != "AAPL" || aapl.Quantity != 4 || aapl.CurrentPrice != 155 || aapl.MarketValue != 620 {
		t.Errorf("unexpected AAPL position: %+v", aapl)
	}
	// Total pnl 20 over 4 units.
	if aapl.UnrealizedPnL != 5 {
		t.Errorf("AAPL per-unit pnl = %v, want 5", aapl.UnrealizedPnL)
	}
	if aapl.AssetClass != domain.AssetClassEquity {
		t.Errorf("AAPL asset class = %q, want %q", aapl.AssetClass, domain.AssetClassEquity)
	}
	if positions[1].AssetClass != domain.AssetClassCrypto {
		t.Errorf("BTCUSD asset class = %q, want %q", positions[1].AssetClass, domain.AssetClassCrypto)
	}
}

func TestSubmitOrder(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/orders" {
			t.Errorf("request = %s %s, want POST /v2/orders", r.Method, r.URL.Path)
		}
		checkAuthHeaders(t, r)

		var req orderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode order request: %v", err)
		}
		if req.Symbol != "BTC/USD" || req.Qty != "0.00667" || req.Side != "buy" {
			t.Errorf("unexpected order request: %+v", req)
		}
		if req.Type != "market" || req.TimeInForce != "gtc" {
			t.Errorf("order type/tif = %s/%s, want market/gtc", req.Type, req.TimeInForce)
		}
		if req.ClientOrderID != "client-1" {
			t.Errorf("client order id = %q, want client-1", req.ClientOrderID)
		}

		w.Write([]byte(`{"id":"ord-1","client_order_id":"client-1","status":"filled","symbol":"BTC/USD","qty":"0.00667","filled_qty":"0.00667","filled_avg_price":"30000.5","submitted_at":"2024-06-01T14:30:00Z"}`))
	}))

	result, err := c.SubmitOrder(context.Background(), domain.OrderTicket{
		ClientOrderID: "client-1",
		Symbol:        "BTC/USD",
		Quantity:      0.00667,
		Side:          domain.OrderSideBuy,
		Kind:          domain.OrderKindMarket,
		TimeInForce:   domain.TimeInForceGTC,
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if result.OrderID != "ord-1" || !result.Filled() {
		t.Errorf("result = %+v, want filled ord-1", result)
	}
	if result.FilledQty != 0.00667 || result.FilledPrice != 30000.5 {
		t.Errorf("fill = %v @ %v, want 0.00667 @ 30000.5", result.FilledQty, result.FilledPrice)
	}
	if result.SubmittedAt.IsZero() {
		t.Error("submitted_at not parsed")
	}
}

func TestSubmitOrderRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"ord-2","status":"rejected","symbol":"AAPL","qty":"4"}`))
	}))

	result, err := c.SubmitOrder(context.Background(), domain.OrderTicket{
		Symbol: "AAPL", Quantity: 4, Side: domain.OrderSideSell,
		Kind: domain.OrderKindMarket, TimeInForce: domain.TimeInForceGTC,
	})
	if err != nil {
		t.Fatalf("SubmitOrder returned error: %v", err)
	}
	if !result.Rejected() {
		t.Errorf("result = %+v, want rejected", result)
	}
	if result.RejectReason == "" {
		t.Error("rejected result has empty reject reason")
	}
}

func TestAsset(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/assets/AAPL" {
			t.Errorf("path = %q, want /v2/assets/AAPL", r.URL.Path)
		}
		w.Write([]byte(`{"id":"a1","symbol":"AAPL","class":"us_equity","tradable":true,"fractionable":false}`))
	}))

	asset, err := c.Asset(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Asset returned error: %v", err)
	}
	if asset.Symbol != "AAPL" || asset.Class != domain.AssetClassEquity || asset.Fractionable {
		t.Errorf("asset = %+v, want non-fractionable AAPL equity", asset)
	}
}

func TestLatestBarClose(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/stocks/AAPL/bars" {
			t.Errorf("path = %q, want /v2/stocks/AAPL/bars", r.URL.Path)
		}
		if got := r.URL.Query().Get("timeframe"); got != "1Min" {
			t.Errorf("timeframe = %q, want 1Min", got)
		}
		w.Write([]byte(`{"bars":[{"c":150.25,"o":150,"h":151,"l":149.5,"v":1200,"t":"2024-06-01T14:30:00Z"}],"symbol":"AAPL"}`))
	}))

	price, err := c.LatestBarClose(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("LatestBarClose returned error: %v", err)
	}
	if price != 150.25 {
		t.Errorf("price = %v, want 150.25", price)
	}
}

func TestLatestBarCloseNoBars(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bars":[],"symbol":"AAPL"}`))
	}))

	if _, err := c.LatestBarClose(context.Background(), "AAPL"); err == nil {
		t.Fatal("expected an error for an empty bars response")
	}
}

func TestLatestQuoteAsk(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta3/crypto/us/latest/quotes" {
			t.Errorf("path = %q, want /v1beta3/crypto/us/latest/quotes", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbols"); got != "BTC/USD" {
			t.Errorf("symbols = %q, want BTC/USD", got)
		}
		w.Write([]byte(`{"quotes":{"BTC/USD":{"ap":30250.5,"as":0.4,"bp":30240,"bs":0.2,"t":"2024-06-01T14:30:00Z"}}}`))
	}))

	price, err := c.LatestQuoteAsk(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("LatestQuoteAsk returned error: %v", err)
	}
	if price != 30250.5 {
		t.Errorf("price = %v, want 30250.5", price)
	}
}

func TestLatestQuoteAskSymbolMissing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"quotes":{}}`))
	}))

	if _, err := c.LatestQuoteAsk(context.Background(), "BTC/USD"); err == nil {
		t.Fatal("expected an error when the symbol is absent from the response")
	}
}

func TestAPIErrorMessageSurfaced(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"code":40310000,"message":"account is not authorized to trade"}`))
	}))

	_, err := c.BuyingPower(context.Background())
	if err == nil {
		t.Fatal("expected an error for a 403 response")
	}
	if !strings.Contains(err.Error(), "account is not authorized to trade") {
		t.Errorf("error = %v, want the API message surfaced", err)
	}
}
