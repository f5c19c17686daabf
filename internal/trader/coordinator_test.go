package trader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
	"github.com/quantara/tradewatch/internal/ledger"
	"github.com/quantara/tradewatch/internal/risk"
)

// stubBroker is an in-memory BrokerGateway. The submit hook, when set, runs
// with the lock held and may mutate the broker's fields directly, which lets
// tests simulate fills by clearing the position list.
type stubBroker struct {
	mu          sync.Mutex
	positions   []domain.BrokerPosition
	listErr     error
	buyingPower float64
	asset       domain.AssetInfo
	assetErr    error
	submit      func(domain.OrderTicket) (domain.OrderResult, error)
	orders      []domain.OrderTicket
}

func (b *stubBroker) ListOpenPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}
	out := make([]domain.BrokerPosition, len(b.positions))
	copy(out, b.positions)
	return out, nil
}

func (b *stubBroker) BuyingPower(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buyingPower, nil
}

func (b *stubBroker) SubmitOrder(ctx context.Context, ticket domain.OrderTicket) (domain.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = append(b.orders, ticket)
	if b.submit != nil {
		return b.submit(ticket)
	}
	return domain.OrderResult{OrderID: "ord-1", Status: "accepted", SubmittedAt: time.Now()}, nil
}

func (b *stubBroker) Asset(ctx context.Context, symbol string) (domain.AssetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.assetErr != nil {
		return domain.AssetInfo{}, b.assetErr
	}
	return b.asset, nil
}

func (b *stubBroker) orderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

func (b *stubBroker) orderAt(i int) domain.OrderTicket {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.orders[i]
}

// stubPrices replays a price sequence, one value per call, holding the last
// value once exhausted.
type stubPrices struct {
	mu       sync.Mutex
	sequence []float64
	idx      int
	err      error
}

func (p *stubPrices) CurrentPrice(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	i := p.idx
	if i >= len(p.sequence) {
		i = len(p.sequence) - 1
	} else {
		p.idx++
	}
	return p.sequence[i], nil
}

type stubEntries struct {
	value float64
	err   error
}

func (e stubEntries) EntryPrice(ctx context.Context, symbol string) (float64, error) {
	return e.value, e.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func defaultLimits() risk.Limits {
	return risk.Limits{
		MaxTotalPortfolioFraction: 0.20,
		MaxSingleTradeFraction:    0.02,
		ProfitLossRatio:           1.0,
		StopLossFraction:          0.01,
		MinExitMarginEquity:       25,
		MinExitMarginCrypto:       100,
	}
}

// newTestCoordinator builds a coordinator over the stubs with cleanup that
// cancels the lifetime context and drains every spawned task.
func newTestCoordinator(t *testing.T, cfg Config, broker *stubBroker, prices domain.PriceSource, entries EntryPriceSource) *Coordinator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCoordinator(cfg, Deps{
		Broker:   broker,
		Prices:   prices,
		Entries:  entries,
		Ledger:   ledger.New(),
		Logger:   testLogger(),
		Lifetime: ctx,
	})
	t.Cleanup(func() {
		cancel()
		c.Wait()
	})
	return c
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestInitiateTradeInvalidSide(t *testing.T) {
	broker := &stubBroker{}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{err: errors.New("unused")})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: "hold"})
	if outcome.Code != domain.StatusInvalidOrderSide {
		t.Fatalf("code = %d, want %d", outcome.Code, domain.StatusInvalidOrderSide)
	}
	if broker.orderCount() != 0 {
		t.Errorf("orders submitted = %d, want 0", broker.orderCount())
	}
}

func TestBuyOpensPositionAndWatcher(t *testing.T) {
	broker := &stubBroker{
		buyingPower: 10000,
		asset:       domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity, Fractionable: false},
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{err: errors.New("no position yet")})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
	if outcome.Code != domain.StatusOK {
		t.Fatalf("code = %d (%s), want %d", outcome.Code, outcome.Message, domain.StatusOK)
	}
	if !strings.Contains(outcome.Message, "take profit at 50.5") || !strings.Contains(outcome.Message, "stop loss at 49.5") {
		t.Errorf("message = %q, want thresholds 50.5 and 49.5", outcome.Message)
	}

	if broker.orderCount() != 1 {
		t.Fatalf("orders submitted = %d, want 1", broker.orderCount())
	}
	order := broker.orderAt(0)
	if order.Side != domain.OrderSideBuy || order.Quantity != 4 {
		t.Errorf("order = %v %v, want buy 4", order.Side, order.Quantity)
	}
	if order.Kind != domain.OrderKindMarket || order.TimeInForce != domain.TimeInForceGTC {
		t.Errorf("order kind/tif = %v/%v, want market/gtc", order.Kind, order.TimeInForce)
	}
	if order.ClientOrderID == "" {
		t.Error("order has empty client order id")
	}

	entry, ok := c.ledger.Entry("AAPL")
	if !ok || entry != 50 {
		t.Errorf("ledger entry = %v (tracked %v), want 50", entry, ok)
	}
	if got := c.ActiveWatchers(); got != 1 {
		t.Errorf("active watchers = %d, want 1", got)
	}
}

func TestBuyWhileTrackedIsRejected(t *testing.T) {
	broker := &stubBroker{buyingPower: 10000}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{value: 50})
	c.ledger.Set("AAPL", 48)

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
	if outcome.Code != domain.StatusAlreadyTraded {
		t.Fatalf("code = %d, want %d", outcome.Code, domain.StatusAlreadyTraded)
	}
	if broker.orderCount() != 0 {
		t.Errorf("orders submitted = %d, want 0", broker.orderCount())
	}
}

func TestConcurrentBuySignalsSameSymbol(t *testing.T) {
	broker := &stubBroker{
		buyingPower: 10000,
		asset:       domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity},
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{err: errors.New("no position yet")})

	outcomes := make([]domain.Outcome, 2)
	var wg sync.WaitGroup
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
		}(i)
	}
	wg.Wait()

	var accepted, duplicate int
	for _, o := range outcomes {
		switch o.Code {
		case domain.StatusOK:
			accepted++
		case domain.StatusAlreadyTraded:
			duplicate++
		default:
			t.Errorf("unexpected outcome %d: %s", o.Code, o.Message)
		}
	}
	if accepted != 1 || duplicate != 1 {
		t.Errorf("accepted = %d, duplicate = %d, want 1 and 1", accepted, duplicate)
	}
	if broker.orderCount() != 1 {
		t.Errorf("orders submitted = %d, want 1", broker.orderCount())
	}
}

func TestBuyPortfolioLimit(t *testing.T) {
	broker := &stubBroker{
		buyingPower: 10000,
		positions: []domain.BrokerPosition{
			{Symbol: "MSFT", Quantity: 5, MarketValue: 2000, AssetClass: domain.AssetClassEquity},
		},
		asset: domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity},
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{err: errors.New("unused")})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
	if outcome.Code != domain.StatusPortfolioLimit {
		t.Fatalf("code = %d (%s), want %d", outcome.Code, outcome.Message, domain.StatusPortfolioLimit)
	}
	if broker.orderCount() != 0 {
		t.Errorf("orders submitted = %d, want 0", broker.orderCount())
	}
}

func TestBuyPriceUnavailable(t *testing.T) {
	broker := &stubBroker{buyingPower: 10000}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{err: domain.ErrPriceUnavailable}, stubEntries{err: errors.New("unused")})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
	if outcome.Code != domain.StatusInternalError {
		t.Fatalf("code = %d, want %d", outcome.Code, domain.StatusInternalError)
	}
}

func TestBuyOrderRejected(t *testing.T) {
	broker := &stubBroker{
		buyingPower: 10000,
		asset:       domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity},
	}
	broker.submit = func(domain.OrderTicket) (domain.OrderResult, error) {
		return domain.OrderResult{Status: "rejected", RejectReason: "insufficient buying power"}, nil
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{err: errors.New("unused")})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideBuy})
	if outcome.Code != domain.StatusOrderRejected {
		t.Fatalf("code = %d, want %d", outcome.Code, domain.StatusOrderRejected)
	}
	if c.ledger.Contains("AAPL") {
		t.Error("rejected buy must not register a ledger entry")
	}
	if got := c.ActiveWatchers(); got != 0 {
		t.Errorf("active watchers = %d, want 0", got)
	}
}

func TestSellNotTracked(t *testing.T) {
	broker := &stubBroker{}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{50}}, stubEntries{value: 50})

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideSell})
	if outcome.Code != domain.StatusNotTraded {
		t.Fatalf("code = %d, want %d", outcome.Code, domain.StatusNotTraded)
	}
}

func TestSellBelowMarginNotClosed(t *testing.T) {
	broker := &stubBroker{
		positions: []domain.BrokerPosition{
			{Symbol: "AAPL", Quantity: 4, CurrentPrice: 110, MarketValue: 440, AssetClass: domain.AssetClassEquity},
		},
		asset: domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity},
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: time.Hour},
		broker, &stubPrices{sequence: []float64{110}}, stubEntries{value: 100})
	c.ledger.Set("AAPL", 100)

	// Entry 100 plus the equity margin 25 means 110 does not clear 125.
	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideSell})
	if outcome.Code != domain.StatusOK {
		t.Fatalf("code = %d (%s), want %d", outcome.Code, outcome.Message, domain.StatusOK)
	}
	if !strings.Contains(outcome.Message, "not closed") {
		t.Errorf("message = %q, want a not-closed outcome", outcome.Message)
	}
	if broker.orderCount() != 0 {
		t.Errorf("orders submitted = %d, want 0", broker.orderCount())
	}
	if !c.ledger.Contains("AAPL") {
		t.Error("position must stay tracked after a held sell signal")
	}
}

func TestSellTerminateClosesPosition(t *testing.T) {
	broker := &stubBroker{
		positions: []domain.BrokerPosition{
			{Symbol: "AAPL", Quantity: 4, CurrentPrice: 90, MarketValue: 360, AssetClass: domain.AssetClassEquity},
		},
		asset: domain.AssetInfo{Symbol: "AAPL", Class: domain.AssetClassEquity},
	}
	broker.submit = func(ticket domain.OrderTicket) (domain.OrderResult, error) {
		// Simulate an immediate fill: the position disappears from the
		// next snapshot.
		broker.positions = nil
		return domain.OrderResult{OrderID: "ord-1", Status: "accepted"}, nil
	}
	c := newTestCoordinator(t, Config{Limits: defaultLimits(), PollInterval: 5 * time.Millisecond},
		broker, &stubPrices{sequence: []float64{90}}, stubEntries{value: 100})
	c.ledger.Set("AAPL", 100)

	outcome := c.InitiateTrade(context.Background(), domain.TradeSignal{Symbol: "AAPL", Side: domain.OrderSideSell, Terminate: true})
	if outcome.Code != domain.StatusOK {
		t.Fatalf("code = %d (%s), want %d", outcome.Code, outcome.Message, domain.StatusOK)
	}
	if !strings.Contains(outcome.Message, "closing") {
		t.Errorf("message = %q, want a closing outcome", outcome.Message)
	}

	waitFor(t, 2*time.Second, "close task to sell and untrack", func() bool {
		return broker.orderCount() == 1 && !c.ledger.Contains("AAPL")
	})
	order := broker.orderAt(0)
	if order.Side != domain.OrderSideSell || order.Quantity != 4 {
		t.Errorf("order = %v %v, want sell 4", order.Side, order.Quantity)
	}
}
