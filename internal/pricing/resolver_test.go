package pricing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/quantara/tradewatch/internal/domain"
)

type fakeBars struct {
	price float64
	err   error
}

func (f fakeBars) LatestBarClose(ctx context.Context, symbol string) (float64, error) {
	return f.price, f.err
}

type fakeQuotes struct {
	ask float64
	err error
}

func (f fakeQuotes) LatestQuoteAsk(ctx context.Context, symbol string) (float64, error) {
	return f.ask, f.err
}

type fakeBroker struct {
	positions []domain.BrokerPosition
	err       error
}

func (f fakeBroker) ListOpenPositions(ctx context.Context) ([]domain.BrokerPosition, error) {
	return f.positions, f.err
}

func (f fakeBroker) BuyingPower(ctx context.Context) (float64, error) {
	return 0, errors.New("not implemented")
}

func (f fakeBroker) SubmitOrder(ctx context.Context, ticket domain.OrderTicket) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}

func (f fakeBroker) Asset(ctx context.Context, symbol string) (domain.AssetInfo, error) {
	return domain.AssetInfo{}, errors.New("not implemented")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCurrentPricePrimary(t *testing.T) {
	r := NewResolver(fakeBars{price: 101.5}, fakeQuotes{err: errors.New("unused")}, testLogger())

	price, err := r.CurrentPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if price != 101.5 {
		t.Errorf("price = %v, want 101.5", price)
	}
}

func TestCurrentPriceQuoteFallback(t *testing.T) {
	r := NewResolver(
		fakeBars{err: errors.New("no bars")},
		fakeQuotes{ask: 30250.5},
		testLogger(),
	)

	price, err := r.CurrentPrice(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("CurrentPrice returned error: %v", err)
	}
	if price != 30250.5 {
		t.Errorf("price = %v, want 30250.5", price)
	}
}

func TestCurrentPriceBothSourcesFail(t *testing.T) {
	r := NewResolver(
		fakeBars{err: errors.New("no bars")},
		fakeQuotes{err: errors.New("no quote")},
		testLogger(),
	)

	_, err := r.CurrentPrice(context.Background(), "UNKNOWN")
	if !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}

func TestEntryPriceFromPosition(t *testing.T) {
	broker := fakeBroker{positions: []domain.BrokerPosition{
		{Symbol: "AAPL", CurrentPrice: 155, UnrealizedPnL: 5},
	}}
	e := NewEntryPricer(broker, NewResolver(fakeBars{price: 999}, fakeQuotes{}, testLogger()), testLogger())

	entry, err := e.EntryPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("EntryPrice returned error: %v", err)
	}
	if entry != 150 {
		t.Errorf("entry = %v, want 150 (current minus per-unit pnl)", entry)
	}
}

func TestEntryPriceMatchesNormalizedSymbol(t *testing.T) {
	broker := fakeBroker{positions: []domain.BrokerPosition{
		{Symbol: "BTCUSD", CurrentPrice: 30100, UnrealizedPnL: 100},
	}}
	e := NewEntryPricer(broker, NewResolver(fakeBars{price: 999}, fakeQuotes{}, testLogger()), testLogger())

	entry, err := e.EntryPrice(context.Background(), "BTC/USD")
	if err != nil {
		t.Fatalf("EntryPrice returned error: %v", err)
	}
	if entry != 30000 {
		t.Errorf("entry = %v, want 30000", entry)
	}
}

func TestEntryPriceNoPositionUsesLivePrice(t *testing.T) {
	e := NewEntryPricer(fakeBroker{}, NewResolver(fakeBars{price: 42.123456}, fakeQuotes{}, testLogger()), testLogger())

	entry, err := e.EntryPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("EntryPrice returned error: %v", err)
	}
	if entry != 42.12346 {
		t.Errorf("entry = %v, want live price rounded to 42.12346", entry)
	}
}

func TestEntryPriceSnapshotFailureDegrades(t *testing.T) {
	e := NewEntryPricer(
		fakeBroker{err: errors.New("api down")},
		NewResolver(fakeBars{price: 42}, fakeQuotes{}, testLogger()),
		testLogger(),
	)

	entry, err := e.EntryPrice(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("EntryPrice returned error: %v", err)
	}
	if entry != 42 {
		t.Errorf("entry = %v, want 42", entry)
	}
}

func TestEntryPriceAllSourcesFail(t *testing.T) {
	e := NewEntryPricer(
		fakeBroker{err: errors.New("api down")},
		NewResolver(fakeBars{err: errors.New("no bars")}, fakeQuotes{err: errors.New("no quote")}, testLogger()),
		testLogger(),
	)

	if _, err := e.EntryPrice(context.Background(), "AAPL"); !errors.Is(err, domain.ErrPriceUnavailable) {
		t.Fatalf("err = %v, want ErrPriceUnavailable", err)
	}
}
