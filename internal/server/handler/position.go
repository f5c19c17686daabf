package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/quantara/tradewatch/internal/domain"
)

// PositionLister lists the open positions held at the brokerage.
type PositionLister interface {
	ListOpenPositions(ctx context.Context) ([]domain.BrokerPosition, error)
}

// EntryLookup reports the tracked entry price for a symbol.
type EntryLookup interface {
	Entry(symbol string) (float64, bool)
	Contains(symbol string) bool
}

// PositionHandler serves the open-position view, merging live brokerage
// positions with the agent's tracked entry prices.
type PositionHandler struct {
	broker PositionLister
	ledger EntryLookup
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(broker PositionLister, ledger EntryLookup, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		broker: broker,
		ledger: ledger,
		logger: logHandler(logger, "positions"),
	}
}

type positionView struct {
	Symbol        string  `json:"symbol"`
	Quantity      float64 `json:"quantity"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	AssetClass    string  `json:"asset_class"`
	EntryPrice    float64 `json:"entry_price,omitempty"`
	Tracked       bool    `json:"tracked"`
}

// ListPositions returns the brokerage's open positions annotated with the
// entry price the agent is tracking for each.
// GET /api/positions
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.broker.ListOpenPositions(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list positions failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "brokerage unavailable")
		return
	}

	views := make([]positionView, 0, len(positions))
	for _, p := range positions {
		v := positionView{
			Symbol:        p.Symbol,
			Quantity:      p.Quantity,
			CurrentPrice:  p.CurrentPrice,
			MarketValue:   p.MarketValue,
			UnrealizedPnL: p.UnrealizedPnL,
			AssetClass:    string(p.AssetClass),
		}
		if h.ledger != nil {
			if entry, ok := h.ledger.Entry(p.Symbol); ok {
				v.EntryPrice = entry
				v.Tracked = true
			}
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"positions": views,
		"count":     len(views),
	})
}
