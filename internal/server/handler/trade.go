package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantara/tradewatch/internal/domain"
)

// TradeInitiator is the decision surface the trade endpoint drives. The
// trader.Coordinator satisfies it.
type TradeInitiator interface {
	InitiateTrade(ctx context.Context, sig domain.TradeSignal) domain.Outcome
}

// TradeHandler accepts trade signals over HTTP and forwards them to the
// coordinator.
type TradeHandler struct {
	coordinator TradeInitiator
	logger      *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(coordinator TradeInitiator, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		coordinator: coordinator,
		logger:      logHandler(logger, "trade"),
	}
}

type tradeRequest struct {
	Symbol    string `json:"symbol"`
	Type      string `json:"type"`
	Terminate int    `json:"terminate"`
}

// HandleTrade decodes a trade signal and runs it through the coordinator.
// The outcome's status code doubles as the HTTP status of the response.
// POST /api/trade
func (h *TradeHandler) HandleTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Symbol) == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	side, err := domain.ParseOrderSide(req.Type)
	if err != nil {
		outcome := domain.Outcome{
			Message: err.Error(),
			Code:    domain.StatusInvalidOrderSide,
		}
		writeJSON(w, int(outcome.Code), outcome)
		return
	}

	sig := domain.TradeSignal{
		Symbol:    req.Symbol,
		Side:      side,
		Terminate: req.Terminate != 0,
	}

	h.logger.InfoContext(r.Context(), "signal received",
		slog.String("symbol", sig.Symbol),
		slog.String("side", string(sig.Side)),
		slog.Bool("terminate", sig.Terminate),
	)

	outcome := h.coordinator.InitiateTrade(r.Context(), sig)
	writeJSON(w, int(outcome.Code), outcome)
}
