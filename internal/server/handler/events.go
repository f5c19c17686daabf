package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quantara/tradewatch/internal/domain"
)

// EventsHandler serves the trade event log for a symbol.
type EventsHandler struct {
	events domain.TradeEventStore
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler. events may be nil when the
// record store is disabled.
func NewEventsHandler(events domain.TradeEventStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		events: events,
		logger: logHandler(logger, "events"),
	}
}

type eventView struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"`
	Side       string  `json:"side,omitempty"`
	Quantity   float64 `json:"quantity,omitempty"`
	Price      float64 `json:"price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Detail     string  `json:"detail,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

// ListEvents returns the most recent trade events for a symbol.
// GET /api/events/{symbol}
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event store is disabled")
		return
	}

	symbol := r.PathValue("symbol")
	limit := parseLimit(r, 50, 500)

	events, err := h.events.ListBySymbol(r.Context(), symbol, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "could not load events")
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, eventView{
			ID:         e.ID,
			Symbol:     e.Symbol,
			Type:       string(e.Type),
			Side:       string(e.Side),
			Quantity:   e.Quantity,
			Price:      e.Price,
			StopLoss:   e.StopLoss,
			TakeProfit: e.TakeProfit,
			Detail:     e.Detail,
			CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": views,
		"count":  len(views),
	})
}
