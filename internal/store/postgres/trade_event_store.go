package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantara/tradewatch/internal/domain"
)

// TradeEventStore implements domain.TradeEventStore using PostgreSQL.
type TradeEventStore struct {
	pool *pgxpool.Pool
}

// NewTradeEventStore creates a TradeEventStore backed by the given pool.
func NewTradeEventStore(pool *pgxpool.Pool) *TradeEventStore {
	return &TradeEventStore{pool: pool}
}

const tradeEventCols = `id, symbol, event_type, side, quantity, price,
	stop_loss, take_profit, detail, created_at`

func scanTradeEventRows(rows pgx.Rows) ([]domain.TradeEvent, error) {
	var events []domain.TradeEvent
	for rows.Next() {
		var e domain.TradeEvent
		if err := rows.Scan(
			&e.ID, &e.Symbol, &e.Type, &e.Side, &e.Quantity, &e.Price,
			&e.StopLoss, &e.TakeProfit, &e.Detail, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Insert appends one event to the trade log. Re-inserting an event with an
// existing ID is a no-op.
func (s *TradeEventStore) Insert(ctx context.Context, evt domain.TradeEvent) error {
	const query = `
		INSERT INTO trade_events (
			id, symbol, event_type, side, quantity, price,
			stop_loss, take_profit, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		evt.ID, domain.NormalizeSymbol(evt.Symbol), evt.Type, evt.Side,
		evt.Quantity, evt.Price, evt.StopLoss, evt.TakeProfit,
		evt.Detail, evt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade event %s: %w", evt.Symbol, err)
	}
	return nil
}

// ListBySymbol returns the most recent events for a symbol, newest first.
// A limit of zero or less returns all events for the symbol.
func (s *TradeEventStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventCols + ` FROM trade_events
		WHERE symbol = $1 ORDER BY created_at DESC`
	args := []any{domain.NormalizeSymbol(symbol)}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events for %s: %w", symbol, err)
	}
	defer rows.Close()

	events, err := scanTradeEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events for %s: %w", symbol, err)
	}
	return events, nil
}

// ListBefore returns all events older than the cutoff, oldest first. The
// archiver uses this to select rows bound for cold storage.
func (s *TradeEventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeEvent, error) {
	query := `SELECT ` + tradeEventCols + ` FROM trade_events
		WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	events, err := scanTradeEventRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade events before cutoff: %w", err)
	}
	return events, nil
}

// DeleteBefore removes events older than the cutoff and returns the number
// of rows deleted.
func (s *TradeEventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM trade_events WHERE created_at < $1", before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trade events before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeEventStore = (*TradeEventStore)(nil)
