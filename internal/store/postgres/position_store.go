package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantara/tradewatch/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. One row per
// symbol; reopening a symbol overwrites its previous closed row.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `symbol, quantity, entry_price, stop_loss, take_profit,
	asset_class, status, opened_at, closed_at, exit_price`

func scanPositionRows(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.Symbol, &p.Quantity, &p.EntryPrice, &p.StopLoss, &p.TakeProfit,
			&p.AssetClass, &p.Status, &p.OpenedAt, &p.ClosedAt, &p.ExitPrice,
		); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Upsert writes the position row for its symbol, replacing any previous row.
func (s *PositionStore) Upsert(ctx context.Context, pos domain.Position) error {
	const query = `
		INSERT INTO positions (
			symbol, quantity, entry_price, stop_loss, take_profit,
			asset_class, status, opened_at, closed_at, exit_price
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			entry_price = EXCLUDED.entry_price,
			stop_loss = EXCLUDED.stop_loss,
			take_profit = EXCLUDED.take_profit,
			asset_class = EXCLUDED.asset_class,
			status = EXCLUDED.status,
			opened_at = EXCLUDED.opened_at,
			closed_at = EXCLUDED.closed_at,
			exit_price = EXCLUDED.exit_price`

	_, err := s.pool.Exec(ctx, query,
		domain.NormalizeSymbol(pos.Symbol), pos.Quantity, pos.EntryPrice,
		pos.StopLoss, pos.TakeProfit, pos.AssetClass, pos.Status,
		pos.OpenedAt, pos.ClosedAt, pos.ExitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert position %s: %w", pos.Symbol, err)
	}
	return nil
}

// MarkClosed transitions a position row to closed with the given exit price.
// It returns domain.ErrNotFound when no row exists for the symbol.
func (s *PositionStore) MarkClosed(ctx context.Context, symbol string, exitPrice float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions
		SET status = $2, closed_at = NOW(), exit_price = $3
		WHERE symbol = $1`,
		domain.NormalizeSymbol(symbol), domain.PositionStatusClosed, exitPrice,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark position %s closed: %w", symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListOpen returns every position not yet closed, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions
		WHERE status != $1 ORDER BY opened_at ASC`

	rows, err := s.pool.Query(ctx, query, domain.PositionStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListClosedBefore returns closed positions whose close time is older than
// the cutoff. The archiver uses this to select rows bound for cold storage.
func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	query := `SELECT ` + positionCols + ` FROM positions
		WHERE status = $1 AND closed_at < $2 ORDER BY closed_at ASC`

	rows, err := s.pool.Query(ctx, query, domain.PositionStatusClosed, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed positions before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	positions, err := scanPositionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed positions: %w", err)
	}
	return positions, nil
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)
