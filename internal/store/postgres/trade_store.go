package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Prices travel as text so NUMERIC keeps the engine's exact decimal value.
const tradeSelectCols = `trade_id, buy_order_id, sell_order_id, symbol,
	price::text, quantity, total_value::text, executed_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var price, total string
		if err := rows.Scan(
			&t.ID, &t.BuyOrderID, &t.SellOrderID, &t.Symbol,
			&price, &t.Quantity, &total, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		var err error
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %d price %q: %w", t.ID, price, err)
		}
		if t.TotalValue, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("trade %d total value %q: %w", t.ID, total, err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch journals trades in one pgx batch. Trades already journaled
// are skipped.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	const query = `
		INSERT INTO trades (
			trade_id, buy_order_id, sell_order_id, symbol,
			price, quantity, total_value, executed_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6, $7::numeric, $8
		) ON CONFLICT (trade_id) DO NOTHING`

	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.BuyOrderID, t.SellOrderID, t.Symbol,
			t.Price.String(), t.Quantity, t.TotalValue.String(), t.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d (trade %d): %w", i, trades[i].ID, err)
		}
	}
	return nil
}

// ListRecent returns up to limit journaled trades, newest first.
func (s *TradeStore) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades ORDER BY trade_id DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent trades: %w", err)
	}
	return trades, nil
}

var _ domain.TradeStore = (*TradeStore)(nil)
