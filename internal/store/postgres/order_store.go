package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL. Rows are keyed
// by the client-side handle so every lifecycle step overwrites one row.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new OrderStore backed by the given connection pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Upsert writes the current state of o.
func (s *OrderStore) Upsert(ctx context.Context, o domain.Order) error {
	var price *string
	if o.Price.Valid {
		v := o.Price.Decimal.String()
		price = &v
	}

	const query = `
		INSERT INTO orders (
			handle, client_id, order_id, symbol, side, order_type,
			price, quantity, filled_quantity, remaining_quantity,
			status, reason, submitted_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8, $9, $10,
			$11, $12, $13, $14
		)
		ON CONFLICT (handle) DO UPDATE SET
			order_id           = EXCLUDED.order_id,
			quantity           = EXCLUDED.quantity,
			filled_quantity    = EXCLUDED.filled_quantity,
			remaining_quantity = EXCLUDED.remaining_quantity,
			status             = EXCLUDED.status,
			reason             = EXCLUDED.reason,
			updated_at         = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		o.Handle, o.ClientID, o.ID, o.Symbol, string(o.Side), string(o.Kind),
		price, o.RequestedQuantity, o.FilledQuantity, o.RemainingQuantity,
		string(o.Status), o.Reason, o.SubmittedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", o.Handle, err)
	}
	return nil
}

const orderSelectCols = `handle, client_id, order_id, symbol, side, order_type,
	price::text, quantity, filled_quantity, remaining_quantity,
	status, reason, submitted_at, updated_at`

func scanOrderFromRow(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, kind, status string
	var price *string

	err := scanner.Scan(
		&o.Handle, &o.ClientID, &o.ID, &o.Symbol, &side, &kind,
		&price, &o.RequestedQuantity, &o.FilledQuantity, &o.RemainingQuantity,
		&status, &o.Reason, &o.SubmittedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Kind = domain.OrderKind(kind)
	o.Status = domain.OrderStatus(status)
	if price != nil {
		d, err := decimal.NewFromString(*price)
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s price %q: %w", o.Handle, *price, err)
		}
		o.Price = decimal.NewNullDecimal(d)
	}
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrderFromRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListRecent returns up to limit journaled orders, newest submission first.
func (s *OrderStore) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders ORDER BY submitted_at DESC, client_id DESC LIMIT $1`,
		clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan recent orders: %w", err)
	}
	return orders, nil
}

var _ domain.OrderStore = (*OrderStore)(nil)
