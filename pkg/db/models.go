package db

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Order is one journaled order request and its terminal state.
type Order struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instance_id"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Price      float64   `json:"price"`
	Qty        float64   `json:"qty"`
	FilledQty  float64   `json:"filled_qty"`
	Status     string    `json:"status"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error"`
	CreatedAt  time.Time `json:"created_at"`
}

// Leg is one ladder entry. ClosedAt is zero while the leg is open.
type Leg struct {
	ID           int64     `json:"id"`
	Symbol       string    `json:"symbol"`
	Seq          int       `json:"seq"`
	OrderID      string    `json:"order_id"`
	EntryPrice   float64   `json:"entry_price"`
	BaseAmount   float64   `json:"base_amount"`
	QuoteAmount  float64   `json:"quote_amount"`
	OpenedAt     time.Time `json:"opened_at"`
	ClosedAt     time.Time `json:"closed_at"`
	CloseOrderID string    `json:"close_order_id"`
	ClosePrice   float64   `json:"close_price"`
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UnixMilli()
}

// CreateOrder inserts a new order row.
func (d *Database) CreateOrder(ctx context.Context, o Order) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (
			id, instance_id, symbol, side, price, qty, filled_qty, status, attempts, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		o.ID, o.InstanceID, o.Symbol, o.Side, o.Price, o.Qty, o.FilledQty, o.Status, o.Attempts, o.Error, millis(o.CreatedAt),
	)
	return err
}

// ListOrders returns the most recent orders first.
func (d *Database) ListOrders(ctx context.Context, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, instance_id, symbol, side, price, qty, filled_qty, status, attempts, error, created_at
		FROM orders ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		var created int64
		if err := rows.Scan(&o.ID, &o.InstanceID, &o.Symbol, &o.Side, &o.Price, &o.Qty, &o.FilledQty, &o.Status, &o.Attempts, &o.Error, &created); err != nil {
			return nil, err
		}
		o.CreatedAt = time.UnixMilli(created)
		out = append(out, o)
	}
	return out, rows.Err()
}

// OpenLeg records a newly filled ladder leg.
func (d *Database) OpenLeg(ctx context.Context, l Leg) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO ladder_legs (symbol, seq, order_id, entry_price, base_amount, quote_amount, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, l.Symbol, l.Seq, l.OrderID, l.EntryPrice, l.BaseAmount, l.QuoteAmount, millis(l.OpenedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// CloseLegs marks every open leg of symbol as closed by one sell order.
func (d *Database) CloseLegs(ctx context.Context, symbol, orderID string, price float64, at time.Time) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		UPDATE ladder_legs SET closed_at = ?, close_order_id = ?, close_price = ?
		WHERE symbol = ? AND closed_at IS NULL
	`, millis(at), orderID, price, symbol)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// OpenLegs returns the still-open legs of symbol in entry order.
func (d *Database) OpenLegs(ctx context.Context, symbol string) ([]Leg, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, seq, order_id, entry_price, base_amount, quote_amount, opened_at
		FROM ladder_legs WHERE symbol = ? AND closed_at IS NULL ORDER BY seq, id
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Leg
	for rows.Next() {
		var l Leg
		var opened int64
		if err := rows.Scan(&l.ID, &l.Symbol, &l.Seq, &l.OrderID, &l.EntryPrice, &l.BaseAmount, &l.QuoteAmount, &opened); err != nil {
			return nil, err
		}
		l.OpenedAt = time.UnixMilli(opened)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ClosedLegs returns closed legs of symbol, newest first.
func (d *Database) ClosedLegs(ctx context.Context, symbol string, limit int) ([]Leg, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, symbol, seq, order_id, entry_price, base_amount, quote_amount, opened_at, closed_at, close_order_id, close_price
		FROM ladder_legs WHERE symbol = ? AND closed_at IS NOT NULL ORDER BY closed_at DESC, id DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Leg
	for rows.Next() {
		var l Leg
		var opened int64
		var closed sql.NullInt64
		var closeID sql.NullString
		var closePrice sql.NullFloat64
		if err := rows.Scan(&l.ID, &l.Symbol, &l.Seq, &l.OrderID, &l.EntryPrice, &l.BaseAmount, &l.QuoteAmount, &opened, &closed, &closeID, &closePrice); err != nil {
			return nil, err
		}
		l.OpenedAt = time.UnixMilli(opened)
		if closed.Valid {
			l.ClosedAt = time.UnixMilli(closed.Int64)
		}
		l.CloseOrderID = closeID.String
		l.ClosePrice = closePrice.Float64
		out = append(out, l)
	}
	return out, rows.Err()
}

var ErrNotFound = errors.New("db: not found")

// GetOrder fetches one order by id.
func (d *Database) GetOrder(ctx context.Context, id string) (Order, error) {
	var o Order
	var created int64
	err := d.DB.QueryRowContext(ctx, `
		SELECT id, instance_id, symbol, side, price, qty, filled_qty, status, attempts, error, created_at
		FROM orders WHERE id = ?
	`, id).Scan(&o.ID, &o.InstanceID, &o.Symbol, &o.Side, &o.Price, &o.Qty, &o.FilledQty, &o.Status, &o.Attempts, &o.Error, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	o.CreatedAt = time.UnixMilli(created)
	return o, nil
}
