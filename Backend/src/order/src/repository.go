package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // driver 100% Go
)

var ErrNotFound = errors.New("order not found")

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

func openSQLite(dbPath string) (*sql.DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

func (r *Repository) Init(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS orders(
  id           TEXT    PRIMARY KEY,
  customer_id  TEXT    NOT NULL,
  status       TEXT    NOT NULL,
  total_cents  INTEGER NOT NULL,
  placed_unix  INTEGER NOT NULL,
  updated_unix INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS order_items(
  id         INTEGER PRIMARY KEY AUTOINCREMENT,
  order_id   TEXT    NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
  book_id    TEXT    NOT NULL,
  title      TEXT    NOT NULL,
  qty        INTEGER NOT NULL,
  unit_cents INTEGER NOT NULL,
  line_cents INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, placed_unix);
CREATE INDEX IF NOT EXISTS idx_items_order ON order_items(order_id);
`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// CreateOrder stores o with its items. Recording the same order twice is a no-op,
// so redelivered checkout events are harmless. It reports whether a row was written.
func (r *Repository) CreateOrder(ctx context.Context, o *Order) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().Unix()
	res, err := tx.ExecContext(ctx, `
  INSERT INTO orders(id, customer_id, status, total_cents, placed_unix, updated_unix)
  VALUES(?,?,?,?,?,?)
  ON CONFLICT(id) DO NOTHING`,
		o.ID, o.CustomerID, o.Status, o.TotalCents, o.PlacedAt.Unix(), now)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	stmt, err := tx.PrepareContext(ctx, `
  INSERT INTO order_items(order_id, book_id, title, qty, unit_cents, line_cents)
  VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return false, err
	}
	defer stmt.Close()

	for _, it := range o.Items {
		if _, err := stmt.ExecContext(ctx, o.ID, it.BookID, it.Title, it.Qty, it.UnitCents, it.LineCents); err != nil {
			return false, fmt.Errorf("insert order item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, orderID, status string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status=?, updated_unix=? WHERE id=?`,
		status, r.now().Unix(), orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
    SELECT id, customer_id, status, total_cents, placed_unix, updated_unix
    FROM orders WHERE id=?`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if o.Items, err = r.listItems(ctx, o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// ListByCustomer returns the customer's most recent orders first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
    SELECT id, customer_id, status, total_cents, placed_unix, updated_unix
    FROM orders WHERE customer_id=?
    ORDER BY placed_unix DESC, id
    LIMIT ?`, customerID, limit)
	if err != nil {
		return nil, err
	}
	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, o := range out {
		if o.Items, err = r.listItems(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var o Order
	var placed int64
	if err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.TotalCents, &placed, &o.UpdatedUnix); err != nil {
		return nil, err
	}
	o.PlacedAt = time.Unix(placed, 0).UTC()
	return &o, nil
}

func (r *Repository) listItems(ctx context.Context, orderID string) ([]OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
    SELECT book_id, title, qty, unit_cents, line_cents
    FROM order_items WHERE order_id=? ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.BookID, &it.Title, &it.Qty, &it.UnitCents, &it.LineCents); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
