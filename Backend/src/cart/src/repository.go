package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type CartRepository interface {
	GetOrCreateCart(ctx context.Context, customerID string) (*Cart, error)
	GetCart(ctx context.Context, customerID string) (*Cart, error)
	// AddItem adds qty to the line for it.BookID, refreshing its title, cover and price.
	AddItem(ctx context.Context, customerID string, it CartItem) (*Cart, error)
	// RemoveItem takes qty off the line; qty <= 0 drops the whole line.
	RemoveItem(ctx context.Context, customerID, bookID string, qty int32) (*Cart, error)
	SetQty(ctx context.Context, customerID, bookID string, qty int32) (*Cart, error)
	Clear(ctx context.Context, customerID string) (*Cart, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) CartRepository { return &sqliteRepo{db: db} }

func (r *sqliteRepo) GetOrCreateCart(ctx context.Context, customerID string) (*Cart, error) {
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO carts(customer_id) VALUES (?) ON CONFLICT(customer_id) DO NOTHING`, customerID); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return r.GetCart(ctx, customerID)
}

func (r *sqliteRepo) GetCart(ctx context.Context, customerID string) (*Cart, error) {
	var cart Cart
	err := r.db.QueryRowContext(ctx, `SELECT id, customer_id FROM carts WHERE customer_id=?`, customerID).
		Scan(&cart.ID, &cart.CustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, cart_id, book_id, title, cover_url, unit_price_cents, qty
		FROM cart_items WHERE cart_id=? ORDER BY id`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("get cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.BookID, &it.Title, &it.CoverURL, &it.UnitPriceCents, &it.Qty); err != nil {
			return nil, err
		}
		cart.Items = append(cart.Items, it)
	}
	return &cart, rows.Err()
}

func (r *sqliteRepo) AddItem(ctx context.Context, customerID string, it CartItem) (*Cart, error) {
	cart, err := r.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_items(cart_id, book_id, title, cover_url, unit_price_cents, qty)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(cart_id, book_id)
		DO UPDATE SET qty = qty + excluded.qty,
		              title = excluded.title,
		              cover_url = excluded.cover_url,
		              unit_price_cents = excluded.unit_price_cents
	`, cart.ID, it.BookID, it.Title, it.CoverURL, it.UnitPriceCents, it.Qty)
	if err != nil {
		return nil, fmt.Errorf("add item %s: %w", it.BookID, err)
	}
	return r.GetCart(ctx, customerID)
}

func (r *sqliteRepo) RemoveItem(ctx context.Context, customerID, bookID string, qty int32) (*Cart, error) {
	cart, err := r.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if qty <= 0 {
		_, err = r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id=? AND book_id=?`, cart.ID, bookID)
	} else {
		// lines that would drop to zero go away, the rest are decremented
		_, err = r.db.ExecContext(ctx, `
			DELETE FROM cart_items WHERE cart_id=? AND book_id=? AND qty <= ?`, cart.ID, bookID, qty)
		if err == nil {
			_, err = r.db.ExecContext(ctx, `
				UPDATE cart_items SET qty = qty - ?
				WHERE cart_id=? AND book_id=? AND qty > ?`, qty, cart.ID, bookID, qty)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("remove item %s: %w", bookID, err)
	}
	return r.GetCart(ctx, customerID)
}

func (r *sqliteRepo) SetQty(ctx context.Context, customerID, bookID string, qty int32) (*Cart, error) {
	if qty <= 0 {
		return r.RemoveItem(ctx, customerID, bookID, 0)
	}
	cart, err := r.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE cart_items SET qty=? WHERE cart_id=? AND book_id=?`, qty, cart.ID, bookID)
	if err != nil {
		return nil, fmt.Errorf("set qty %s: %w", bookID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetCart(ctx, customerID)
}

func (r *sqliteRepo) Clear(ctx context.Context, customerID string) (*Cart, error) {
	cart, err := r.GetOrCreateCart(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id=?`, cart.ID); err != nil {
		return nil, fmt.Errorf("clear cart: %w", err)
	}
	return r.GetCart(ctx, customerID)
}
