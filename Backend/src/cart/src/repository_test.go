package main

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRepo(t *testing.T) CartRepository {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrate(context.Background(), db))
	return NewSQLiteRepo(db)
}

func item(bookID string, cents int64, qty int32) CartItem {
	return CartItem{BookID: bookID, Title: "Libro " + bookID, UnitPriceCents: cents, Qty: qty}
}

func TestGetOrCreateCartIsStable(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.GetOrCreateCart(ctx, "cust-1")
	require.NoError(t, err)
	b, err := repo.GetOrCreateCart(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Empty(t, b.Items)

	_, err = repo.GetCart(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAddItemIncrementsExistingLine(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "cust-1", item("1", 1999, 1))
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, "cust-1", item("2", 1550, 1))
	require.NoError(t, err)
	c, err := repo.AddItem(ctx, "cust-1", item("1", 1999, 2))
	require.NoError(t, err)

	require.Len(t, c.Items, 2)
	assert.Equal(t, "1", c.Items[0].BookID)
	assert.Equal(t, int32(3), c.Items[0].Qty)
	assert.Equal(t, "2", c.Items[1].BookID)
}

func TestRemoveItemDecrementsThenDrops(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "cust-1", item("1", 1999, 2))
	require.NoError(t, err)

	c, err := repo.RemoveItem(ctx, "cust-1", "1", 1)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, int32(1), c.Items[0].Qty)

	c, err = repo.RemoveItem(ctx, "cust-1", "1", 1)
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	// unknown lines are a no-op
	c, err = repo.RemoveItem(ctx, "cust-1", "9", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestSetQty(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "cust-1", item("1", 1999, 1))
	require.NoError(t, err)

	c, err := repo.SetQty(ctx, "cust-1", "1", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(5), c.Items[0].Qty)

	_, err = repo.SetQty(ctx, "cust-1", "2", 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	c, err = repo.SetQty(ctx, "cust-1", "1", 0)
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestClearKeepsOtherCustomers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.AddItem(ctx, "cust-1", item("1", 1999, 1))
	require.NoError(t, err)
	_, err = repo.AddItem(ctx, "cust-2", item("1", 1999, 4))
	require.NoError(t, err)

	c, err := repo.Clear(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	other, err := repo.GetCart(ctx, "cust-2")
	require.NoError(t, err)
	require.Len(t, other.Items, 1)
	assert.Equal(t, int32(4), other.Items[0].Qty)
}

func TestToCartViewTotals(t *testing.T) {
	v := toCartView(&Cart{CustomerID: "c", Items: []CartItem{item("1", 1999, 3), item("2", 1550, 1)}})
	assert.Equal(t, int64(7547), v.Total.Cents)
	assert.Equal(t, int32(4), v.ItemCount)
	assert.Equal(t, int64(5997), v.Items[0].LineTotal.Cents)
}
