package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

var (
	quijote = Book{ID: "4", Title: "Don Quijote de la Mancha", Author: "Miguel de Cervantes", Price: money.MustParse("24.99"), Stock: 5}
	potter  = Book{ID: "5", Title: "Harry Potter y la piedra filosofal", Author: "J.K. Rowling", Price: money.MustParse("14.36"), Stock: 15}
)

func TestCartInvariants(t *testing.T) {
	c := &Cart{}
	c.add(quijote, 1)
	c.add(potter, 2)
	c.add(quijote, 2)
	c.add(potter, 0)

	require.Len(t, c.Items, 2)
	assert.Equal(t, 3, c.Quantity("4"))
	assert.Equal(t, 5, c.ItemCount())
	assert.Equal(t, int64(3*2499+2*1436), c.Total.Cents)

	c.setQuantity("4", 1)
	assert.Equal(t, int64(2499+2*1436), c.Total.Cents)

	c.setQuantity("4", 0)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 0, c.Quantity("4"))

	c.setQuantity("missing", 3)
	assert.Len(t, c.Items, 1)

	c.clear()
	assert.True(t, c.IsEmpty())
	assert.True(t, c.Total.IsZero())
}

func TestDecodeCartFoldsDuplicates(t *testing.T) {
	blob := `[
		{"book":{"id":"4","price":24.99},"quantity":1},
		{"book":{"id":"4","price":24.99},"quantity":2},
		{"book":{"id":"5","price":14.36},"quantity":0},
		{"book":{"id":""},"quantity":3}
	]`
	c, err := decodeCart([]byte(blob))
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assert.Equal(t, int64(3*2499), c.Total.Cents)

	c, err = decodeCart([]byte(`{not json`))
	assert.Error(t, err)
	assert.True(t, c.IsEmpty())
}

// visit runs fn against a stored cart manager and returns the next request carrying its cookies.
func visit(t *testing.T, carts CartManagerFactory, req *http.Request, fn func(CartManager)) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	fn(carts(rec, req))
	return replay(rec, req)
}

func TestStoredCartsSurviveRequests(t *testing.T) {
	storage, err := NewCookieStorage([]byte("0123456789abcdef"), false)
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	carts := StoredCarts(storage, func() time.Time { return now })
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = visit(t, carts, req, func(m CartManager) {
		_, err := m.Add(ctx, quijote, 2)
		require.NoError(t, err)
	})
	req = visit(t, carts, req, func(m CartManager) {
		c, err := m.Decrement(ctx, "4")
		require.NoError(t, err)
		assert.Equal(t, 1, c.Quantity("4"))
	})

	var receipt *Receipt
	req = visit(t, carts, req, func(m CartManager) {
		receipt, err = m.Checkout(ctx)
		require.NoError(t, err)
	})
	require.NotNil(t, receipt)
	assert.NotEmpty(t, receipt.OrderNumber)
	assert.Equal(t, now, receipt.OrderDate)
	assert.Equal(t, int64(2499), receipt.Total.Cents)
	require.Len(t, receipt.Items, 1)

	visit(t, carts, req, func(m CartManager) {
		c, err := m.Cart(ctx)
		require.NoError(t, err)
		assert.True(t, c.IsEmpty())

		_, err = m.Checkout(ctx)
		assert.ErrorIs(t, err, ErrEmptyCart)
	})
}

func TestStoredCartsDiscardTamperedCookie(t *testing.T) {
	storage, err := NewCookieStorage([]byte("0123456789abcdef"), false)
	require.NoError(t, err)
	carts := StoredCarts(storage, time.Now)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "st_cart", Value: "W3t9XQ.forged"})
	c, err := carts(httptest.NewRecorder(), req).Cart(context.Background())
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())
}

func TestStoredCartsHoldManyBooks(t *testing.T) {
	storage, err := NewCookieStorage([]byte("0123456789abcdef"), false)
	require.NoError(t, err)
	carts := StoredCarts(storage, time.Now)
	ctx := context.Background()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for i := 1; i <= 40; i++ {
		b := Book{
			ID:         strconv.Itoa(i),
			Title:      fmt.Sprintf("Libro de prueba con un título largo número %d", i),
			Author:     "Autora de prueba",
			Price:      money.MustParse("19.99"),
			CoverImage: fmt.Sprintf("/covers/libro-de-prueba-%d.jpg", i),
			Stock:      10,
		}
		req = visit(t, carts, req, func(m CartManager) {
			_, err := m.Add(ctx, b, 1)
			require.NoError(t, err, "book %d", i)
		})
	}

	visit(t, carts, req, func(m CartManager) {
		c, err := m.Cart(ctx)
		require.NoError(t, err)
		assert.Len(t, c.Items, 40)
		assert.Equal(t, int64(40*1999), c.Total.Cents)
	})
}

type failingStorage struct{ Storage }

func (failingStorage) Save(http.ResponseWriter, *http.Request, string, []byte) error {
	return ErrStorageFull
}

func TestStoredCartUnchangedWhenSaveFails(t *testing.T) {
	inner, err := NewCookieStorage([]byte("0123456789abcdef"), false)
	require.NoError(t, err)
	ctx := context.Background()

	req := visit(t, StoredCarts(inner, time.Now), httptest.NewRequest(http.MethodGet, "/", nil), func(m CartManager) {
		_, err := m.Add(ctx, quijote, 1)
		require.NoError(t, err)
	})

	m := StoredCarts(failingStorage{inner}, time.Now)(httptest.NewRecorder(), req)
	_, err = m.Add(ctx, potter, 2)
	assert.ErrorIs(t, err, ErrStorageFull)
	_, err = m.UpdateQuantity(ctx, "4", 3)
	assert.ErrorIs(t, err, ErrStorageFull)

	c, err := m.Cart(ctx)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Quantity("4"))
	assert.Equal(t, int64(2499), c.Total.Cents)
}

// fakeCartService mimics the cart service's REST surface for a single customer.
func fakeCartService(t *testing.T, customer string) *httptest.Server {
	t.Helper()
	items := map[string]int{}
	titles := map[string]string{"4": quijote.Title, "5": potter.Title}
	prices := map[string]float64{"4": 24.99, "5": 14.36}

	view := func() map[string]any {
		var out []map[string]any
		total := 0.0
		for _, id := range []string{"4", "5"} {
			if q := items[id]; q > 0 {
				out = append(out, map[string]any{"bookId": id, "title": titles[id], "quantity": q, "unitPrice": prices[id]})
				total += prices[id] * float64(q)
			}
		}
		return map[string]any{"customerId": customer, "items": out, "total": total}
	}
	write := func(w http.ResponseWriter, status int, body map[string]any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
	ok := func(w http.ResponseWriter, status int) { write(w, status, map[string]any{"success": true, "data": view()}) }

	// guard rejects calls without the api version header or for another customer.
	guard := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Version") != "1" || chi.URLParam(r, "customer") != customer {
				write(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad request"})
				return
			}
			h(w, r)
		}
	}

	r := chi.NewRouter()
	r.Route("/carts", func(r chi.Router) {
		r.Get("/get-cart/{customer}", guard(func(w http.ResponseWriter, r *http.Request) { ok(w, http.StatusOK) }))
		r.Post("/add-item/{customer}/items", guard(func(w http.ResponseWriter, r *http.Request) {
			var in struct {
				BookID   string `json:"bookId"`
				Quantity int    `json:"quantity"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			items[in.BookID] += in.Quantity
			ok(w, http.StatusOK)
		}))
		r.Patch("/update-item/{customer}/items/{book}", guard(func(w http.ResponseWriter, r *http.Request) {
			var in struct {
				Quantity int `json:"quantity"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			items[chi.URLParam(r, "book")] = in.Quantity
			ok(w, http.StatusOK)
		}))
		r.Patch("/decrement-item/{customer}/items/{book}", guard(func(w http.ResponseWriter, r *http.Request) {
			items[chi.URLParam(r, "book")]--
			ok(w, http.StatusOK)
		}))
		r.Delete("/remove-item/{customer}/items/{book}", guard(func(w http.ResponseWriter, r *http.Request) {
			delete(items, chi.URLParam(r, "book"))
			ok(w, http.StatusOK)
		}))
		r.Delete("/clear-cart/{customer}", guard(func(w http.ResponseWriter, r *http.Request) {
			items = map[string]int{}
			ok(w, http.StatusOK)
		}))
		r.Post("/checkout/{customer}", guard(func(w http.ResponseWriter, r *http.Request) {
			v := view()
			if lines, _ := v["items"].([]map[string]any); len(lines) == 0 {
				write(w, http.StatusConflict, map[string]any{"success": false, "message": "cart is empty"})
				return
			}
			items = map[string]int{}
			write(w, http.StatusCreated, map[string]any{"success": true, "data": map[string]any{
				"orderNumber": "order-1",
				"orderDate":   "2026-03-01T12:00:00Z",
				"customerId":  customer,
				"items":       v["items"],
				"total":       v["total"],
			}})
		}))
	})
	return httptest.NewServer(r)
}

func TestRemoteCarts(t *testing.T) {
	const customer = "6f1c2a3e-0000-5000-8000-000000000001"
	srv := fakeCartService(t, customer)
	defer srv.Close()

	carts := RemoteCarts(srv.URL+"/carts", srv.Client())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(withCustomerID(req.Context(), customer))
	m := carts(httptest.NewRecorder(), req)
	ctx := context.Background()

	c, err := m.Cart(ctx)
	require.NoError(t, err)
	assert.True(t, c.IsEmpty())

	c, err = m.Add(ctx, quijote, 2)
	require.NoError(t, err)
	c, err = m.Add(ctx, potter, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, c.ItemCount())
	assert.Equal(t, int64(2*2499+1436), c.Total.Cents)

	c, err = m.UpdateQuantity(ctx, "5", 4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Quantity("5"))

	c, err = m.Decrement(ctx, "4")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Quantity("4"))

	c, err = m.Remove(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, 0, c.Quantity("5"))

	receipt, err := m.Checkout(ctx)
	require.NoError(t, err)
	assert.Equal(t, "order-1", receipt.OrderNumber)
	assert.Equal(t, int64(2499), receipt.Total.Cents)

	_, err = m.Checkout(ctx)
	assert.ErrorIs(t, err, ErrEmptyCart)

	_, err = m.Clear(ctx)
	require.NoError(t, err)
}

func TestRemoteCartsSurfaceUpstreamErrors(t *testing.T) {
	srv := fakeCartService(t, "someone-else")
	defer srv.Close()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(withCustomerID(req.Context(), "intruder"))
	_, err := RemoteCarts(srv.URL+"/carts", srv.Client())(httptest.NewRecorder(), req).Cart(context.Background())

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusBadRequest, ue.Status)
	assert.Equal(t, "bad request", ue.Message)
}
