package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

func TestOrdersClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/customer/c-1":
			_, _ = w.Write([]byte(`{"success":true,"data":[{"orderNumber":"ord-1","orderDate":"2026-03-01T10:00:00Z","status":"fulfilled",
				"items":[{"bookId":"4","title":"Don Quijote de la Mancha","quantity":2,"unitPrice":24.99,"lineTotal":49.98}],"total":49.98}]}`))
		case "/orders/customer/c-2":
			_, _ = w.Write([]byte(`{"success":true,"data":[]}`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"message":"internal error"}`))
		}
	}))
	defer srv.Close()
	c := NewOrdersClient(srv.URL+"/orders", srv.Client())
	ctx := context.Background()

	orders, err := c.Orders(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ord-1", orders[0].OrderNumber)
	assert.Equal(t, "fulfilled", orders[0].Status)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, int64(4998), orders[0].Items[0].LineTotal().Cents)

	orders, err = c.Orders(ctx, "c-2")
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = c.Orders(ctx, "c-3")
	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.Status)
}

type fakeHistory struct {
	mu     sync.Mutex
	orders map[string][]Receipt
	err    error
}

func (f *fakeHistory) set(customerID string, orders []Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders[customerID] = orders
}

func (f *fakeHistory) Orders(_ context.Context, customerID string) ([]Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[customerID], f.err
}

func TestOrdersPage(t *testing.T) {
	t.Run("no order service", func(t *testing.T) {
		srv := newTestStorefront(t, testCatalogue())
		code, body := fetch(t, newBrowser(t), http.MethodGet, srv.URL+"/orders", nil)
		assert.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "El historial de pedidos no está disponible.")
	})

	t.Run("lists orders of the visitor", func(t *testing.T) {
		history := &fakeHistory{orders: map[string][]Receipt{}}
		srv := newTestStorefrontWithOrders(t, testCatalogue(), history)
		browser := newBrowser(t)

		code, body := fetch(t, browser, http.MethodGet, srv.URL+"/orders", nil)
		require.Equal(t, http.StatusOK, code)
		assert.Contains(t, body, "Todavía no has realizado ningún pedido.")

		u, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		var customer string
		for _, c := range browser.Jar.Cookies(u.URL) {
			if c.Name == customerCookie {
				customer = c.Value
			}
		}
		require.NotEmpty(t, customer)
		history.set(customer, []Receipt{{
			OrderNumber: "ord-7",
			OrderDate:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
			Status:      "fulfilled",
			Items:       []CartLine{{Book: Book{ID: "4", Title: "Don Quijote de la Mancha", Price: money.MustParse("24.99")}, Quantity: 2}},
			Total:       money.MustParse("49.98"),
		}})

		_, body = fetch(t, browser, http.MethodGet, srv.URL+"/orders", nil)
		assert.Contains(t, body, "Pedido ord-7")
		assert.Contains(t, body, "01/03/2026 10:00 · Enviado")
		assert.Contains(t, body, "49,98 €")
	})

	t.Run("order service down", func(t *testing.T) {
		srv := newTestStorefrontWithOrders(t, testCatalogue(), &fakeHistory{err: errors.New("dial tcp: refused")})
		code, body := fetch(t, newBrowser(t), http.MethodGet, srv.URL+"/orders", nil)
		assert.Equal(t, http.StatusBadGateway, code)
		assert.Contains(t, body, "Error cargando datos")
	})
}
