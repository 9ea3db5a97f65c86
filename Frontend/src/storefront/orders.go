package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

// OrderHistory lists the orders a visitor has placed.
type OrderHistory interface {
	Orders(ctx context.Context, customerID string) ([]Receipt, error)
}

// OrdersClient reads the order service ledger.
type OrdersClient struct {
	base   string
	client *http.Client
}

func NewOrdersClient(base string, client *http.Client) *OrdersClient {
	return &OrdersClient{base: base, client: client}
}

type remoteOrder struct {
	OrderNumber string           `json:"orderNumber"`
	OrderDate   time.Time        `json:"orderDate"`
	Status      string           `json:"status"`
	Items       []remoteCartItem `json:"items"`
	Total       money.Money      `json:"total"`
}

func (c *OrdersClient) Orders(ctx context.Context, customerID string) ([]Receipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/customer/"+url.PathEscape(customerID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Api-Version", "1")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("order service read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(raw, resp.Status)}
	}

	var orders []remoteOrder
	if data := gjson.GetBytes(raw, "data"); data.Exists() {
		if err := json.Unmarshal([]byte(data.Raw), &orders); err != nil {
			return nil, fmt.Errorf("order service decode: %w", err)
		}
	}
	out := make([]Receipt, 0, len(orders))
	for _, o := range orders {
		r := Receipt{OrderNumber: o.OrderNumber, OrderDate: o.OrderDate, Status: o.Status, Total: o.Total}
		for _, it := range o.Items {
			r.Items = append(r.Items, it.line())
		}
		out = append(out, r)
	}
	return out, nil
}
