package main

import (
	"time"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

// Order lifecycle. Stock is taken asynchronously by the catalogue.
const (
	OrderStatusPlaced    = "placed"
	OrderStatusFulfilled = "fulfilled"
)

type Order struct {
	ID          string
	CustomerID  string
	Status      string
	TotalCents  int64
	PlacedAt    time.Time
	UpdatedUnix int64
	Items       []OrderItem
}

type OrderItem struct {
	BookID    string
	Title     string
	Qty       int32
	UnitCents int64
	LineCents int64
}

// OrderView is the JSON shape served to the storefront.
type OrderView struct {
	OrderNumber string          `json:"orderNumber"`
	OrderDate   time.Time       `json:"orderDate"`
	CustomerID  string          `json:"customerId"`
	Status      string          `json:"status"`
	Items       []OrderItemView `json:"items"`
	Total       money.Money     `json:"total"`
}

type OrderItemView struct {
	BookID    string      `json:"bookId"`
	Title     string      `json:"title"`
	Quantity  int32       `json:"quantity"`
	UnitPrice money.Money `json:"unitPrice"`
	LineTotal money.Money `json:"lineTotal"`
}

func toOrderView(o *Order) OrderView {
	v := OrderView{
		OrderNumber: o.ID,
		OrderDate:   o.PlacedAt.UTC(),
		CustomerID:  o.CustomerID,
		Status:      o.Status,
		Items:       make([]OrderItemView, 0, len(o.Items)),
		Total:       money.FromCents(o.TotalCents),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, OrderItemView{
			BookID:    it.BookID,
			Title:     it.Title,
			Quantity:  it.Qty,
			UnitPrice: money.FromCents(it.UnitCents),
			LineTotal: money.FromCents(it.LineCents),
		})
	}
	return v
}
