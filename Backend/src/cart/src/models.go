package main

import (
	"time"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

type Cart struct {
	ID         int64
	CustomerID string
	Items      []CartItem
}

type CartItem struct {
	ID             int64
	CartID         int64
	BookID         string
	Title          string
	CoverURL       string
	UnitPriceCents int64
	Qty            int32
}

func (c *Cart) find(bookID string) (CartItem, bool) {
	for _, it := range c.Items {
		if it.BookID == bookID {
			return it, true
		}
	}
	return CartItem{}, false
}

// CartView is the REST shape of a cart. Totals are computed here and never stored.
type CartView struct {
	CustomerID string         `json:"customerId"`
	Items      []CartItemView `json:"items"`
	ItemCount  int32          `json:"itemCount"`
	Total      money.Money    `json:"total"`
}

type CartItemView struct {
	BookID     string      `json:"bookId"`
	Title      string      `json:"title"`
	Quantity   int32       `json:"quantity"`
	UnitPrice  money.Money `json:"unitPrice"`
	LineTotal  money.Money `json:"lineTotal"`
	CoverImage string      `json:"coverImage"`
}

type Receipt struct {
	OrderNumber string         `json:"orderNumber"`
	OrderDate   time.Time      `json:"orderDate"`
	CustomerID  string         `json:"customerId"`
	Items       []CartItemView `json:"items"`
	Total       money.Money    `json:"total"`
}

func toCartView(c *Cart) *CartView {
	view := &CartView{CustomerID: c.CustomerID, Items: make([]CartItemView, 0, len(c.Items))}
	total := money.Money{}
	for _, it := range c.Items {
		unit := money.FromCents(it.UnitPriceCents)
		line := unit.Mul(int(it.Qty))
		total = total.Add(line)
		view.ItemCount += it.Qty
		view.Items = append(view.Items, CartItemView{
			BookID:     it.BookID,
			Title:      it.Title,
			Quantity:   it.Qty,
			UnitPrice:  unit,
			LineTotal:  line,
			CoverImage: it.CoverURL,
		})
	}
	view.Total = total
	return view
}
