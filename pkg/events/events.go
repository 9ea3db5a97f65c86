// Package events holds the routing keys and payloads exchanged over RabbitMQ.
package events

import "time"

const Exchange = "bookstore.events"

// Published by the cart service once an order has been placed.
const RKCartCheckedOut = "cart.checked_out"

// Published by the catalogue after stock has been taken for an order.
const RKStockDecremented = "catalog.stock.decremented"

type CheckedOutItem struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	Qty       int32  `json:"qty"`
	UnitCents int64  `json:"unit_cents"`
	LineCents int64  `json:"line_cents"`
}

type CheckedOutPayload struct {
	OrderID    string           `json:"order_id"`
	CustomerID string           `json:"customer_id"`
	Items      []CheckedOutItem `json:"items"`
	TotalCents int64            `json:"total_cents"`
	PlacedAt   time.Time        `json:"placed_at"`
}

type StockDecrementedPayload struct {
	OrderID string           `json:"order_id"`
	Levels  map[string]int32 `json:"levels"`
}
