package main

import (
	"github.com/dustin/go-humanize"

	"github.com/ahinestrog/bookstore-storefront/pkg/money"
)

// formatPrice renders m the way the shop shows prices: "1.234,56 €".
func formatPrice(m money.Money) string {
	return humanize.FormatFloat("#.###,##", m.Float64()) + " €"
}
