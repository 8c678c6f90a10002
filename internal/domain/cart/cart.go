// Package cart assembles an order draft on the client side of checkout.
package cart

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/order"
)

// Surcharge is the multiplier applied to the items price to obtain the total.
var Surcharge = decimal.RequireFromString("1.15")

// Line is one product in the cart.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image,omitempty"`
}

// Cart is an explicit, caller-owned collection of lines.
type Cart struct {
	Lines []Line `json:"lines"`
}

// Add increments the quantity of an existing product or appends it with
// quantity 1.
func (c *Cart) Add(l Line) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == l.ProductID {
			c.Lines[i].Quantity++
			return
		}
	}
	l.Quantity = 1
	c.Lines = append(c.Lines, l)
}

// Remove drops the product's line entirely.
func (c *Cart) Remove(productID string) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return
		}
	}
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return len(c.Lines) == 0
}

// Items converts the lines into order item snapshots.
func (c *Cart) Items() []order.Item {
	items := make([]order.Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, order.Item{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Image:     l.Image,
		})
	}
	return items
}

// Totals are unrounded cart totals.
type Totals struct {
	ItemsPrice decimal.Decimal
	TotalPrice decimal.Decimal
}

// Display returns the totals rounded to two decimal places.
func (t Totals) Display() Totals {
	return Totals{
		ItemsPrice: t.ItemsPrice.Round(2),
		TotalPrice: t.TotalPrice.Round(2),
	}
}

// ComputeTotals sums unit price times quantity over all lines and applies the
// surcharge.
func ComputeTotals(c *Cart) Totals {
	items := decimal.Zero
	for _, l := range c.Lines {
		items = items.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return Totals{
		ItemsPrice: items,
		TotalPrice: items.Mul(Surcharge),
	}
}
