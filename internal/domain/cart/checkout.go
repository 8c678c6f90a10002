package cart

import (
	"context"
	"strings"
	"unicode"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

// MinCardDigits is the minimum number of digits in a card number.
const MinCardDigits = 16

// ShippingInfo is the first checkout phase.
type ShippingInfo struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Validate requires every field to be non-blank.
func (s ShippingInfo) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", s.Name},
		{"address", s.Address},
		{"city", s.City},
		{"phone", s.Phone},
		{"postal code", s.PostalCode},
		{"country", s.Country},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Validation("shipping %s is required", f.name)
		}
	}
	return nil
}

func (s ShippingInfo) snapshot() order.Shipping {
	return order.Shipping{
		Name:       strings.TrimSpace(s.Name),
		Address:    strings.TrimSpace(s.Address),
		City:       strings.TrimSpace(s.City),
		PostalCode: strings.TrimSpace(s.PostalCode),
		Country:    strings.TrimSpace(s.Country),
		Phone:      strings.TrimSpace(s.Phone),
	}
}

// PaymentInfo is the second checkout phase. It is validated and discarded;
// card data is never persisted.
type PaymentInfo struct {
	CardNumber string `json:"card_number"`
	CVV        string `json:"cvv"`
}

// Validate checks the card number length after stripping spaces and dashes
// and requires a CVV.
func (p PaymentInfo) Validate() error {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(p.CardNumber)
	for _, r := range digits {
		if !unicode.IsDigit(r) {
			return apperr.Validation("card number must contain only digits")
		}
	}
	if len(digits) < MinCardDigits {
		return apperr.Validation("card number must have at least %d digits", MinCardDigits)
	}
	if strings.TrimSpace(p.CVV) == "" {
		return apperr.Validation("cvv is required")
	}
	return nil
}

// Creator persists an order draft.
type Creator interface {
	Create(ctx context.Context, p auth.Principal, d order.Draft) (*order.Order, error)
}

// Checkout carries a cart through the shipping and payment phases.
type Checkout struct {
	Cart     *Cart
	Shipping ShippingInfo
	Payment  PaymentInfo
}

// Draft validates both phases and builds the order draft from the cart.
func (c *Checkout) Draft() (order.Draft, error) {
	if c.Cart == nil || c.Cart.Empty() {
		return order.Draft{}, apperr.Validation("cart is empty")
	}
	if err := c.Shipping.Validate(); err != nil {
		return order.Draft{}, err
	}
	if err := c.Payment.Validate(); err != nil {
		return order.Draft{}, err
	}

	totals := ComputeTotals(c.Cart).Display()
	return order.Draft{
		Items:      c.Cart.Items(),
		Shipping:   c.Shipping.snapshot(),
		ItemsPrice: decimal.NewNullDecimal(totals.ItemsPrice),
		TaxPrice:   totals.TotalPrice.Sub(totals.ItemsPrice),
		TotalPrice: decimal.NewNullDecimal(totals.TotalPrice),
	}, nil
}

// Submit validates the checkout and creates the order exactly once. The cart
// is cleared only after the order has been created.
func (c *Checkout) Submit(ctx context.Context, creator Creator, p auth.Principal) (*order.Order, error) {
	d, err := c.Draft()
	if err != nil {
		return nil, err
	}
	o, err := creator.Create(ctx, p, d)
	if err != nil {
		return nil, errors.Wrap(err, "submit order")
	}
	c.Cart.Lines = nil
	return o, nil
}
