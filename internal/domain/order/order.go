package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
)

var (
	// ErrNotFound is returned by the repository when no order has the given id.
	ErrNotFound = errors.New("order not found")
	// ErrVersionConflict is returned by conditional writes when the order
	// changed since it was read.
	ErrVersionConflict = errors.New("order version conflict")
)

// Status is the position of an order in its forward-only lifecycle.
type Status string

const (
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
)

// ParseStatus maps s onto the closed status enum, ignoring case.
func ParseStatus(s string) (Status, bool) {
	for _, st := range []Status{StatusProcessing, StatusShipped, StatusDelivered} {
		if strings.EqualFold(strings.TrimSpace(s), string(st)) {
			return st, true
		}
	}
	return "", false
}

func (s Status) rank() int {
	switch s {
	case StatusProcessing:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	}
	return 0
}

// Item is a denormalized snapshot of a purchased catalog entry.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image,omitempty"`
}

// Subtotal returns UnitPrice * Quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Shipping is the delivery address captured at checkout.
type Shipping struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone"`
}

// Order is a persisted purchase record.
type Order struct {
	ID            string
	UserID        string
	Items         []Item
	Shipping      Shipping
	ItemsPrice    decimal.Decimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.Decimal
	Status        Status
	PaidAt        time.Time
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	Version       int64
}

// Reference is the short human-facing order number used in confirmations.
func (o *Order) Reference() string {
	if len(o.ID) <= 6 {
		return strings.ToUpper(o.ID)
	}
	return strings.ToUpper(o.ID[len(o.ID)-6:])
}

// Draft is the client-assembled order submitted to Create.
type Draft struct {
	Items         []Item
	Shipping      Shipping
	ItemsPrice    decimal.NullDecimal
	TaxPrice      decimal.Decimal
	ShippingPrice decimal.Decimal
	TotalPrice    decimal.NullDecimal
}

// Summary is the administrator view of all orders.
type Summary struct {
	Orders      []Order
	TotalAmount decimal.Decimal
}

// Repository defines persistence operations for orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, most recent first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// List returns every order, most recent first.
	List(ctx context.Context) ([]Order, error)
	// UpdateStatus writes status and deliveredAt iff the order is still at
	// version, returning the new version or ErrVersionConflict.
	UpdateStatus(ctx context.Context, id string, version int64, status Status, deliveredAt *time.Time) (int64, error)
	Delete(ctx context.Context, id string) error
}

// Notifier delivers order confirmations. Delivery is best effort: a failure
// never affects the order.
type Notifier interface {
	OrderConfirmed(ctx context.Context, o *Order, to auth.Principal) error
}
