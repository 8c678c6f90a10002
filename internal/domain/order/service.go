package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// ErrAlreadyDelivered classifies any status change of a delivered order. It is
// a validation failure.
var ErrAlreadyDelivered = errors.Wrap(apperr.ErrValidation, "order already delivered")

func alreadyDelivered() error {
	return &apperr.Error{Kind: ErrAlreadyDelivered, Message: "order already delivered"}
}

// Options holds optional telemetry providers. Nil providers fall back to the
// global ones.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service implements the order lifecycle: creation from a draft, the
// Processing -> Shipped -> Delivered state machine and administrator
// maintenance.
type Service struct {
	orders   Repository
	notifier Notifier
	now      func() time.Time

	tracer        trace.Tracer
	created       metric.Int64Counter
	notifyFailure metric.Int64Counter
}

// NewService creates an order Service.
func NewService(orders Repository, notifier Notifier, opts Options) (*Service, error) {
	if opts.TracerProvider == nil {
		opts.TracerProvider = otel.GetTracerProvider()
	}
	if opts.MeterProvider == nil {
		opts.MeterProvider = otel.GetMeterProvider()
	}
	meter := opts.MeterProvider.Meter("storefront/order")

	created, err := meter.Int64Counter("orders.created",
		metric.WithDescription("Orders persisted"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.created counter")
	}
	notifyFailure, err := meter.Int64Counter("orders.confirmation_failures",
		metric.WithDescription("Order confirmations that could not be delivered"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders.confirmation_failures counter")
	}

	return &Service{
		orders:        orders,
		notifier:      notifier,
		now:           time.Now,
		tracer:        opts.TracerProvider.Tracer("storefront/order"),
		created:       created,
		notifyFailure: notifyFailure,
	}, nil
}

// Create validates the draft and persists it as a new Processing order paid
// now. The confirmation is sent after persistence; its failure is logged and
// does not fail Create.
func (s *Service) Create(ctx context.Context, p auth.Principal, d Draft) (*Order, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	if err := validateDraft(d); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer span.End()

	now := s.now()
	o := &Order{
		ID:            uuid.New().String(),
		UserID:        p.ID,
		Items:         d.Items,
		Shipping:      d.Shipping,
		ItemsPrice:    d.ItemsPrice.Decimal,
		TaxPrice:      d.TaxPrice,
		ShippingPrice: d.ShippingPrice,
		TotalPrice:    d.TotalPrice.Decimal,
		Status:        StatusProcessing,
		PaidAt:        now,
		CreatedAt:     now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	s.created.Add(ctx, 1)

	s.confirm(ctx, o, p)
	return o, nil
}

// confirm invokes the notifier and waits for it to finish. Errors and panics
// are logged and swallowed.
func (s *Service) confirm(ctx context.Context, o *Order, p auth.Principal) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))
	defer func() {
		if rec := recover(); rec != nil {
			s.notifyFailure.Add(ctx, 1)
			lg.Error("Order confirmation panicked", zap.Any("panic", rec))
		}
	}()
	if err := s.notifier.OrderConfirmed(ctx, o, p); err != nil {
		s.notifyFailure.Add(ctx, 1)
		lg.Warn("Order confirmation failed", zap.Error(err))
	}
}

func validateDraft(d Draft) error {
	if len(d.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	sum := decimal.Zero
	for i, item := range d.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return apperr.Validation("item %d: product id is required", i+1)
		}
		if item.Quantity <= 0 {
			return apperr.Validation("item %d: quantity must be greater than 0", i+1)
		}
		if item.UnitPrice.IsNegative() {
			return apperr.Validation("item %d: unit price must not be negative", i+1)
		}
		sum = sum.Add(item.Subtotal())
	}
	if !d.ItemsPrice.Valid {
		return apperr.Validation("items price is required")
	}
	if !d.TotalPrice.Valid {
		return apperr.Validation("total price is required")
	}
	if d.ItemsPrice.Decimal.IsNegative() || d.TotalPrice.Decimal.IsNegative() {
		return apperr.Validation("prices must not be negative")
	}
	if d.TaxPrice.IsNegative() || d.ShippingPrice.IsNegative() {
		return apperr.Validation("tax and shipping must not be negative")
	}
	if !d.ItemsPrice.Decimal.Round(2).Equal(sum.Round(2)) {
		return apperr.Validation("items price %s does not match line items %s",
			d.ItemsPrice.Decimal.StringFixed(2), sum.StringFixed(2))
	}
	return nil
}

// Get returns the order if p owns it or is an administrator. Orders owned by
// someone else are reported as not found.
func (s *Service) Get(ctx context.Context, id string, p auth.Principal) (*Order, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != p.ID && !p.IsAdmin() {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

// ListMine returns the principal's own orders, most recent first.
func (s *Service) ListMine(ctx context.Context, p auth.Principal) ([]Order, error) {
	if err := auth.Require(p); err != nil {
		return nil, err
	}
	orders, err := s.orders.ListByUser(ctx, p.ID)
	if err != nil {
		return nil, errors.Wrap(err, "list user orders")
	}
	return orders, nil
}

// ListAll returns every order and the sum of their totals.
func (s *Service) ListAll(ctx context.Context, p auth.Principal) (*Summary, error) {
	if err := auth.Require(p, auth.RoleAdministrator); err != nil {
		return nil, err
	}
	orders, err := s.orders.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	total := decimal.Zero
	for _, o := range orders {
		total = total.Add(o.TotalPrice)
	}
	return &Summary{Orders: orders, TotalAmount: total}, nil
}

// UpdateStatus moves the order forward to status. Delivered orders reject any
// requested status, known or not; DeliveredAt is set only when entering
// Delivered.
func (s *Service) UpdateStatus(ctx context.Context, id string, p auth.Principal, status string) (*Order, error) {
	if err := auth.Require(p, auth.RoleAdministrator); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "order.UpdateStatus",
		trace.WithAttributes(attribute.String("order.id", id), attribute.String("order.status", status)),
	)
	defer span.End()

	o, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusDelivered {
		return nil, alreadyDelivered()
	}
	target, ok := ParseStatus(status)
	if !ok {
		return nil, apperr.Validation("unknown order status %q", status)
	}
	if target.rank() <= o.Status.rank() {
		return nil, apperr.Validation("cannot change order status from %s to %s", o.Status, target)
	}

	var deliveredAt *time.Time
	if target == StatusDelivered {
		now := s.now()
		deliveredAt = &now
	}

	version, err := s.orders.UpdateStatus(ctx, o.ID, o.Version, target, deliveredAt)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			return nil, apperr.Conflict("order was modified concurrently, reload and retry")
		}
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, errors.Wrap(err, "update order status")
	}

	o.Status = target
	o.DeliveredAt = deliveredAt
	o.Version = version
	return o, nil
}

// Delete removes the order regardless of its status.
func (s *Service) Delete(ctx context.Context, id string, p auth.Principal) error {
	if err := auth.Require(p, auth.RoleAdministrator); err != nil {
		return err
	}
	if err := s.orders.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("order not found")
		}
		return errors.Wrapf(err, "delete order %s", id)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("order not found")
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}
