package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/order"
)

const (
	orderColumns = `id, user_id, items, shipping, items_price, tax_price, shipping_price, total_price,
		status, paid_at, delivered_at, version, created_at`

	createOrderSQL = `INSERT INTO orders
		(id, user_id, items, shipping, items_price, tax_price, shipping_price, total_price, status, paid_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING version`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id DESC`

	updateOrderStatusSQL = `UPDATE orders
		SET status = $3, delivered_at = COALESCE($4, delivered_at), version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version`

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the shipping snapshot are serialized
// to JSON for storage in JSONB columns.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(o.Shipping)
	if err != nil {
		return fmt.Errorf("marshaling order shipping: %w", err)
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, itemsJSON, shippingJSON,
		o.ItemsPrice, o.TaxPrice, o.ShippingPrice, o.TotalPrice,
		string(o.Status), o.PaidAt, o.CreatedAt,
	).Scan(&o.Version)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, most recent first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", userID, err)
	}
	return orders, nil
}

// List returns every order, most recent first.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus changes the status iff the row is still at version.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, version int64, status order.Status, deliveredAt *time.Time) (int64, error) {
	var next int64
	err := r.pool.QueryRow(ctx, updateOrderStatusSQL, id, version, string(status), deliveredAt).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("updating order %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return 0, order.ErrNotFound
	}
	return 0, order.ErrVersionConflict
}

// Delete removes the order.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o            order.Order
		itemsJSON    []byte
		shippingJSON []byte
		status       string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &itemsJSON, &shippingJSON,
		&o.ItemsPrice, &o.TaxPrice, &o.ShippingPrice, &o.TotalPrice,
		&status, &o.PaidAt, &o.DeliveredAt, &o.Version, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	if err := json.Unmarshal(shippingJSON, &o.Shipping); err != nil {
		return o, fmt.Errorf("unmarshaling shipping of %q: %w", o.ID, err)
	}
	return o, nil
}
