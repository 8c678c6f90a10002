// Package handler exposes the storefront services over HTTP under /api.
//
// Every response uses the envelope {"success": bool, "message"?: string, ...}.
// Only *apperr.Error messages are returned to clients; any other failure is
// logged and answered with a generic 500.
package handler

import (
	"net/http"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/review"
)

const (
	defaultMaxBodyBytes = 1 << 20
	defaultMaxListLimit = 100
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// MaxBodyBytes limits request body size. Zero means 1 MiB.
	MaxBodyBytes int64
	// MaxListLimit caps the limit query parameter of the catalog listing.
	MaxListLimit int
}

// Handler serves the storefront API.
type Handler struct {
	catalog  catalog.Repository
	orders   *order.Service
	reviews  *review.Service
	verifier auth.Verifier

	maxBody      int64
	maxListLimit int
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	entries catalog.Repository,
	orders *order.Service,
	reviews *review.Service,
	verifier auth.Verifier,
) *Handler {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = defaultMaxListLimit
	}
	return &Handler{
		catalog:      entries,
		orders:       orders,
		reviews:      reviews,
		verifier:     verifier,
		maxBody:      cfg.MaxBodyBytes,
		maxListLimit: cfg.MaxListLimit,
	}
}

// Register mounts every API route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders/mine", h.ListMyOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("PUT /api/orders/{id}", h.UpdateOrderStatus)
	mux.HandleFunc("DELETE /api/orders/{id}", h.DeleteOrder)

	mux.HandleFunc("POST /api/items/{id}/reviews", h.UpsertReview)
	mux.HandleFunc("GET /api/items/{id}/reviews", h.ListReviews)
	mux.HandleFunc("DELETE /api/items/{id}/reviews/{reviewId}", h.DeleteReview)

	mux.HandleFunc("GET /api/items", h.ListItems)
	mux.HandleFunc("GET /api/items/{id}", h.GetItem)

	mux.HandleFunc("POST /api/cart/totals", h.CartTotals)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
}
