package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/review"
	"github.com/xenking/storefront/internal/storage/memory"
)

// --- Mock implementations ---

type mockVerifier struct {
	tokens map[string]auth.Principal
}

func (m *mockVerifier) Verify(_ context.Context, token string) (auth.Principal, error) {
	p, ok := m.tokens[token]
	if !ok {
		return auth.Principal{}, apperr.Unauthenticated("invalid token")
	}
	return p, nil
}

type mockNotifier struct {
	sent []string
}

func (m *mockNotifier) OrderConfirmed(_ context.Context, o *order.Order, _ auth.Principal) error {
	m.sent = append(m.sent, o.ID)
	return nil
}

// brokenCatalog fails every call with an internal error.
type brokenCatalog struct{}

func (brokenCatalog) Find(context.Context, catalog.Filter) ([]catalog.Entry, error) {
	return nil, errors.New("connection reset by peer")
}

func (brokenCatalog) GetByID(context.Context, string) (*catalog.Entry, error) {
	return nil, errors.New("connection reset by peer")
}

func (brokenCatalog) ReplaceReviews(context.Context, string, int64, []catalog.Review, catalog.Aggregate) (int64, error) {
	return 0, errors.New("connection reset by peer")
}

// contendedCatalog serves a real entry but loses every conditional write.
type contendedCatalog struct {
	*memory.CatalogStore
}

func (contendedCatalog) ReplaceReviews(context.Context, string, int64, []catalog.Review, catalog.Aggregate) (int64, error) {
	return 0, catalog.ErrVersionConflict
}

// --- Helpers ---

const (
	customerToken = "customer-token"
	otherToken    = "other-token"
	adminToken    = "admin-token"
)

var (
	customer = auth.Principal{ID: "u1", Role: auth.RoleCustomer, Name: "Ann", Email: "ann@example.com"}
	other    = auth.Principal{ID: "u2", Role: auth.RoleCustomer, Name: "Bob", Email: "bob@example.com"}
	admin    = auth.Principal{ID: "a1", Role: auth.RoleAdministrator, Name: "Root", Email: "root@example.com"}
)

type testEnv struct {
	mux      *http.ServeMux
	notifier *mockNotifier
}

func seedCatalog() *memory.CatalogStore {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return memory.NewCatalogStore(
		catalog.Entry{
			ID:        "p1",
			Name:      "Espresso Machine",
			Price:     catalog.Price{Retail: decimal.RequireFromString("10.00"), Wholesale: decimal.RequireFromString("7.50")},
			Stock:     5,
			Category:  "Kitchen",
			Active:    true,
			CreatedAt: created,
		},
		catalog.Entry{
			ID:        "p2",
			Name:      "Milk Frother",
			Price:     catalog.Price{Retail: decimal.RequireFromString("4.00"), Wholesale: decimal.RequireFromString("3.00")},
			Category:  "Kitchen",
			Active:    false,
			CreatedAt: created.Add(time.Hour),
		},
		catalog.Entry{
			ID:        "p3",
			Name:      "Desk Lamp",
			Price:     catalog.Price{Retail: decimal.RequireFromString("25.00"), Wholesale: decimal.RequireFromString("20.00")},
			Category:  "Office",
			Active:    true,
			CreatedAt: created.Add(2 * time.Hour),
		},
	)
}

func newEnv(t *testing.T, entries catalog.Repository) *testEnv {
	t.Helper()

	notifier := &mockNotifier{}
	orders, err := order.NewService(memory.NewOrderStore(), notifier, order.Options{})
	require.NoError(t, err)
	reviews, err := review.NewService(entries, review.Options{MaxAttempts: 2, RetryInterval: time.Millisecond})
	require.NoError(t, err)

	verifier := &mockVerifier{tokens: map[string]auth.Principal{
		customerToken: customer,
		otherToken:    other,
		adminToken:    admin,
	}}

	mux := http.NewServeMux()
	NewHandler(Config{MaxBodyBytes: 4 << 10, MaxListLimit: 2}, entries, orders, reviews, verifier).Register(mux)

	return &testEnv{mux: mux, notifier: notifier}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out))
	return rec.Code, out
}

func orderBody() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"productId": "p1", "name": "Espresso Machine", "quantity": 2, "unitPrice": "10.00"},
		},
		"shippingInfo": map[string]any{
			"name": "Ann", "address": "1 Main St", "city": "Springfield",
			"postalCode": "12345", "country": "US", "phone": "555-0100",
		},
		"itemsPrice":    20,
		"taxPrice":      3,
		"shippingPrice": 0,
		"totalPrice":    23,
	}
}

func createOrder(t *testing.T, env *testEnv, token string) string {
	t.Helper()
	code, body := env.do(t, http.MethodPost, "/api/orders", token, orderBody())
	require.Equal(t, http.StatusCreated, code, body)
	return body["order"].(map[string]any)["id"].(string)
}

// --- Orders ---

func TestCreateOrder(t *testing.T) {
	env := newEnv(t, seedCatalog())

	code, body := env.do(t, http.MethodPost, "/api/orders", customerToken, orderBody())
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, true, body["success"])

	o := body["order"].(map[string]any)
	assert.Equal(t, "Processing", o["status"])
	assert.Equal(t, "u1", o["userId"])
	assert.Equal(t, json.Number("20.00"), o["itemsPrice"])
	assert.Equal(t, json.Number("23.00"), o["totalPrice"])
	assert.Nil(t, o["deliveredAt"])
	assert.NotEmpty(t, o["paidAt"])
	assert.Len(t, o["items"], 1)
	assert.Equal(t, "Springfield", o["shippingInfo"].(map[string]any)["city"])
	assert.Equal(t, []string{o["id"].(string)}, env.notifier.sent)
}

func TestCreateOrder_Errors(t *testing.T) {
	env := newEnv(t, seedCatalog())

	tests := []struct {
		name    string
		token   string
		header  string
		body    any
		code    int
		message string
	}{
		{
			name:    "no credentials",
			body:    orderBody(),
			code:    http.StatusUnauthorized,
			message: "authentication required",
		},
		{
			name:    "unknown token",
			token:   "forged",
			body:    orderBody(),
			code:    http.StatusUnauthorized,
			message: "invalid token",
		},
		{
			name:    "non-bearer scheme",
			header:  "Basic dXNlcjpwYXNz",
			body:    orderBody(),
			code:    http.StatusUnauthorized,
			message: "authorization header must be a bearer token",
		},
		{
			name:    "malformed json",
			token:   customerToken,
			body:    `{"items": [`,
			code:    http.StatusBadRequest,
			message: "malformed JSON body",
		},
		{
			name:    "empty items",
			token:   customerToken,
			body:    map[string]any{"items": []any{}, "itemsPrice": 0, "totalPrice": 0},
			code:    http.StatusBadRequest,
			message: "order must contain at least one item",
		},
		{
			name:  "items price mismatch",
			token: customerToken,
			body: func() map[string]any {
				b := orderBody()
				b["itemsPrice"] = 19
				return b
			}(),
			code:    http.StatusBadRequest,
			message: "items price 19.00 does not match line items 20.00",
		},
		{
			name:    "body too large",
			token:   customerToken,
			body:    `{"pad":"` + string(bytes.Repeat([]byte("x"), 8<<10)) + `"}`,
			code:    http.StatusBadRequest,
			message: "request body exceeds 4096 bytes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := tt.body.(string)
			if !ok {
				b, err := json.Marshal(tt.body)
				require.NoError(t, err)
				raw = string(b)
			}
			req := httptest.NewRequest(http.MethodPost, "/api/orders", bytes.NewReader([]byte(raw)))
			switch {
			case tt.header != "":
				req.Header.Set("Authorization", tt.header)
			case tt.token != "":
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rec := httptest.NewRecorder()
			env.mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
	assert.Empty(t, env.notifier.sent)
}

func TestGetOrder_Visibility(t *testing.T) {
	env := newEnv(t, seedCatalog())
	id := createOrder(t, env, customerToken)

	code, _ := env.do(t, http.MethodGet, "/api/orders/"+id, customerToken, nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/api/orders/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := env.do(t, http.MethodGet, "/api/orders/"+id, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "order not found", body["message"])

	code, _ = env.do(t, http.MethodGet, "/api/orders/missing", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestListOrders(t *testing.T) {
	env := newEnv(t, seedCatalog())
	createOrder(t, env, customerToken)
	createOrder(t, env, customerToken)
	createOrder(t, env, otherToken)

	code, body := env.do(t, http.MethodGet, "/api/orders/mine", customerToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 2)

	code, body = env.do(t, http.MethodGet, "/api/orders", adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["orders"], 3)
	assert.Equal(t, json.Number("69.00"), body["totalAmount"])

	code, body = env.do(t, http.MethodGet, "/api/orders", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, false, body["success"])
}

func TestUpdateOrderStatus(t *testing.T) {
	env := newEnv(t, seedCatalog())
	id := createOrder(t, env, customerToken)

	code, _ := env.do(t, http.MethodPut, "/api/orders/"+id, customerToken, map[string]any{"status": "Shipped"})
	assert.Equal(t, http.StatusForbidden, code)

	code, body := env.do(t, http.MethodPut, "/api/orders/"+id, adminToken, map[string]any{"status": "Lost"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, `unknown order status "Lost"`, body["message"])

	code, body = env.do(t, http.MethodPut, "/api/orders/"+id, adminToken, map[string]any{"status": "Shipped"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Shipped", body["order"].(map[string]any)["status"])
	assert.Nil(t, body["order"].(map[string]any)["deliveredAt"])

	code, body = env.do(t, http.MethodPut, "/api/orders/"+id, adminToken, map[string]any{"status": "Delivered"})
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, body["order"].(map[string]any)["deliveredAt"])

	for _, status := range []string{"Shipped", "Lost"} {
		code, body = env.do(t, http.MethodPut, "/api/orders/"+id, adminToken, map[string]any{"status": status})
		assert.Equal(t, http.StatusBadRequest, code, status)
		assert.Equal(t, "order already delivered", body["message"], status)
	}
}

func TestDeleteOrder(t *testing.T) {
	env := newEnv(t, seedCatalog())
	id := createOrder(t, env, customerToken)

	code, _ := env.do(t, http.MethodDelete, "/api/orders/"+id, customerToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := env.do(t, http.MethodDelete, "/api/orders/"+id, adminToken, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"success": true}, body)

	code, _ = env.do(t, http.MethodDelete, "/api/orders/"+id, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// --- Reviews ---

func TestReviews(t *testing.T) {
	env := newEnv(t, seedCatalog())

	code, body := env.do(t, http.MethodPost, "/api/items/p1/reviews", customerToken,
		map[string]any{"rating": 5, "comment": "Great coffee"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, json.Number("5"), body["ratingAverage"])
	assert.Equal(t, json.Number("1"), body["reviewCount"])

	code, body = env.do(t, http.MethodPost, "/api/items/p1/reviews", otherToken,
		map[string]any{"rating": 2, "comment": "Too loud"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, json.Number("3.5"), body["ratingAverage"])
	assert.Equal(t, json.Number("2"), body["reviewCount"])

	// A second review by the same author replaces the first.
	code, body = env.do(t, http.MethodPost, "/api/items/p1/reviews", customerToken,
		map[string]any{"rating": 4, "comment": "Good coffee"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, json.Number("3"), body["ratingAverage"])
	assert.Equal(t, json.Number("2"), body["reviewCount"])

	code, body = env.do(t, http.MethodGet, "/api/items/p1/reviews", "", nil)
	require.Equal(t, http.StatusOK, code)
	reviews := body["reviews"].([]any)
	require.Len(t, reviews, 2)
	first := reviews[0].(map[string]any)
	assert.Equal(t, "u1", first["authorId"])
	assert.Equal(t, "Good coffee", first["comment"])
	reviewID := first["id"].(string)

	code, _ = env.do(t, http.MethodDelete, "/api/items/p1/reviews/"+reviewID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = env.do(t, http.MethodDelete, "/api/items/p1/reviews/"+reviewID, adminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, json.Number("2"), body["ratingAverage"])
	assert.Equal(t, json.Number("1"), body["reviewCount"])
}

func TestReviews_Errors(t *testing.T) {
	env := newEnv(t, seedCatalog())

	tests := []struct {
		name  string
		path  string
		token string
		body  any
		code  int
	}{
		{"unauthenticated", "/api/items/p1/reviews", "", map[string]any{"rating": 5, "comment": "Nice"}, http.StatusUnauthorized},
		{"rating out of range", "/api/items/p1/reviews", customerToken, map[string]any{"rating": 6, "comment": "Nice"}, http.StatusBadRequest},
		{"comment too short", "/api/items/p1/reviews", customerToken, map[string]any{"rating": 3, "comment": " a "}, http.StatusBadRequest},
		{"rating not a number", "/api/items/p1/reviews", customerToken, `{"rating":"five","comment":"Nice"}`, http.StatusBadRequest},
		{"unknown item", "/api/items/nope/reviews", customerToken, map[string]any{"rating": 3, "comment": "Nice"}, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["message"])
		})
	}

	code, _ := env.do(t, http.MethodGet, "/api/items/nope/reviews", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReviews_ConflictExhausted(t *testing.T) {
	env := newEnv(t, contendedCatalog{CatalogStore: seedCatalog()})

	code, body := env.do(t, http.MethodPost, "/api/items/p1/reviews", customerToken,
		map[string]any{"rating": 5, "comment": "Great coffee"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "item was modified concurrently, please retry", body["message"])
}

// --- Catalog ---

func TestListItems(t *testing.T) {
	env := newEnv(t, seedCatalog())

	tests := []struct {
		name  string
		query string
		code  int
		ids   []string
	}{
		{"defaults to active and caps at the list limit", "", http.StatusOK, []string{"p3", "p1"}},
		{"category all", "?category=all", http.StatusOK, []string{"p3", "p1"}},
		{"category is case-insensitive", "?category=kitchen", http.StatusOK, []string{"p1"}},
		{"include inactive", "?category=kitchen&active=false", http.StatusOK, []string{"p2", "p1"}},
		{"keyword", "?keyword=LAMP", http.StatusOK, []string{"p3"}},
		{"explicit limit", "?limit=1", http.StatusOK, []string{"p3"}},
		{"limit above cap is clamped", "?limit=50&active=false", http.StatusOK, []string{"p3", "p2"}},
		{"invalid limit", "?limit=abc", http.StatusBadRequest, nil},
		{"zero limit", "?limit=0", http.StatusBadRequest, nil},
		{"invalid active", "?active=maybe", http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodGet, "/api/items"+tt.query, "", nil)
			require.Equal(t, tt.code, code)
			if tt.code != http.StatusOK {
				assert.Equal(t, false, body["success"])
				return
			}
			var got []string
			for _, it := range body["items"].([]any) {
				got = append(got, it.(map[string]any)["id"].(string))
			}
			assert.Equal(t, tt.ids, got)
			assert.Equal(t, json.Number(jsonInt(len(tt.ids))), body["count"])
		})
	}
}

func jsonInt(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestGetItem(t *testing.T) {
	env := newEnv(t, seedCatalog())

	code, body := env.do(t, http.MethodGet, "/api/items/p1", "", nil)
	require.Equal(t, http.StatusOK, code)
	item := body["item"].(map[string]any)
	assert.Equal(t, "Espresso Machine", item["name"])
	assert.Equal(t, json.Number("10.00"), item["price"].(map[string]any)["retail"])
	assert.Equal(t, json.Number("7.50"), item["price"].(map[string]any)["wholesale"])
	assert.Equal(t, []any{}, item["reviews"])
	assert.Equal(t, json.Number("0"), item["reviewCount"])

	code, body = env.do(t, http.MethodGet, "/api/items/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "item not found", body["message"])
}

func TestInternalErrorsAreHidden(t *testing.T) {
	env := newEnv(t, brokenCatalog{})

	for _, path := range []string{"/api/items", "/api/items/p1", "/api/items/p1/reviews"} {
		code, body := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusInternalServerError, code, path)
		assert.Equal(t, "internal server error", body["message"], path)
		assert.NotContains(t, body["message"], "connection reset")
	}
}

// --- Cart ---

func TestCartTotals(t *testing.T) {
	env := newEnv(t, seedCatalog())

	code, body := env.do(t, http.MethodPost, "/api/cart/totals", "", map[string]any{
		"items": []map[string]any{
			{"productId": "p1", "name": "Espresso Machine", "quantity": 2, "unitPrice": 10},
		},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, json.Number("20.00"), body["itemsPrice"])
	assert.Equal(t, json.Number("23.00"), body["totalPrice"])

	code, body = env.do(t, http.MethodPost, "/api/cart/totals", "", map[string]any{
		"items": []map[string]any{{"productId": "p1", "quantity": 0, "unitPrice": 10}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "item 1: quantity must be greater than 0", body["message"])
}

func TestCheckout(t *testing.T) {
	env := newEnv(t, seedCatalog())

	payload := func(card string) map[string]any {
		return map[string]any{
			"items": []map[string]any{
				{"productId": "p1", "name": "Espresso Machine", "quantity": 2, "unitPrice": "10.00"},
			},
			"shippingInfo": map[string]any{
				"name": "Ann", "address": "1 Main St", "city": "Springfield",
				"postalCode": "12345", "country": "US", "phone": "555-0100",
			},
			"paymentInfo": map[string]any{"cardNumber": card, "cvv": "123"},
		}
	}

	code, body := env.do(t, http.MethodPost, "/api/checkout", customerToken, payload("4242"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
	assert.Empty(t, env.notifier.sent)

	code, _ = env.do(t, http.MethodPost, "/api/checkout", "", payload("4242 4242 4242 4242"))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = env.do(t, http.MethodPost, "/api/checkout", customerToken, payload("4242 4242 4242 4242"))
	require.Equal(t, http.StatusCreated, code)
	o := body["order"].(map[string]any)
	assert.Equal(t, json.Number("20.00"), o["itemsPrice"])
	assert.Equal(t, json.Number("3.00"), o["taxPrice"])
	assert.Equal(t, json.Number("23.00"), o["totalPrice"])
	assert.Len(t, env.notifier.sent, 1)
}
