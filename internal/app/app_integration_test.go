//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront/internal/auth"
	domainauth "github.com/xenking/storefront/internal/domain/auth"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort("6379/tcp"),
			),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return net.JoinHostPort(host, port.Port())
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitReady(t *testing.T, baseURL string) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 200*time.Millisecond)
}

func TestRun_CheckoutPublishesConfirmation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	redisAddr := startRedis(t, ctx)
	secret := []byte("integration-secret")
	cfg := &Config{
		Addr:        freeAddr(t),
		Storage:     StorageMemory,
		CatalogFile: "../../db/seed/catalog.json",
		JWTSecret:   string(secret),
		Redis:       RedisConfig{Addr: redisAddr, Channel: "orders.test"},
		Reviews:     ReviewsConfig{MaxAttempts: 5, RetryInterval: 10 * time.Millisecond},
		RateLimit:   RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:        CORSConfig{Origins: []string{"*"}},
		Graceful:    GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}
	require.NoError(t, cfg.Validate())

	sub := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "orders.test")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	lg := zaptest.NewLogger(t)
	runCtx, stop := context.WithCancel(zctx.Base(ctx, lg))
	done := make(chan error, 1)
	go func() { done <- Run(runCtx, lg, noopTelemetry{}, cfg) }()
	t.Cleanup(func() {
		stop()
		assert.NoError(t, <-done)
	})

	baseURL := "http://" + cfg.Addr
	waitReady(t, baseURL)

	resp, err := http.Get(baseURL + "/api/items?category=kitchen")
	require.NoError(t, err)
	var items struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&items))
	resp.Body.Close()
	assert.True(t, items.Success)
	assert.Equal(t, 3, items.Count)

	buyer := domainauth.Principal{ID: "u-42", Role: domainauth.RoleCustomer, Name: "Ann", Email: "ann@example.com"}
	token, err := auth.Issue(secret, buyer, time.Hour)
	require.NoError(t, err)

	body, err := json.Marshal(map[string]any{
		"items": []map[string]any{
			{"productId": "milk-frother", "name": "Milk Frother", "quantity": 2, "unitPrice": "39.90"},
		},
		"shippingInfo": map[string]any{
			"name": "Ann", "address": "1 Main St", "city": "Springfield",
			"postalCode": "12345", "country": "US", "phone": "555-0100",
		},
		"paymentInfo": map[string]any{"cardNumber": "4242-4242-4242-4242", "cvv": "123"},
	})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/checkout", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	var created struct {
		Success bool `json:"success"`
		Order   struct {
			ID         string      `json:"id"`
			Reference  string      `json:"reference"`
			TotalPrice json.Number `json:"totalPrice"`
		} `json:"order"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, json.Number("91.77"), created.Order.TotalPrice)

	msgCtx, msgCancel := context.WithTimeout(ctx, 10*time.Second)
	defer msgCancel()
	msg, err := ps.ReceiveMessage(msgCtx)
	require.NoError(t, err)

	var event struct {
		Type    string `json:"type"`
		OrderID string `json:"order_id"`
		Subject string `json:"subject"`
		Total   string `json:"total"`
		To      struct {
			Email string `json:"email"`
		} `json:"to"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, created.Order.ID, event.OrderID)
	assert.Equal(t, fmt.Sprintf("Order confirmation #%s", created.Order.Reference), event.Subject)
	assert.Equal(t, "91.77", event.Total)
	assert.Equal(t, "ann@example.com", event.To.Email)
}
