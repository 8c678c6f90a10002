package app

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/auth"
	domainauth "github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

func TestVerifiedPrincipal(t *testing.T) {
	secret := []byte("rate-limit-secret")
	verifier, err := auth.NewJWTVerifier(secret)
	require.NoError(t, err)

	valid, err := auth.Issue(secret, domainauth.Principal{ID: "u-7", Role: domainauth.RoleCustomer}, time.Hour)
	require.NoError(t, err)
	foreign, err := auth.Issue([]byte("other-secret"), domainauth.Principal{ID: "u-8", Role: domainauth.RoleCustomer}, time.Hour)
	require.NoError(t, err)

	key := httpmiddleware.PrincipalKey(verifiedPrincipal(verifier))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "verified token", header: "Bearer " + valid, want: "principal:u-7"},
		{name: "foreign signature", header: "Bearer " + foreign, want: "ip:192.0.2.1"},
		{name: "made-up token", header: "Bearer garbage-1", want: "ip:192.0.2.1"},
		{name: "anonymous", want: "ip:192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/items", nil)
			req.RemoteAddr = "192.0.2.1:4000"
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, key(req))
		})
	}
}
