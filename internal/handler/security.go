package handler

import (
	"net/http"
	"strings"

	"github.com/xenking/storefront/internal/domain/apperr"
	"github.com/xenking/storefront/internal/domain/auth"
)

// principal resolves the caller from the Authorization header. A missing
// header yields the zero Principal, which services reject where
// authentication is required. A present but invalid credential is an error.
func (h *Handler) principal(r *http.Request) (auth.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.Principal{}, nil
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return auth.Principal{}, apperr.Unauthenticated("authorization header must be a bearer token")
	}
	return h.verifier.Verify(r.Context(), token)
}
