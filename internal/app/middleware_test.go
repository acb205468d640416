package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxis-crm/praxis/internal/authz"
	"github.com/praxis-crm/praxis/internal/principals"
	"github.com/praxis-crm/praxis/internal/shared"
)

type stubDirectory struct {
	records map[int64]principals.Record
	err     error
}

func (s *stubDirectory) Lookup(ctx context.Context, id int64) (principals.Record, error) {
	if s.err != nil {
		return principals.Record{}, s.err
	}
	r, ok := s.records[id]
	if !ok {
		return principals.Record{}, fmt.Errorf("principal %d: %w", id, shared.ErrNotFound)
	}
	return r, nil
}

func (s *stubDirectory) List(ctx context.Context) ([]principals.Record, error) {
	return nil, nil
}

func newStackRouter(directory principals.Directory) (http.Handler, *authz.Principal) {
	var seen authz.Principal
	r := chi.NewRouter()
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:    slog.Default(),
		Directory: directory,
	}) {
		r.Use(mw)
	}
	r.Get("/probe", func(w http.ResponseWriter, req *http.Request) {
		if principal, ok := authz.PrincipalFromContext(req.Context()); ok {
			seen = principal
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
	return r, &seen
}

func TestPrincipalMiddleware(t *testing.T) {
	directory := &stubDirectory{records: map[int64]principals.Record{
		7: {ID: 7, Role: authz.RoleStandard, Active: true},
		8: {ID: 8, Role: authz.RoleElevatedOrg, Active: false},
	}}
	router, seen := newStackRouter(directory)

	t.Run("resolves principal from header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set(PrincipalHeader, "7")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, int64(7), seen.ID)
		assert.Equal(t, authz.RoleStandard, seen.Role)
		assert.True(t, seen.Active)
	})

	t.Run("inactive principal still passes through", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set(PrincipalHeader, "8")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, seen.Active, "denial belongs to the resolver, not the edge")
	})

	t.Run("absent header is anonymous", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("malformed header rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set(PrincipalHeader, "not-a-number")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown principal rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/probe", nil)
		req.Header.Set(PrincipalHeader, "999")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestSecureHeadersApplied(t *testing.T) {
	router, _ := newStackRouter(&stubDirectory{})

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
