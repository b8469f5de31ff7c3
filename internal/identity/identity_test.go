package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playdo-labs/playdo/internal/auth"
	"github.com/playdo-labs/playdo/internal/domain"
)

type fakeUsers map[int64]*domain.User

func (f fakeUsers) GetUser(_ context.Context, id int64) (*domain.User, error) {
	if id == 500 {
		return nil, errors.New("db down")
	}
	u, ok := f[id]
	if !ok {
		return nil, &domain.NotFoundError{Resource: "user", ID: id}
	}
	return u, nil
}

func setup(t *testing.T) (*auth.TokenService, fakeUsers) {
	t.Helper()
	return auth.NewTokenService("identity-test-secret-identity-test", time.Hour), fakeUsers{
		1: {ID: 1, Username: "student"},
		2: {ID: 2, Username: "mentor", IsAdmin: true},
	}
}

func tokenFor(t *testing.T, ts *auth.TokenService, id int64) string {
	t.Helper()
	token, _, err := ts.Issue(&domain.User{ID: id})
	require.NoError(t, err)
	return token
}

func TestRequireAuth(t *testing.T) {
	ts, users := setup(t)

	var seen *domain.User
	h := RequireAuth(ts, users)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		assert.NotNil(t, ClaimsFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"deleted user", "Bearer " + tokenFor(t, ts, 99), http.StatusUnauthorized},
		{"store failure", "Bearer " + tokenFor(t, ts, 500), http.StatusInternalServerError},
		{"valid", "Bearer " + tokenFor(t, ts, 1), http.StatusNoContent},
		{"lowercase scheme", "bearer " + tokenFor(t, ts, 1), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusNoContent {
				require.NotNil(t, seen)
				assert.Equal(t, "student", seen.Username)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	ts, users := setup(t)
	h := RequireAuth(ts, users)(RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(2), UserIDFromContext(r.Context()))
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ts, 1))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, ts, 2))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	RequireAdmin(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestContextAccessorsOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, UserFromContext(ctx))
	assert.Zero(t, UserIDFromContext(ctx))
	assert.Nil(t, ClaimsFromContext(ctx))
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", IPFromRequest(req))
	req.RemoteAddr = "weird"
	assert.Equal(t, "weird", IPFromRequest(req))
}
