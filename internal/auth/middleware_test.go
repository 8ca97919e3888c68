package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrenchbay/wrenchbay/internal/auth"
)

func newTestTokenService() *auth.TokenService {
	return auth.NewTokenService("test-signing-key-must-be-32-chars!!", "wrenchbay", 24)
}

type fakeRefresher struct {
	identity *auth.Identity
	err      error
}

func (f *fakeRefresher) Refresh(_ context.Context, _ *auth.Identity) (*auth.Identity, error) {
	return f.identity, f.err
}

func memberToken(t *testing.T, svc *auth.TokenService) string {
	t.Helper()
	token, err := svc.CreateAccessToken(&auth.Identity{
		UserID:         "user-123",
		Role:           auth.RoleMember,
		OrganizationID: strPtr("org-1"),
		IsActive:       true,
	})
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	var gotIdentity *auth.Identity
	handler := auth.Middleware(tokenSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = auth.GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotIdentity)
	assert.Equal(t, "user-123", gotIdentity.UserID)
}

func TestAuthMiddleware_MissingToken(t *testing.T) {
	handler := auth.Middleware(newTestTokenService())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthMiddleware_CookieToken(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	var got *auth.Identity
	handler := auth.Middleware(tokenSvc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetIdentity(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: token})
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, "user-123", got.UserID)
}

func TestAuthMiddleware_RefreshAppliesReassignment(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	refresher := &fakeRefresher{identity: &auth.Identity{
		UserID:         "user-123",
		Role:           auth.RoleAdmin,
		OrganizationID: strPtr("org-2"),
		IsActive:       true,
	}}

	var got *auth.Identity
	handler := auth.Middleware(tokenSvc, auth.WithRefresher(refresher))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetIdentity(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, got)
	assert.Equal(t, auth.RoleAdmin, got.Role)
	assert.Equal(t, "org-2", *got.OrganizationID)
}

func TestAuthMiddleware_RefreshFailureIsLoading(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	handler := auth.Middleware(tokenSvc, auth.WithRefresher(&fakeRefresher{err: errors.New("db down")}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestAuthMiddleware_DeletedUserUnauthorized(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	handler := auth.Middleware(tokenSvc, auth.WithRefresher(&fakeRefresher{err: auth.ErrUserNotFound}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler should not be called")
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOptionalMiddleware_NoToken(t *testing.T) {
	var snap auth.Snapshot
	handler := auth.OptionalMiddleware(newTestTokenService())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap = auth.SnapshotFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, snap.Ready)
	assert.Nil(t, snap.Identity)
	assert.False(t, snap.Authenticated())
}

func TestOptionalMiddleware_LoadingSnapshot(t *testing.T) {
	tokenSvc := newTestTokenService()
	token := memberToken(t, tokenSvc)

	var snap auth.Snapshot
	handler := auth.OptionalMiddleware(tokenSvc, auth.WithRefresher(&fakeRefresher{err: errors.New("timeout")}))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap = auth.SnapshotFrom(r.Context())
		}))

	req := httptest.NewRequest(http.MethodGet, "/customers", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, snap.Ready)
	assert.Nil(t, snap.Identity)
}
