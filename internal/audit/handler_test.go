package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) Close() error { return nil }

func withPass(r *http.Request, p scope.Pass) *http.Request {
	return r.WithContext(scope.WithPass(r.Context(), p))
}

func TestHandleListEvents_NilPool(t *testing.T) {
	h := NewHandler(nil, NewStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events?limit=10", nil)
	req = withPass(req, scope.Pass{Scope: scope.Tenant("a0eebc99-9c0b-4ef8-bb6d-6bb9bd380a11")})
	w := httptest.NewRecorder()

	h.HandleListEvents(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
	assert.Contains(t, w.Body.String(), `"events":[]`)
}

func TestHandleListEvents_UndefinedScope(t *testing.T) {
	h := NewHandler(&mockDB{}, NewStore(), nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	w := httptest.NewRecorder()

	h.HandleListEvents(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandleListEvents_UnscopedReadIsAudited(t *testing.T) {
	rec := &recordingLogger{}
	h := NewHandler(&mockDB{queryErr: errors.New("boom")}, NewStore(), rec)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	req = withPass(req, scope.Pass{
		Identity: &auth.Identity{UserID: "8f14e45f-ceea-4e7a-9a3b-2b8f7c1d0e11", Role: auth.RoleSuperAdmin, IsActive: true},
		Elevated: true,
		Scope:    scope.Unscoped(),
	})
	w := httptest.NewRecorder()

	h.HandleListEvents(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
	require.Len(t, rec.events, 1)
	assert.Equal(t, ActionUnscopedRead, rec.events[0].Action)
	require.NotNil(t, rec.events[0].UserID)
	assert.Nil(t, rec.events[0].OrganizationID)
}

func TestHandleListEvents_TenantReadNotAudited(t *testing.T) {
	rec := &recordingLogger{}
	h := NewHandler(&mockDB{queryErr: errors.New("boom")}, NewStore(), rec)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
	req = withPass(req, scope.Pass{Scope: scope.Tenant("org-1")})
	h.HandleListEvents(httptest.NewRecorder(), req)

	assert.Empty(t, rec.events)
}
