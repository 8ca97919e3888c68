package rbac_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
)

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingAudit) Log(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) Close() error { return nil }

func TestRBACMiddleware_Allowed(t *testing.T) {
	handler := rbac.RequirePermission(newEvaluator(t), rbac.ResourceInvoices, rbac.ActionView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), member()))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACMiddleware_Denied(t *testing.T) {
	rec := &recordingAudit{}
	denied := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_denied_total"}, []string{"resource", "action"})

	handler := rbac.RequirePermission(newEvaluator(t), rbac.ResourceInvoices, rbac.ActionDelete,
		rbac.WithAuditLogger(rec), rbac.WithDenialCounter(denied),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/records/invoices/1", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), member()))
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "forbidden", body["error"])
	assert.Equal(t, "You don't have permission to delete invoices.", body["message"])

	require.Len(t, rec.events, 1)
	assert.Equal(t, audit.ActionAccessDenied, rec.events[0].Action)
	assert.Equal(t, "invoices", rec.events[0].ResourceType)
	assert.Equal(t, "delete", rec.events[0].Metadata["action"])

	assert.Equal(t, 1.0, testutil.ToFloat64(denied.WithLabelValues("invoices", "delete")))
}

func TestRBACMiddleware_NoIdentity(t *testing.T) {
	handler := rbac.RequirePermission(newEvaluator(t), rbac.ResourceInvoices, rbac.ActionView)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
