package audit

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

// Handler serves audit query endpoints.
type Handler struct {
	db     database.Querier
	store  *Store
	logger Logger
}

// NewHandler creates an audit query handler. Cross-organization reads are
// themselves recorded through logger.
func NewHandler(db database.Querier, store *Store, logger Logger) *Handler {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Handler{db: db, store: store, logger: logger}
}

// HandleListEvents returns audit events visible to the request's scope.
// GET /api/v1/audit/events?limit=50&after=<RFC3339>&action=...
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	pass := scope.PassFrom(r.Context())
	if !pass.Scope.Defined() {
		writeAuditJSON(w, http.StatusForbidden, map[string]string{"error": "no data scope"})
		return
	}

	params := ListEventsParams{Limit: 50}
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			params.Limit = n
		}
	}
	if raw := query.Get("after"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.After = &t
		}
	}
	if raw := query.Get("before"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			params.Before = &t
		}
	}
	if v := query.Get("action"); v != "" {
		params.Action = &v
	}
	if v := query.Get("resource_type"); v != "" {
		params.ResourceType = &v
	}
	if v := query.Get("source"); v != "" {
		params.Source = &v
	}
	if id := ParseID(query.Get("user_id")); id != nil {
		params.UserID = id
	}

	if h.db == nil {
		writeAuditJSON(w, http.StatusOK, map[string]any{"events": []any{}, "count": 0})
		return
	}

	if pass.Scope.IsUnscoped() {
		evt := EventFor(pass.Identity, ActionUnscopedRead)
		evt.ResourceType = "audit_events"
		evt.Source = SourceAPI
		h.logger.Log(r.Context(), evt)
	}

	events, err := h.store.ListEvents(r.Context(), h.db, pass.Scope, params)
	if err != nil {
		slog.Error("listing audit events", "error", err)
		writeAuditJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeAuditJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

func writeAuditJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
