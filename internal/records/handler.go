package records

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

type connFunc func(ctx context.Context, s scope.Scope, fn func(ctx context.Context, q database.Querier) error) error

// Handler serves /api/v1/records/{kind}.
type Handler struct {
	withConn connFunc
	store    *Store
	audit    audit.Logger
	validate *validator.Validate
}

// NewHandler creates a record handler running every statement on a
// connection scoped to the request's pass.
func NewHandler(pool *pgxpool.Pool, store *Store, logger audit.Logger) *Handler {
	if logger == nil {
		logger = audit.NopLogger{}
	}
	return &Handler{
		withConn: func(ctx context.Context, s scope.Scope, fn func(ctx context.Context, q database.Querier) error) error {
			return scope.WithConnection(ctx, pool, s, fn)
		},
		store:    store,
		audit:    logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes registers the record routes on mux. Each route is guarded
// by the permission of the kind named in its path.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, engine *rbac.Evaluator, opts ...rbac.MiddlewareOption) {
	mux.Handle("GET /api/v1/records/{kind}", h.guarded(engine, rbac.ActionView, h.HandleList, opts))
	mux.Handle("POST /api/v1/records/{kind}", h.guarded(engine, rbac.ActionCreate, h.HandleCreate, opts))
	mux.Handle("GET /api/v1/records/{kind}/{id}", h.guarded(engine, rbac.ActionView, h.HandleGet, opts))
	mux.Handle("DELETE /api/v1/records/{kind}/{id}", h.guarded(engine, rbac.ActionDelete, h.HandleDelete, opts))
}

func (h *Handler) guarded(engine *rbac.Evaluator, action rbac.Action, next http.HandlerFunc, opts []rbac.MiddlewareOption) http.Handler {
	perKind := make(map[string]http.Handler, len(kinds))
	for _, k := range Kinds() {
		perKind[k.Name] = rbac.RequirePermission(engine, k.Resource, action, opts...)(next)
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler, ok := perKind[r.PathValue("kind")]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrUnknownKind.Error()})
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// HandleList returns records of one kind.
// GET /api/v1/records/{kind}?limit=50&offset=0
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	kind, pass, ok := h.prepare(w, r)
	if !ok {
		return
	}

	params := ListParams{Limit: defaultLimit}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= maxLimit {
			params.Limit = n
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			params.Offset = n
		}
	}

	if pass.Scope.IsUnscoped() {
		evt := audit.EventFor(pass.Identity, audit.ActionUnscopedRead)
		evt.ResourceType = kind.Name
		evt.Source = audit.SourceAPI
		h.audit.Log(r.Context(), evt)
	}

	var list []Record
	err := h.withConn(r.Context(), pass.Scope, func(ctx context.Context, q database.Querier) error {
		var listErr error
		list, listErr = h.store.List(ctx, q, pass.Scope, kind, params)
		return listErr
	})
	if err != nil {
		slog.Error("listing records", "kind", kind.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing records failed"})
		return
	}
	if list == nil {
		list = []Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": list, "count": len(list)})
}

// HandleGet returns one record.
// GET /api/v1/records/{kind}/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	kind, pass, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var rec *Record
	err := h.withConn(r.Context(), pass.Scope, func(ctx context.Context, q database.Querier) error {
		var getErr error
		rec, getErr = h.store.Get(ctx, q, pass.Scope, kind, id)
		return getErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		slog.Error("getting record", "kind", kind.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetching record failed"})
		return
	}

	if pass.Scope.IsUnscoped() {
		evt := audit.EventFor(pass.Identity, audit.ActionUnscopedRead)
		evt.OrganizationID = audit.ParseID(rec.OrganizationID)
		evt.ResourceType = kind.Name
		evt.ResourceID = audit.ParseID(rec.ID)
		evt.Source = audit.SourceAPI
		h.audit.Log(r.Context(), evt)
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleCreate creates a record in the caller's organization.
// POST /api/v1/records/{kind}
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	kind, pass, ok := h.prepare(w, r)
	if !ok {
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required; organization_id must be a UUID"})
		return
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "data must be a JSON value"})
		return
	}

	owner, err := OwnerFor(pass.Scope, in.OrganizationID)
	if err != nil {
		writeOwnerError(w, err)
		return
	}

	// The row is written under a connection scoped to its owner so the
	// row-level-security check applies to it as well.
	writeScope := scope.Tenant(owner)
	var rec *Record
	err = h.withConn(r.Context(), writeScope, func(ctx context.Context, q database.Querier) error {
		var createErr error
		rec, createErr = h.store.Create(ctx, q, writeScope, kind, in)
		return createErr
	})
	if err != nil {
		if errors.Is(err, ErrOrganizationUnknown) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": ErrOrganizationUnknown.Error()})
			return
		}
		slog.Error("creating record", "kind", kind.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "record creation failed"})
		return
	}

	evt := audit.EventFor(pass.Identity, audit.ActionRecordCreated)
	evt.OrganizationID = audit.ParseID(rec.OrganizationID)
	evt.ResourceType = kind.Name
	evt.ResourceID = audit.ParseID(rec.ID)
	evt.Source = audit.SourceAPI
	h.audit.Log(r.Context(), evt)

	writeJSON(w, http.StatusCreated, rec)
}

// HandleDelete removes a record.
// DELETE /api/v1/records/{kind}/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	kind, pass, ok := h.prepare(w, r)
	if !ok {
		return
	}
	id, ok := recordID(w, r)
	if !ok {
		return
	}

	var owner string
	err := h.withConn(r.Context(), pass.Scope, func(ctx context.Context, q database.Querier) error {
		var deleteErr error
		owner, deleteErr = h.store.Delete(ctx, q, pass.Scope, kind, id)
		return deleteErr
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "record not found"})
			return
		}
		slog.Error("deleting record", "kind", kind.Name, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "deleting record failed"})
		return
	}

	evt := audit.EventFor(pass.Identity, audit.ActionRecordDeleted)
	evt.OrganizationID = audit.ParseID(owner)
	evt.ResourceType = kind.Name
	evt.ResourceID = audit.ParseID(id)
	evt.Source = audit.SourceAPI
	if pass.Scope.IsUnscoped() {
		evt.Metadata = map[string]any{"unscoped": true}
	}
	h.audit.Log(r.Context(), evt)

	w.WriteHeader(http.StatusNoContent)
}

// prepare resolves the kind and refuses requests without a data scope.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request) (Kind, scope.Pass, bool) {
	kind, ok := LookupKind(r.PathValue("kind"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": ErrUnknownKind.Error()})
		return Kind{}, scope.Pass{}, false
	}
	pass := scope.PassFrom(r.Context())
	if !pass.Scope.Defined() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no data scope"})
		return Kind{}, scope.Pass{}, false
	}
	return kind, pass, true
}

func recordID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record id"})
		return "", false
	}
	return id, true
}

func writeOwnerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrOrganizationRequired):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, ErrOrganizationMismatch):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no data scope"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
