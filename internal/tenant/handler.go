package tenant

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

// Handler handles organization HTTP endpoints. Permission checks are
// applied externally via rbac.RequirePermission.
type Handler struct {
	db       database.Querier
	store    *Store
	audit    audit.Logger
	validate *validator.Validate
}

func NewHandler(db database.Querier, store *Store, logger audit.Logger) *Handler {
	if logger == nil {
		logger = audit.NopLogger{}
	}
	return &Handler{
		db:       db,
		store:    store,
		audit:    logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// HandleCreate creates an organization. Only a cross-organization caller
// may create one.
// POST /api/v1/organizations
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<10)

	pass := scope.PassFrom(r.Context())
	if !pass.Scope.IsUnscoped() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "an elevated session is required"})
		return
	}

	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	in = in.Normalize()
	if err := h.validate.Struct(in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required (at most 120 characters); slug at most 63 characters"})
		return
	}

	o, err := h.store.Create(r.Context(), h.db, in.Name, in.Slug)
	if err != nil {
		if errors.Is(err, ErrInvalidSlug) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		if errors.Is(err, ErrSlugTaken) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("creating organization", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "organization creation failed"})
		return
	}

	evt := audit.EventFor(pass.Identity, audit.ActionOrganizationCreated)
	evt.OrganizationID = audit.ParseID(o.ID)
	evt.ResourceType = "organizations"
	evt.ResourceID = audit.ParseID(o.ID)
	evt.Source = audit.SourceAPI
	h.audit.Log(r.Context(), evt)

	writeJSON(w, http.StatusCreated, o)
}

// HandleGet returns an organization visible to the caller. An unscoped
// fetch is recorded as a cross-organization read.
// GET /api/v1/organizations/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid organization id"})
		return
	}
	pass := scope.PassFrom(r.Context())
	if !pass.Scope.Defined() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no data scope"})
		return
	}

	o, err := h.store.GetByID(r.Context(), h.db, pass.Scope, id)
	if err != nil {
		if errors.Is(err, ErrOrganizationNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "organization not found"})
			return
		}
		slog.Error("getting organization", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fetching organization failed"})
		return
	}

	if pass.Scope.IsUnscoped() {
		evt := audit.EventFor(pass.Identity, audit.ActionUnscopedRead)
		evt.OrganizationID = audit.ParseID(o.ID)
		evt.ResourceType = "organizations"
		evt.ResourceID = audit.ParseID(o.ID)
		evt.Source = audit.SourceAPI
		h.audit.Log(r.Context(), evt)
	}

	writeJSON(w, http.StatusOK, o)
}

// HandleList returns organizations visible to the caller. An unscoped
// listing is recorded as a cross-organization read.
// GET /api/v1/organizations
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	pass := scope.PassFrom(r.Context())
	if !pass.Scope.Defined() {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "no data scope"})
		return
	}

	if pass.Scope.IsUnscoped() {
		evt := audit.EventFor(pass.Identity, audit.ActionUnscopedRead)
		evt.ResourceType = "organizations"
		evt.Source = audit.SourceAPI
		h.audit.Log(r.Context(), evt)
	}

	orgs, err := h.store.List(r.Context(), h.db, pass.Scope)
	if err != nil {
		slog.Error("listing organizations", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "listing organizations failed"})
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}

	writeJSON(w, http.StatusOK, orgs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
