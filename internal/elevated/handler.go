package elevated

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/scope"
)

// Handler exposes elevated-session acquisition, revocation and the
// verification endpoint used by RemoteVerifier deployments.
type Handler struct {
	manager *Manager
	tokens  *TokenService
}

func NewHandler(manager *Manager, tokens *TokenService) *Handler {
	return &Handler{manager: manager, tokens: tokens}
}

type acquireResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// HandleAcquire handles POST /api/v1/superadmin/session. The caller must
// already be signed in with an elevated role, and the credentials must be
// for that same account under that same role. A signed-in identity without
// an email is refused.
func (h *Handler) HandleAcquire(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	if !identity.Role.Elevated() || !identity.IsActive {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "elevated role required"})
		return
	}

	var creds Credentials
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := ValidateCredentials(creds); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "email and password are required"})
		return
	}
	if identity.Email == "" || !strings.EqualFold(identity.Email, creds.Email) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": ErrAccountMismatch.Error()})
		return
	}

	token, err := h.manager.AcquireFor(r.Context(), identity, creds)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		if errors.Is(err, ErrAccountMismatch) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": ErrAccountMismatch.Error()})
			return
		}
		slog.Error("acquiring elevated session", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "elevated sign-in unavailable"})
		return
	}

	writeJSON(w, http.StatusCreated, acquireResponse{
		Token:     token,
		ExpiresIn: int(h.tokens.TTL().Seconds()),
	})
}

// HandleRevoke handles DELETE /api/v1/superadmin/session.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	if err := h.manager.Revoke(r.Context(), scope.SessionKey(identity)); err != nil {
		slog.Error("revoking elevated session", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "revoke failed"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /api/v1/superadmin/session. It reports the state
// recorded while this request's pass was built.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	pass := scope.PassFrom(r.Context())
	if pass.Identity == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"elevated": pass.Elevated,
		"state":    h.manager.State(scope.SessionKey(pass.Identity)).String(),
		"scope":    pass.Scope.String(),
	})
}

// HandleVerify handles POST /api/v1/superadmin/verify with the elevated
// token as bearer credential. It answers {"verified": bool} and never
// explains a rejection.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		writeJSON(w, http.StatusOK, map[string]bool{"verified": false})
		return
	}
	_, err := h.tokens.Validate(token)
	writeJSON(w, http.StatusOK, map[string]bool{"verified": err == nil})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
