package scope

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// Pass is everything authorization needs about one request, computed once
// and read by every guard, handler and store in that request.
type Pass struct {
	Identity *auth.Identity
	// Loading is set while the identity is not yet settled. Nothing may be
	// allowed in this state.
	Loading bool
	// Elevated is true when the identity's elevated session verified valid.
	Elevated bool
	Scope    Scope
}

// Authenticated reports whether the pass carries a settled identity.
func (p Pass) Authenticated() bool {
	return !p.Loading && p.Identity != nil
}

// ElevatedVerifier reports whether the elevated session stored under
// sessionKey is currently valid. Implementations fail closed.
type ElevatedVerifier interface {
	Verify(ctx context.Context, sessionKey string) bool
}

// NewPass builds the pass for snap. verifier may be nil, in which case no
// identity is ever unscoped.
func NewPass(ctx context.Context, snap auth.Snapshot, verifier ElevatedVerifier) (Pass, error) {
	if !snap.Ready {
		return Pass{Loading: true}, nil
	}
	identity := snap.Identity
	if identity == nil {
		return Pass{}, nil
	}

	elevated := false
	if identity.Role.Elevated() && identity.IsActive && verifier != nil {
		elevated = verifier.Verify(ctx, SessionKey(identity))
	}

	s, err := Resolve(identity, elevated)
	if err != nil {
		return Pass{}, err
	}
	return Pass{Identity: identity, Elevated: elevated, Scope: s}, nil
}

// SessionKey is the credential-store key of identity's elevated session.
func SessionKey(identity *auth.Identity) string {
	return "elevated:" + identity.UserID
}

type passContextKey struct{}

// WithPass stores p in ctx.
func WithPass(ctx context.Context, p Pass) context.Context {
	return context.WithValue(ctx, passContextKey{}, p)
}

// PassFrom returns the pass stored in ctx. A context without one yields the
// zero pass: unauthenticated with undefined scope.
func PassFrom(ctx context.Context) Pass {
	p, _ := ctx.Value(passContextKey{}).(Pass)
	return p
}

// Middleware computes the request's pass from the auth snapshot and stores
// it in the context. A configuration error aborts the request with 500.
func Middleware(verifier ElevatedVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := NewPass(r.Context(), auth.SnapshotFrom(r.Context()), verifier)
			if err != nil {
				var cfgErr *ConfigurationError
				if errors.As(err, &cfgErr) {
					logger.Error("scope configuration error",
						"user_id", cfgErr.UserID,
						"role", cfgErr.Role,
						"path", r.URL.Path,
					)
				} else {
					logger.Error("building request pass", "error", err)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal error"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPass(r.Context(), p)))
		})
	}
}
