package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/elevated"
	"github.com/wrenchbay/wrenchbay/internal/guard"
	"github.com/wrenchbay/wrenchbay/internal/platform/middleware"
	"github.com/wrenchbay/wrenchbay/internal/platform/telemetry"
	"github.com/wrenchbay/wrenchbay/internal/rbac"
	"github.com/wrenchbay/wrenchbay/internal/records"
	"github.com/wrenchbay/wrenchbay/internal/scope"
	"github.com/wrenchbay/wrenchbay/internal/tenant"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool      *pgxpool.Pool
	Auth      *auth.TokenService
	Refresher auth.IdentityRefresher
	RBAC      *rbac.Evaluator
	// Verifier settles elevated sessions while a request's pass is built.
	Verifier            scope.ElevatedVerifier
	ElevatedHandler     *elevated.Handler
	RecordHandler       *records.Handler
	OrganizationHandler *tenant.Handler
	AuditHandler        *audit.Handler
	AuditLogger         audit.Logger
	Metrics             *telemetry.Metrics
	Logger              *slog.Logger
	CORSAllowedOrigins  []string
	// ElevatedLoginPerMinute bounds elevated sign-in attempts per client IP.
	ElevatedLoginPerMinute int
	// RequestsPerMinute bounds every request per client IP; zero disables it.
	RequestsPerMinute int
	DevMode           bool
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Protected routes mux, wrapped with auth and pass middleware
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	if deps.Auth != nil {
		protectedHandler = scope.Middleware(deps.Verifier, logger)(protectedHandler)
		protectedHandler = auth.Middleware(deps.Auth, authOptions(deps, logger)...)(protectedHandler)
	}

	// Top-level mux: public routes, pages and the protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		protectedMux: protectedMux,
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.Metrics != nil {
		topMux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.ElevatedHandler != nil {
		// Authenticated by the elevated token itself.
		topMux.HandleFunc("POST /api/v1/superadmin/verify", deps.ElevatedHandler.HandleVerify)
	}

	// Build RBAC middleware options (audit logger and metrics if available)
	var rbacOpts []rbac.MiddlewareOption
	if deps.AuditLogger != nil {
		rbacOpts = append(rbacOpts, rbac.WithAuditLogger(deps.AuditLogger))
	}
	if deps.Metrics != nil {
		rbacOpts = append(rbacOpts, rbac.WithDenialCounter(deps.Metrics.AccessDenied))
	}

	// Workshop records (tenant-scoped, RBAC-protected per kind)
	if deps.RecordHandler != nil && deps.RBAC != nil {
		deps.RecordHandler.RegisterRoutes(protectedMux, deps.RBAC, rbacOpts...)
	}

	// Organizations
	if deps.OrganizationHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("POST /api/v1/organizations",
			rbac.RequirePermission(deps.RBAC, rbac.ResourceOrganizations, rbac.ActionCreate, rbacOpts...)(
				http.HandlerFunc(deps.OrganizationHandler.HandleCreate),
			),
		)
		protectedMux.Handle("GET /api/v1/organizations/{id}",
			rbac.RequirePermission(deps.RBAC, rbac.ResourceOrganizations, rbac.ActionView, rbacOpts...)(
				http.HandlerFunc(deps.OrganizationHandler.HandleGet),
			),
		)
		protectedMux.Handle("GET /api/v1/organizations",
			rbac.RequirePermission(deps.RBAC, rbac.ResourceOrganizations, rbac.ActionView, rbacOpts...)(
				http.HandlerFunc(deps.OrganizationHandler.HandleList),
			),
		)
	}

	// Audit routes
	if deps.AuditHandler != nil && deps.RBAC != nil {
		protectedMux.Handle("GET /api/v1/audit/events",
			rbac.RequirePermission(deps.RBAC, rbac.ResourceReports, rbac.ActionView, rbacOpts...)(
				http.HandlerFunc(deps.AuditHandler.HandleListEvents),
			),
		)
	}

	// Elevated sessions
	if deps.ElevatedHandler != nil {
		limit := deps.ElevatedLoginPerMinute
		if limit <= 0 {
			limit = 5
		}
		protectedMux.Handle("POST /api/v1/superadmin/session",
			middleware.RateLimitByIP(limit, time.Minute)(http.HandlerFunc(deps.ElevatedHandler.HandleAcquire)),
		)
		protectedMux.HandleFunc("DELETE /api/v1/superadmin/session", deps.ElevatedHandler.HandleRevoke)
		protectedMux.HandleFunc("GET /api/v1/superadmin/session", deps.ElevatedHandler.HandleStatus)
	}

	// Page shell (navigation-guarded, render-guarded actions)
	if deps.Auth != nil && deps.RBAC != nil {
		var guardOpts []guard.Option
		guardOpts = append(guardOpts, guard.WithLogger(logger))
		if deps.Metrics != nil {
			guardOpts = append(guardOpts, guard.WithOutcomeCounter(deps.Metrics.GuardOutcomes))
		}
		p := newPages(
			guard.NewNavigator(deps.RBAC, guard.DefaultRoutes(), guardOpts...),
			guard.NewRenderer(deps.RBAC, guardOpts...),
		)
		pageChain := func(h http.Handler) http.Handler {
			h = scope.Middleware(deps.Verifier, logger)(h)
			return auth.OptionalMiddleware(deps.Auth, authOptions(deps, logger)...)(h)
		}
		p.register(topMux, pageChain)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Metrics != nil {
		handler = middleware.Metrics(deps.Metrics.HTTPRequests, deps.Metrics.HTTPDuration)(handler)
	}
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	if deps.RequestsPerMinute > 0 {
		handler = middleware.RateLimitByIP(deps.RequestsPerMinute, time.Minute)(handler)
	}
	handler = middleware.RequestID(handler)
	handler = middleware.SecureHeaders(deps.DevMode)(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

func authOptions(deps Dependencies, logger *slog.Logger) []auth.MiddlewareOption {
	opts := []auth.MiddlewareOption{auth.WithLogger(logger)}
	if deps.Refresher != nil {
		opts = append(opts, auth.WithRefresher(deps.Refresher))
	}
	return opts
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
// Use this to register routes that require authentication.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
