package elevated

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wrenchbay/wrenchbay/internal/audit"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/scope"
	"golang.org/x/sync/singleflight"
)

// State is the validity state of one elevated session.
type State int

const (
	StateNoSession State = iota
	StateVerifying
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no_session"
	case StateVerifying:
		return "verifying"
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	}
	return "unknown"
}

// Verification results, used as metric labels and audit metadata.
const (
	resultValid    = "valid"
	resultRejected = "rejected"
	resultError    = "error"
	resultTimeout  = "timeout"
	resultMissing  = "missing"
)

const defaultVerifyTimeout = 3 * time.Second

type session struct {
	state State
	// gen counts verifications; only the latest may set state.
	gen uint64
	// epoch changes on acquire and revoke; results from an older epoch are
	// discarded.
	epoch uint64
}

// Manager is the sole owner of elevated credentials. It is safe for
// concurrent use.
type Manager struct {
	tokens   *TokenService
	authn    Authenticator
	verifier Verifier
	store    CredentialStore

	timeout       time.Duration
	audit         audit.Logger
	logger        *slog.Logger
	verifications *prometheus.CounterVec
	acquisitions  *prometheus.CounterVec

	flight   singleflight.Group
	mu       sync.Mutex
	sessions map[string]*session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithVerifyTimeout bounds each verification round trip.
func WithVerifyTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithAuditLogger records acquisitions, failures and revocations.
func WithAuditLogger(l audit.Logger) ManagerOption {
	return func(m *Manager) { m.audit = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics counts verifications and acquisitions by result.
func WithMetrics(verifications, acquisitions *prometheus.CounterVec) ManagerOption {
	return func(m *Manager) {
		m.verifications = verifications
		m.acquisitions = acquisitions
	}
}

func NewManager(tokens *TokenService, authn Authenticator, verifier Verifier, store CredentialStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		tokens:   tokens,
		authn:    authn,
		verifier: verifier,
		store:    store,
		timeout:  defaultVerifyTimeout,
		audit:    audit.NopLogger{},
		logger:   slog.Default(),
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) sessionLocked(key string) *session {
	s, ok := m.sessions[key]
	if !ok {
		s = &session{}
		m.sessions[key] = s
	}
	return s
}

// State returns the current state of the session stored under key.
func (m *Manager) State(key string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s.state
	}
	return StateNoSession
}

// Acquire authenticates creds, issues an elevated token and stores it under
// key. Any verification in flight for key is superseded.
func (m *Manager) Acquire(ctx context.Context, key string, creds Credentials) (string, error) {
	return m.acquire(ctx, key, creds, nil)
}

// AcquireFor is Acquire for the session of identity. The credentials must
// authenticate the same account under the same role; an identity without an
// email can never acquire a session.
func (m *Manager) AcquireFor(ctx context.Context, identity *auth.Identity, creds Credentials) (string, error) {
	if identity == nil {
		return "", ErrAccountMismatch
	}
	return m.acquire(ctx, scope.SessionKey(identity), creds, func(p Principal) error {
		if identity.Email == "" || !strings.EqualFold(p.Email, identity.Email) || p.Role != identity.Role {
			return ErrAccountMismatch
		}
		return nil
	})
}

func (m *Manager) acquire(ctx context.Context, key string, creds Credentials, match func(Principal) error) (string, error) {
	principal, err := m.authn.Authenticate(ctx, creds)
	if err == nil && match != nil {
		err = match(principal)
	}
	if err != nil {
		m.countAcquisition("failed")
		evt := audit.Event{Action: audit.ActionElevatedAcquireFailed, Source: audit.SourceAPI,
			Metadata: map[string]any{"session": key}}
		switch {
		case errors.Is(err, ErrAccountMismatch):
			evt.UserID = audit.ParseID(principal.ID)
			evt.Metadata["reason"] = "account_mismatch"
		case !errors.Is(err, ErrInvalidCredentials):
			m.logger.Error("elevated authentication failed", "error", err)
			evt.Metadata["reason"] = "directory_unavailable"
		}
		m.audit.Log(ctx, evt)
		return "", err
	}

	token, err := m.tokens.Issue(principal.ID, principal.Role)
	if err != nil {
		m.countAcquisition("failed")
		return "", err
	}
	if err := m.store.Set(ctx, key, token, m.tokens.TTL()); err != nil {
		m.countAcquisition("failed")
		return "", fmt.Errorf("persisting elevated token: %w", err)
	}

	m.mu.Lock()
	s := m.sessionLocked(key)
	s.epoch++
	s.gen++
	s.state = StateValid
	m.mu.Unlock()

	m.countAcquisition("acquired")
	m.audit.Log(ctx, audit.Event{
		UserID:   audit.ParseID(principal.ID),
		Action:   audit.ActionElevatedAcquired,
		Source:   audit.SourceAPI,
		Metadata: map[string]any{"session": key, "role": string(principal.Role)},
	})
	m.logger.Info("elevated session acquired", "session", key, "role", principal.Role)
	return token, nil
}

// Verify reports whether the token stored under key is currently valid.
// Missing tokens, store failures, transport errors, timeouts and rejections
// are all false.
func (m *Manager) Verify(ctx context.Context, key string) bool {
	token, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			m.logger.Warn("reading elevated credential", "session", key, "error", err)
		}
		m.mu.Lock()
		s := m.sessionLocked(key)
		s.gen++
		s.state = StateNoSession
		m.mu.Unlock()
		m.countVerification(resultMissing)
		return false
	}
	return m.VerifyToken(ctx, key, token)
}

// VerifyToken verifies token as the credential of session key. Concurrent
// verifications of the same token share one round trip. A failed
// verification clears the stored token. Only the newest verification of a
// session updates its state; results superseded by Acquire or Revoke are
// reported as false.
func (m *Manager) VerifyToken(ctx context.Context, key, token string) bool {
	m.mu.Lock()
	s := m.sessionLocked(key)
	s.gen++
	gen, epoch, prev := s.gen, s.epoch, s.state
	s.state = StateVerifying
	m.mu.Unlock()

	ch := m.flight.DoChan(token, func() (any, error) {
		// Detached from any single caller so one cancellation does not fail
		// every waiter.
		vctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
		defer cancel()
		ok, err := m.verifier.Verify(vctx, token)
		if err == nil && vctx.Err() != nil {
			err = vctx.Err()
		}
		return ok, err
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		m.mu.Lock()
		if s.gen == gen {
			s.state = prev
		}
		m.mu.Unlock()
		return false
	case res = <-ch:
	}

	ok, _ := res.Val.(bool)
	valid := res.Err == nil && ok
	result := resultValid
	switch {
	case errors.Is(res.Err, context.DeadlineExceeded):
		result = resultTimeout
	case res.Err != nil:
		result = resultError
	case !ok:
		result = resultRejected
	}
	m.countVerification(result)

	m.mu.Lock()
	current := s.epoch == epoch
	latest := current && s.gen == gen
	if latest {
		if valid {
			s.state = StateValid
		} else {
			s.state = StateInvalid
		}
	}
	m.mu.Unlock()

	if !current {
		return false
	}
	if valid {
		return true
	}

	if err := m.store.ClearIf(context.WithoutCancel(ctx), key, token); err != nil {
		m.logger.Warn("clearing failed elevated credential", "session", key, "error", err)
	}
	m.mu.Lock()
	if s.gen == gen && s.epoch == epoch {
		s.state = StateNoSession
	}
	m.mu.Unlock()

	attrs := []any{"session", key, "result", result}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
	}
	m.logger.Warn("elevated verification failed", attrs...)
	m.audit.Log(ctx, audit.Event{
		Action:   audit.ActionElevatedVerificationFailed,
		Source:   audit.SourceSystem,
		Metadata: map[string]any{"session": key, "result": result},
	})
	return false
}

// Revoke discards the session stored under key. Verifications in flight
// for it are discarded when they complete.
func (m *Manager) Revoke(ctx context.Context, key string) error {
	m.mu.Lock()
	s := m.sessionLocked(key)
	s.epoch++
	s.gen++
	s.state = StateNoSession
	m.mu.Unlock()

	if err := m.store.Clear(ctx, key); err != nil {
		return fmt.Errorf("revoking elevated session: %w", err)
	}
	m.audit.Log(ctx, audit.Event{
		Action:   audit.ActionElevatedRevoked,
		Source:   audit.SourceAPI,
		Metadata: map[string]any{"session": key},
	})
	return nil
}

func (m *Manager) countVerification(result string) {
	if m.verifications != nil {
		m.verifications.WithLabelValues(result).Inc()
	}
}

func (m *Manager) countAcquisition(result string) {
	if m.acquisitions != nil {
		m.acquisitions.WithLabelValues(result).Inc()
	}
}
