// Package elevated owns the super-administrator session: acquisition
// against the super-admin directory, token issuance and verification, and
// the per-session validity state that lets an elevated identity read across
// organizations.
package elevated

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/wrenchbay/wrenchbay/internal/auth"
)

// Audience separates elevated tokens from tenant access tokens.
const Audience = "superadmin"

var (
	ErrTokenExpired = errors.New("elevated token expired")
	ErrTokenInvalid = errors.New("elevated token invalid")
)

// Claims is what a verified elevated token carries.
type Claims struct {
	Subject   string
	Role      auth.Role
	ExpiresAt time.Time
}

type elevatedClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenService issues and validates elevated tokens. It uses its own
// signing key so a leaked tenant key cannot mint elevated sessions.
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

func NewTokenService(signingKey, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// TTL is the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue mints a token for subject. role must be an elevated role.
func (s *TokenService) Issue(subject string, role auth.Role) (string, error) {
	if !role.Elevated() {
		return "", fmt.Errorf("%w: %q is not an elevated role", auth.ErrInvalidRole, role)
	}
	now := time.Now()
	claims := elevatedClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Role: string(role),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("signing elevated token: %w", err)
	}
	return signed, nil
}

// Validate parses token and checks signature, issuer, audience, expiry and
// role.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &elevatedClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*elevatedClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	role := auth.Role(claims.Role)
	if !role.Elevated() {
		return nil, fmt.Errorf("%w: role %q", ErrTokenInvalid, claims.Role)
	}

	return &Claims{
		Subject:   claims.Subject,
		Role:      role,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
