package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type accessClaims struct {
	jwt.RegisteredClaims
	UserID         string `json:"uid"`
	Email          string `json:"email,omitempty"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"org,omitempty"`
	Active         bool   `json:"active"`
}

// TokenService handles creation and validation of tenant access tokens.
// Sessions are issued by the identity provider; this service only needs to
// agree with it on the signing key and issuer.
type TokenService struct {
	signingKey  []byte
	issuer      string
	expiryHours int
}

func NewTokenService(signingKey, issuer string, expiryHours int) *TokenService {
	return &TokenService{
		signingKey:  []byte(signingKey),
		issuer:      issuer,
		expiryHours: expiryHours,
	}
}

// CreateAccessToken creates a signed access token for the identity.
func (s *TokenService) CreateAccessToken(identity *Identity) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("%w: nil identity", ErrTokenInvalid)
	}
	if !identity.Role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, identity.Role)
	}

	now := time.Now()
	org, _ := identity.OrgID()

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expiryHours) * time.Hour)),
		},
		UserID:         identity.UserID,
		Email:          identity.Email,
		Role:           identity.Role,
		OrganizationID: org,
		Active:         identity.IsActive,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken validates an access token and returns the identity it carries.
func (s *TokenService) ValidateToken(tokenString string) (*Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &accessClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, claims.Role)
	}

	identity := &Identity{
		UserID:   claims.UserID,
		Email:    claims.Email,
		Role:     claims.Role,
		IsActive: claims.Active,
	}
	if claims.OrganizationID != "" {
		org := claims.OrganizationID
		identity.OrganizationID = &org
	}
	return identity, nil
}
