package elevated

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/wrenchbay/wrenchbay/internal/auth"
	"github.com/wrenchbay/wrenchbay/internal/platform/database"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials covers unknown accounts, wrong passwords, inactive
// accounts and malformed input alike.
var ErrInvalidCredentials = errors.New("invalid elevated credentials")

// ErrAccountMismatch means valid credentials were presented for an account
// other than the signed-in one.
var ErrAccountMismatch = errors.New("credentials do not match the signed-in account")

// Credentials are what a super-administrator presents to acquire a session.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Principal is an authenticated super-administrator.
type Principal struct {
	ID    string
	Email string
	Role  auth.Role
}

// Authenticator checks elevated credentials against the super-admin
// directory.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (Principal, error)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateCredentials checks the shape of creds before any lookup.
func ValidateCredentials(creds Credentials) error {
	if err := validate.Struct(creds); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return nil
}

// StoreAuthenticator reads the super_admins table.
type StoreAuthenticator struct {
	db database.Querier
}

func NewStoreAuthenticator(db database.Querier) *StoreAuthenticator {
	return &StoreAuthenticator{db: db}
}

func (a *StoreAuthenticator) Authenticate(ctx context.Context, creds Credentials) (Principal, error) {
	if err := ValidateCredentials(creds); err != nil {
		return Principal{}, err
	}

	var (
		p      Principal
		hash   string
		role   string
		active bool
	)
	err := a.db.QueryRow(ctx,
		`SELECT id, email, password_hash, role, is_active FROM super_admins WHERE lower(email) = $1`,
		strings.ToLower(creds.Email),
	).Scan(&p.ID, &p.Email, &hash, &role, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Spend comparable time on unknown accounts.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
			return Principal{}, ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("looking up super admin: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		return Principal{}, ErrInvalidCredentials
	}
	p.Role = auth.Role(role)
	if !active || !p.Role.Elevated() {
		return Principal{}, ErrInvalidCredentials
	}
	return p, nil
}

// HashPassword returns the bcrypt hash stored in super_admins.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

var dummyHash = func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("wrenchbay-dummy-password"), bcrypt.DefaultCost)
	return h
}()
