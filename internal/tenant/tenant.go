// Package tenant manages organizations, the tenants every workshop record
// belongs to.
package tenant

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrSlugTaken            = errors.New("organization slug already in use")
	ErrInvalidSlug          = errors.New("invalid organization slug")
)

// Organization is one tenant: a workshop with its own customers,
// vehicles, invoices and staff.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateInput is the body of an organization create request. An empty
// Slug is derived from Name.
type CreateInput struct {
	Name string `json:"name" validate:"required,max=120"`
	Slug string `json:"slug" validate:"omitempty,max=63"`
}

// Normalize trims the input and fills a missing slug.
func (in CreateInput) Normalize() CreateInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Slug = strings.TrimSpace(in.Slug)
	if in.Slug == "" {
		in.Slug = SlugFromName(in.Name)
	}
	return in
}

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,61}[a-z0-9]$`)

// Reserved slugs collide with application routes.
var reservedSlugs = map[string]bool{
	"api": true, "app": true, "www": true, "admin": true,
	"superadmin": true, "login": true, "static": true, "assets": true,
	"healthz": true, "readyz": true, "metrics": true,
}

// ValidateSlug checks that a slug conforms to DNS label rules and is not reserved.
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: must be 3-63 lowercase alphanumeric characters or hyphens, cannot start/end with hyphen", ErrInvalidSlug)
	}
	if reservedSlugs[slug] {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidSlug, slug)
	}
	return nil
}

// SlugFromName lowercases name and joins its ASCII letter and digit runs
// with single hyphens: "Joe's Garage & Tyres" becomes "joes-garage-tyres".
// The result is not validated.
func SlugFromName(name string) string {
	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// Apostrophes join rather than split words.
		default:
			pendingHyphen = true
		}
		if b.Len() >= 63 {
			break
		}
	}
	slug := b.String()
	if len(slug) > 63 {
		slug = slug[:63]
	}
	return strings.TrimRight(slug, "-")
}
