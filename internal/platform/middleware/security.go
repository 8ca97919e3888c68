package middleware

import (
	"net/http"

	"github.com/unrolled/secure"
)

// SecureHeaders sets the browser hardening headers on every response. In
// dev mode HSTS and the HTTPS redirect are disabled.
func SecureHeaders(devMode bool) func(http.Handler) http.Handler {
	s := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
		STSSeconds:            31536000,
		STSIncludeSubdomains:  true,
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         devMode,
	})
	return s.Handler
}
