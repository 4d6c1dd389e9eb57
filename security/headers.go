package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders sets the response headers shared by every login
// endpoint. Responses are redirects or small JSON bodies, so the content
// policy forbids everything and nothing may be cached.
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

	// The callback URL carries the authorization code; never leak it via Referer.
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	h.Set("Pragma", "no-cache")
}

// SecurityHeadersMiddleware applies SetSecurityHeaders before next runs.
func SecurityHeadersMiddleware(serverURL string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetSecurityHeaders(w, serverURL)
		next.ServeHTTP(w, r)
	})
}
