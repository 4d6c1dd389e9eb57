package server

import (
	"net/url"
	"strings"
)

// IsLocalReturnURL reports whether raw is a path on this site. Absolute
// URLs, scheme-relative URLs ("//host") and backslash tricks are rejected so
// the url parameter cannot be used as an open redirect.
func IsLocalReturnURL(raw string) bool {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return false
	}
	if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, "/\\") || strings.ContainsAny(raw, "\\\r\n\t") {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil
}

// returnURL returns raw if it is local, otherwise the configured default
func (s *Server) returnURL(raw string) string {
	if IsLocalReturnURL(raw) {
		return raw
	}
	if raw != "" {
		s.Logger.Debug("Ignoring non-local return URL", "url", raw)
	}
	return s.Config.DefaultReturnURL
}
