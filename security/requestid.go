package security

import (
	"context"
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// requestIDContextKey is the unexported context key for request ids
type requestIDContextKey struct{}

// RequestIDHeader is the HTTP header for request IDs. It is read from
// incoming requests and always set on responses.
const RequestIDHeader = "X-Request-ID"

// requestIDPattern bounds upstream request ids to 1-128 characters of
// letters, digits, hyphens and underscores. Anything else could carry CRLF
// into response headers or break log lines, so it is replaced.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// GenerateRequestID returns a random (version 4) UUID.
//
// The id correlates the log records and audit events of one HTTP request.
// It is not a secret and is never used for authorization decisions; state
// values and session ids come from the flow and session packages instead.
// uuid.NewString panics only when the system random source fails.
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestID returns a copy of ctx carrying requestID. Handlers outside
// RequestIDMiddleware, such as tests, use it to attach an id themselves.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// GetRequestID retrieves the request ID from the context, or "" when the
// request did not pass through RequestIDMiddleware.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	return ""
}

// RequestIDMiddleware is HTTP middleware that assigns every request an id.
//
// Behavior:
//   - A valid X-Request-ID from an upstream proxy is kept, so one id follows
//     the request through the proxy and this service
//   - A missing or malformed upstream id is replaced by GenerateRequestID
//   - The id is echoed in the X-Request-ID response header
//   - The id is stored in the request context for GetRequestID
//
// It should wrap the whole handler chain so that every log record written
// while serving a request can carry the same id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if !requestIDPattern.MatchString(requestID) {
			requestID = GenerateRequestID()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}
