package security

import "time"

// IsExpired reports whether expiresAt has passed at now. A zero expiresAt
// never expires.
func IsExpired(expiresAt, now time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return now.After(expiresAt)
}

// IsOlderThan reports whether more than maxAge has elapsed between createdAt
// and now. Exactly maxAge is still valid.
func IsOlderThan(createdAt time.Time, maxAge time.Duration, now time.Time) bool {
	return now.Sub(createdAt) > maxAge
}
