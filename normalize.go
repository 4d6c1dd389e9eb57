package login

import "github.com/giantswarm/oauth-login/internal/util"

// TruncateUsername limits a username to MaxUsernameLength characters
func TruncateUsername(s string) string {
	return util.TruncateRunes(s, MaxUsernameLength)
}

// TruncatePassword limits a password-like token to MaxPasswordLength characters
func TruncatePassword(s string) string {
	return util.TruncateRunes(s, MaxPasswordLength)
}

// TruncateField limits any other identity value to MaxFieldLength characters
func TruncateField(s string) string {
	return util.TruncateRunes(s, MaxFieldLength)
}
