package storage

import (
	"fmt"

	"github.com/giantswarm/oauth-login/security"
)

// sessionAAD binds a sealed value to its session and key, so a ciphertext
// copied to another session or key fails to open.
func sessionAAD(sessionID, key string) []byte {
	return []byte(sessionID + "\x00" + key)
}

// SealSessionValue encrypts value for (sessionID, key). With a nil or
// disabled encryptor the value is returned unchanged.
func SealSessionValue(enc *security.Encryptor, sessionID, key string, value []byte) ([]byte, error) {
	if !enc.IsEnabled() {
		return value, nil
	}
	sealed, err := enc.Seal(value, sessionAAD(sessionID, key))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt session value: %w", err)
	}
	return sealed, nil
}

// OpenSessionValue reverses SealSessionValue.
func OpenSessionValue(enc *security.Encryptor, sessionID, key string, stored []byte) ([]byte, error) {
	if !enc.IsEnabled() {
		return stored, nil
	}
	value, err := enc.Open(stored, sessionAAD(sessionID, key))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt session value: %w", err)
	}
	return value, nil
}
