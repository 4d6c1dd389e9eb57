// Package memory provides an in-memory implementation of the session and
// account storage interfaces.
//
// It is suitable for development, testing, and single-instance deployments.
// Session values expire after their TTL; a background goroutine removes
// expired entries every cleanup interval, and reads never return an
// expired value even before cleanup ran.
//
// Session values can be encrypted at rest with a security.Encryptor; the
// ciphertext is bound to its session and key.
//
// Example:
//
//	store := memory.New()
//	defer store.Stop()
//	store.SetEncryptor(enc)
package memory
