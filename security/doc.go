// Package security provides the security plumbing of the login endpoints.
//
// # Audit logging
//
// Auditor writes one structured slog record per security-relevant event
// (flow started, state mismatch, login denied, account connected, connect
// session hijack, ...). User ids are hashed before they are logged.
//
// # Encryption at rest
//
// Encryptor seals session values with AES-256-GCM. The storage key is bound
// as associated data, so a value copied to another key or session fails to
// open. Keys are 32 random bytes (GenerateKey, KeyFromBase64) or derived
// from an operator secret with HKDF (KeyFromSecret).
//
// # Request handling
//
// RequestIDMiddleware and SecurityHeadersMiddleware wrap the HTTP handler;
// GetClientIP extracts the client address for audit events, trusting proxy
// headers only when configured to.
package security
