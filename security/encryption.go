package security

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/giantswarm/oauth-login/instrumentation"
)

const sessionKeyInfo = "oauth-login session value encryption v1"

// Encryptor encrypts session values at rest using AES-256-GCM.
type Encryptor struct {
	key             []byte
	enabled         bool
	instrumentation *instrumentation.Instrumentation
}

// NewEncryptor creates a new encryptor.
// If key is nil or empty, encryption is disabled.
// The key must be exactly 32 bytes for AES-256.
func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) == 0 {
		return &Encryptor{enabled: false}, nil
	}

	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be exactly 32 bytes for AES-256, got %d", len(key))
	}

	return &Encryptor{
		key:     key,
		enabled: true,
	}, nil
}

// SetInstrumentation records encryption counts and durations.
func (e *Encryptor) SetInstrumentation(inst *instrumentation.Instrumentation) {
	e.instrumentation = inst
}

// Seal encrypts plaintext and binds it to associatedData (the storage key),
// so a ciphertext copied under another key fails to open.
// The output is base64([nonce][ciphertext]).
func (e *Encryptor) Seal(plaintext, associatedData []byte) ([]byte, error) {
	if e == nil || !e.enabled {
		return plaintext, nil
	}
	defer e.record("encrypt", time.Now())

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, plaintext, associatedData)
	out := make([]byte, base64.StdEncoding.EncodedLen(len(sealed)))
	base64.StdEncoding.Encode(out, sealed)
	return out, nil
}

// Open reverses Seal.
func (e *Encryptor) Open(encoded, associatedData []byte) ([]byte, error) {
	if e == nil || !e.enabled {
		return encoded, nil
	}
	defer e.record("decrypt", time.Now())

	sealed := make([]byte, base64.StdEncoding.DecodedLen(len(encoded)))
	n, err := base64.StdEncoding.Decode(sealed, encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}
	sealed = sealed[:n]

	gcm, err := e.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, associatedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// IsEnabled returns true if encryption is enabled
func (e *Encryptor) IsEnabled() bool {
	return e != nil && e.enabled
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func (e *Encryptor) record(operation string, start time.Time) {
	if e.instrumentation == nil {
		return
	}
	e.instrumentation.Metrics().RecordEncryptionOperation(context.Background(), operation,
		float64(time.Since(start).Microseconds())/1000.0)
}

// GenerateKey generates a new 32-byte encryption key for AES-256
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64-encoded encryption key
func KeyFromBase64(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// KeyFromSecret derives a 32-byte key from an operator secret of any length
// with HKDF-SHA256. Secrets shorter than 16 bytes are refused.
func KeyFromSecret(secret string) ([]byte, error) {
	if len(secret) < 16 {
		return nil, fmt.Errorf("secret must be at least 16 bytes, got %d", len(secret))
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sessionKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}

// KeyToBase64 encodes an encryption key to base64
func KeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
