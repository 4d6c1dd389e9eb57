package valkey

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys
	DefaultKeyPrefix = "oauth-login:"

	// DefaultSessionTTL applies to Put calls without a TTL
	DefaultSessionTTL = time.Hour

	// connectionVerifyTimeout is the timeout for initial connection verification
	connectionVerifyTimeout = 5 * time.Second

	// MaxIDLength is the maximum allowed length for session ids and keys
	MaxIDLength = 256

	// MaxValueSize is the maximum size of a stored value (64KB)
	MaxValueSize = 64 * 1024

	storageType = "valkey"
)

// errInputTooLarge is generic to avoid leaking limits to callers
var errInputTooLarge = fmt.Errorf("input exceeds maximum allowed size")

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g., "localhost:6379"
	Address string

	// Password is the optional password for Valkey authentication
	Password string

	// DB is the optional database number (default 0)
	DB int

	// KeyPrefix is the prefix for all keys (default "oauth-login:")
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections
	TLS *tls.Config

	// Logger is the optional structured logger (default: slog.Default())
	Logger *slog.Logger
}

// Store is a Valkey-backed SessionStore.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger

	// encryptor provides optional value encryption at rest
	// Access must be synchronized via mu
	encryptor       *security.Encryptor
	instrumentation *instrumentation.Instrumentation
	mu              sync.RWMutex
}

var _ storage.SessionStore = (*Store)(nil)

// New creates a new Valkey-backed session store.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey session storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
}

// SetEncryptor sets the value encryptor for encryption at rest.
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Session value encryption at rest enabled for Valkey storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instrumentation = inst
}

// getEncryptor returns the current encryptor (thread-safe)
func (s *Store) getEncryptor() *security.Encryptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encryptor
}

func (s *Store) getInstrumentation() *instrumentation.Instrumentation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.instrumentation
}

func (s *Store) sessionKey(sessionID, key string) string {
	return s.prefix + "session:" + sessionID + ":" + key
}

func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	inst := s.getInstrumentation()
	if inst == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	ctx, span := inst.Tracer("storage").Start(ctx, "storage."+operation)
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	inst := s.getInstrumentation()
	if inst == nil {
		return
	}

	result := "success"
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case errors.Is(err, storage.ErrSessionValueNotFound):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	default:
		result = "error"
		instrumentation.RecordError(span, err)
	}
	inst.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(startTime).Microseconds())/1000.0)
}
