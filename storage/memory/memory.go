package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
)

// DefaultSessionTTL applies to Put calls without a TTL.
const DefaultSessionTTL = time.Hour

// storageType is reported in span attributes
const storageType = "memory"

type sessionEntry struct {
	value     []byte
	expiresAt time.Time
}

// Store is an in-memory implementation of SessionStore, AccountStore and
// AccountCreator.
type Store struct {
	mu sync.RWMutex

	// sessions maps session id -> key -> entry
	sessions map[string]map[string]sessionEntry
	accounts map[string]*storage.Account
	comments map[string]string

	// Security
	encryptor *security.Encryptor // session value encryption at rest (optional)

	// Instrumentation
	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	// sessionEntries is read by the size gauge without taking mu
	sessionEntries atomic.Int64

	now func() time.Time

	// Cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks
var (
	_ storage.SessionStore   = (*Store)(nil)
	_ storage.AccountStore   = (*Store)(nil)
	_ storage.AccountCreator = (*Store)(nil)
)

// New creates a new in-memory store with default cleanup interval (1 minute)
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with custom cleanup interval.
// If cleanupInterval is 0 or negative, uses default of 1 minute.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		sessions:        make(map[string]map[string]sessionEntry),
		accounts:        make(map[string]*storage.Account),
		comments:        make(map[string]string),
		now:             time.Now,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	// Start background cleanup
	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = logger
}

// SetClock replaces the time source used for TTLs.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetEncryptor sets the session value encryptor for encryption at rest
func (s *Store) SetEncryptor(enc *security.Encryptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encryptor = enc
	if enc.IsEnabled() {
		s.logger.Info("Session value encryption at rest enabled for storage")
	}
}

// SetInstrumentation sets OpenTelemetry instrumentation for the store
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.mu.Lock()
	s.instrumentation = inst
	if inst != nil {
		s.tracer = inst.Tracer("storage")
	}
	s.mu.Unlock()

	if inst != nil {
		if err := inst.RegisterSessionSizeCallback(func() int64 { return s.sessionEntries.Load() }); err != nil {
			s.logger.Warn("Failed to register session size callback", "error", err)
		}
	}
}

// Stop gracefully stops the cleanup goroutine
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0
	for sid, values := range s.sessions {
		for key, entry := range values {
			if security.IsExpired(entry.expiresAt, now) {
				delete(values, key)
				cleaned++
			}
		}
		if len(values) == 0 {
			delete(s.sessions, sid)
		}
	}

	if cleaned > 0 {
		s.sessionEntries.Add(-int64(cleaned))
		s.logger.Debug("Cleaned up expired session values", "count", cleaned)
	}
}

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	s.mu.RLock()
	tracer := s.tracer
	s.mu.RUnlock()

	if tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}

	ctx, span := tracer.Start(ctx, fmt.Sprintf("storage.%s", operation))
	instrumentation.AddStorageAttributes(span, operation, storageType)
	return ctx, span
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// Not-found results are not errors.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, err error, startTime time.Time) {
	s.mu.RLock()
	inst := s.instrumentation
	s.mu.RUnlock()
	if inst == nil {
		return
	}

	result := "success"
	switch {
	case err == nil:
		instrumentation.SetSpanSuccess(span)
	case isNotFound(err):
		result = "not_found"
		instrumentation.SetSpanSuccess(span)
	default:
		result = "error"
		instrumentation.RecordError(span, err)
	}

	inst.Metrics().RecordStorageOperation(ctx, operation, result, float64(time.Since(startTime).Microseconds())/1000.0)
}
