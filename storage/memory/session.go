package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
)

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrSessionValueNotFound) || errors.Is(err, storage.ErrAccountNotFound)
}

func validateSessionKey(sessionID, key string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}

// Put stores a session value, encrypted when an encryptor is set.
func (s *Store) Put(ctx context.Context, sessionID, key string, value []byte, ttl time.Duration) (err error) {
	ctx, span := s.startStorageSpan(ctx, "session_put")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_put", err, start) }(time.Now())

	if err = validateSessionKey(sessionID, key); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := storage.SealSessionValue(s.encryptor, sessionID, key, value)
	if err != nil {
		return err
	}
	// copy so later caller writes cannot change the stored value
	if !s.encryptor.IsEnabled() {
		stored = append([]byte(nil), value...)
	}

	values, ok := s.sessions[sessionID]
	if !ok {
		values = make(map[string]sessionEntry)
		s.sessions[sessionID] = values
	}
	if _, existed := values[key]; !existed {
		s.sessionEntries.Add(1)
	}
	values[key] = sessionEntry{value: stored, expiresAt: s.now().Add(ttl)}
	return nil
}

// lookup returns the live entry. Callers hold mu.
func (s *Store) lookup(sessionID, key string) (sessionEntry, bool) {
	entry, ok := s.sessions[sessionID][key]
	if !ok || security.IsExpired(entry.expiresAt, s.now()) {
		return sessionEntry{}, false
	}
	return entry, true
}

// Get returns a session value.
func (s *Store) Get(ctx context.Context, sessionID, key string) (value []byte, err error) {
	ctx, span := s.startStorageSpan(ctx, "session_get")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_get", err, start) }(time.Now())

	s.mu.RLock()
	entry, ok := s.lookup(sessionID, key)
	enc := s.encryptor
	s.mu.RUnlock()

	if !ok {
		return nil, storage.ErrSessionValueNotFound
	}
	value, err = storage.OpenSessionValue(enc, sessionID, key, entry.value)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), value...), nil
}

// Has reports whether a live value exists.
func (s *Store) Has(ctx context.Context, sessionID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.lookup(sessionID, key)
	return ok, nil
}

// Forget removes a session value.
func (s *Store) Forget(ctx context.Context, sessionID, key string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "session_forget")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_forget", err, start) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(sessionID, key)
	return nil
}

// remove deletes an entry. Callers hold mu.
func (s *Store) remove(sessionID, key string) {
	values, ok := s.sessions[sessionID]
	if !ok {
		return
	}
	if _, ok := values[key]; ok {
		delete(values, key)
		s.sessionEntries.Add(-1)
	}
	if len(values) == 0 {
		delete(s.sessions, sessionID)
	}
}

// Take atomically returns and removes a session value.
func (s *Store) Take(ctx context.Context, sessionID, key string) (value []byte, err error) {
	ctx, span := s.startStorageSpan(ctx, "session_take")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_take", err, start) }(time.Now())

	s.mu.Lock()
	entry, ok := s.lookup(sessionID, key)
	s.remove(sessionID, key)
	enc := s.encryptor
	s.mu.Unlock()

	if !ok {
		return nil, storage.ErrSessionValueNotFound
	}
	return storage.OpenSessionValue(enc, sessionID, key, entry.value)
}
