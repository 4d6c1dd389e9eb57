package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/oauth-login/storage"
)

func validateSessionKey(sessionID, key string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(sessionID) > MaxIDLength || len(key) > MaxIDLength {
		return errInputTooLarge
	}
	return nil
}

// Put stores a session value with SET EX.
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

	stored, err := storage.SealSessionValue(s.getEncryptor(), sessionID, key, value)
	if err != nil {
		return err
	}
	if len(stored) > MaxValueSize {
		return errInputTooLarge
	}

	cmd := s.client.B().Set().Key(s.sessionKey(sessionID, key)).Value(string(stored)).Ex(ttl).Build()
	if err = s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save session value: %w", err)
	}
	return nil
}

// Get returns a session value.
func (s *Store) Get(ctx context.Context, sessionID, key string) (value []byte, err error) {
	ctx, span := s.startStorageSpan(ctx, "session_get")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_get", err, start) }(time.Now())

	if err = validateSessionKey(sessionID, key); err != nil {
		return nil, err
	}

	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.sessionKey(sessionID, key)).Build()).AsBytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrSessionValueNotFound
		}
		return nil, fmt.Errorf("failed to get session value: %w", err)
	}
	return storage.OpenSessionValue(s.getEncryptor(), sessionID, key, data)
}

// Has reports whether a value exists.
func (s *Store) Has(ctx context.Context, sessionID, key string) (bool, error) {
	if err := validateSessionKey(sessionID, key); err != nil {
		return false, err
	}

	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.sessionKey(sessionID, key)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to check session value: %w", err)
	}
	return n > 0, nil
}

// Forget removes a session value.
func (s *Store) Forget(ctx context.Context, sessionID, key string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "session_forget")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_forget", err, start) }(time.Now())

	if err = validateSessionKey(sessionID, key); err != nil {
		return err
	}
	if err = s.client.Do(ctx, s.client.B().Del().Key(s.sessionKey(sessionID, key)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session value: %w", err)
	}
	return nil
}

// Take atomically returns and removes a session value with GETDEL.
func (s *Store) Take(ctx context.Context, sessionID, key string) (value []byte, err error) {
	ctx, span := s.startStorageSpan(ctx, "session_take")
	defer span.End()
	defer func(start time.Time) { s.recordStorageOperation(ctx, span, "session_take", err, start) }(time.Now())

	if err = validateSessionKey(sessionID, key); err != nil {
		return nil, err
	}

	data, err := s.client.Do(ctx, s.client.B().Getdel().Key(s.sessionKey(sessionID, key)).Build()).AsBytes()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrSessionValueNotFound
		}
		return nil, fmt.Errorf("failed to take session value: %w", err)
	}
	return storage.OpenSessionValue(s.getEncryptor(), sessionID, key, data)
}
