package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-login/internal/testutil"
	"github.com/giantswarm/oauth-login/security"
	"github.com/giantswarm/oauth-login/storage"
	"github.com/giantswarm/oauth-login/storage/storagetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	t.Cleanup(s.Stop)
	return s
}

func TestSessionStore(t *testing.T) {
	storagetest.RunSessionStoreTests(t, func(t *testing.T) storage.SessionStore {
		return newTestStore(t)
	})
}

func TestSessionStore_Encrypted(t *testing.T) {
	storagetest.RunSessionStoreTests(t, func(t *testing.T) storage.SessionStore {
		s := newTestStore(t)
		key, err := security.GenerateKey()
		require.NoError(t, err)
		enc, err := security.NewEncryptor(key)
		require.NoError(t, err)
		s.SetEncryptor(enc)
		return s
	})
}

func TestAccountStore(t *testing.T) {
	storagetest.RunAccountStoreTests(t, func(t *testing.T) (storagetest.AccountBackend, storagetest.AccountSeeder) {
		s := newTestStore(t)
		return s, func(t *testing.T, acc *storage.Account) { s.AddAccount(acc) }
	})
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewMockTime(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))

	s := newTestStore(t)
	s.SetClock(clock.Now)

	require.NoError(t, s.Put(ctx, "sid", "short", []byte("v"), time.Minute))
	require.NoError(t, s.Put(ctx, "sid", "default", []byte("v"), 0))

	clock.Advance(59 * time.Second)
	has, err := s.Has(ctx, "sid", "short")
	require.NoError(t, err)
	assert.True(t, has)

	clock.Advance(2 * time.Second)
	_, err = s.Get(ctx, "sid", "short")
	assert.ErrorIs(t, err, storage.ErrSessionValueNotFound, "expired values are never returned")

	_, err = s.Take(ctx, "sid", "short")
	assert.ErrorIs(t, err, storage.ErrSessionValueNotFound)

	has, err = s.Has(ctx, "sid", "default")
	require.NoError(t, err)
	assert.True(t, has, "zero TTL uses the default")

	clock.Advance(DefaultSessionTTL)
	s.cleanup()
	assert.Equal(t, int64(0), s.sessionEntries.Load())
}

func TestStore_EncryptedValuesAreBound(t *testing.T) {
	ctx := context.Background()
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	s := newTestStore(t)
	s.SetEncryptor(enc)
	require.NoError(t, s.Put(ctx, "sid-a", "state", []byte("secret-state"), time.Minute))

	s.mu.Lock()
	stored := s.sessions["sid-a"]["state"]
	assert.NotContains(t, string(stored.value), "secret-state")
	// copy the ciphertext into another session
	s.sessions["sid-b"] = map[string]sessionEntry{"state": stored}
	s.mu.Unlock()

	_, err = s.Get(ctx, "sid-b", "state")
	assert.Error(t, err, "ciphertext must not open under another session")
}

func TestStore_SessionEntryCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, "sid", "a", []byte("1"), time.Minute))
	require.NoError(t, s.Put(ctx, "sid", "a", []byte("2"), time.Minute))
	require.NoError(t, s.Put(ctx, "sid", "b", []byte("3"), time.Minute))
	assert.Equal(t, int64(2), s.sessionEntries.Load())

	_, err := s.Take(ctx, "sid", "a")
	require.NoError(t, err)
	require.NoError(t, s.Forget(ctx, "sid", "b"))
	assert.Equal(t, int64(0), s.sessionEntries.Load())
}

func TestStore_PutValidation(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Put(context.Background(), "", "key", nil, time.Minute))
	assert.Error(t, s.Put(context.Background(), "sid", "", nil, time.Minute))
}
