// Package storagetest holds behaviour tests shared by every storage backend.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/giantswarm/oauth-login/storage"
)

// SessionStoreFactory returns an empty store for one test.
type SessionStoreFactory func(t *testing.T) storage.SessionStore

// RunSessionStoreTests checks the SessionStore contract.
func RunSessionStoreTests(t *testing.T, newStore SessionStoreFactory) {
	ctx := context.Background()

	t.Run("put get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid", "key", []byte("value"), time.Minute))

		got, err := s.Get(ctx, "sid", "key")
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)

		has, err := s.Has(ctx, "sid", "key")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("missing value", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "sid", "absent")
		assert.ErrorIs(t, err, storage.ErrSessionValueNotFound)

		has, err := s.Has(ctx, "sid", "absent")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid-a", "key", []byte("a"), time.Minute))

		_, err := s.Get(ctx, "sid-b", "key")
		assert.ErrorIs(t, err, storage.ErrSessionValueNotFound)
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid", "key", []byte("first"), time.Minute))
		require.NoError(t, s.Put(ctx, "sid", "key", []byte("second"), time.Minute))

		got, err := s.Get(ctx, "sid", "key")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("forget", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid", "key", []byte("value"), time.Minute))
		require.NoError(t, s.Forget(ctx, "sid", "key"))
		require.NoError(t, s.Forget(ctx, "sid", "key"), "forgetting twice is not an error")

		_, err := s.Get(ctx, "sid", "key")
		assert.ErrorIs(t, err, storage.ErrSessionValueNotFound)
	})

	t.Run("take is single use", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid", "state", []byte("abc"), time.Minute))

		got, err := s.Take(ctx, "sid", "state")
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)

		_, err = s.Take(ctx, "sid", "state")
		assert.ErrorIs(t, err, storage.ErrSessionValueNotFound)
	})

	t.Run("concurrent take", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "sid", "state", []byte("abc"), time.Minute))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Take(ctx, "sid", "state"); err == nil {
					wins.Add(1)
				} else if !errors.Is(err, storage.ErrSessionValueNotFound) {
					t.Errorf("Take() unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

// AccountSeeder inserts a fixture account as is.
type AccountSeeder func(t *testing.T, acc *storage.Account)

// AccountBackend is what RunAccountStoreTests exercises.
type AccountBackend interface {
	storage.AccountStore
	storage.AccountCreator
}

// RunAccountStoreTests checks the AccountStore and AccountCreator contract.
// newStore returns an empty backend and a seeder for it.
func RunAccountStoreTests(t *testing.T, newStore func(t *testing.T) (AccountBackend, AccountSeeder)) {
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	alice := func() *storage.Account {
		return &storage.Account{
			ID:            "acc-alice",
			Username:      "alice",
			RealName:      "Alice",
			Email:         "Alice@Example.com",
			EmailVerified: true,
			Approved:      true,
			CreatedAt:     created,
			Linkage:       storage.Linkage{ProviderName: "Github", ProviderUserID: "42", ProviderEmail: "alice@example.com"},
		}
	}

	t.Run("lookups", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		acc, err := s.Find(ctx, "acc-alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", acc.Username)
		assert.True(t, acc.EmailVerified)
		assert.False(t, acc.HasBeenActive())

		acc, err = s.FindByProviderIdentity(ctx, "Github", "42")
		require.NoError(t, err)
		assert.Equal(t, "acc-alice", acc.ID)

		acc, err = s.FindByEmail(ctx, "alice@example.COM")
		require.NoError(t, err)
		assert.Equal(t, "acc-alice", acc.ID)

		acc, err = s.FindByUsername(ctx, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, "acc-alice", acc.ID)
	})

	t.Run("not found", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		_, err := s.Find(ctx, "nobody")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.FindByProviderIdentity(ctx, "Github", "43")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.FindByProviderIdentity(ctx, "Dropbox", "42")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.FindByEmail(ctx, "")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		_, err = s.FindByUsername(ctx, "bob")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)

		err = s.SetEmail(ctx, "nobody", "x@example.com")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("updates", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		active := created.Add(48 * time.Hour)
		require.NoError(t, s.SetLastActive(ctx, "acc-alice", active))
		require.NoError(t, s.SetEmail(ctx, "acc-alice", "new@example.com"))
		require.NoError(t, s.SetLinkage(ctx, "acc-alice", storage.Linkage{ProviderName: "Kanidm", ProviderUserID: "uuid-1"}))

		acc, err := s.Find(ctx, "acc-alice")
		require.NoError(t, err)
		assert.True(t, acc.LastActive.Equal(active))
		assert.Equal(t, "new@example.com", acc.Email)
		assert.Equal(t, storage.Linkage{ProviderName: "Kanidm", ProviderUserID: "uuid-1"}, acc.Linkage)

		_, err = s.FindByProviderIdentity(ctx, "Github", "42")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("unlink", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		require.NoError(t, s.SetLinkage(ctx, "acc-alice", storage.Linkage{}))

		acc, err := s.Find(ctx, "acc-alice")
		require.NoError(t, err)
		assert.False(t, acc.Linkage.IsLinked())
	})

	t.Run("identity linked once", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())
		seed(t, &storage.Account{ID: "acc-bob", Username: "bob", Email: "bob@example.com", CreatedAt: created})

		err := s.SetLinkage(ctx, "acc-bob", storage.Linkage{ProviderName: "Github", ProviderUserID: "42"})
		assert.ErrorIs(t, err, storage.ErrIdentityAlreadyLinked)

		require.NoError(t, s.SetLinkage(ctx, "acc-alice", storage.Linkage{ProviderName: "Github", ProviderUserID: "42", ProviderEmail: "new@example.com"}),
			"relinking the same account is allowed")
	})

	t.Run("returned accounts are copies", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		acc, err := s.Find(ctx, "acc-alice")
		require.NoError(t, err)
		acc.Email = "mutated@example.com"

		again, err := s.Find(ctx, "acc-alice")
		require.NoError(t, err)
		assert.Equal(t, "Alice@Example.com", again.Email)
	})

	t.Run("create account", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		acc, err := s.CreateAccount(ctx, storage.NewAccount{
			Username: "bob",
			RealName: "Bob",
			Email:    "bob@example.com",
			Password: "opaque-token",
			Linkage:  storage.Linkage{ProviderName: "Kanidm", ProviderUserID: "bob-uuid", ProviderEmail: "bob@example.com"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, acc.ID)
		assert.False(t, acc.EmailVerified)
		assert.False(t, acc.Approved)
		assert.False(t, acc.HasBeenActive())
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("opaque-token")))

		found, err := s.FindByProviderIdentity(ctx, "Kanidm", "bob-uuid")
		require.NoError(t, err)
		assert.Equal(t, acc.ID, found.ID)
	})

	t.Run("registration comments", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		acc, err := s.CreateAccount(ctx, storage.NewAccount{
			Username: "carol",
			Email:    "carol@example.com",
			Comments: "I run the Tuesday group",
		})
		require.NoError(t, err)

		comments, err := s.RegistrationComments(ctx, acc.ID)
		require.NoError(t, err)
		assert.Equal(t, "I run the Tuesday group", comments)

		comments, err = s.RegistrationComments(ctx, "acc-alice")
		require.NoError(t, err)
		assert.Empty(t, comments, "seeded accounts have no comments")

		_, err = s.RegistrationComments(ctx, "nobody")
		assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	})

	t.Run("create account conflicts", func(t *testing.T) {
		s, seed := newStore(t)
		seed(t, alice())

		_, err := s.CreateAccount(ctx, storage.NewAccount{Username: "ALICE", Email: "other@example.com"})
		assert.ErrorIs(t, err, storage.ErrAccountExists)

		_, err = s.CreateAccount(ctx, storage.NewAccount{Username: "alice2", Email: "alice@example.com"})
		assert.ErrorIs(t, err, storage.ErrAccountExists)
	})
}
