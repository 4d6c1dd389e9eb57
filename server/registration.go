package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/storage"
)

// RegistrationRequest is a confirmed request for a new account.
type RegistrationRequest struct {
	Username    string
	Email       string
	DisplayName string

	// OpaquePasswordToken is the initial password. It is derived from the
	// provider token and is never the provider token itself.
	OpaquePasswordToken string

	Comments string

	// Linkage binds the new account to the provider identity
	Linkage storage.Linkage
}

// Registrar hands confirmed registrations to the host's account management.
type Registrar interface {
	RequestRegistration(ctx context.Context, req RegistrationRequest) (*storage.Account, error)
}

// StoreRegistrar creates the account directly in an AccountCreator. The
// account is neither verified nor approved; an administrator (or the host's
// verification mail) must do that before the first login.
type StoreRegistrar struct {
	creator storage.AccountCreator
	logger  *slog.Logger
}

var _ Registrar = (*StoreRegistrar)(nil)

// NewStoreRegistrar creates a StoreRegistrar
func NewStoreRegistrar(creator storage.AccountCreator, logger *slog.Logger) *StoreRegistrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreRegistrar{creator: creator, logger: logger}
}

// RequestRegistration implements Registrar
func (r *StoreRegistrar) RequestRegistration(ctx context.Context, req RegistrationRequest) (*storage.Account, error) {
	if req.Username == "" || req.Email == "" {
		return nil, fmt.Errorf("username and email are required")
	}
	if req.OpaquePasswordToken == "" {
		return nil, fmt.Errorf("password token is required")
	}

	acc, err := r.creator.CreateAccount(ctx, storage.NewAccount{
		Username: login.TruncateUsername(req.Username),
		RealName: login.TruncateField(req.DisplayName),
		Email:    login.TruncateField(req.Email),
		Password: login.TruncatePassword(req.OpaquePasswordToken),
		Comments: req.Comments,
		Linkage:  req.Linkage,
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "Registered account through provider",
		"account_id", acc.ID,
		"provider", req.Linkage.ProviderName)
	return acc, nil
}

// registrationTokenInfo separates the password derivation from other uses
// of the provider token
const registrationTokenInfo = "oauth-login registration password v1"

// deriveOpaqueToken derives the initial password of a registered account
// from the exchanged provider token. A fresh random salt makes the result
// unlinkable to the token.
func deriveOpaqueToken(token *oauth2.Token) (string, error) {
	if token == nil || token.AccessToken == "" {
		return "", fmt.Errorf("no provider token to derive from")
	}
	salt := make([]byte, sha256.Size)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := make([]byte, 48)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(token.AccessToken), salt, []byte(registrationTokenInfo)), key); err != nil {
		return "", fmt.Errorf("failed to derive password token: %w", err)
	}
	return login.TruncatePassword(base64.RawURLEncoding.EncodeToString(key)), nil
}
