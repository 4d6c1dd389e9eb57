package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
)

// OAuth2ConfigExchanger is an interface for the Exchange method of oauth2.Config.
type OAuth2ConfigExchanger interface {
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
}

// ExchangeCodeWithPKCE exchanges an authorization code using httpClient,
// adding the PKCE verifier when one is given. The returned status is the
// token endpoint's HTTP status when the provider answered with an error,
// 0 otherwise.
func ExchangeCodeWithPKCE(ctx context.Context, config OAuth2ConfigExchanger, httpClient *http.Client, code, verifier string) (*oauth2.Token, int, error) {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	token, err := config.Exchange(ctx, code, opts...)
	if err != nil {
		status := 0
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			status = re.Response.StatusCode
		}
		return nil, status, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, http.StatusOK, nil
}

// AuthorizationRequest is what the flow persists and where it redirects.
type AuthorizationRequest struct {
	URL          string
	State        string
	PKCEVerifier string
}

// GenerateState returns a fresh state value with 256 bits of entropy.
func GenerateState() string {
	return oauth2.GenerateVerifier()
}

// BuildAuthorizationRequest generates a new state and, when the adapter uses
// PKCE, a verifier/challenge pair, and builds the authorization URL.
func BuildAuthorizationRequest(adapter Adapter) AuthorizationRequest {
	req := AuthorizationRequest{State: GenerateState()}

	var challenge, method string
	switch adapter.PKCEMethod() {
	case PKCEMethodS256:
		req.PKCEVerifier = oauth2.GenerateVerifier()
		challenge, method = oauth2.S256ChallengeFromVerifier(req.PKCEVerifier), PKCEMethodS256
	case PKCEMethodPlain:
		req.PKCEVerifier = oauth2.GenerateVerifier()
		challenge, method = req.PKCEVerifier, PKCEMethodPlain
	}

	req.URL = adapter.AuthorizationURL(req.State, challenge, method)
	return req
}

// StringAttr returns attrs[key] as a string. Only JSON strings and numbers
// decoded as json.Number are accepted; booleans, null and anything else
// yield "" so they can never become an identifier.
func StringAttr(attrs map[string]any, key string) string {
	switch v := attrs[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// NestedStringAttr follows a path of object keys, e.g. ("name", "display_name").
func NestedStringAttr(attrs map[string]any, path ...string) string {
	if len(path) == 0 {
		return ""
	}
	cur := attrs
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return ""
		}
		cur = next
	}
	return StringAttr(cur, path[len(path)-1])
}

// NewIdentity builds an Identity whose ProviderUserID is attrs[idKey].
// Without a usable id it fails with an identity data error; no other
// attribute is ever substituted for the id.
func NewIdentity(providerName string, attrs map[string]any, idKey string) (*Identity, error) {
	id := StringAttr(attrs, idKey)
	if id == "" {
		return nil, login.IdentityDataFailure(fmt.Sprintf("resource owner has no %q attribute", idKey))
	}
	return &Identity{
		ProviderName:   providerName,
		ProviderUserID: id,
		RawAttributes:  attrs,
	}, nil
}

// FirstNonEmpty returns the first non-empty value
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
