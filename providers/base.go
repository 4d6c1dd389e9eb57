package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"

	login "github.com/giantswarm/oauth-login"
	"github.com/giantswarm/oauth-login/instrumentation"
	"github.com/giantswarm/oauth-login/providers/oidc"
)

// maxResourceOwnerBytes caps resource-owner responses
const maxResourceOwnerBytes = 1 << 20

// Base carries what every variant shares: the oauth2 client configuration,
// the HTTP client and the resource-owner request. Variants embed it and add
// Name, RequiredConfigKeys, SupportsRegistration and FetchIdentity.
type Base struct {
	*oauth2.Config
	name             string
	label            string
	pkceMethod       string
	resourceOwnerURL string
	httpClient       *http.Client
	requestTimeout   time.Duration
	instrumentation  *instrumentation.Instrumentation
	logger           *slog.Logger
}

// Endpoints are the URLs a variant talks to. Zero fields are taken from the
// Config.
type Endpoints struct {
	OAuth2        oauth2.Endpoint
	ResourceOwner string
}

// NewBase validates cfg and builds the shared base for the variant name.
// defaultScopes apply when cfg.Scopes is empty.
func NewBase(name string, cfg Config, endpoints Endpoints, defaultScopes []string) (*Base, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	ep := endpoints.OAuth2
	if ep.AuthURL == "" {
		ep.AuthURL = cfg.AuthorizeURL
	}
	if ep.TokenURL == "" {
		ep.TokenURL = cfg.TokenURL
	}
	resourceOwnerURL := endpoints.ResourceOwner
	if resourceOwnerURL == "" {
		resourceOwnerURL = cfg.ResourceOwnerURL
	}

	for label, u := range map[string]string{
		OptionURLAuthorize:            ep.AuthURL,
		OptionURLAccessToken:          ep.TokenURL,
		OptionURLResourceOwnerDetails: resourceOwnerURL,
	} {
		if err := oidc.ValidateEndpointURL(u); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", label, err)
		}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	// copy so callers cannot mutate the adapter's scopes
	scopes = append([]string(nil), scopes...)
	if err := oidc.ValidateScopes(scopes); err != nil {
		return nil, fmt.Errorf("invalid scopes: %w", err)
	}

	switch cfg.PKCEMethod {
	case "", PKCEMethodS256, PKCEMethodPlain:
	default:
		return nil, fmt.Errorf("unsupported pkceMethod %q (want %s or %s)", cfg.PKCEMethod, PKCEMethodS256, PKCEMethodPlain)
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout == 0 {
		requestTimeout = DefaultRequestTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	label := cfg.SignInLabel
	if label == "" {
		label = name
	}

	return &Base{
		Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     ep,
		},
		name:             name,
		label:            label,
		pkceMethod:       cfg.PKCEMethod,
		resourceOwnerURL: resourceOwnerURL,
		httpClient:       httpClient,
		requestTimeout:   requestTimeout,
		instrumentation:  cfg.Instrumentation,
		logger:           logger.With("provider", name),
	}, nil
}

// Name returns the provider name
func (b *Base) Name() string {
	return b.name
}

// Label returns the sign-in button label
func (b *Base) Label() string {
	return b.label
}

// PKCEMethod returns the configured PKCE method or ""
func (b *Base) PKCEMethod() string {
	return b.pkceMethod
}

// ResourceOwnerURL returns the resource-owner endpoint
func (b *Base) ResourceOwnerURL() string {
	return b.resourceOwnerURL
}

// AuthorizationURL generates the authorization URL with optional PKCE
// parameters.
func (b *Base) AuthorizationURL(state, codeChallenge, codeChallengeMethod string) string {
	var opts []oauth2.AuthCodeOption
	if codeChallenge != "" && codeChallengeMethod != "" {
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", codeChallenge),
			oauth2.SetAuthURLParam("code_challenge_method", codeChallengeMethod),
		)
	}
	return b.AuthCodeURL(state, opts...)
}

// ensureContextTimeout adds the request timeout unless ctx already has a
// deadline.
func (b *Base) ensureContextTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.requestTimeout)
}

// ExchangeCode exchanges an authorization code for a token.
func (b *Base) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	ctx, cancel := b.ensureContextTimeout(ctx)
	defer cancel()

	ctx, done := b.startCall(ctx, "token_exchange")
	token, status, err := ExchangeCodeWithPKCE(ctx, b.Config, b.httpClient, code, codeVerifier)
	done(status, err)
	if err != nil {
		b.logger.WarnContext(ctx, "Token exchange failed", "status", status, "error", err)
		return nil, login.ProviderFailure("token exchange", status, err)
	}
	return token, nil
}

// FetchResourceOwner requests the resource-owner endpoint with the access
// token and decodes the JSON object. Numbers are kept as json.Number so
// numeric ids survive without float rounding.
func (b *Base) FetchResourceOwner(ctx context.Context, token *oauth2.Token, method string) (map[string]any, error) {
	var attrs map[string]any
	if err := b.GetJSON(ctx, token, method, b.resourceOwnerURL, &attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		return nil, login.IdentityDataFailure("resource owner response is not a JSON object")
	}
	return attrs, nil
}

// GetJSON performs an authenticated request against the provider API and
// decodes the response into out. Transport and HTTP failures are provider
// errors; undecodable bodies are identity data errors.
func (b *Base) GetJSON(ctx context.Context, token *oauth2.Token, method, url string, out any) error {
	if token == nil || token.AccessToken == "" {
		return login.ProviderFailure("resource owner request", 0, fmt.Errorf("no access token"))
	}

	ctx, cancel := b.ensureContextTimeout(ctx)
	defer cancel()

	ctx, done := b.startCall(ctx, "resource_owner")

	body, status, err := b.do(ctx, token, method, url)
	done(status, err)
	if err != nil {
		b.logger.WarnContext(ctx, "Resource owner request failed", "url", url, "status", status, "error", err)
		return login.ProviderFailure("resource owner request", status, err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return login.IdentityDataFailure(fmt.Sprintf("failed to decode resource owner response: %v", err))
	}
	return nil
}

func (b *Base) do(ctx context.Context, token *oauth2.Token, method, url string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceOwnerBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

// startCall opens a provider span and returns a func that records the
// outcome on the span and in the provider metrics.
func (b *Base) startCall(ctx context.Context, operation string) (context.Context, func(status int, err error)) {
	if b.instrumentation == nil {
		return ctx, func(int, error) {}
	}

	start := time.Now()
	ctx, span := b.instrumentation.Tracer("provider").Start(ctx, "provider."+operation)
	instrumentation.AddProviderAttributes(span, b.name, operation)

	return ctx, func(status int, err error) {
		defer span.End()
		instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrProviderStatus, status))
		if err != nil {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		b.instrumentation.Metrics().RecordProviderAPICall(ctx, b.name, operation, status,
			float64(time.Since(start).Microseconds())/1000.0, err)
	}
}
