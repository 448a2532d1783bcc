package providers

import (
	"context"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

// OIDCProvider accepts an ID token from a trusted OpenID Connect issuer.
type OIDCProvider struct {
	verifier *oidc.IDTokenVerifier
	users    users.UserRepo
	policy   AutoRegisterPolicy
}

// NewOIDCProvider discovers issuer and verifies ID tokens issued to clientID.
// httpClient, when set, is used for discovery and key set fetches.
func NewOIDCProvider(ctx context.Context, issuer, clientID string, userRepo users.UserRepo, policy AutoRegisterPolicy, httpClient *http.Client) (*OIDCProvider, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[NewOIDCProvider] failed to create OIDC provider")
	}
	return NewOIDCProviderWithVerifier(provider.Verifier(&oidc.Config{ClientID: clientID}), userRepo, policy), nil
}

func NewOIDCProviderWithVerifier(verifier *oidc.IDTokenVerifier, userRepo users.UserRepo, policy AutoRegisterPolicy) *OIDCProvider {
	return &OIDCProvider{verifier: verifier, users: userRepo, policy: policy}
}

type oidcClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (p *OIDCProvider) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	rawIDToken := strings.TrimSpace(credential)
	if rawIDToken == "" {
		return nil, errors.ErrMalformedCredential
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[OIDCProvider.ExchangeCredential] ID token verification failed"), errors.ErrInvalidCredentials)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[OIDCProvider.ExchangeCredential] failed to extract claims"), errors.ErrMalformedCredential)
	}
	if claims.Sub == "" {
		return nil, errors.ErrMalformedCredential
	}

	return resolveOrRegister(ctx, p.users, p.policy, tenant, &users.User{
		Identifier: NameOIDC + credentialSeparator + claims.Sub,
		Email:      claims.Email,
		Name:       claims.Name,
		Picture:    claims.Picture,
		Provider:   NameOIDC,
		Active:     claims.EmailVerified || p.policy.StartsActive(tenant, claims.Email),
	})
}
