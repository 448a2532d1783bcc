package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// DefaultHTTPTimeout bounds provider calls made without an explicit client.
const DefaultHTTPTimeout = 10 * time.Second

const (
	FacebookProfileURL  = "https://graph.facebook.com/me?fields=name,email,picture.width(400).type(square).height(400)"
	GoogleProfileURL    = "https://www.googleapis.com/oauth2/v3/userinfo"
	GitHubProfileURL    = "https://api.github.com/user"
	LinkedInProfileURL  = "https://api.linkedin.com/v2/userinfo"
	MicrosoftProfileURL = "https://graph.microsoft.com/v1.0/me"
)

// Profile is the part of a provider's user document the gateway keeps.
type Profile struct {
	ID      string
	Email   string
	Name    string
	Picture string
}

// ProfileMapper extracts a Profile from a decoded userinfo document.
type ProfileMapper func(doc map[string]any) Profile

// OAuthProvider treats the credential as an access token issued by an OAuth
// provider and fetches the owner's profile with it. Principals are keyed as
// "<provider>:<external id>".
type OAuthProvider struct {
	name       string
	profileURL string
	mapProfile ProfileMapper
	users      users.UserRepo
	policy     AutoRegisterPolicy
	httpClient *http.Client
}

type OAuthOption func(*OAuthProvider)

// WithHTTPClient sets the base client used for userinfo requests.
func WithHTTPClient(client *http.Client) OAuthOption {
	return func(p *OAuthProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

func WithProfileURL(profileURL string) OAuthOption {
	return func(p *OAuthProvider) {
		if profileURL != "" {
			p.profileURL = profileURL
		}
	}
}

func NewOAuthProvider(name, profileURL string, mapper ProfileMapper, userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	p := &OAuthProvider{
		name:       strings.ToLower(name),
		profileURL: profileURL,
		mapProfile: mapper,
		users:      userRepo,
		policy:     policy,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func NewFacebookProvider(userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameFacebook, FacebookProfileURL, mapFacebookProfile, userRepo, policy, options...)
}

func NewGoogleProvider(userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameGoogle, GoogleProfileURL, mapStandardProfile, userRepo, policy, options...)
}

func NewGitHubProvider(userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameGitHub, GitHubProfileURL, mapGitHubProfile, userRepo, policy, options...)
}

func NewLinkedInProvider(userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameLinkedIn, LinkedInProfileURL, mapStandardProfile, userRepo, policy, options...)
}

func NewMicrosoftProvider(userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameMicrosoft, MicrosoftProfileURL, mapMicrosoftProfile, userRepo, policy, options...)
}

// NewGenericOAuth2Provider reads an OpenID-style userinfo document from
// profileURL.
func NewGenericOAuth2Provider(profileURL string, userRepo users.UserRepo, policy AutoRegisterPolicy, options ...OAuthOption) *OAuthProvider {
	return NewOAuthProvider(NameOAuth2, profileURL, mapStandardProfile, userRepo, policy, options...)
}

func (p *OAuthProvider) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	accessToken := strings.TrimSpace(credential)
	if accessToken == "" {
		return nil, errors.ErrMalformedCredential
	}
	if p.profileURL == "" {
		return nil, pkgerrors.Errorf("[OAuthProvider.ExchangeCredential] %s has no profile url", p.name)
	}

	profile, err := p.fetchProfile(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if profile.ID == "" {
		return nil, errors.ErrMalformedCredential
	}

	return resolveOrRegister(ctx, p.users, p.policy, tenant, &users.User{
		Identifier: p.name + credentialSeparator + profile.ID,
		Email:      profile.Email,
		Name:       profile.Name,
		Picture:    profile.Picture,
		Provider:   p.name,
		Active:     true,
	})
}

func (p *OAuthProvider) fetchProfile(ctx context.Context, accessToken string) (Profile, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = p.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return Profile{}, pkgerrors.Wrap(err, "[OAuthProvider.fetchProfile] NewRequest")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Profile{}, pkgerrors.Wrapf(err, "[OAuthProvider.fetchProfile] %s userinfo", p.name)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Profile{}, errors.ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return Profile{}, pkgerrors.Errorf("[OAuthProvider.fetchProfile] %s userinfo returned %d", p.name, resp.StatusCode)
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return Profile{}, pkgerrors.Wrap(err, "[OAuthProvider.fetchProfile] decode")
	}
	return p.mapProfile(doc), nil
}

// stringField returns the first non-empty field among keys, formatting
// numbers without exponent.
func stringField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := doc[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func mapStandardProfile(doc map[string]any) Profile {
	return Profile{
		ID:      stringField(doc, "sub", "id"),
		Email:   stringField(doc, "email"),
		Name:    stringField(doc, "name", "preferred_username"),
		Picture: stringField(doc, "picture"),
	}
}

func mapFacebookProfile(doc map[string]any) Profile {
	profile := Profile{
		ID:    stringField(doc, "id"),
		Email: stringField(doc, "email"),
		Name:  stringField(doc, "name"),
	}
	if picture, ok := doc["picture"].(map[string]any); ok {
		if data, ok := picture["data"].(map[string]any); ok {
			profile.Picture = stringField(data, "url")
		}
	}
	return profile
}

func mapGitHubProfile(doc map[string]any) Profile {
	return Profile{
		ID:      stringField(doc, "id"),
		Email:   stringField(doc, "email"),
		Name:    stringField(doc, "name", "login"),
		Picture: stringField(doc, "avatar_url"),
	}
}

func mapMicrosoftProfile(doc map[string]any) Profile {
	return Profile{
		ID:    stringField(doc, "id"),
		Email: stringField(doc, "mail", "userPrincipalName"),
		Name:  stringField(doc, "displayName"),
	}
}
