// Package providers exchanges an external credential for a principal of a
// tenant. Each identity provider is registered under a case-insensitive name.
package providers

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
)

const (
	NamePassword         = "password"
	NameVerificationCode = "verificationcode"
	NameFacebook         = "facebook"
	NameGoogle           = "google"
	NameGitHub           = "github"
	NameLinkedIn         = "linkedin"
	NameMicrosoft        = "microsoft"
	NameOAuth2           = "oauth2"
	NameOIDC             = "oidc"
	NameLDAP             = "ldap"
)

// Provider resolves a credential to a principal of tenant, creating the
// principal on first sight when the auto-register policy allows it.
type Provider interface {
	ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error)

func (f ProviderFunc) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	return f(ctx, tenant, credential)
}

type Registry struct {
	providers map[string]Provider
	lock      sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

func (r *Registry) Register(name string, provider Provider) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.providers[strings.ToLower(strings.TrimSpace(name))] = provider
}

func (r *Registry) Get(name string) (Provider, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.ErrProviderUnknown
	}
	return p, nil
}

// Names lists the registered provider names in order.
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
