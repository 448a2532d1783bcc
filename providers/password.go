package providers

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

const credentialSeparator = ":"

// PasswordProvider authenticates "identifier:name:password" credentials.
// Email identifiers are looked up directly; phone numbers and login ids are
// resolved through the tenant's linked identities.
type PasswordProvider struct {
	users  users.UserRepo
	policy AutoRegisterPolicy
}

func NewPasswordProvider(userRepo users.UserRepo, policy AutoRegisterPolicy) *PasswordProvider {
	return &PasswordProvider{users: userRepo, policy: policy}
}

type passwordCredential struct {
	identifier string
	name       string
	password   string
}

func parsePasswordCredential(credential string) (passwordCredential, error) {
	if !strings.Contains(credential, credentialSeparator) {
		return passwordCredential{}, errors.ErrMalformedCredential
	}
	parts := strings.SplitN(credential, credentialSeparator, 3)
	c := passwordCredential{
		identifier: strings.TrimSpace(parts[0]),
		name:       parts[1],
	}
	if len(parts) > 2 {
		c.password = parts[2]
	}
	if c.identifier == "" {
		return passwordCredential{}, errors.ErrMalformedCredential
	}
	return c, nil
}

// IsPhone reports whether value looks like a mobile number: eleven digits
// starting with 1.
func IsPhone(value string) bool {
	if len(value) != 11 || value[0] != '1' {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p *PasswordProvider) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	c, err := parsePasswordCredential(credential)
	if err != nil {
		return nil, err
	}

	if !strings.Contains(c.identifier, "@") {
		return p.exchangeLinked(ctx, tenant, c)
	}

	user, err := p.users.GetByIdentifier(ctx, tenant.ID, c.identifier)
	switch {
	case err == nil:
		if !user.PasswordMatches(c.password) {
			return nil, errors.ErrInvalidCredentials
		}
		return user, nil
	case !errors.Is(err, errors.ErrNotFound):
		return nil, errors.Mark(pkgerrors.Wrap(err, "[PasswordProvider.ExchangeCredential] GetByIdentifier"), errors.ErrStoreUnavailable)
	}

	if !p.policy.CanCreate(tenant, c.identifier) {
		return nil, errors.ErrAccountNotFound
	}
	if c.password == "" {
		return nil, errors.ErrMalformedCredential
	}
	hash, err := users.HashPassword(c.password)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[PasswordProvider.ExchangeCredential] HashPassword")
	}
	return register(ctx, p.users, tenant, &users.User{
		Identifier:   c.identifier,
		Email:        users.NormalizeIdentifier(c.identifier),
		Name:         c.name,
		PasswordHash: hash,
		Provider:     NamePassword,
		Active:       p.policy.StartsActive(tenant, c.identifier),
	})
}

// exchangeLinked never registers: a phone number or login id must already be
// linked to a principal.
func (p *PasswordProvider) exchangeLinked(ctx context.Context, tenant *tenants.Tenant, c passwordCredential) (*users.User, error) {
	q := users.LinkedIdentityQuery{LoginID: c.identifier}
	if IsPhone(c.identifier) {
		q = users.LinkedIdentityQuery{Phone: c.identifier}
	}

	linked, err := p.users.FindLinkedIdentity(ctx, tenant.ID, q)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[PasswordProvider.exchangeLinked] FindLinkedIdentity"), errors.ErrStoreUnavailable)
	}

	user, err := p.users.GetByID(ctx, tenant.ID, linked.UserID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[PasswordProvider.exchangeLinked] GetByID"), errors.ErrStoreUnavailable)
	}
	if !user.PasswordMatches(c.password) {
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}
