package providers

import (
	"context"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// AutoRegisterPolicy decides whether a first-seen identity becomes a new
// principal. The global switches are merged with the tenant's own settings.
type AutoRegisterPolicy struct {
	Allow           bool   // ALLOW_AUTO_REGISTER_USERS
	AllowUnverified bool   // ALLOW_UNVERIFIED_EMAILS
	AdminIdentifier string // Bootstrap admin, always registered and active
}

func (p AutoRegisterPolicy) isAdmin(identifier string) bool {
	return p.AdminIdentifier != "" && users.NormalizeIdentifier(identifier) == users.NormalizeIdentifier(p.AdminIdentifier)
}

// CanCreate reports whether identifier may be registered in tenant.
func (p AutoRegisterPolicy) CanCreate(tenant *tenants.Tenant, identifier string) bool {
	return p.Allow || tenant.Settings.AllowAutoRegister || p.isAdmin(identifier)
}

// StartsActive reports whether a principal registered without a verified
// identity starts active.
func (p AutoRegisterPolicy) StartsActive(tenant *tenants.Tenant, identifier string) bool {
	return p.AllowUnverified || tenant.Settings.AllowUnverifiedEmails || p.isAdmin(identifier)
}

// resolveOrRegister returns the tenant principal with candidate's identifier,
// creating candidate when none exists and the policy allows it.
func resolveOrRegister(ctx context.Context, repo users.UserRepo, policy AutoRegisterPolicy, tenant *tenants.Tenant, candidate *users.User) (*users.User, error) {
	existing, err := repo.GetByIdentifier(ctx, tenant.ID, candidate.Identifier)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[providers.resolveOrRegister] GetByIdentifier"), errors.ErrStoreUnavailable)
	}

	if !policy.CanCreate(tenant, candidate.Identifier) {
		return nil, errors.ErrAccountNotFound
	}
	return register(ctx, repo, tenant, candidate)
}

func register(ctx context.Context, repo users.UserRepo, tenant *tenants.Tenant, candidate *users.User) (*users.User, error) {
	candidate.TenantID = tenant.ID
	if err := repo.Create(ctx, candidate); err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[providers.register] Create"), errors.ErrStoreUnavailable)
	}
	log.Info().
		Str("tenant", tenant.ID).
		Str("user", candidate.ID).
		Str("provider", candidate.Provider).
		Msg("Auto-registered user")
	return candidate, nil
}
