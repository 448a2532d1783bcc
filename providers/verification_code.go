package providers

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// VerificationCodeProvider authenticates "phone:code" credentials against
// codes previously issued through a CodeStore.
type VerificationCodeProvider struct {
	users  users.UserRepo
	codes  CodeStore
	policy AutoRegisterPolicy
}

func NewVerificationCodeProvider(userRepo users.UserRepo, codes CodeStore, policy AutoRegisterPolicy) *VerificationCodeProvider {
	return &VerificationCodeProvider{users: userRepo, codes: codes, policy: policy}
}

func (p *VerificationCodeProvider) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	phone, code, ok := strings.Cut(credential, credentialSeparator)
	phone = strings.TrimSpace(phone)
	code = strings.TrimSpace(code)
	if !ok || !IsPhone(phone) || code == "" {
		return nil, errors.ErrMalformedCredential
	}

	if err := p.codes.Consume(ctx, tenant.ID, phone, code); err != nil {
		return nil, err
	}

	linked, err := p.users.FindLinkedIdentity(ctx, tenant.ID, users.LinkedIdentityQuery{Phone: phone})
	switch {
	case err == nil:
		user, err := p.users.GetByID(ctx, tenant.ID, linked.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Mark(pkgerrors.Wrap(err, "[VerificationCodeProvider.ExchangeCredential] GetByID"), errors.ErrStoreUnavailable)
		}
	case !errors.Is(err, errors.ErrNotFound):
		return nil, errors.Mark(pkgerrors.Wrap(err, "[VerificationCodeProvider.ExchangeCredential] FindLinkedIdentity"), errors.ErrStoreUnavailable)
	}

	// Possession of the phone is proven by the code, so new principals start active.
	user, err := resolveOrRegister(ctx, p.users, p.policy, tenant, &users.User{
		Identifier: phone,
		Name:       phone,
		Provider:   NameVerificationCode,
		Active:     true,
	})
	if err != nil {
		return nil, err
	}
	p.link(ctx, tenant, user, phone)
	return user, nil
}

// link records the phone as a linked identity so later password logins by
// phone resolve to the same principal. Failure only costs that convenience.
func (p *VerificationCodeProvider) link(ctx context.Context, tenant *tenants.Tenant, user *users.User, phone string) {
	err := p.users.UpsertLinkedIdentity(ctx, &users.LinkedIdentity{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Phone:    phone,
		Active:   true,
	})
	if err != nil {
		log.Warn().Err(err).Str("tenant", tenant.ID).Str("user", user.ID).Msg("Failed to link phone")
	}
}
