package providers_test

import (
	"context"
	"testing"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	fakeuserrepo "github.com/jrsteele09/go-session-gateway/users/repofake"
	"github.com/stretchr/testify/require"
)

func shopTenant(settings tenants.Settings) *tenants.Tenant {
	return tenants.New("shop", "Shop", settings)
}

func seedUser(t *testing.T, repo *fakeuserrepo.FakeUserRepo, identifier, password string, active bool) *users.User {
	t.Helper()
	hash, err := users.HashPassword(password)
	require.NoError(t, err)
	u := &users.User{TenantID: "app:shop", Identifier: identifier, Email: identifier, Name: "alice", PasswordHash: hash, Active: active}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func TestRegistryIsCaseInsensitive(t *testing.T) {
	registry := providers.NewRegistry()
	p := providers.ProviderFunc(func(context.Context, *tenants.Tenant, string) (*users.User, error) {
		return &users.User{ID: "u1"}, nil
	})
	registry.Register("Password", p)

	got, err := registry.Get("PASSWORD")
	require.NoError(t, err)
	u, err := got.ExchangeCredential(context.Background(), shopTenant(tenants.Settings{}), "x")
	require.NoError(t, err)
	require.Equal(t, "u1", u.ID)

	_, err = registry.Get("twitter")
	require.ErrorIs(t, err, errors.ErrProviderUnknown)
	require.Equal(t, []string{"password"}, registry.Names())
}

func TestAutoRegisterPolicy(t *testing.T) {
	closed := shopTenant(tenants.Settings{})
	open := shopTenant(tenants.Settings{AllowAutoRegister: true, AllowUnverifiedEmails: true})

	require.False(t, providers.AutoRegisterPolicy{}.CanCreate(closed, "a@b.c"))
	require.True(t, providers.AutoRegisterPolicy{Allow: true}.CanCreate(closed, "a@b.c"))
	require.True(t, providers.AutoRegisterPolicy{}.CanCreate(open, "a@b.c"))
	require.True(t, providers.AutoRegisterPolicy{AdminIdentifier: "Admin@b.c"}.CanCreate(closed, "admin@b.c"))

	require.False(t, providers.AutoRegisterPolicy{}.StartsActive(closed, "a@b.c"))
	require.True(t, providers.AutoRegisterPolicy{}.StartsActive(open, "a@b.c"))
	require.True(t, providers.AutoRegisterPolicy{AdminIdentifier: "admin@b.c"}.StartsActive(closed, "admin@b.c"))
}

func TestIsPhone(t *testing.T) {
	require.True(t, providers.IsPhone("13800138000"))
	require.False(t, providers.IsPhone("23800138000"))
	require.False(t, providers.IsPhone("1380013800"))
	require.False(t, providers.IsPhone("1380013800x"))
}

func TestPasswordExistingUser(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	seeded := seedUser(t, repo, "alice@example.com", "s3cret", true)
	p := providers.NewPasswordProvider(repo, providers.AutoRegisterPolicy{})

	u, err := p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "Alice@Example.com::s3cret")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, u.ID)

	_, err = p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "alice@example.com::wrong")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)
}

func TestPasswordMalformed(t *testing.T) {
	p := providers.NewPasswordProvider(fakeuserrepo.NewFakeUserRepo(), providers.AutoRegisterPolicy{})
	for _, cred := range []string{"", "no-separator", ":name:pass"} {
		_, err := p.ExchangeCredential(context.Background(), shopTenant(tenants.Settings{}), cred)
		require.ErrorIs(t, err, errors.ErrMalformedCredential, cred)
	}
}

func TestPasswordAutoRegister(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()

	_, err := providers.NewPasswordProvider(repo, providers.AutoRegisterPolicy{}).
		ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "new@example.com:New:pw")
	require.ErrorIs(t, err, errors.ErrAccountNotFound)

	p := providers.NewPasswordProvider(repo, providers.AutoRegisterPolicy{Allow: true})
	u, err := p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "new@example.com:New:pw")
	require.NoError(t, err)
	require.Equal(t, "app:shop", u.TenantID)
	require.Equal(t, "New", u.Name)
	require.False(t, u.Active)
	require.True(t, u.PasswordMatches("pw"))

	again, err := p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "new@example.com:New:pw")
	require.NoError(t, err)
	require.Equal(t, u.ID, again.ID)
}

func TestPasswordBootstrapAdmin(t *testing.T) {
	p := providers.NewPasswordProvider(fakeuserrepo.NewFakeUserRepo(), providers.AutoRegisterPolicy{AdminIdentifier: "root@example.com"})
	u, err := p.ExchangeCredential(context.Background(), shopTenant(tenants.Settings{}), "root@example.com:Root:pw")
	require.NoError(t, err)
	require.True(t, u.Active)
}

func TestPasswordLinkedIdentity(t *testing.T) {
	ctx := context.Background()
	repo := fakeuserrepo.NewFakeUserRepo()
	seeded := seedUser(t, repo, "alice@example.com", "s3cret", true)
	require.NoError(t, repo.UpsertLinkedIdentity(ctx, &users.LinkedIdentity{TenantID: "app:shop", UserID: seeded.ID, Phone: "13800138000", Active: true}))
	require.NoError(t, repo.UpsertLinkedIdentity(ctx, &users.LinkedIdentity{TenantID: "app:shop", UserID: seeded.ID, LoginID: "alice", Active: true}))
	p := providers.NewPasswordProvider(repo, providers.AutoRegisterPolicy{Allow: true})

	u, err := p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "13800138000::s3cret")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, u.ID)

	u, err = p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "alice::s3cret")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, u.ID)

	_, err = p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "alice::bad")
	require.ErrorIs(t, err, errors.ErrInvalidCredentials)

	// Unlinked handles are never auto-registered.
	_, err = p.ExchangeCredential(ctx, shopTenant(tenants.Settings{}), "13900000000::s3cret")
	require.ErrorIs(t, err, errors.ErrAccountNotFound)
}

func TestPasswordTenantIsolation(t *testing.T) {
	repo := fakeuserrepo.NewFakeUserRepo()
	seedUser(t, repo, "alice@example.com", "s3cret", true)
	p := providers.NewPasswordProvider(repo, providers.AutoRegisterPolicy{})

	_, err := p.ExchangeCredential(context.Background(), tenants.New("blog", "Blog", tenants.Settings{}), "alice@example.com::s3cret")
	require.ErrorIs(t, err, errors.ErrAccountNotFound)
}
