package gateway_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/internal/utils"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-gateway/sessions/repofakes"
	"github.com/jrsteele09/go-session-gateway/tenants"
	tenantrepofakes "github.com/jrsteele09/go-session-gateway/tenants/repofakes"
	"github.com/jrsteele09/go-session-gateway/token"
	"github.com/jrsteele09/go-session-gateway/users"
	fakeuserrepo "github.com/jrsteele09/go-session-gateway/users/repofake"
	"github.com/stretchr/testify/require"
)

const (
	pcAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/120.0 Safari/537.36"
	mobileAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148"
	wechatAgent = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 Mobile Safari/537.36 MicroMessenger/8.0.40"
	credential  = "alice@example.com:Alice:s3cret"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

type fixture struct {
	gateway  *gateway.Gateway
	tenants  *tenantrepofakes.FakeTenantRepo
	users    *fakeuserrepo.FakeUserRepo
	sessions *fakesessionrepo.FakeSessionStore
	issuer   *token.Issuer
	clock    *clock
	shop     *tenants.Tenant
	alice    *users.User
}

func newFixture(t *testing.T, options ...gateway.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		tenants:  tenantrepofakes.NewFakeTenantRepo(),
		users:    fakeuserrepo.NewFakeUserRepo(),
		sessions: fakesessionrepo.NewFakeSessionStore(),
		clock:    &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		shop:     tenants.New("shop", "Shop", tenants.Settings{}),
	}
	require.NoError(t, f.tenants.Upsert(ctx, f.shop))
	require.NoError(t, f.tenants.Upsert(ctx, tenants.New("root", "Root", tenants.Settings{})))

	hash, err := users.HashPassword("s3cret")
	require.NoError(t, err)
	f.alice = &users.User{ID: "42", TenantID: f.shop.ID, Identifier: "alice@example.com", Name: "Alice", PasswordHash: hash, Active: true}
	require.NoError(t, f.users.Create(ctx, f.alice))

	registry := providers.NewRegistry()
	registry.Register(providers.NamePassword, providers.NewPasswordProvider(f.users, providers.AutoRegisterPolicy{}))

	f.issuer = token.NewIssuer(token.NewHMACSigner("test-secret"),
		token.WithLifetimes(time.Hour, 10*time.Minute),
		token.WithNowFunc(f.clock.Now))
	ledger := sessions.NewLedger(f.sessions, sessions.WithNowFunc(f.clock.Now))
	f.gateway = gateway.New(f.tenants, f.users, registry, f.issuer, ledger, options...)
	return f
}

// issue does not move the clock: tokens issued in one test share their nbf.
func (f *fixture) issue(t *testing.T, userAgent string) *gateway.Result {
	t.Helper()
	result, err := f.gateway.IssueNewToken(context.Background(), gateway.NewTokenRequest{
		TenantID:   "shop",
		Provider:   "password",
		Credential: credential,
		UserAgent:  userAgent,
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) authenticate(raw string) (*gateway.Principal, gateway.Challenge, error) {
	return f.gateway.AuthenticateRequest(context.Background(), "Bearer "+raw)
}

func (f *fixture) liveRecords(class sessions.ClientClass) []sessions.Record {
	var live []sessions.Record
	for _, r := range f.sessions.All() {
		if r.Live() && r.ClientClass == class {
			live = append(live, r)
		}
	}
	return live
}

func TestIssueNewTokenTracksSession(t *testing.T) {
	f := newFixture(t)
	result := f.issue(t, pcAgent)

	require.NotEmpty(t, result.Token.Raw)
	require.Equal(t, "42", result.User.ID)
	require.Equal(t, f.shop.ID, result.Tenant.ID)
	require.NotNil(t, result.Session)
	require.Equal(t, sessions.ClientPC, result.Session.ClientClass)
	require.Equal(t, result.Token.Claims.LoginTime(), result.Session.LoginTime)
	require.Equal(t, "Alice", result.Session.UserName)
	require.Zero(t, result.Session.FailTime)

	principal, challenge, err := f.authenticate(result.Token.Raw)
	require.NoError(t, err)
	require.Equal(t, gateway.ChallengeNone, challenge)
	require.Equal(t, "42", principal.User.ID)
	require.False(t, principal.App)
}

func TestSupersededTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, pcAgent)
	second := f.issue(t, pcAgent)

	records := f.sessions.All()
	require.Len(t, records, 2)
	for _, r := range records {
		if r.ID == first.Session.ID {
			require.NotZero(t, r.FailTime)
		} else {
			require.Zero(t, r.FailTime)
		}
	}

	_, challenge, err := f.authenticate(first.Token.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
	require.Equal(t, gateway.ChallengeInvalidToken, challenge)

	principal, _, err := f.authenticate(second.Token.Raw)
	require.NoError(t, err)
	require.Equal(t, "42", principal.User.ID)
}

func TestSingleLiveSessionPerClientClass(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.issue(t, pcAgent)
		f.issue(t, mobileAgent)
	}
	f.issue(t, wechatAgent)

	require.Len(t, f.liveRecords(sessions.ClientPC), 1)
	require.Len(t, f.liveRecords(sessions.ClientMobile), 1)
	require.Len(t, f.liveRecords(sessions.ClientMicroMessenger), 1)
}

func TestRevokeIsScopedToClientClass(t *testing.T) {
	f := newFixture(t)
	pc := f.issue(t, pcAgent)
	mobile := f.issue(t, mobileAgent)

	_, _, err := f.authenticate(pc.Token.Raw)
	require.NoError(t, err)

	revoked, err := f.gateway.RevokeAllSessions(context.Background(), gateway.RevokeRequest{Token: pc.Token.Raw, UserAgent: pcAgent})
	require.NoError(t, err)
	require.Equal(t, "42", revoked.UserID)
	require.Equal(t, sessions.ClientPC, revoked.ClientClass)
	require.Equal(t, 1, revoked.Revoked)

	_, _, err = f.authenticate(pc.Token.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)

	_, _, err = f.authenticate(mobile.Token.Raw)
	require.NoError(t, err)

	later := f.issue(t, mobileAgent)
	_, _, err = f.authenticate(later.Token.Raw)
	require.NoError(t, err)

	_, err = f.gateway.RevokeAllSessions(context.Background(), gateway.RevokeRequest{Token: pc.Token.Raw, UserAgent: pcAgent})
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
}

func TestIssuanceWithinOneSecond(t *testing.T) {
	t.Run("revoke one class keeps the other", func(t *testing.T) {
		f := newFixture(t)
		pc := f.issue(t, pcAgent)
		mobile := f.issue(t, mobileAgent)
		require.Equal(t, pc.Session.LoginTime, mobile.Session.LoginTime)

		_, err := f.gateway.RevokeAllSessions(context.Background(), gateway.RevokeRequest{Token: pc.Token.Raw, UserAgent: pcAgent})
		require.NoError(t, err)

		_, _, err = f.authenticate(pc.Token.Raw)
		require.ErrorIs(t, err, errors.ErrSessionInvalidated)
		_, _, err = f.authenticate(mobile.Token.Raw)
		require.NoError(t, err)
	})

	t.Run("second login supersedes the first", func(t *testing.T) {
		f := newFixture(t)
		first := f.issue(t, pcAgent)
		second := f.issue(t, pcAgent)
		require.Equal(t, first.Session.LoginTime, second.Session.LoginTime)

		_, _, err := f.authenticate(first.Token.Raw)
		require.ErrorIs(t, err, errors.ErrSessionInvalidated)
		_, _, err = f.authenticate(second.Token.Raw)
		require.NoError(t, err)
	})

	t.Run("only the newest token per class authenticates", func(t *testing.T) {
		f := newFixture(t)
		var issued []*gateway.Result
		for i := 0; i < 5; i++ {
			issued = append(issued, f.issue(t, pcAgent), f.issue(t, mobileAgent))
		}
		newestPC, newestMobile := issued[len(issued)-2], issued[len(issued)-1]
		for _, r := range issued {
			_, _, err := f.authenticate(r.Token.Raw)
			if r == newestPC || r == newestMobile {
				require.NoError(t, err)
				continue
			}
			require.ErrorIs(t, err, errors.ErrSessionInvalidated)
		}
	})
}

func TestSessionClaimsMatchRecord(t *testing.T) {
	f := newFixture(t)
	mobile := f.issue(t, mobileAgent)
	require.Equal(t, mobile.Session.ID, mobile.Token.Claims.SessionID)
	require.Equal(t, string(sessions.ClientMobile), mobile.Token.Claims.Client)

	// A genuine signature over another class does not reuse the mobile record.
	relabeled, err := f.issuer.Mint(f.alice, f.shop, token.Session{ID: mobile.Session.ID, Client: string(sessions.ClientPC)})
	require.NoError(t, err)
	_, _, err = f.authenticate(relabeled.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
}

func TestTamperedTokenIsRejected(t *testing.T) {
	f := newFixture(t)
	result := f.issue(t, pcAgent)

	parts := strings.Split(result.Token.Raw, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)

	_, challenge, err := f.authenticate(strings.Join(parts, "."))
	require.ErrorIs(t, err, errors.ErrSignatureInvalid)
	require.Equal(t, gateway.ChallengeInvalidToken, challenge)

	other := token.NewIssuer(token.NewHMACSigner("other-secret"), token.WithNowFunc(f.clock.Now))
	forged, err := other.Mint(f.alice, f.shop, token.Session{})
	require.NoError(t, err)
	_, _, err = f.authenticate(forged.Raw)
	require.ErrorIs(t, err, errors.ErrSignatureInvalid)
}

func TestTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	blog := tenants.New("blog", "Blog", tenants.Settings{})
	require.NoError(t, f.tenants.Upsert(ctx, blog))

	shop := f.issue(t, pcAgent)
	crossTenant, err := f.issuer.Mint(f.alice, blog, token.Session{ID: shop.Session.ID, Client: string(sessions.ClientPC)})
	require.NoError(t, err)
	_, _, err = f.authenticate(crossTenant.Raw)
	require.ErrorIs(t, err, errors.ErrAccountNotFound)

	// A colliding user id in the other tenant does not pick up the shop session.
	require.NoError(t, f.users.Create(ctx, &users.User{ID: "42", TenantID: blog.ID, Identifier: "bob@example.com", Active: true}))
	_, _, err = f.authenticate(crossTenant.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
}

func TestTokenRoundTripThroughGateway(t *testing.T) {
	f := newFixture(t)
	result := f.issue(t, pcAgent)

	principal, _, err := f.authenticate(result.Token.Raw)
	require.NoError(t, err)
	require.Equal(t, result.User.ID, principal.Claims.Subject)
	require.Equal(t, "shop", principal.Claims.AppID)
	require.Equal(t, f.clock.now.Unix(), principal.Claims.NotBefore.Unix())
}

func TestExpiredToken(t *testing.T) {
	f := newFixture(t)
	result := f.issue(t, pcAgent)

	f.clock.now = f.clock.now.Add(2 * time.Hour)
	_, challenge, err := f.authenticate(result.Token.Raw)
	require.ErrorIs(t, err, errors.ErrTokenExpired)
	require.Equal(t, gateway.ChallengeInvalidToken, challenge)
}

func TestAuthenticateWithoutBearer(t *testing.T) {
	f := newFixture(t)
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer "} {
		principal, challenge, err := f.gateway.AuthenticateRequest(context.Background(), header)
		require.NoError(t, err)
		require.Nil(t, principal)
		require.Equal(t, gateway.ChallengeBearer, challenge)
	}

	_, challenge, err := f.gateway.AuthenticateRequest(context.Background(), "Bearer garbage")
	require.ErrorIs(t, err, errors.ErrMalformedToken)
	require.Equal(t, gateway.ChallengeInvalidToken, challenge)
}

func TestIssueNewTokenErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name string
		req  gateway.NewTokenRequest
		want error
	}{
		{"missing fields", gateway.NewTokenRequest{TenantID: "shop"}, errors.ErrInvalidRequest},
		{"unknown tenant", gateway.NewTokenRequest{TenantID: "nope", Provider: "password", Credential: credential}, errors.ErrTenantNotFound},
		{"root tenant", gateway.NewTokenRequest{TenantID: "root", Provider: "password", Credential: credential}, errors.ErrTenantAccessForbidden},
		{"unknown provider", gateway.NewTokenRequest{TenantID: "shop", Provider: "twitter", Credential: credential}, errors.ErrProviderUnknown},
		{"wrong password", gateway.NewTokenRequest{TenantID: "shop", Provider: "password", Credential: "alice@example.com::nope"}, errors.ErrInvalidCredentials},
		{"unknown account", gateway.NewTokenRequest{TenantID: "shop", Provider: "PASSWORD", Credential: "bob@example.com::pw"}, errors.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gateway.IssueNewToken(ctx, tt.req)
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.gateway.IssueNewToken(ctx, gateway.NewTokenRequest{TenantID: "shop", Provider: "password", Credential: "alice@example.com::nope"})
	require.ErrorIs(t, err, errors.ErrCredentialExchangeFailed)
	require.Empty(t, f.sessions.All())
}

func TestRootTenantWhenAllowed(t *testing.T) {
	f := newFixture(t, gateway.WithRootTenant("root", true))
	_, err := f.gateway.IssueNewToken(context.Background(), gateway.NewTokenRequest{TenantID: "root", Provider: "password", Credential: credential})
	require.ErrorIs(t, err, errors.ErrAccountNotFound, "root tenant is reachable but alice lives in shop")
}

func TestInactiveAccount(t *testing.T) {
	f := newFixture(t)
	hash, err := users.HashPassword("pw")
	require.NoError(t, err)
	require.NoError(t, f.users.Create(context.Background(), &users.User{TenantID: f.shop.ID, Identifier: "idle@example.com", PasswordHash: hash}))

	_, err = f.gateway.IssueNewToken(context.Background(), gateway.NewTokenRequest{TenantID: "shop", Provider: "password", Credential: "idle@example.com::pw"})
	require.ErrorIs(t, err, errors.ErrAccountInactive)
}

func TestUntrackedToken(t *testing.T) {
	f := newFixture(t)
	tracked := f.issue(t, pcAgent)

	result, err := f.gateway.IssueNewToken(context.Background(), gateway.NewTokenRequest{
		TenantID: "shop", Provider: "password", Credential: credential, UserAgent: pcAgent, SessionMode: utils.Ptr(false),
	})
	require.NoError(t, err)
	require.Nil(t, result.Session)
	require.Len(t, f.sessions.All(), 1)

	// The tracked session is untouched and the untracked token has no session.
	_, _, err = f.authenticate(tracked.Token.Raw)
	require.NoError(t, err)
	_, _, err = f.authenticate(result.Token.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
}

func TestSessionStoreFailures(t *testing.T) {
	f := newFixture(t)
	first := f.issue(t, pcAgent)

	f.sessions.FailUpdates[first.Session.ID] = true
	second := f.issue(t, pcAgent)
	require.NotNil(t, second.Session, "invalidation failure does not block issuance")
	require.Len(t, f.liveRecords(sessions.ClientPC), 2)

	f.sessions.FailCreate = true
	_, err := f.gateway.IssueNewToken(context.Background(), gateway.NewTokenRequest{TenantID: "shop", Provider: "password", Credential: credential, UserAgent: pcAgent})
	require.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	original := f.issue(t, pcAgent)
	mobile := f.issue(t, mobileAgent)

	refreshed, err := f.gateway.RefreshToken(context.Background(), gateway.RefreshRequest{Token: original.Token.Raw, UserAgent: pcAgent})
	require.NoError(t, err)
	require.NotEqual(t, original.Token.Raw, refreshed.Token.Raw)
	require.Equal(t, sessions.ClientPC, refreshed.Session.ClientClass)

	_, _, err = f.authenticate(refreshed.Token.Raw)
	require.NoError(t, err)
	_, _, err = f.authenticate(original.Token.Raw)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
	_, _, err = f.authenticate(mobile.Token.Raw)
	require.NoError(t, err)

	_, err = f.gateway.RefreshToken(context.Background(), gateway.RefreshRequest{Token: original.Token.Raw, UserAgent: pcAgent})
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	require.ErrorIs(t, err, errors.ErrSessionInvalidated)
}

func TestAppTokenOnlyAuthenticatesRequests(t *testing.T) {
	f := newFixture(t)
	result, err := f.gateway.IssueAppToken(context.Background(), "shop")
	require.NoError(t, err)
	require.Nil(t, result.User)
	require.Nil(t, result.Session)
	require.Equal(t, f.shop.ID, result.Tenant.ID)
	appToken := result.Token

	principal, _, err := f.authenticate(appToken.Raw)
	require.NoError(t, err)
	require.True(t, principal.App)
	require.Nil(t, principal.User)
	require.Equal(t, f.shop.ID, principal.Tenant.ID)

	_, err = f.gateway.RefreshToken(context.Background(), gateway.RefreshRequest{Token: appToken.Raw})
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	_, err = f.gateway.RevokeAllSessions(context.Background(), gateway.RevokeRequest{Token: appToken.Raw})
	require.ErrorIs(t, err, errors.ErrUnauthenticated)
	require.Empty(t, f.sessions.All())
}

func TestIssueAppTokenErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.gateway.IssueAppToken(context.Background(), "")
	require.ErrorIs(t, err, errors.ErrInvalidRequest)
	_, err = f.gateway.IssueAppToken(context.Background(), "nope")
	require.ErrorIs(t, err, errors.ErrTenantNotFound)
}

func TestDeactivatedUserIsRejected(t *testing.T) {
	f := newFixture(t)
	result := f.issue(t, pcAgent)

	f.alice.Active = false
	require.NoError(t, f.users.Create(context.Background(), f.alice))
	_, _, err := f.authenticate(result.Token.Raw)
	require.ErrorIs(t, err, errors.ErrAccountInactive)
}
