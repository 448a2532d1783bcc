// Package gateway issues, validates, refreshes and revokes session-bound
// tokens. A token is only valid while the session record created with it is
// live, so every check consults the session ledger.
package gateway

import (
	"context"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/internal/utils"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/sessions"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/token"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jrsteele09/go-session-gateway/gateway"

// Challenge is the WWW-Authenticate value to send with a response.
type Challenge string

const (
	ChallengeNone         Challenge = ""
	ChallengeBearer       Challenge = "Bearer"
	ChallengeInvalidToken Challenge = `Bearer error="invalid_token"`
)

type NewTokenRequest struct {
	TenantID    string // Tenant identifier or id
	Provider    string
	Credential  string
	UserAgent   string
	SessionMode *bool // nil means tracked
}

type RefreshRequest struct {
	Token     string
	UserAgent string
}

type RevokeRequest struct {
	Token     string
	UserAgent string
}

// Result is a freshly minted token and who it was minted for.
type Result struct {
	Token   *token.Token
	User    *users.User
	Tenant  *tenants.Tenant
	Session *sessions.Record // nil for untracked tokens
}

type RevokeResult struct {
	UserID      string
	Tenant      *tenants.Tenant
	ClientClass sessions.ClientClass
	Revoked     int
}

// Principal is an authenticated caller. App principals hold a tenant-level
// token and have no User.
type Principal struct {
	User   *users.User
	Tenant *tenants.Tenant
	Claims *token.Claims
	App    bool
}

type Gateway struct {
	tenants   tenants.Repo
	users     users.UserRepo
	providers *providers.Registry
	issuer    *token.Issuer
	ledger    *sessions.Ledger

	rootIdentifier          string
	clientsCanAccessRootApp bool
	tracer                  trace.Tracer
}

type Option func(*Gateway)

// WithRootTenant names the restricted root tenant and whether clients may
// obtain tokens for it.
func WithRootTenant(identifier string, clientsCanAccess bool) Option {
	return func(g *Gateway) {
		g.rootIdentifier = identifier
		g.clientsCanAccessRootApp = clientsCanAccess
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

func New(tenantRepo tenants.Repo, userRepo users.UserRepo, registry *providers.Registry, issuer *token.Issuer, ledger *sessions.Ledger, options ...Option) *Gateway {
	g := &Gateway{
		tenants:        tenantRepo,
		users:          userRepo,
		providers:      registry,
		issuer:         issuer,
		ledger:         ledger,
		rootIdentifier: "root",
	}
	for _, opt := range options {
		opt(g)
	}
	if g.tracer == nil {
		g.tracer = otel.Tracer(tracerName)
	}
	return g
}

// IssueNewToken exchanges a provider credential for a token. In session mode
// (the default) the new token supersedes every live session of the same
// user and client class.
func (g *Gateway) IssueNewToken(ctx context.Context, req NewTokenRequest) (result *Result, err error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.IssueNewToken", trace.WithAttributes(
		attribute.String("tenant", req.TenantID),
		attribute.String("provider", req.Provider),
	))
	defer func() { endSpan(span, err) }()

	if req.TenantID == "" || req.Provider == "" || req.Credential == "" {
		return nil, errors.ErrInvalidRequest
	}
	if tenants.IsRoot(req.TenantID, g.rootIdentifier) && !g.clientsCanAccessRootApp {
		return nil, errors.ErrTenantAccessForbidden
	}

	tenant, err := g.lookupTenant(ctx, tenants.ID(req.TenantID))
	if err != nil {
		return nil, err
	}

	provider, err := g.providers.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	user, err := provider.ExchangeCredential(ctx, tenant, req.Credential)
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrapf(err, "[Gateway.IssueNewToken] %s", req.Provider), errors.ErrCredentialExchangeFailed)
	}
	if user == nil {
		return nil, errors.ErrCredentialExchangeFailed
	}
	if !user.Active {
		return nil, errors.ErrAccountInactive
	}
	span.SetAttributes(attribute.String("user", user.ID))

	if !utils.ValueOr(req.SessionMode, true) {
		span.SetAttributes(attribute.Bool("untracked", true))
		tok, err := g.issuer.Mint(user, tenant, token.Session{})
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[Gateway.IssueNewToken] Mint")
		}
		return &Result{Token: tok, User: user, Tenant: tenant}, nil
	}

	tok, record, err := g.mintTracked(ctx, user, tenant, req.UserAgent)
	if err != nil {
		return nil, err
	}
	return &Result{Token: tok, User: user, Tenant: tenant, Session: record}, nil
}

// RefreshToken mints a replacement for a valid user token and tracks it as
// the new session for the caller's client class.
func (g *Gateway) RefreshToken(ctx context.Context, req RefreshRequest) (result *Result, err error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.RefreshToken")
	defer func() { endSpan(span, err) }()

	principal, err := g.Validate(ctx, req.Token)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrUnauthenticated)
	}
	if principal.App {
		return nil, errors.ErrUnauthenticated
	}
	span.SetAttributes(attribute.String("tenant", principal.Tenant.ID), attribute.String("user", principal.User.ID))

	tok, record, err := g.mintTracked(ctx, principal.User, principal.Tenant, req.UserAgent)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrUnauthenticated)
	}
	return &Result{Token: tok, User: principal.User, Tenant: principal.Tenant, Session: record}, nil
}

// RevokeAllSessions invalidates the live sessions of the token's user for the
// caller's client class. Sessions of other client classes are untouched.
func (g *Gateway) RevokeAllSessions(ctx context.Context, req RevokeRequest) (result *RevokeResult, err error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.RevokeAllSessions")
	defer func() { endSpan(span, err) }()

	principal, err := g.Validate(ctx, req.Token)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrUnauthenticated)
	}
	if principal.App {
		return nil, errors.ErrUnauthenticated
	}

	class := ClientClassFromUserAgent(req.UserAgent)
	span.SetAttributes(
		attribute.String("tenant", principal.Tenant.ID),
		attribute.String("user", principal.User.ID),
		attribute.String("client", string(class)),
	)

	revoked, err := g.ledger.Revoke(ctx, principal.Tenant.ID, principal.User.ID, class)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrUnauthenticated)
	}
	return &RevokeResult{
		UserID:      principal.User.ID,
		Tenant:      principal.Tenant,
		ClientClass: class,
		Revoked:     revoked,
	}, nil
}

// IssueAppToken mints a tenant-level token for tenantID. App tokens
// authenticate downstream requests as the tenant itself and are never session
// tracked, so they stay valid until they expire.
func (g *Gateway) IssueAppToken(ctx context.Context, tenantID string) (result *Result, err error) {
	ctx, span := g.tracer.Start(ctx, "Gateway.IssueAppToken", trace.WithAttributes(attribute.String("tenant", tenantID)))
	defer func() { endSpan(span, err) }()

	if tenantID == "" {
		return nil, errors.ErrInvalidRequest
	}
	tenant, err := g.lookupTenant(ctx, tenants.ID(tenantID))
	if err != nil {
		return nil, err
	}
	tok, err := g.issuer.MintAppToken(tenant)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Gateway.IssueAppToken] MintAppToken")
	}
	return &Result{Token: tok, Tenant: tenant}, nil
}

// AuthenticateRequest validates an Authorization header value. A missing
// bearer token is not an error: it yields no principal and the plain Bearer
// challenge. An invalid one yields the error and the invalid_token challenge.
func (g *Gateway) AuthenticateRequest(ctx context.Context, authorization string) (principal *Principal, challenge Challenge, err error) {
	raw, ok := BearerToken(authorization)
	if !ok {
		return nil, ChallengeBearer, nil
	}

	ctx, span := g.tracer.Start(ctx, "Gateway.AuthenticateRequest")
	defer func() { endSpan(span, err) }()

	principal, err = g.Validate(ctx, raw)
	if err != nil {
		return nil, ChallengeInvalidToken, err
	}
	return principal, ChallengeNone, nil
}

// Validate checks signature, expiry, tenant, principal and session liveness
// of a raw token, in that order.
func (g *Gateway) Validate(ctx context.Context, raw string) (*Principal, error) {
	claims, err := g.issuer.Parse(raw)
	if err != nil {
		return nil, err
	}
	if claims.Expired(g.issuer.Now()) {
		return nil, errors.ErrTokenExpired
	}

	tenant, err := g.lookupTenant(ctx, tenants.ID(claims.AppID))
	if err != nil {
		return nil, err
	}

	user, err := g.users.GetByID(ctx, tenant.ID, claims.Subject)
	if errors.Is(err, errors.ErrNotFound) {
		if claims.Subject == tenant.ID {
			return &Principal{Tenant: tenant, Claims: claims, App: true}, nil
		}
		return nil, errors.ErrAccountNotFound
	}
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[Gateway.Validate] GetByID"), errors.ErrStoreUnavailable)
	}
	if !user.Active {
		return nil, errors.ErrAccountInactive
	}

	live, err := g.ledger.IsLive(ctx, sessions.Ref{
		ID:          claims.SessionID,
		TenantID:    tenant.ID,
		UserID:      user.ID,
		ClientClass: sessions.ClientClass(claims.Client),
		LoginTime:   claims.LoginTime(),
	})
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, errors.ErrSessionInvalidated
	}
	return &Principal{User: user, Tenant: tenant, Claims: claims}, nil
}

func (g *Gateway) lookupTenant(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	tenant, err := g.tenants.Get(ctx, tenantID)
	if errors.Is(err, errors.ErrNotFound) {
		return nil, errors.ErrTenantNotFound
	}
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[Gateway.lookupTenant] Get"), errors.ErrStoreUnavailable)
	}
	return tenant, nil
}

// mintTracked mints a token bound to a new session record and supersedes the
// live sessions of the caller's client class with it.
func (g *Gateway) mintTracked(ctx context.Context, user *users.User, tenant *tenants.Tenant, userAgent string) (*token.Token, *sessions.Record, error) {
	class := ClientClassFromUserAgent(userAgent)
	id := sessions.NewID()
	tok, err := g.issuer.Mint(user, tenant, token.Session{ID: id, Client: string(class)})
	if err != nil {
		return nil, nil, pkgerrors.Wrap(err, "[Gateway.mintTracked] Mint")
	}
	record, err := g.ledger.Supersede(ctx, sessions.NewSession{
		ID:          id,
		TenantID:    tenant.ID,
		UserID:      user.ID,
		UserName:    user.Name,
		ClientClass: class,
		LoginTime:   tok.Claims.LoginTime(),
	})
	if err != nil {
		return nil, nil, err
	}
	return tok, record, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
