package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

const (
	defaultTTL             = 7 * 24 * time.Hour
	defaultRefreshInterval = time.Hour
)

// Claims is the token payload. SessionID, Client and NotBefore tie a token to
// its session record. Untracked and app tokens have no SessionID.
type Claims struct {
	AppID     string `json:"appid"`             // Tenant identifier
	Refresh   int64  `json:"refresh,omitempty"` // Unix seconds after which clients should refresh
	SessionID string `json:"sid,omitempty"`
	Client    string `json:"client,omitempty"` // Client class the session is scoped to
	jwt.RegisteredClaims
}

// Expired reports whether the token is past its exp at now. A token without
// exp never expires.
func (c *Claims) Expired(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Before(c.ExpiresAt.Time)
}

// LoginTime returns nbf as unix millis.
func (c *Claims) LoginTime() int64 {
	if c.NotBefore == nil {
		return 0
	}
	return c.NotBefore.UnixMilli()
}

// Session names the session record a token is minted for.
type Session struct {
	ID     string
	Client string
}

// Token is a signed token and the claims it carries.
type Token struct {
	Raw    string
	Claims *Claims
}

type Issuer struct {
	signer          Signer
	parser          *jwt.Parser
	ttl             time.Duration
	refreshInterval time.Duration
	nowFunc         func() time.Time
}

type IssuerOption func(*Issuer)

// WithLifetimes sets the token TTL and the refresh hint offset.
func WithLifetimes(ttl, refreshInterval time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.ttl = ttl
		i.refreshInterval = refreshInterval
	}
}

func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) *Issuer {
	i := &Issuer{
		signer:  signer,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	if i.ttl <= 0 {
		i.ttl = defaultTTL
	}
	if i.refreshInterval <= 0 || i.refreshInterval > i.ttl {
		i.refreshInterval = min(defaultRefreshInterval, i.ttl)
	}

	// Expiry is checked by the caller against its own clock.
	i.parser = jwt.NewParser(
		jwt.WithoutClaimsValidation(),
		jwt.WithValidMethods([]string{signer.SigningMethod().Alg()}),
	)
	return i
}

// Mint signs a token for user in tenant with nbf = iat = now. A zero session
// mints an untracked token.
func (i *Issuer) Mint(user *users.User, tenant *tenants.Tenant, session Session) (*Token, error) {
	if user == nil || tenant == nil {
		return nil, pkgerrors.New("[Issuer.Mint] user and tenant are required")
	}
	return i.mint(user.ID, tenant, session)
}

// MintAppToken signs a tenant-level token whose subject is the tenant id
// itself. Such tokens authenticate as the app and are never session tracked.
func (i *Issuer) MintAppToken(tenant *tenants.Tenant) (*Token, error) {
	if tenant == nil {
		return nil, pkgerrors.New("[Issuer.MintAppToken] tenant is required")
	}
	return i.mint(tenant.ID, tenant, Session{})
}

func (i *Issuer) mint(subject string, tenant *tenants.Tenant, session Session) (*Token, error) {
	now := i.nowFunc().Truncate(time.Second)
	claims := &Claims{
		AppID:     tenant.Identifier,
		Refresh:   now.Add(i.refreshInterval).Unix(),
		SessionID: session.ID,
		Client:    session.Client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	raw, err := i.signer.Sign(claims)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[Issuer.mint] Sign")
	}
	return &Token{Raw: raw, Claims: claims}, nil
}

// Parse verifies the signature and decodes the claims. It does not check
// expiry. Structurally invalid input yields ErrMalformedToken, a bad signature
// or unexpected algorithm yields ErrSignatureInvalid.
func (i *Issuer) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.ErrMalformedToken
	}

	claims := &Claims{}
	_, err := i.parser.ParseWithClaims(raw, claims, i.signer.VerificationKey)
	if err != nil {
		switch {
		case pkgerrors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.Mark(err, errors.ErrMalformedToken)
		default:
			return nil, errors.Mark(err, errors.ErrSignatureInvalid)
		}
	}
	if claims.Subject == "" || claims.AppID == "" || claims.NotBefore == nil {
		return nil, errors.ErrMalformedToken
	}
	return claims, nil
}

// Now is the issuer's clock.
func (i *Issuer) Now() time.Time {
	return i.nowFunc()
}
