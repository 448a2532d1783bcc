package config

import "time"

type ProviderConfig interface {
	GetProviderTimeout() time.Duration
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOAuth2ProfileURL() string
	GetLDAP() LDAP
}

type LDAP struct {
	URL          string `env:"LDAP_URL"`
	BindDN       string `env:"LDAP_BIND_DN"`
	BindPassword string `env:"LDAP_BIND_PASSWORD"`
	BaseDN       string `env:"LDAP_BASE_DN"`
	UserFilter   string `env:"LDAP_USER_FILTER" envDefault:"(uid=%s)"`
}

type Providers struct {
	// Bounds every outbound call to an identity provider.
	Timeout          time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	OIDCIssuer       string `env:"OIDC_ISSUER"`
	OIDCClientID     string `env:"OIDC_CLIENT_ID"`
	OAuth2ProfileURL string `env:"OAUTH2_PROFILE_URL"`
	LDAP             LDAP
}

var _ ProviderConfig = Providers{}

func (p Providers) GetProviderTimeout() time.Duration {
	return p.Timeout
}

func (p Providers) GetOIDCIssuer() string {
	return p.OIDCIssuer
}

func (p Providers) GetOIDCClientID() string {
	return p.OIDCClientID
}

func (p Providers) GetOAuth2ProfileURL() string {
	return p.OAuth2ProfileURL
}

func (p Providers) GetLDAP() LDAP {
	return p.LDAP
}
