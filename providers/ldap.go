package providers

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

// LDAPConfig locates users in a directory.
type LDAPConfig struct {
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string
	UserFilter   string // fmt pattern with one %s for the escaped username
}

// LDAPConn is the subset of *ldap.Conn the provider uses.
type LDAPConn interface {
	Bind(username, password string) error
	Search(request *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// LDAPDialer opens a connection and returns a func that closes it.
type LDAPDialer func(url string) (LDAPConn, func(), error)

// TimeoutDialer dials with a connect timeout and applies the same timeout to
// every request on the connection.
func TimeoutDialer(timeout time.Duration) LDAPDialer {
	return func(url string) (LDAPConn, func(), error) {
		conn, err := ldap.DialURL(url, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))
		if err != nil {
			return nil, nil, err
		}
		conn.SetTimeout(timeout)
		return conn, func() { conn.Close() }, nil
	}
}

// LDAPProvider authenticates "username:password" against a directory: it
// binds as the service account, finds the user's DN and binds as that DN.
type LDAPProvider struct {
	config LDAPConfig
	dial   LDAPDialer
	users  users.UserRepo
	policy AutoRegisterPolicy
}

func NewLDAPProvider(config LDAPConfig, userRepo users.UserRepo, policy AutoRegisterPolicy) *LDAPProvider {
	if config.UserFilter == "" {
		config.UserFilter = "(uid=%s)"
	}
	return &LDAPProvider{config: config, dial: TimeoutDialer(DefaultHTTPTimeout), users: userRepo, policy: policy}
}

// WithDialer replaces how connections are opened.
func (p *LDAPProvider) WithDialer(dial LDAPDialer) *LDAPProvider {
	p.dial = dial
	return p
}

func (p *LDAPProvider) ExchangeCredential(ctx context.Context, tenant *tenants.Tenant, credential string) (*users.User, error) {
	username, password, ok := strings.Cut(credential, credentialSeparator)
	username = strings.TrimSpace(username)
	if !ok || username == "" || password == "" {
		return nil, errors.ErrMalformedCredential
	}

	entry, err := p.authenticate(username, password)
	if err != nil {
		return nil, err
	}

	name := entry.GetAttributeValue("cn")
	if name == "" {
		name = username
	}
	return resolveOrRegister(ctx, p.users, p.policy, tenant, &users.User{
		Identifier: NameLDAP + credentialSeparator + username,
		Email:      entry.GetAttributeValue("mail"),
		Name:       name,
		Provider:   NameLDAP,
		Active:     true,
	})
}

func (p *LDAPProvider) authenticate(username, password string) (*ldap.Entry, error) {
	conn, closeConn, err := p.dial(p.config.URL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[LDAPProvider.authenticate] dial")
	}
	defer closeConn()

	if p.config.BindDN != "" {
		if err := conn.Bind(p.config.BindDN, p.config.BindPassword); err != nil {
			return nil, pkgerrors.Wrap(err, "[LDAPProvider.authenticate] service bind")
		}
	}

	result, err := conn.Search(ldap.NewSearchRequest(
		p.config.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		fmt.Sprintf(p.config.UserFilter, ldap.EscapeFilter(username)),
		[]string{"dn", "cn", "mail"},
		nil,
	))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[LDAPProvider.authenticate] search")
	}
	if len(result.Entries) != 1 {
		return nil, errors.ErrInvalidCredentials
	}

	entry := result.Entries[0]
	if err := conn.Bind(entry.DN, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, pkgerrors.Wrap(err, "[LDAPProvider.authenticate] user bind")
	}
	return entry, nil
}
