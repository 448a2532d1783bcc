package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jrsteele09/go-session-gateway/gateway"
	"github.com/jrsteele09/go-session-gateway/internal/config"
	"github.com/jrsteele09/go-session-gateway/internal/storage/sqlite"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/server"
	"github.com/jrsteele09/go-session-gateway/sessions"
	"github.com/jrsteele09/go-session-gateway/sessions/redisstore"
	fakesessionrepo "github.com/jrsteele09/go-session-gateway/sessions/repofakes"
	tenantrepofakes "github.com/jrsteele09/go-session-gateway/tenants/repofakes"
	"github.com/jrsteele09/go-session-gateway/token"
	fakeuserrepo "github.com/jrsteele09/go-session-gateway/users/repofake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type dependencies struct {
	repos   server.Repos
	gateway *gateway.Gateway
	closers []func() error
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn().Err(err).Msg("Close failed")
		}
	}
}

// wire builds the stores, providers and gateway selected by configuration.
func wire(ctx context.Context, c config.Config) (*dependencies, error) {
	d := &dependencies{}
	ok := false
	defer func() {
		if !ok {
			d.close()
		}
	}()

	var sqliteStore *sqlite.Store
	if c.GetStoreDriver() == config.DriverSQLite || c.GetSessionDriver() == config.DriverSQLite {
		store, err := sqlite.Open(c.GetSQLitePath())
		if err != nil {
			return nil, fmt.Errorf("sqlite.Open: %w", err)
		}
		d.closers = append(d.closers, store.Close)
		sqliteStore = store
	}

	var redisClient *redis.Client
	if c.GetRedisURL() != "" {
		opts, err := redis.ParseURL(c.GetRedisURL())
		if err != nil {
			return nil, fmt.Errorf("redis.ParseURL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		d.closers = append(d.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	switch c.GetStoreDriver() {
	case config.DriverSQLite:
		d.repos.Tenants = sqliteStore.Tenants()
		d.repos.Users = sqliteStore.Users()
	default:
		d.repos.Tenants = tenantrepofakes.NewFakeTenantRepo()
		d.repos.Users = fakeuserrepo.NewFakeUserRepo()
	}

	var sessionStore sessions.Store
	switch c.GetSessionDriver() {
	case config.DriverSQLite:
		sessionStore = sqliteStore.Sessions()
	case config.DriverRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("session driver %q requires REDIS_URL", config.DriverRedis)
		}
		sessionStore = redisstore.New(redisClient)
	default:
		sessionStore = fakesessionrepo.NewFakeSessionStore()
	}

	if redisClient != nil {
		d.repos.Codes = providers.NewRedisCodeStore(redisClient, c.GetVerificationCodeTTL())
	} else {
		d.repos.Codes = providers.NewMemoryCodeStore(c.GetVerificationCodeTTL(), nil)
	}

	registry, err := registerProviders(ctx, c, d.repos)
	if err != nil {
		return nil, err
	}

	signer, err := newSigner(c)
	if err != nil {
		return nil, err
	}
	issuer := token.NewIssuer(signer, token.WithLifetimes(c.GetTokenTTL(), c.GetRefreshInterval()))

	d.gateway = gateway.New(d.repos.Tenants, d.repos.Users, registry, issuer, sessions.NewLedger(sessionStore),
		gateway.WithRootTenant(c.GetRootAppIdentifier(), c.GetClientsCanAccessRootApp()))

	log.Info().
		Str("store", c.GetStoreDriver()).
		Str("sessions", c.GetSessionDriver()).
		Strs("providers", registry.Names()).
		Str("alg", signer.SigningMethod().Alg()).
		Msg("Gateway wired")
	ok = true
	return d, nil
}

func newSigner(c config.Config) (token.Signer, error) {
	var privateKeyPEM string
	if path := c.GetPrivateKeyFile(); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		privateKeyPEM = string(raw)
	}
	signer, err := token.NewSigner(c.GetSigningAlgorithm(), c.GetJWTSecret(), privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("token.NewSigner: %w", err)
	}
	return signer, nil
}

func registerProviders(ctx context.Context, c config.Config, repos server.Repos) (*providers.Registry, error) {
	policy := providers.AutoRegisterPolicy{
		Allow:           c.GetAllowAutoRegisterUsers(),
		AllowUnverified: c.GetAllowUnverifiedEmails(),
		AdminIdentifier: c.GetAdminIdentifier(),
	}

	timeout := c.GetProviderTimeout()
	httpClient := &http.Client{Timeout: timeout}
	withClient := providers.WithHTTPClient(httpClient)

	registry := providers.NewRegistry()
	registry.Register(providers.NamePassword, providers.NewPasswordProvider(repos.Users, policy))
	registry.Register(providers.NameVerificationCode, providers.NewVerificationCodeProvider(repos.Users, repos.Codes, policy))
	registry.Register(providers.NameFacebook, providers.NewFacebookProvider(repos.Users, policy, withClient))
	registry.Register(providers.NameGoogle, providers.NewGoogleProvider(repos.Users, policy, withClient))
	registry.Register(providers.NameGitHub, providers.NewGitHubProvider(repos.Users, policy, withClient))
	registry.Register(providers.NameLinkedIn, providers.NewLinkedInProvider(repos.Users, policy, withClient))
	registry.Register(providers.NameMicrosoft, providers.NewMicrosoftProvider(repos.Users, policy, withClient))

	if url := c.GetOAuth2ProfileURL(); url != "" {
		registry.Register(providers.NameOAuth2, providers.NewGenericOAuth2Provider(url, repos.Users, policy, withClient))
	}
	if issuer, clientID := c.GetOIDCIssuer(), c.GetOIDCClientID(); issuer != "" && clientID != "" {
		p, err := providers.NewOIDCProvider(ctx, issuer, clientID, repos.Users, policy, httpClient)
		if err != nil {
			return nil, fmt.Errorf("providers.NewOIDCProvider: %w", err)
		}
		registry.Register(providers.NameOIDC, p)
	}
	if ldapConfig := c.GetLDAP(); ldapConfig.URL != "" {
		registry.Register(providers.NameLDAP, providers.NewLDAPProvider(providers.LDAPConfig(ldapConfig), repos.Users, policy).
			WithDialer(providers.TimeoutDialer(timeout)))
	}
	return registry, nil
}
