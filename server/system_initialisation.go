package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/providers"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	"github.com/rs/zerolog/log"
)

const DefaultAdminName = "Administrator"

// InitialiseSystem creates the root tenant, the configured seed tenants and
// the bootstrap admin when they do not exist yet.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	root, err := s.initialiseTenant(ctx, s.config.GetRootAppIdentifier(), true)
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap root tenant: %w", err)
	}

	for _, identifier := range s.config.GetSeedApps() {
		identifier = strings.TrimSpace(identifier)
		if identifier == "" || tenants.IsRoot(identifier, root.Identifier) {
			continue
		}
		if _, err := s.initialiseTenant(ctx, identifier, false); err != nil {
			return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap tenant %s: %w", identifier, err)
		}
	}

	adminIdentifier := s.config.GetAdminIdentifier()
	if adminIdentifier == "" {
		return nil
	}
	generatedPassword, err := s.createAdmin(ctx, root, adminIdentifier, s.config.GetAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin: %w", err)
	}
	if generatedPassword != "" {
		log.Info().
			Str("tenant", root.ID).
			Str("identifier", adminIdentifier).
			Str("password", generatedPassword).
			Msg("Admin created, change the generated password")
	}
	return nil
}

// initialiseTenant returns the tenant for identifier, creating it if missing.
func (s *Server) initialiseTenant(ctx context.Context, identifier string, root bool) (*tenants.Tenant, error) {
	existing, err := s.repos.Tenants.Get(ctx, tenants.ID(identifier))
	if err == nil {
		log.Debug().Str("tenant", existing.ID).Msg("Tenant already exists")
		return existing, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return nil, fmt.Errorf("[server initialiseTenant] failed to get tenant: %w", err)
	}

	tenant := tenants.New(identifier, identifier, tenants.Settings{
		AllowAutoRegister:     s.config.GetAllowAutoRegisterUsers(),
		AllowUnverifiedEmails: s.config.GetAllowUnverifiedEmails(),
	})
	tenant.Root = root
	if err := s.repos.Tenants.Upsert(ctx, tenant); err != nil {
		return nil, fmt.Errorf("[server initialiseTenant] failed to create tenant: %w", err)
	}
	log.Info().Str("tenant", tenant.ID).Bool("root", root).Msg("Tenant created")
	return tenant, nil
}

// createAdmin creates the admin principal in the root tenant. The password is
// returned only when it was generated here.
func (s *Server) createAdmin(ctx context.Context, root *tenants.Tenant, identifier, defaultPassword string) (generatedPassword string, err error) {
	if _, err := s.lookupAdmin(ctx, root, identifier); err == nil {
		return "", nil
	} else if !errors.Is(err, errors.ErrNotFound) {
		return "", fmt.Errorf("[server createAdmin] failed to look up admin: %w", err)
	}

	password := defaultPassword
	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server createAdmin] failed to generate password: %w", err)
		}
		password = base64.URLEncoding.EncodeToString(passwordBytes)
		generatedPassword = password
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server createAdmin] failed to hash password: %w", err)
	}

	admin := &users.User{
		TenantID:     root.ID,
		Identifier:   identifier,
		Name:         DefaultAdminName,
		PasswordHash: passwordHash,
		Provider:     providers.NamePassword,
		Active:       true,
	}
	if strings.Contains(identifier, "@") {
		admin.Email = users.NormalizeIdentifier(identifier)
	}
	if err := s.repos.Users.Create(ctx, admin); err != nil {
		return "", fmt.Errorf("[server createAdmin] failed to create admin: %w", err)
	}

	// Non-email identifiers log in through a linked login id.
	if admin.Email == "" {
		if err := s.repos.Users.UpsertLinkedIdentity(ctx, &users.LinkedIdentity{
			TenantID: root.ID,
			UserID:   admin.ID,
			LoginID:  identifier,
			Active:   true,
		}); err != nil {
			return "", fmt.Errorf("[server createAdmin] failed to link admin login id: %w", err)
		}
	}
	return generatedPassword, nil
}

func (s *Server) lookupAdmin(ctx context.Context, root *tenants.Tenant, identifier string) (*users.User, error) {
	if strings.Contains(identifier, "@") {
		return s.repos.Users.GetByIdentifier(ctx, root.ID, identifier)
	}
	linked, err := s.repos.Users.FindLinkedIdentity(ctx, root.ID, users.LinkedIdentityQuery{LoginID: identifier})
	if err != nil {
		return nil, err
	}
	return s.repos.Users.GetByID(ctx, root.ID, linked.UserID)
}
