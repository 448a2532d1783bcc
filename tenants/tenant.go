package tenants

import "strings"

const idPrefix = "app:"

// Settings are the per-tenant switches consulted during credential exchange.
type Settings struct {
	AllowAutoRegister     bool `json:"allow_auto_register"`     // Create principals for first-seen identities
	AllowUnverifiedEmails bool `json:"allow_unverified_emails"` // Auto-registered principals start active
}

// Tenant is an isolated namespace ("app") owning its own principals and
// session records. Tenants are immutable once created.
type Tenant struct {
	ID         string   `json:"id"`         // Stable identifier, e.g. "app:shop"
	Identifier string   `json:"identifier"` // Human-facing identifier, e.g. "shop"
	Name       string   `json:"name"`
	Root       bool     `json:"root"` // The restricted root tenant
	Settings   Settings `json:"settings"`
}

// ID returns the stable tenant id for a human-facing identifier.
func ID(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || strings.HasPrefix(identifier, idPrefix) {
		return identifier
	}
	return idPrefix + identifier
}

// IdentifierFromID strips the id prefix.
func IdentifierFromID(id string) string {
	return strings.TrimPrefix(id, idPrefix)
}

// IsRoot reports whether identifier names the root tenant.
func IsRoot(identifier, rootIdentifier string) bool {
	return IdentifierFromID(strings.TrimSpace(identifier)) == IdentifierFromID(rootIdentifier)
}

// New builds a tenant for the given identifier.
func New(identifier, name string, settings Settings) *Tenant {
	return &Tenant{
		ID:         ID(identifier),
		Identifier: IdentifierFromID(identifier),
		Name:       name,
		Settings:   settings,
	}
}
