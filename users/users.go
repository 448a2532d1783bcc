package users

import (
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is a principal inside exactly one tenant.
type User struct {
	ID           string    `json:"id,omitempty"`         // Unique identifier within the tenant
	TenantID     string    `json:"appid,omitempty"`      // Owning tenant
	Identifier   string    `json:"identifier,omitempty"` // Email, phone, login id or "provider:externalId"
	Email        string    `json:"email,omitempty"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"` // Hashed version of the user's password - never serialize
	Provider     string    `json:"identityProvider,omitempty"`
	Picture      string    `json:"picture,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"timestamp,omitempty"`
}

// LinkedIdentity maps an alternate login handle (phone number or login id)
// onto its parent principal.
type LinkedIdentity struct {
	ID       string `json:"id,omitempty"`
	TenantID string `json:"appid,omitempty"`
	UserID   string `json:"parentid,omitempty"` // Parent principal
	Phone    string `json:"phone,omitempty"`
	LoginID  string `json:"loginId,omitempty"`
	Active   bool   `json:"active"`
}

// LinkedIdentityQuery selects a linked identity by exactly one handle.
type LinkedIdentityQuery struct {
	Phone   string
	LoginID string
}

func (q LinkedIdentityQuery) Matches(li *LinkedIdentity) bool {
	if li == nil {
		return false
	}
	if q.Phone != "" {
		return li.Phone == q.Phone
	}
	if q.LoginID != "" {
		return li.LoginID == q.LoginID
	}
	return false
}

// NormalizeIdentifier lower-cases email identifiers; other handles are kept as is.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	if hash == "" {
		return false
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// PasswordMatches checks a password against the user's stored hash
func (u *User) PasswordMatches(password string) bool {
	return u != nil && CheckPasswordHash(password, u.PasswordHash)
}
