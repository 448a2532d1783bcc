package sessions

import (
	"time"

	"github.com/google/uuid"
)

// ClientClass is the coarse device category a session is scoped to. It is a
// matching key derived from the user agent, not a security boundary.
type ClientClass string

const (
	ClientAny            ClientClass = "" // Matches every class in queries
	ClientPC             ClientClass = "PC"
	ClientMobile         ClientClass = "Mobile"
	ClientMicroMessenger ClientClass = "MicroMessenger"
)

func (c ClientClass) Valid() bool {
	switch c {
	case ClientPC, ClientMobile, ClientMicroMessenger:
		return true
	}
	return false
}

// Record is one issued-token lineage for (tenant, user, client class).
// Records are never deleted: invalidation sets FailTime and keeps the row.
type Record struct {
	ID          string      `json:"id"`
	TenantID    string      `json:"appid"`
	UserID      string      `json:"userId"`
	UserName    string      `json:"userName"`
	ClientClass ClientClass `json:"clientId"`
	LoginTime   int64       `json:"loginTime"` // Token notBefore, unix millis
	FailTime    int64       `json:"failTime"`  // Unix millis of invalidation, 0 while live
	CreatedAt   time.Time   `json:"timestamp"`
}

// Live reports whether the record has not been invalidated.
func (r Record) Live() bool {
	return r.FailTime == 0
}

// NewID returns a fresh session record id. Tokens carry it so that a token
// matches exactly one record.
func NewID() string {
	return uuid.New().String()
}

// NewSession holds what is needed to open a session record. An empty ID is
// filled in by the ledger.
type NewSession struct {
	ID          string
	TenantID    string
	UserID      string
	UserName    string
	ClientClass ClientClass
	LoginTime   int64
}

// Ref is the correlation key a token carries back to its session record.
type Ref struct {
	ID          string
	TenantID    string
	UserID      string
	ClientClass ClientClass
	LoginTime   int64
}
