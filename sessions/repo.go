package sessions

import (
	"context"
	"fmt"
	"strings"
)

// Query filters session records by term. Empty fields do not filter.
type Query struct {
	ID          string
	TenantID    string
	UserID      string
	ClientClass ClientClass
	LoginTime   int64 // 0 matches any login time
	LiveOnly    bool  // Only records with FailTime == 0
}

// Matches reports whether r satisfies every term in q.
func (q Query) Matches(r Record) bool {
	if q.ID != "" && r.ID != q.ID {
		return false
	}
	if q.TenantID != "" && r.TenantID != q.TenantID {
		return false
	}
	if q.UserID != "" && r.UserID != q.UserID {
		return false
	}
	if q.ClientClass != ClientAny && r.ClientClass != q.ClientClass {
		return false
	}
	if q.LoginTime > 0 && r.LoginTime != q.LoginTime {
		return false
	}
	if q.LiveOnly && !r.Live() {
		return false
	}
	return true
}

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

// DefaultPage is the bounded window every ledger lookup uses.
var DefaultPage = Page{Number: 1, Size: 10}

// Offset returns the zero-based offset of the first record on the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Store persists session records. Implementations return records most recent
// login first.
type Store interface {
	Find(ctx context.Context, q Query, page Page) ([]Record, error)
	// UpdateAll persists every record. A failure on some records is reported
	// as an *UpdateError and does not roll back the others.
	UpdateAll(ctx context.Context, records []Record) error
	Create(ctx context.Context, record Record) error
}

// UpdateError lists the records a bulk update could not persist.
type UpdateError struct {
	Failed []string
	Err    error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("failed to update %d session record(s) [%s]: %v", len(e.Failed), strings.Join(e.Failed, ", "), e.Err)
}

func (e *UpdateError) Unwrap() error {
	return e.Err
}
