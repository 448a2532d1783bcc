package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jrsteele09/go-session-gateway/sessions"
	pkgerrors "github.com/pkg/errors"
)

var _ sessions.Store = (*SessionStore)(nil)

// SessionStore is the sessions.Store view of a Store.
type SessionStore struct {
	sqlDB *sql.DB
}

const sessionColumns = `id, tenant_id, user_id, user_name, client_class, login_time, fail_time, created_at`

func (s *SessionStore) Find(ctx context.Context, q sessions.Query, page sessions.Page) ([]sessions.Record, error) {
	var where []string
	var args []any
	if q.ID != "" {
		where = append(where, "id = ?")
		args = append(args, q.ID)
	}
	if q.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, q.TenantID)
	}
	if q.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, q.UserID)
	}
	if q.ClientClass != sessions.ClientAny {
		where = append(where, "client_class = ?")
		args = append(args, string(q.ClientClass))
	}
	if q.LoginTime > 0 {
		where = append(where, "login_time = ?")
		args = append(args, q.LoginTime)
	}
	if q.LiveOnly {
		where = append(where, "fail_time = 0")
	}

	query := `SELECT ` + sessionColumns + ` FROM session_records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY login_time DESC, created_at DESC LIMIT ? OFFSET ?`
	limit := page.Size
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, page.Offset())

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[SessionStore.Find] query")
	}
	defer rows.Close()

	var records []sessions.Record
	for rows.Next() {
		var r sessions.Record
		var class string
		var createdAt int64
		if err := rows.Scan(&r.ID, &r.TenantID, &r.UserID, &r.UserName, &class, &r.LoginTime, &r.FailTime, &createdAt); err != nil {
			return nil, pkgerrors.Wrap(err, "[SessionStore.Find] scan")
		}
		r.ClientClass = sessions.ClientClass(class)
		r.CreatedAt = fromMillis(createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpdateAll writes each record in its own statement so one failure does not
// undo the others.
func (s *SessionStore) UpdateAll(ctx context.Context, records []sessions.Record) error {
	var failed []string
	var lastErr error
	for _, r := range records {
		res, err := s.sqlDB.ExecContext(ctx, `
UPDATE session_records SET user_name = ?, client_class = ?, login_time = ?, fail_time = ?
WHERE id = ?`, r.UserName, string(r.ClientClass), r.LoginTime, r.FailTime, r.ID)
		if err == nil {
			var n int64
			if n, err = res.RowsAffected(); err == nil && n == 0 {
				err = sql.ErrNoRows
			}
		}
		if err != nil {
			failed = append(failed, r.ID)
			lastErr = err
		}
	}
	if len(failed) > 0 {
		return &sessions.UpdateError{Failed: failed, Err: lastErr}
	}
	return nil
}

func (s *SessionStore) Create(ctx context.Context, r sessions.Record) error {
	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO session_records (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TenantID, r.UserID, r.UserName, string(r.ClientClass), r.LoginTime, r.FailTime, toMillis(r.CreatedAt))
	if err != nil {
		return pkgerrors.Wrap(err, "[SessionStore.Create] insert")
	}
	return nil
}
