package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/users"
	pkgerrors "github.com/pkg/errors"
)

var _ users.UserRepo = (*UserStore)(nil)

// UserStore is the users.UserRepo view of a Store.
type UserStore struct {
	sqlDB *sql.DB
}

const userColumns = `id, tenant_id, identifier, email, name, password_hash, provider, picture, active, created_at`

func (s *UserStore) Create(ctx context.Context, user *users.User) error {
	if user == nil || user.TenantID == "" {
		return errors.ErrInvalidRequest
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.Identifier = users.NormalizeIdentifier(user.Identifier)

	_, err := s.sqlDB.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.TenantID, user.Identifier, user.Email, user.Name, user.PasswordHash,
		user.Provider, user.Picture, boolInt(user.Active), toMillis(user.CreatedAt))
	if err != nil {
		return pkgerrors.Wrap(err, "[UserStore.Create] insert user")
	}
	return nil
}

func (s *UserStore) GetByID(ctx context.Context, tenantID, id string) (*users.User, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND id = ?`, tenantID, id)
	return scanUser(row, "[UserStore.GetByID]")
}

func (s *UserStore) GetByIdentifier(ctx context.Context, tenantID, identifier string) (*users.User, error) {
	identifier = users.NormalizeIdentifier(identifier)
	if identifier == "" {
		return nil, errors.ErrNotFound
	}
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = ? AND identifier = ?`, tenantID, identifier)
	return scanUser(row, "[UserStore.GetByIdentifier]")
}

func scanUser(row rowScanner, op string) (*users.User, error) {
	var u users.User
	var active int
	var createdAt int64
	err := row.Scan(&u.ID, &u.TenantID, &u.Identifier, &u.Email, &u.Name, &u.PasswordHash,
		&u.Provider, &u.Picture, &active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, op+" scan")
	}
	u.Active = active != 0
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (s *UserStore) UpsertLinkedIdentity(ctx context.Context, identity *users.LinkedIdentity) error {
	if identity == nil || identity.TenantID == "" || identity.UserID == "" {
		return errors.ErrInvalidRequest
	}
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO linked_identities (id, tenant_id, user_id, phone, login_id, active) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    user_id = excluded.user_id,
    phone = excluded.phone,
    login_id = excluded.login_id,
    active = excluded.active`,
		identity.ID, identity.TenantID, identity.UserID, identity.Phone, identity.LoginID, boolInt(identity.Active))
	if err != nil {
		return pkgerrors.Wrap(err, "[UserStore.UpsertLinkedIdentity] exec")
	}
	return nil
}

func (s *UserStore) FindLinkedIdentity(ctx context.Context, tenantID string, q users.LinkedIdentityQuery) (*users.LinkedIdentity, error) {
	var column, value string
	switch {
	case q.Phone != "":
		column, value = "phone", q.Phone
	case q.LoginID != "":
		column, value = "login_id", q.LoginID
	default:
		return nil, errors.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, tenant_id, user_id, phone, login_id, active FROM linked_identities
WHERE tenant_id = ? AND `+column+` = ? AND active = 1
ORDER BY id LIMIT 1`, tenantID, value)

	var li users.LinkedIdentity
	var active int
	err := row.Scan(&li.ID, &li.TenantID, &li.UserID, &li.Phone, &li.LoginID, &active)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[UserStore.FindLinkedIdentity] scan")
	}
	li.Active = active != 0
	return &li, nil
}
