package sqlite

import (
	"context"
	"database/sql"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/tenants"
	pkgerrors "github.com/pkg/errors"
)

var _ tenants.Repo = (*TenantStore)(nil)

// TenantStore is the tenants.Repo view of a Store.
type TenantStore struct {
	sqlDB *sql.DB
}

const tenantColumns = `id, identifier, name, root, allow_auto_register, allow_unverified_emails`

func (s *TenantStore) Upsert(ctx context.Context, tenant *tenants.Tenant) error {
	if tenant == nil || tenant.ID == "" {
		return errors.ErrInvalidRequest
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO tenants (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    identifier = excluded.identifier,
    name = excluded.name,
    root = excluded.root,
    allow_auto_register = excluded.allow_auto_register,
    allow_unverified_emails = excluded.allow_unverified_emails`,
		tenant.ID, tenant.Identifier, tenant.Name, boolInt(tenant.Root),
		boolInt(tenant.Settings.AllowAutoRegister), boolInt(tenant.Settings.AllowUnverifiedEmails))
	if err != nil {
		return pkgerrors.Wrap(err, "[TenantStore.Upsert] exec")
	}
	return nil
}

func (s *TenantStore) Get(ctx context.Context, tenantID string) (*tenants.Tenant, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, tenantID)
	t, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[TenantStore.Get] scan")
	}
	return t, nil
}

func (s *TenantStore) List(ctx context.Context, offset, limit int) ([]*tenants.Tenant, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[TenantStore.List] query")
	}
	defer rows.Close()

	var list []*tenants.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "[TenantStore.List] scan")
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*tenants.Tenant, error) {
	var t tenants.Tenant
	var root, autoRegister, unverified int
	if err := row.Scan(&t.ID, &t.Identifier, &t.Name, &root, &autoRegister, &unverified); err != nil {
		return nil, err
	}
	t.Root = root != 0
	t.Settings.AllowAutoRegister = autoRegister != 0
	t.Settings.AllowUnverifiedEmails = unverified != 0
	return &t, nil
}
