package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/sessions"
	"github.com/jrsteele09/go-session-gateway/tenants"
	"github.com/jrsteele09/go-session-gateway/users"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestExtractUpMigration(t *testing.T) {
	got := extractUpMigration("-- +migrate Up\nCREATE TABLE a (x INT);\n-- +migrate Down\nDROP TABLE a;")
	require.Equal(t, "CREATE TABLE a (x INT);", got)
}

func TestTenantStore(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Tenants()

	shop := tenants.New("shop", "Shop", tenants.Settings{AllowAutoRegister: true})
	require.NoError(t, repo.Upsert(ctx, shop))
	require.NoError(t, repo.Upsert(ctx, tenants.New("blog", "Blog", tenants.Settings{})))

	got, err := repo.Get(ctx, "app:shop")
	require.NoError(t, err)
	require.Equal(t, shop, got)

	_, err = repo.Get(ctx, "app:missing")
	require.ErrorIs(t, err, errors.ErrNotFound)

	list, err := repo.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "app:blog", list[0].ID)

	list, err = repo.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "app:shop", list[0].ID)

	require.ErrorIs(t, repo.Upsert(ctx, &tenants.Tenant{}), errors.ErrInvalidRequest)
}

func TestUserStore(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Users()

	u := &users.User{TenantID: "app:shop", Identifier: "Alice@Example.com", Name: "alice", Active: true}
	require.NoError(t, repo.Create(ctx, u))
	require.NotEmpty(t, u.ID)

	got, err := repo.GetByIdentifier(ctx, "app:shop", "alice@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, "alice@example.com", got.Identifier)
	require.True(t, got.Active)
	require.Equal(t, u.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())

	_, err = repo.GetByID(ctx, "app:blog", u.ID)
	require.ErrorIs(t, err, errors.ErrNotFound)

	dup := &users.User{TenantID: "app:shop", Identifier: "alice@example.com"}
	require.Error(t, repo.Create(ctx, dup))
}

func TestLinkedIdentities(t *testing.T) {
	ctx := context.Background()
	repo := openTestStore(t).Users()

	inactive := &users.LinkedIdentity{ID: "a", TenantID: "app:shop", UserID: "u-old", Phone: "13800000000"}
	active := &users.LinkedIdentity{ID: "b", TenantID: "app:shop", UserID: "u1", Phone: "13800000000", Active: true}
	require.NoError(t, repo.UpsertLinkedIdentity(ctx, inactive))
	require.NoError(t, repo.UpsertLinkedIdentity(ctx, active))

	got, err := repo.FindLinkedIdentity(ctx, "app:shop", users.LinkedIdentityQuery{Phone: "13800000000"})
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)

	_, err = repo.FindLinkedIdentity(ctx, "app:shop", users.LinkedIdentityQuery{LoginID: "nobody"})
	require.ErrorIs(t, err, errors.ErrNotFound)

	active.Active = false
	require.NoError(t, repo.UpsertLinkedIdentity(ctx, active))
	_, err = repo.FindLinkedIdentity(ctx, "app:shop", users.LinkedIdentityQuery{Phone: "13800000000"})
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestSessionStoreWithLedger(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t).Sessions()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ledger := sessions.NewLedger(store, sessions.WithNowFunc(func() time.Time { return now }))

	first, err := ledger.Supersede(ctx, sessions.NewSession{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC, LoginTime: 1000})
	require.NoError(t, err)
	mobile, err := ledger.Supersede(ctx, sessions.NewSession{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 1000})
	require.NoError(t, err)
	second, err := ledger.Supersede(ctx, sessions.NewSession{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC, LoginTime: 2000})
	require.NoError(t, err)

	all, err := store.Find(ctx, sessions.Query{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC}, sessions.DefaultPage)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID)
	require.Equal(t, first.ID, all[1].ID)
	require.Equal(t, now.UnixMilli(), all[1].FailTime)

	firstRef := sessions.Ref{ID: first.ID, TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC, LoginTime: 1000}
	mobileRef := sessions.Ref{ID: mobile.ID, TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 1000}

	live, err := ledger.IsLive(ctx, firstRef)
	require.NoError(t, err)
	require.False(t, live, "a live mobile record at the same login time must not keep the PC token valid")
	live, err = ledger.IsLive(ctx, mobileRef)
	require.NoError(t, err)
	require.True(t, live)

	n, err := ledger.Revoke(ctx, "app:shop", "u1", sessions.ClientMobile)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	live, err = ledger.IsLive(ctx, mobileRef)
	require.NoError(t, err)
	require.False(t, live)
}

func TestSessionUpdateAllMissingRecord(t *testing.T) {
	store := openTestStore(t).Sessions()
	err := store.UpdateAll(context.Background(), []sessions.Record{{ID: "ghost", FailTime: 1}})
	var updateErr *sessions.UpdateError
	require.ErrorAs(t, err, &updateErr)
	require.Equal(t, []string{"ghost"}, updateErr.Failed)
}
