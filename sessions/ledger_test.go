package sessions_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/sessions"
	fakesessionrepo "github.com/jrsteele09/go-session-gateway/sessions/repofakes"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newLedger(t *testing.T) (*sessions.Ledger, *fakesessionrepo.FakeSessionStore, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	store := fakesessionrepo.NewFakeSessionStore()
	return sessions.NewLedger(store, sessions.WithNowFunc(c.Now)), store, c
}

func newSession(class sessions.ClientClass, loginTime int64) sessions.NewSession {
	return sessions.NewSession{
		TenantID:    "app:shop",
		UserID:      "u1",
		UserName:    "alice",
		ClientClass: class,
		LoginTime:   loginTime,
	}
}

func refOf(r *sessions.Record) sessions.Ref {
	return sessions.Ref{
		ID:          r.ID,
		TenantID:    r.TenantID,
		UserID:      r.UserID,
		ClientClass: r.ClientClass,
		LoginTime:   r.LoginTime,
	}
}

func liveCount(store *fakesessionrepo.FakeSessionStore, class sessions.ClientClass) int {
	n := 0
	for _, r := range store.All() {
		if r.Live() && r.ClientClass == class {
			n++
		}
	}
	return n
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()
	ledger, _, c := newLedger(t)

	r, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	require.NotEmpty(t, r.ID)
	require.True(t, r.Live())
	require.Equal(t, c.now, r.CreatedAt)

	live, err := ledger.FindLiveSessions(ctx, sessions.Query{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, r.ID, live[0].ID)
}

func TestSupersedeKeepsOneLivePerClient(t *testing.T) {
	ctx := context.Background()
	ledger, store, c := newLedger(t)

	for i := 1; i <= 5; i++ {
		c.Advance(time.Second)
		_, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, c.now.Unix()*1000))
		require.NoError(t, err)
	}
	_, err := ledger.Supersede(ctx, newSession(sessions.ClientMobile, c.now.Unix()*1000))
	require.NoError(t, err)

	require.Equal(t, 1, liveCount(store, sessions.ClientPC))
	require.Equal(t, 1, liveCount(store, sessions.ClientMobile))
	require.Len(t, store.All(), 6)
}

func TestInvalidateSessionsStampsFailTime(t *testing.T) {
	ctx := context.Background()
	ledger, store, c := newLedger(t)

	r, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)

	c.Advance(time.Minute)
	require.NoError(t, ledger.InvalidateSessions(ctx, []sessions.Record{*r}))

	all := store.All()
	require.Len(t, all, 1)
	require.Equal(t, c.now.UnixMilli(), all[0].FailTime)
	require.NoError(t, ledger.InvalidateSessions(ctx, nil))
}

func TestInvalidateSessionsPartialFailure(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t)

	a, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	b, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 2000))
	require.NoError(t, err)
	store.FailUpdates[b.ID] = true

	err = ledger.InvalidateSessions(ctx, []sessions.Record{*a, *b})
	require.ErrorIs(t, err, errors.ErrStoreUnavailable)
	var updateErr *sessions.UpdateError
	require.ErrorAs(t, err, &updateErr)
	require.Equal(t, []string{b.ID}, updateErr.Failed)

	live, err := ledger.IsLive(ctx, refOf(a))
	require.NoError(t, err)
	require.False(t, live)
	live, err = ledger.IsLive(ctx, refOf(b))
	require.NoError(t, err)
	require.True(t, live)
}

func TestSupersedeToleratesInvalidationFailure(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t)

	old, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	store.FailUpdates[old.ID] = true

	r, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, 2000))
	require.NoError(t, err)
	require.True(t, r.Live())
	require.Equal(t, 2, liveCount(store, sessions.ClientPC))
}

func TestSupersedeCreateFailure(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t)
	store.FailCreate = true

	_, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, 1000))
	require.ErrorIs(t, err, errors.ErrStoreUnavailable)
}

func TestRevokeIsClientScoped(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t)

	_, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	_, err = ledger.CreateSession(ctx, newSession(sessions.ClientMobile, 2000))
	require.NoError(t, err)

	n, err := ledger.Revoke(ctx, "app:shop", "u1", sessions.ClientPC)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 0, liveCount(store, sessions.ClientPC))
	require.Equal(t, 1, liveCount(store, sessions.ClientMobile))

	n, err = ledger.Revoke(ctx, "app:shop", "u1", sessions.ClientPC)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIsLiveMatchesExactRecord(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t)

	// Both records share one login time.
	pc, err := ledger.CreateSession(ctx, newSession(sessions.ClientPC, 7000))
	require.NoError(t, err)
	mobile, err := ledger.CreateSession(ctx, newSession(sessions.ClientMobile, 7000))
	require.NoError(t, err)

	live, err := ledger.IsLive(ctx, refOf(pc))
	require.NoError(t, err)
	require.True(t, live)

	n, err := ledger.Revoke(ctx, "app:shop", "u1", sessions.ClientPC)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	live, err = ledger.IsLive(ctx, refOf(pc))
	require.NoError(t, err)
	require.False(t, live)
	live, err = ledger.IsLive(ctx, refOf(mobile))
	require.NoError(t, err)
	require.True(t, live)

	for name, ref := range map[string]sessions.Ref{
		"other tenant":    {ID: mobile.ID, TenantID: "app:other", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 7000},
		"other class":     {ID: mobile.ID, TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC, LoginTime: 7000},
		"other login":     {ID: mobile.ID, TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 8000},
		"no id":           {TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 7000},
		"no login time":   {ID: mobile.ID, TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile},
		"unknown session": {ID: "missing", TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientMobile, LoginTime: 7000},
	} {
		live, err := ledger.IsLive(ctx, ref)
		require.NoError(t, err, name)
		require.False(t, live, name)
	}
}

func TestSupersedeWithinOneLoginTime(t *testing.T) {
	ctx := context.Background()
	ledger, store, _ := newLedger(t)

	first, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	second, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, 1000))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)

	live, err := ledger.IsLive(ctx, refOf(first))
	require.NoError(t, err)
	require.False(t, live)
	live, err = ledger.IsLive(ctx, refOf(second))
	require.NoError(t, err)
	require.True(t, live)
	require.Equal(t, 1, liveCount(store, sessions.ClientPC))
}

func TestCreateSessionKeepsGivenID(t *testing.T) {
	ctx := context.Background()
	ledger, _, _ := newLedger(t)

	s := newSession(sessions.ClientPC, 1000)
	s.ID = sessions.NewID()
	r, err := ledger.CreateSession(ctx, s)
	require.NoError(t, err)
	require.Equal(t, s.ID, r.ID)
}

func TestFindLiveSessionsSkipsDeadRecords(t *testing.T) {
	ctx := context.Background()
	ledger, _, c := newLedger(t)

	// More dead records than one page holds must not hide the live one.
	for i := 0; i < 15; i++ {
		c.Advance(time.Second)
		_, err := ledger.Supersede(ctx, newSession(sessions.ClientPC, c.now.Unix()*1000))
		require.NoError(t, err)
	}
	live, err := ledger.FindLiveSessions(ctx, sessions.Query{TenantID: "app:shop", UserID: "u1", ClientClass: sessions.ClientPC})
	require.NoError(t, err)
	require.Len(t, live, 1)
	require.Equal(t, c.now.Unix()*1000, live[0].LoginTime)
}

func TestClientClassValid(t *testing.T) {
	require.True(t, sessions.ClientPC.Valid())
	require.True(t, sessions.ClientMicroMessenger.Valid())
	require.False(t, sessions.ClientAny.Valid())
	require.False(t, sessions.ClientClass("Tablet").Valid())
}
