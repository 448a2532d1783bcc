package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Ledger manages login session records.
//
// There is no locking and no transaction around invalidate-then-create:
// two concurrent issuances for the same (tenant, user, client) can both end
// up live until the next issuance supersedes them. The single-live-session
// guarantee holds for serial issuance only.
type Ledger struct {
	store   Store
	page    Page
	nowFunc func() time.Time
}

type LedgerOption func(*Ledger)

func WithNowFunc(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.nowFunc = now
	}
}

func WithPage(page Page) LedgerOption {
	return func(l *Ledger) {
		if page.Size > 0 {
			l.page = page
		}
	}
}

func NewLedger(store Store, options ...LedgerOption) *Ledger {
	l := &Ledger{
		store:   store,
		page:    DefaultPage,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// FindLiveSessions returns the live records matching q inside the ledger's
// page window.
func (l *Ledger) FindLiveSessions(ctx context.Context, q Query) ([]Record, error) {
	q.LiveOnly = true
	records, err := l.store.Find(ctx, q, l.page)
	if err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[Ledger.FindLiveSessions] store.Find"), errors.ErrStoreUnavailable)
	}

	live := records[:0]
	for _, r := range records {
		if r.Live() {
			live = append(live, r)
		}
	}
	return live, nil
}

// InvalidateSessions stamps FailTime on every record and persists them in one
// bulk update. Records that fail to persist are reported in an *UpdateError;
// the others stay invalidated.
func (l *Ledger) InvalidateSessions(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	failTime := l.nowFunc().UnixMilli()
	updated := make([]Record, len(records))
	for i, r := range records {
		r.FailTime = failTime
		updated[i] = r
	}
	if err := l.store.UpdateAll(ctx, updated); err != nil {
		return errors.Mark(pkgerrors.Wrap(err, "[Ledger.InvalidateSessions] store.UpdateAll"), errors.ErrStoreUnavailable)
	}
	return nil
}

// CreateSession persists a new live record.
func (l *Ledger) CreateSession(ctx context.Context, s NewSession) (*Record, error) {
	if s.ID == "" {
		s.ID = NewID()
	}
	r := Record{
		ID:          s.ID,
		TenantID:    s.TenantID,
		UserID:      s.UserID,
		UserName:    s.UserName,
		ClientClass: s.ClientClass,
		LoginTime:   s.LoginTime,
		CreatedAt:   l.nowFunc(),
	}
	if err := l.store.Create(ctx, r); err != nil {
		return nil, errors.Mark(pkgerrors.Wrap(err, "[Ledger.CreateSession] store.Create"), errors.ErrStoreUnavailable)
	}
	return &r, nil
}

// Supersede invalidates every live record for the session's (tenant, user,
// client) and then opens the new one. Invalidation failures are logged and
// tolerated; failing to persist the new record is an error.
func (l *Ledger) Supersede(ctx context.Context, s NewSession) (*Record, error) {
	if _, err := l.Revoke(ctx, s.TenantID, s.UserID, s.ClientClass); err != nil {
		log.Warn().Err(err).
			Str("tenant", s.TenantID).
			Str("user", s.UserID).
			Str("client", string(s.ClientClass)).
			Msg("Prior sessions not fully invalidated")
	}
	return l.CreateSession(ctx, s)
}

// Revoke invalidates the live records for (tenant, user, client) and returns
// how many were found.
func (l *Ledger) Revoke(ctx context.Context, tenantID, userID string, client ClientClass) (int, error) {
	live, err := l.FindLiveSessions(ctx, Query{
		TenantID:    tenantID,
		UserID:      userID,
		ClientClass: client,
	})
	if err != nil {
		return 0, err
	}
	if err := l.InvalidateSessions(ctx, live); err != nil {
		return len(live), err
	}
	return len(live), nil
}

// IsLive reports whether the record a token points at is still live. The
// record must match every term of ref, so a live record of another client
// class or login never keeps the token valid.
func (l *Ledger) IsLive(ctx context.Context, ref Ref) (bool, error) {
	if ref.ID == "" || ref.LoginTime <= 0 {
		return false, nil
	}
	live, err := l.FindLiveSessions(ctx, Query{
		ID:          ref.ID,
		TenantID:    ref.TenantID,
		UserID:      ref.UserID,
		ClientClass: ref.ClientClass,
		LoginTime:   ref.LoginTime,
	})
	if err != nil {
		return false, err
	}
	return len(live) > 0, nil
}
