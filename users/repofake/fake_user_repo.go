package fakeuserrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type tenantUsers struct {
	users       map[string]users.User
	identifiers map[string]string // identifier to user id
	linked      map[string]users.LinkedIdentity
}

type FakeUserRepo struct {
	tenants map[string]*tenantUsers
	lock    sync.RWMutex
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		tenants: make(map[string]*tenantUsers),
	}
}

func (ur *FakeUserRepo) tenant(tenantID string) *tenantUsers {
	t, ok := ur.tenants[tenantID]
	if !ok {
		t = &tenantUsers{
			users:       make(map[string]users.User),
			identifiers: make(map[string]string),
			linked:      make(map[string]users.LinkedIdentity),
		}
		ur.tenants[tenantID] = t
	}
	return t
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	if user == nil || user.TenantID == "" {
		return errors.ErrInvalidRequest
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	user.Identifier = users.NormalizeIdentifier(user.Identifier)

	t := ur.tenant(user.TenantID)
	t.users[user.ID] = *user
	if user.Identifier != "" {
		t.identifiers[user.Identifier] = user.ID
	}
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, tenantID, id string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	t, ok := ur.tenants[tenantID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	u, ok := t.users[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &u, nil
}

func (ur *FakeUserRepo) GetByIdentifier(ctx context.Context, tenantID, identifier string) (*users.User, error) {
	ur.lock.RLock()
	t, ok := ur.tenants[tenantID]
	var id string
	if ok {
		id, ok = t.identifiers[users.NormalizeIdentifier(identifier)]
	}
	ur.lock.RUnlock()
	if !ok {
		return nil, errors.ErrNotFound
	}
	return ur.GetByID(ctx, tenantID, id)
}

func (ur *FakeUserRepo) UpsertLinkedIdentity(_ context.Context, identity *users.LinkedIdentity) error {
	if identity == nil || identity.TenantID == "" || identity.UserID == "" {
		return errors.ErrInvalidRequest
	}
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	ur.tenant(identity.TenantID).linked[identity.ID] = *identity
	return nil
}

func (ur *FakeUserRepo) FindLinkedIdentity(_ context.Context, tenantID string, q users.LinkedIdentityQuery) (*users.LinkedIdentity, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	t, ok := ur.tenants[tenantID]
	if !ok {
		return nil, errors.ErrNotFound
	}

	// Deterministic order so "first match" is stable across runs
	ids := make([]string, 0, len(t.linked))
	for id := range t.linked {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		li := t.linked[id]
		if li.Active && q.Matches(&li) {
			return &li, nil
		}
	}
	return nil, errors.ErrNotFound
}
