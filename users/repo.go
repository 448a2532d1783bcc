package users

import "context"

type UserRepo interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, tenantID, id string) (*User, error)
	GetByIdentifier(ctx context.Context, tenantID, identifier string) (*User, error)

	UpsertLinkedIdentity(ctx context.Context, identity *LinkedIdentity) error
	// FindLinkedIdentity returns the first active linked identity matching q.
	FindLinkedIdentity(ctx context.Context, tenantID string, q LinkedIdentityQuery) (*LinkedIdentity, error)
}
