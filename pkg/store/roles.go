package store

import (
	"context"
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// Roles is the assistant role accessor.
type Roles struct {
	store kv.Store
}

// NewRoles creates a Roles accessor over the given kv store.
func NewRoles(store kv.Store) *Roles {
	return &Roles{store: store}
}

// Get returns the role record, or ErrNotFound.
func (r *Roles) Get(ctx context.Context, id string) (*Role, error) {
	data, err := r.store.Get(ctx, roleKey(id))
	if err != nil {
		return nil, err
	}
	var role Role
	if err := msgpack.Unmarshal(data, &role); err != nil {
		return nil, fmt.Errorf("store: decode role %s: %w", id, err)
	}
	return &role, nil
}

// Put stores or overwrites a role record.
func (r *Roles) Put(ctx context.Context, role *Role) error {
	data, err := msgpack.Marshal(role)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, roleKey(role.ID), data)
}

// Delete removes a role record.
func (r *Roles) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, roleKey(id))
}

// List returns all role records.
func (r *Roles) List(ctx context.Context) ([]*Role, error) {
	var out []*Role
	for entry, err := range r.store.List(ctx, kv.Key{"role"}) {
		if err != nil {
			return nil, err
		}
		var role Role
		if err := msgpack.Unmarshal(entry.Value, &role); err != nil {
			continue
		}
		out = append(out, &role)
	}
	return out, nil
}

// ListByUser returns the roles owned by one user.
// Role switching by voice offers only these.
func (r *Roles) ListByUser(ctx context.Context, userID string) ([]*Role, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []*Role
	for _, role := range all {
		if role.UserID == userID {
			out = append(out, role)
		}
	}
	return out, nil
}

// FindByName returns the first role of the user with the given display
// name, or ErrNotFound.
func (r *Roles) FindByName(ctx context.Context, userID, name string) (*Role, error) {
	roles, err := r.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, ErrNotFound
}
