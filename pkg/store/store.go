package store

import "github.com/haivivi/giztalk/go/pkg/kv"

// Store bundles all record accessors over one kv backend.
type Store struct {
	Devices      *Devices
	Roles        *Roles
	ModelConfigs *ModelConfigs
	Messages     *Messages

	kv kv.Store
}

// New creates a Store over the given kv backend.
func New(kvStore kv.Store) *Store {
	return &Store{
		Devices:      NewDevices(kvStore),
		Roles:        NewRoles(kvStore),
		ModelConfigs: NewModelConfigs(kvStore),
		Messages:     NewMessages(kvStore),
		kv:           kvStore,
	}
}

// Close releases the underlying kv backend.
func (s *Store) Close() error {
	return s.kv.Close()
}
