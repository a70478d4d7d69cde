package store

import (
	"context"
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// ModelConfigs is the provider configuration accessor.
type ModelConfigs struct {
	store kv.Store
}

// NewModelConfigs creates a ModelConfigs accessor over the given kv store.
func NewModelConfigs(store kv.Store) *ModelConfigs {
	return &ModelConfigs{store: store}
}

// Get returns the config record, or ErrNotFound.
func (c *ModelConfigs) Get(ctx context.Context, id string) (*ModelConfig, error) {
	data, err := c.store.Get(ctx, configKey(id))
	if err != nil {
		return nil, err
	}
	var cfg ModelConfig
	if err := msgpack.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("store: decode config %s: %w", id, err)
	}
	return &cfg, nil
}

// Put stores or overwrites a config record.
func (c *ModelConfigs) Put(ctx context.Context, cfg *ModelConfig) error {
	data, err := msgpack.Marshal(cfg)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, configKey(cfg.ID), data)
}

// Delete removes a config record.
func (c *ModelConfigs) Delete(ctx context.Context, id string) error {
	return c.store.Delete(ctx, configKey(id))
}

// List returns all config records.
func (c *ModelConfigs) List(ctx context.Context) ([]*ModelConfig, error) {
	var out []*ModelConfig
	for entry, err := range c.store.List(ctx, kv.Key{"config"}) {
		if err != nil {
			return nil, err
		}
		var cfg ModelConfig
		if err := msgpack.Unmarshal(entry.Value, &cfg); err != nil {
			continue
		}
		out = append(out, &cfg)
	}
	return out, nil
}
