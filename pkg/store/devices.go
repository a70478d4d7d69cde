package store

import (
	"context"
	"fmt"
	"time"

	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// Devices is the device record accessor.
type Devices struct {
	store kv.Store
}

// NewDevices creates a Devices accessor over the given kv store.
func NewDevices(store kv.Store) *Devices {
	return &Devices{store: store}
}

// Get returns the device record, or ErrNotFound.
func (d *Devices) Get(ctx context.Context, id string) (*Device, error) {
	data, err := d.store.Get(ctx, deviceKey(id))
	if err != nil {
		return nil, err
	}
	var dev Device
	if err := msgpack.Unmarshal(data, &dev); err != nil {
		return nil, fmt.Errorf("store: decode device %s: %w", id, err)
	}
	return &dev, nil
}

// Put stores or overwrites a device record.
func (d *Devices) Put(ctx context.Context, dev *Device) error {
	data, err := msgpack.Marshal(dev)
	if err != nil {
		return err
	}
	return d.store.Set(ctx, deviceKey(dev.ID), data)
}

// Delete removes a device record.
func (d *Devices) Delete(ctx context.Context, id string) error {
	return d.store.Delete(ctx, deviceKey(id))
}

// List returns all device records.
func (d *Devices) List(ctx context.Context) ([]*Device, error) {
	var out []*Device
	for entry, err := range d.store.List(ctx, kv.Key{"device"}) {
		if err != nil {
			return nil, err
		}
		var dev Device
		if err := msgpack.Unmarshal(entry.Value, &dev); err != nil {
			continue
		}
		out = append(out, &dev)
	}
	return out, nil
}

// SetState updates only the device state.
func (d *Devices) SetState(ctx context.Context, id string, state DeviceState) error {
	dev, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	dev.State = state
	return d.Put(ctx, dev)
}

// Touch records a login: the device goes online and LastLogin advances.
func (d *Devices) Touch(ctx context.Context, id string, at time.Time) error {
	dev, err := d.Get(ctx, id)
	if err != nil {
		return err
	}
	dev.State = DeviceOnline
	dev.LastLogin = at.UnixMilli()
	return d.Put(ctx, dev)
}
