package store

import (
	"context"
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

// Messages is the chat history accessor.
//
// Messages are stored per (device, role) in chronological order. The
// conversation window rebuilds from the most recent NORMAL rows;
// function-call rows are kept for auditing only.
type Messages struct {
	store kv.Store
}

// NewMessages creates a Messages accessor over the given kv store.
func NewMessages(store kv.Store) *Messages {
	return &Messages{store: store}
}

// Append persists one chat turn.
func (m *Messages) Append(ctx context.Context, msg *Message) error {
	if msg.CreateTime == 0 {
		return fmt.Errorf("store: message create time is required")
	}
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return err
	}
	key := msgKey(msg.DeviceID, msg.RoleID, msg.CreateTime, msg.Sender)
	return m.store.Set(ctx, key, data)
}

// Recent returns the n most recent messages of a (device, role) pair in
// chronological order. When normalOnly is set, function-call rows are
// skipped before the window is taken.
func (m *Messages) Recent(ctx context.Context, deviceID, roleID string, n int, normalOnly bool) ([]*Message, error) {
	if n <= 0 {
		return nil, nil
	}
	var all []*Message
	for entry, err := range m.store.List(ctx, msgPrefix(deviceID, roleID)) {
		if err != nil {
			return nil, err
		}
		var msg Message
		if err := msgpack.Unmarshal(entry.Value, &msg); err != nil {
			continue
		}
		if normalOnly && msg.Kind != KindNormal {
			continue
		}
		all = append(all, &msg)
	}
	// List is ascending by key, so chronological. Take the last n.
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

// All returns every message of a (device, role) pair in chronological
// order.
func (m *Messages) All(ctx context.Context, deviceID, roleID string) ([]*Message, error) {
	var out []*Message
	for entry, err := range m.store.List(ctx, msgPrefix(deviceID, roleID)) {
		if err != nil {
			return nil, err
		}
		var msg Message
		if err := msgpack.Unmarshal(entry.Value, &msg); err != nil {
			continue
		}
		out = append(out, &msg)
	}
	return out, nil
}

// SetAudioPath records the audio artifact of an already persisted turn.
// The player calls this after merging the assistant's sentence files.
func (m *Messages) SetAudioPath(ctx context.Context, deviceID, roleID string, createMs int64, sender Sender, path string) error {
	key := msgKey(deviceID, roleID, createMs, sender)
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("store: decode message: %w", err)
	}
	msg.AudioPath = path
	updated, err := msgpack.Marshal(&msg)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, updated)
}

// SetKind reclassifies an already persisted turn.
// Tool-call rollbacks re-mark the triggering user row as FUNCTION_CALL.
func (m *Messages) SetKind(ctx context.Context, deviceID, roleID string, createMs int64, sender Sender, kind MessageKind) error {
	key := msgKey(deviceID, roleID, createMs, sender)
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return err
	}
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("store: decode message: %w", err)
	}
	msg.Kind = kind
	updated, err := msgpack.Marshal(&msg)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, key, updated)
}

// Clear removes the whole history of a (device, role) pair.
func (m *Messages) Clear(ctx context.Context, deviceID, roleID string) error {
	var keys []kv.Key
	for entry, err := range m.store.List(ctx, msgPrefix(deviceID, roleID)) {
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	return m.store.BatchDelete(ctx, keys)
}
