package store

import (
	"fmt"

	"github.com/haivivi/giztalk/go/pkg/kv"
)

// Key layout:
//
//	device {id}                          → msgpack Device
//	role {id}                            → msgpack Role
//	config {id}                          → msgpack ModelConfig
//	msg {deviceID} {roleID} {ts} {who}   → msgpack Message
//
// The message timestamp segment is zero-padded so lexicographic order is
// chronological order.

func deviceKey(id string) kv.Key { return kv.Key{"device", id} }
func roleKey(id string) kv.Key   { return kv.Key{"role", id} }
func configKey(id string) kv.Key { return kv.Key{"config", id} }

func msgKey(deviceID, roleID string, createMs int64, sender Sender) kv.Key {
	return kv.Key{"msg", deviceID, roleID, padMillis(createMs), string(sender)}
}

func msgPrefix(deviceID, roleID string) kv.Key {
	return kv.Key{"msg", deviceID, roleID}
}

func padMillis(ms int64) string {
	return fmt.Sprintf("%020d", ms)
}
