package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrChannelClosed is returned when sending on a detached channel.
var ErrChannelClosed = errors.New("session: channel closed")

const (
	// DefaultReapInterval is how often the registry scans for idle
	// sessions.
	DefaultReapInterval = 10 * time.Second

	// DefaultInactiveTimeout is how long a session may stay idle before
	// the reaper closes it.
	DefaultInactiveTimeout = 20 * time.Second
)

// Registry tracks live sessions and maps devices to them. Safe for
// concurrent use.
type Registry struct {
	log *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	byDevice map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry(log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:      log,
		sessions: make(map[string]*Session),
		byDevice: make(map[string]string),
	}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get looks up a session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session and its device mapping.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	for dev, sid := range r.byDevice {
		if sid == id {
			delete(r.byDevice, dev)
		}
	}
}

// BindDevice maps a device id to a session. A device reconnecting through
// a new channel replaces its old mapping; the displaced session id is
// returned so the caller can close it.
func (r *Registry) BindDevice(deviceID, sessionID string) (displaced string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byDevice[deviceID]; ok && old != sessionID {
		displaced = old
	}
	r.byDevice[deviceID] = sessionID
	return displaced
}

// GetByDevice looks up the session currently serving a device.
func (r *Registry) GetByDevice(deviceID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sid, ok := r.byDevice[deviceID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[sid]
	return s, ok
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// All returns a snapshot of the live sessions.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Reap closes and removes sessions idle longer than timeout, invoking
// onExpire for each before removal. Returns how many were reaped.
func (r *Registry) Reap(timeout time.Duration, onExpire func(*Session)) int {
	cutoff := time.Now().Add(-timeout)
	var expired []*Session
	r.mu.Lock()
	for _, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		r.log.Info("reaping inactive session", "session", s.ID, "idle", time.Since(s.LastActivity()))
		if onExpire != nil {
			onExpire(s)
		}
		r.Remove(s.ID)
	}
	return len(expired)
}

// StartReaper scans every interval until ctx is cancelled. Non-positive
// durations fall back to the defaults.
func (r *Registry) StartReaper(ctx context.Context, interval, timeout time.Duration, onExpire func(*Session)) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if timeout <= 0 {
		timeout = DefaultInactiveTimeout
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reap(timeout, onExpire)
			}
		}
	}()
}
