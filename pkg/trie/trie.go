// Package trie implements the pattern trie behind provider routing. Routes
// are slash-separated and may carry MQTT-style wildcards:
//   - "/doubao/asr"  exact match
//   - "/doubao/+"    matches exactly one segment
//   - "/doubao/#"    matches any remaining segments (must end the route)
//
// Exact segments win over "+", and "+" wins over "#", so a specific
// provider registration shadows its family wildcard.
package trie

import (
	"errors"
	"strings"
)

// ErrInvalidRoute is returned when a registered route is malformed,
// currently only when "#" appears anywhere but the final segment.
var ErrInvalidRoute = errors.New("invalid route, want /a/b/c, /a/+/c or /a/#")

// Trie maps slash-separated routes to values of type T.
// The zero value is not usable; call New.
type Trie[T any] struct {
	children map[string]*Trie[T]
	plusNode *Trie[T] // "+" single-segment wildcard
	hashNode *Trie[T] // "#" rest-of-route wildcard
	set      bool
	value    T
}

// New creates an empty Trie.
func New[T any]() *Trie[T] {
	return &Trie[T]{}
}

func splitSeg(route string) (first, rest string) {
	if i := strings.IndexByte(route, '/'); i >= 0 {
		return route[:i], route[i+1:]
	}
	return route, ""
}

// Set registers value at route, replacing any previous value there.
func (t *Trie[T]) Set(route string, value T) error {
	if route == "" {
		t.value = value
		t.set = true
		return nil
	}
	first, rest := splitSeg(route)
	switch first {
	case "+":
		if t.plusNode == nil {
			t.plusNode = &Trie[T]{}
		}
		return t.plusNode.Set(rest, value)
	case "#":
		if rest != "" {
			return ErrInvalidRoute
		}
		if t.hashNode == nil {
			t.hashNode = &Trie[T]{}
		}
		return t.hashNode.Set("", value)
	default:
		if t.children == nil {
			t.children = make(map[string]*Trie[T])
		}
		ch, ok := t.children[first]
		if !ok {
			ch = &Trie[T]{}
			t.children[first] = ch
		}
		return ch.Set(rest, value)
	}
}

// Get returns the value whose registered route matches path.
func (t *Trie[T]) Get(path string) (T, bool) {
	_, v, ok := t.Match(path)
	return v, ok
}

// Match returns the registered route that matches path, with its value.
func (t *Trie[T]) Match(path string) (route string, value T, ok bool) {
	return t.match("", path)
}

func (t *Trie[T]) match(matched, path string) (string, T, bool) {
	if path == "" {
		return matched, t.value, t.set
	}
	first, rest := splitSeg(path)
	if ch, ok := t.children[first]; ok {
		if route, v, ok := ch.match(matched+"/"+first, rest); ok {
			return route, v, true
		}
	}
	if t.plusNode != nil {
		if route, v, ok := t.plusNode.match(matched+"/+", rest); ok {
			return route, v, true
		}
	}
	if t.hashNode != nil {
		if route, v, ok := t.hashNode.match(matched+"/#", ""); ok {
			return route, v, true
		}
	}
	var zero T
	return "", zero, false
}
