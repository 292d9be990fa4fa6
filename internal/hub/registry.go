package hub

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownAlias   = errors.New("hub: unknown alias")
	ErrUnknownSession = errors.New("hub: unknown session")
	ErrInvalidAlias   = errors.New("hub: invalid alias")
)

// Entry is one row of a registry snapshot. Alias is empty until identified.
type Entry struct {
	Session *Session
	Alias   string
}

type binding struct {
	alias string
	seq   uint64
}

// Registry is the alias-indexed table of live sessions.
//
// Invariants, held under mu:
// - every reverse entry alias -> s has a forward entry s -> alias
// - every non-empty forward alias has a reverse entry
//
// When two sessions claim the same alias the later one owns the reverse
// entry; the earlier keeps its forward alias and is only reachable again
// if the later one leaves.
type Registry struct {
	mu      sync.RWMutex
	forward map[*Session]binding
	reverse map[string]*Session
	seq     uint64
}

func NewRegistry() *Registry {
	return &Registry{
		forward: make(map[*Session]binding),
		reverse: make(map[string]*Session),
	}
}

// Register adds s with no alias. Registering twice is a no-op.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.forward[s]; ok {
		return
	}
	r.forward[s] = binding{}
}

// SetAlias binds alias to s, replacing any alias s held before.
func (r *Registry) SetAlias(s *Session, alias string) error {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ErrInvalidAlias
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.forward[s]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, s.ID)
	}
	if prev.alias != "" && prev.alias != alias && r.reverse[prev.alias] == s {
		delete(r.reverse, prev.alias)
		r.handoffLocked(prev.alias, s)
	}
	if owner, taken := r.reverse[alias]; taken && owner != s {
		log.Warn().
			Str("alias", alias).
			Str("previous_session", owner.ID).
			Str("previous_remote", owner.RemoteAddr).
			Str("session", s.ID).
			Str("remote", s.RemoteAddr).
			Msg("hub.Registry alias collision; newest session wins")
	}

	r.seq++
	r.forward[s] = binding{alias: alias, seq: r.seq}
	r.reverse[alias] = s
	s.setState(StateIdentified)
	return nil
}

// Remove drops s from both maps. It reports whether s was present.
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.forward[s]
	if !ok {
		return false
	}
	delete(r.forward, s)
	if b.alias != "" && r.reverse[b.alias] == s {
		delete(r.reverse, b.alias)
		r.handoffLocked(b.alias, nil)
	}
	return true
}

// handoffLocked gives alias to the most recent other holder, if any.
func (r *Registry) handoffLocked(alias string, skip *Session) {
	var next *Session
	var best uint64
	for s, b := range r.forward {
		if s == skip || b.alias != alias {
			continue
		}
		if next == nil || b.seq > best {
			next, best = s, b.seq
		}
	}
	if next != nil {
		r.reverse[alias] = next
	}
}

// Lookup returns the session currently owning alias.
func (r *Registry) Lookup(alias string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.reverse[strings.TrimSpace(alias)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlias, alias)
	}
	return s, nil
}

// Alias returns the forward alias of s; ok is false for unknown sessions.
func (r *Registry) Alias(s *Session) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.forward[s]
	return b.alias, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.forward)
}

// Snapshot returns a copy of every session ordered by connect time.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	out := make([]Entry, 0, len(r.forward))
	for s, b := range r.forward {
		out = append(out, Entry{Session: s, Alias: b.alias})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Session, out[j].Session
		if !a.ConnectedAt.Equal(b.ConnectedAt) {
			return a.ConnectedAt.Before(b.ConnectedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// CheckConsistency verifies the forward/reverse invariants.
func (r *Registry) CheckConsistency() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for alias, s := range r.reverse {
		b, ok := r.forward[s]
		if !ok {
			return fmt.Errorf("hub: reverse alias %q points at removed session %s", alias, s.ID)
		}
		if b.alias != alias {
			return fmt.Errorf("hub: reverse alias %q points at session %s aliased %q", alias, s.ID, b.alias)
		}
	}
	for s, b := range r.forward {
		if b.alias == "" {
			continue
		}
		if _, ok := r.reverse[b.alias]; !ok {
			return fmt.Errorf("hub: session %s alias %q has no reverse entry", s.ID, b.alias)
		}
	}
	return nil
}
