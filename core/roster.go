package core

import (
	"sort"
	"sync"
)

// User is a locally connected identity that can receive player-targeted messages.
type User interface {
	Name() string
}

// Player is the simplest User: just a name.
type Player string

func (p Player) Name() string { return string(p) }

// Roster lists the identities currently connected to this process.
type Roster interface {
	OnlineUsers() []User
}

// RosterFunc adapts a function to the Roster interface.
type RosterFunc func() []User

func (f RosterFunc) OnlineUsers() []User { return f() }

// LocalRoster is a concurrency-safe set of online users keyed by name.
type LocalRoster struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewLocalRoster(users ...User) *LocalRoster {
	r := &LocalRoster{users: make(map[string]User, len(users))}
	for _, u := range users {
		if u != nil {
			r.users[u.Name()] = u
		}
	}
	return r
}

// Add registers u, replacing any user with the same name. A nil u is ignored.
func (r *LocalRoster) Add(u User) {
	if u == nil {
		return
	}
	r.mu.Lock()
	r.users[u.Name()] = u
	r.mu.Unlock()
}

// Remove drops the user with the given name.
func (r *LocalRoster) Remove(name string) {
	r.mu.Lock()
	delete(r.users, name)
	r.mu.Unlock()
}

// OnlineUsers returns a snapshot sorted by name.
func (r *LocalRoster) OnlineUsers() []User {
	r.mu.RLock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns the sorted names of the online users.
func (r *LocalRoster) Names() []string {
	users := r.OnlineUsers()
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name()
	}
	return names
}
