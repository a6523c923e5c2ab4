package session

import (
	"sync"
	"time"

	"github.com/MrEthical07/ctadmin/api"
)

// State is a snapshot of the authentication state.
type State struct {
	User             *api.User
	Loading          bool
	SessionExpiresAt time.Time
}

// Authenticated reports whether a user is signed in.
func (s State) Authenticated() bool {
	return s.User != nil
}

// Username returns the signed-in username, or "".
func (s State) Username() string {
	if s.User == nil {
		return ""
	}
	return s.User.Username
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Store holds the current State and fans changes out to subscribers.
type Store struct {
	mu    sync.RWMutex
	state State
	subs  map[uint64]func(State)
	next  uint64
}

// NewStore returns a Store in the loading state.
func NewStore() *Store {
	return &Store{
		state: State{Loading: true},
		subs:  make(map[uint64]func(State)),
	}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Subscribe registers fn to receive every new state. Callbacks run
// synchronously on the writer's goroutine and must not call back into the
// Controller. The returned func removes the subscription.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) set(next State) {
	s.mu.Lock()
	s.state = next.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
}
