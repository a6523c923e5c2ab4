// Package nav abstracts the "current page" and page navigation that the
// session core reads and drives.
package nav

import (
	"strings"
	"sync"
)

// Navigator reports the current location and moves to a new one.
type Navigator interface {
	Location() string
	Navigate(path string)
}

// Memory is an in-process Navigator that records every navigation.
type Memory struct {
	mu       sync.RWMutex
	current  string
	history  []string
	onChange func(path string)
}

// NewMemory returns a Memory navigator positioned at initial ("/" when empty).
func NewMemory(initial string) *Memory {
	if strings.TrimSpace(initial) == "" {
		initial = "/"
	}
	return &Memory{current: initial}
}

// OnChange registers fn to be called after every navigation.
func (m *Memory) OnChange(fn func(path string)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Location returns the current path.
func (m *Memory) Location() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Navigate moves to path and appends it to the history.
func (m *Memory) Navigate(path string) {
	m.mu.Lock()
	m.current = path
	m.history = append(m.history, path)
	fn := m.onChange
	m.mu.Unlock()

	if fn != nil {
		fn(path)
	}
}

// History returns every path navigated to, oldest first.
func (m *Memory) History() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.history...)
}

// Last returns the most recent navigation target, or "" when none happened.
func (m *Memory) Last() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.history) == 0 {
		return ""
	}
	return m.history[len(m.history)-1]
}

// IsWithin reports whether location equals root or is a sub-path of it,
// e.g. "/login" and "/login/reset" are both within "/login".
func IsWithin(location, root string) bool {
	root = strings.TrimRight(root, "/")
	if root == "" {
		return false
	}
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		location = location[:i]
	}
	return location == root || strings.HasPrefix(location, root+"/")
}
