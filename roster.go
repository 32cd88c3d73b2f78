package main

import (
	"errors"
	"slices"
	"strings"
	"sync"
)

var (
	// ErrEmptyName is returned when a player name is blank after trimming.
	ErrEmptyName = errors.New("player name must not be empty")

	// ErrDuplicatePlayer is returned when a name is already registered,
	// ignoring case.
	ErrDuplicatePlayer = errors.New("player name is already registered")
)

// Roster is the set of registered player names available for pod
// assignment. Names are trimmed and case-insensitively unique, and keep
// their registration order. Safe for concurrent use; the web handlers and
// the terminal loop both go through it.
type Roster struct {
	mu      sync.RWMutex
	players []string
}

func newRoster(players []string) *Roster {
	r := &Roster{}
	r.Import(players)
	return r
}

func (r *Roster) containsLocked(name string) bool {
	return slices.ContainsFunc(r.players, func(p string) bool {
		return strings.EqualFold(p, name)
	})
}

// Add registers a single player name.
func (r *Roster) Add(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.containsLocked(name) {
		return ErrDuplicatePlayer
	}

	r.players = append(r.players, name)

	return nil
}

// Remove deletes a player by name (case-insensitive) and reports whether
// the player was present.
func (r *Roster) Remove(name string) bool {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.players {
		if strings.EqualFold(p, name) {
			r.players = slices.Delete(r.players, i, i+1)
			return true
		}
	}

	return false
}

// Players returns a copy of the current roster in registration order.
func (r *Roster) Players() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.players)
}

// Count returns the number of registered players.
func (r *Roster) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.players)
}

// Clear removes every player.
func (r *Roster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.players = nil
}

// Import adds every valid new name from the list and returns how many were
// added. Blank and duplicate names are skipped.
func (r *Roster) Import(names []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || r.containsLocked(name) {
			continue
		}
		r.players = append(r.players, name)
		added++
	}

	return added
}

// Replace swaps the roster for the given list, deduplicating it the same
// way Import does. Used when restoring a snapshot.
func (r *Roster) Replace(names []string) {
	r.mu.Lock()
	r.players = nil
	r.mu.Unlock()

	r.Import(names)
}

// Search returns all players whose name contains the query,
// case-insensitively.
func (r *Roster) Search(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []string
	for _, p := range r.players {
		if strings.Contains(strings.ToLower(p), query) {
			matches = append(matches, p)
		}
	}

	return matches
}
