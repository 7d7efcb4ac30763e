// Package cache holds the process-wide exclusion cache: identifiers that
// the next storage sweep must not delete.
//
// The cache is the synchronization primitive that makes the
// write-then-immediately-sweep-eligible window safe. The processor adds
// an id right after persisting a row; a concurrent sweep reads a snapshot
// of the set, deletes around it, and clears only the category it swept.
// There is no atomicity across the four categories and none is needed:
// each sweep touches exactly one.
package cache

import "sync"

// Category selects one of the exclusion cache's id sets.
type Category int

const (
	// Posts guards post ids.
	Posts Category = iota
	// Profiles guards profile pubkeys.
	Profiles
	// ContactLists guards contact-list author pubkeys.
	ContactLists
	// RelayLists guards relay-list author pubkeys.
	RelayLists
	numCategories
)

// Exclusion is a constructed shared-state object, never a package global.
// All methods are safe for concurrent use.
type Exclusion struct {
	mu   sync.Mutex
	sets [numCategories]map[string]struct{}
}

// NewExclusion creates an exclusion cache with empty sets.
func NewExclusion() *Exclusion {
	e := &Exclusion{}
	for i := range e.sets {
		e.sets[i] = make(map[string]struct{})
	}
	return e
}

// Add records an identifier in the given category.
func (e *Exclusion) Add(cat Category, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets[cat][id] = struct{}{}
}

// Contains reports whether the category holds the identifier.
func (e *Exclusion) Contains(cat Category, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sets[cat][id]
	return ok
}

// Snapshot returns a copy of the category's identifiers. The copy is
// what a sweep works against: additions racing the sweep land in the next
// cycle's snapshot instead of mutating this one.
func (e *Exclusion) Snapshot(cat Category) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.sets[cat]))
	for id := range e.sets[cat] {
		ids = append(ids, id)
	}
	return ids
}

// Clear empties one category. Called by the sweeper immediately after
// that category's sweep; other categories keep growing untouched.
func (e *Exclusion) Clear(cat Category) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets[cat] = make(map[string]struct{})
}

// Len returns the category's current size.
func (e *Exclusion) Len(cat Category) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sets[cat])
}
