// Package conversation keeps per-session question/answer history.
package conversation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultMaxTurns    = 10
	DefaultMaxSessions = 1000
)

// Turn is one exchange.
type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Store maps session ids to their most recent turns. Each session keeps at
// most maxTurns turns; once maxSessions sessions exist the least recently
// used one is evicted. Safe for concurrent use.
type Store struct {
	// mu makes read-modify-write in Append atomic; the cache itself is
	// already synchronized.
	mu       sync.Mutex
	maxTurns int
	sessions *lru.Cache[string, []Turn]
}

// NewStore creates a store. Non-positive limits fall back to the defaults.
func NewStore(maxTurns, maxSessions int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	// New only fails for a non-positive size.
	sessions, _ := lru.New[string, []Turn](maxSessions)
	return &Store{maxTurns: maxTurns, sessions: sessions}
}

// History returns a copy of the session's turns, oldest first. An empty id
// has no history.
func (s *Store) History(id string) []Turn {
	if id == "" {
		return nil
	}
	turns, ok := s.sessions.Get(id)
	if !ok {
		return nil
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Append records a turn. Calls with an empty id are ignored.
func (s *Store) Append(id string, t Turn) {
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, _ := s.sessions.Get(id)
	start := max(0, len(prev)+1-s.maxTurns)
	turns := make([]Turn, 0, len(prev)-start+1)
	turns = append(turns, prev[start:]...)
	turns = append(turns, t)
	s.sessions.Add(id, turns)
}

// Reset forgets a session. It reports whether the session existed.
func (s *Store) Reset(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	return s.sessions.Len()
}
