package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjstillabower/weather-lookup-widget/internal/lookup"
	"github.com/kjstillabower/weather-lookup-widget/internal/observability"
)

// Store holds one lookup controller per browser session, keyed by a random
// UUID. Entries expire after ttl without access; expired entries are removed
// on access and by Sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	newCtrl func() *lookup.Controller
	now     func() time.Time
}

// entry stores a controller with its expiration timestamp.
type entry struct {
	ctrl      *lookup.Controller
	expiresAt time.Time
}

// NewStore creates a session store. newCtrl builds the controller for each new session.
func NewStore(ttl time.Duration, newCtrl func() *lookup.Controller) *Store {
	return &Store{
		entries: make(map[string]entry),
		ttl:     ttl,
		newCtrl: newCtrl,
		now:     time.Now,
	}
}

// Get returns the controller for id and extends its lifetime.
// Returns (nil, false) for unknown or expired sessions; expired ones are removed.
func (s *Store) Get(id string) (*lookup.Controller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	now := s.now()
	if now.After(e.expiresAt) {
		delete(s.entries, id)
		observability.SessionsEvictedTotal.Inc()
		observability.ActiveSessions.Set(float64(len(s.entries)))
		return nil, false
	}
	e.expiresAt = now.Add(s.ttl)
	s.entries[id] = e
	return e.ctrl, true
}

// Create starts a new session and returns its id and controller.
func (s *Store) Create() (string, *lookup.Controller) {
	id := uuid.NewString()
	ctrl := s.newCtrl()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry{ctrl: ctrl, expiresAt: s.now().Add(s.ttl)}
	observability.ActiveSessions.Set(float64(len(s.entries)))
	return id, ctrl
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		observability.SessionsEvictedTotal.Add(float64(removed))
	}
	observability.ActiveSessions.Set(float64(len(s.entries)))
	return removed
}

// Len returns the number of stored sessions, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TTL returns the idle lifetime of a session.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
