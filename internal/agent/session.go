package agent

import (
	"sync"
	"time"

	"pharmabot/internal/domain"
)

// PendingOrder is an approved order request waiting for the user's yes.
type PendingOrder struct {
	ProductName string  `json:"product_name"`
	Quantity    int64   `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// Memory is what the assistant remembers between turns of one session.
type Memory struct {
	LastIntent          domain.Intent
	LastSymptoms        []string
	LastRecommendations []string
	Pending             *PendingOrder
	Language            domain.Language
	Turns               int
}

type session struct {
	mu   sync.Mutex
	mem  Memory
	seen time.Time
	refs int
}

// SessionStore keeps per-session memory and serialises turns of one session.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*session
	now      func() time.Time
}

// NewSessionStore drops sessions idle for longer than ttl; ttl <= 0 keeps
// them forever.
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Lease holds a session exclusively for one turn.
type Lease struct {
	store *SessionStore
	sess  *session
}

// Acquire blocks until no other turn of the session is running.
func (s *SessionStore) Acquire(id string) *Lease {
	s.mu.Lock()
	s.sweepLocked()
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{seen: s.now()}
		s.sessions[id] = sess
	}
	sess.refs++
	s.mu.Unlock()

	sess.mu.Lock()
	return &Lease{store: s, sess: sess}
}

// Memory returns the session memory as of the start of the turn.
func (l *Lease) Memory() Memory { return l.sess.mem }

// Release stores mem and lets the next turn in.
func (l *Lease) Release(mem Memory) {
	l.sess.mem = mem
	l.store.mu.Lock()
	l.sess.refs--
	l.sess.seen = l.store.now()
	l.store.mu.Unlock()
	l.sess.mu.Unlock()
}

// sweepLocked removes idle sessions nobody holds.
func (s *SessionStore) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ttl)
	for id, sess := range s.sessions {
		if sess.refs == 0 && sess.seen.Before(cutoff) {
			delete(s.sessions, id)
		}
	}
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
