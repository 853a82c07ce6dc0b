package render

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps live form sessions in memory and expires idle ones.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*storedSession
	ttl      time.Duration
	now      func() time.Time
}

type storedSession struct {
	session  *Session
	lastSeen time.Time
}

func NewStore(ttl time.Duration) *Store {
	return &Store{sessions: make(map[uuid.UUID]*storedSession), ttl: ttl, now: time.Now}
}

func (st *Store) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID()] = &storedSession{session: s, lastSeen: st.now()}
}

// Get returns the session and marks it as used.
func (st *Store) Get(id uuid.UUID) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = st.now()
	return e.session, true
}

func (st *Store) Delete(id uuid.UUID) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.sessions[id]
	delete(st.sessions, id)
	return ok
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than the TTL and reports how many.
func (st *Store) Sweep() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.ttl <= 0 {
		return 0
	}
	cutoff := st.now().Add(-st.ttl)
	n := 0
	for id, e := range st.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
