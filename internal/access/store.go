package access

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrMissingSession is returned for an empty session id.
var ErrMissingSession = errors.New("access: session id is required")

type Options struct {
	TTL time.Duration
	Now func() time.Time
}

type session struct {
	gate         Gate
	lastActivity time.Time
}

// Store keeps one Gate per server-issued session id in memory. Sessions idle
// for longer than the TTL are dropped and come back Fresh.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

func NewStore(opts Options) *Store {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      now,
	}
}

// Update runs fn against the session's gate while holding the store lock.
func (s *Store) Update(sessionID string, fn func(g *Gate) error) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ErrMissingSession
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(sessionID)
	return fn(&sess.gate)
}

// Snapshot returns the session's current state.
func (s *Store) Snapshot(sessionID string) State {
	var st State
	_ = s.Update(sessionID, func(g *Gate) error {
		st = g.State()
		return nil
	})
	return st
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) getOrCreateLocked(sessionID string) *session {
	now := s.now()
	s.evictLocked(now)
	if sess, ok := s.sessions[sessionID]; ok {
		sess.lastActivity = now
		return sess
	}
	sess := &session{lastActivity: now}
	s.sessions[sessionID] = sess
	return sess
}

func (s *Store) evictLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.lastActivity) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
