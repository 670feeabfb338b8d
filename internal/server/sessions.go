package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goliatone/go-churnform/pkg/form"
)

// Session is the per-visitor form state. Handlers hold mu for the whole
// interaction so one session never runs two submissions at once.
type Session struct {
	ID string

	mu    sync.Mutex
	state *form.State
}

// Lock acquires the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// State returns the form state, creating it with newState on first use.
// Callers must hold the session lock.
func (s *Session) State(newState func() (*form.State, error)) (*form.State, error) {
	if s.state != nil {
		return s.state, nil
	}
	state, err := newState()
	if err != nil {
		return nil, err
	}
	s.state = state
	return state, nil
}

// SessionStore keeps the most recently used sessions. Evicted sessions start
// again from schema defaults on their next request.
type SessionStore struct {
	cache *lru.Cache[string, *Session]
	mu    sync.Mutex
}

// NewSessionStore returns a store bounded to capacity sessions.
func NewSessionStore(capacity int) (*SessionStore, error) {
	cache, err := lru.New[string, *Session](capacity)
	if err != nil {
		return nil, fmt.Errorf("server: session store: %w", err)
	}
	return &SessionStore{cache: cache}, nil
}

// Get returns the session for id, or a new one when id is unknown. The
// boolean reports whether a new session was created.
func (s *SessionStore) Get(id string) (*Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if session, ok := s.cache.Get(id); ok {
			return session, false, nil
		}
	}
	newID, err := newSessionID()
	if err != nil {
		return nil, false, err
	}
	session := &Session{ID: newID}
	s.cache.Add(newID, session)
	return session, true, nil
}

// Len reports the number of live sessions.
func (s *SessionStore) Len() int {
	return s.cache.Len()
}

func newSessionID() (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("server: session id: %w", err)
	}
	return hex.EncodeToString(raw[:]), nil
}
