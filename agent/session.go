package agent

import (
	"sync"
	"time"
)

const sessionTTL = 30 * time.Minute

// Session is a pending provisional outfit waiting for user feedback. One
// session per conversation; the store mutex serializes all access so a
// state never sees concurrent mutation.
type Session struct {
	OwnerID   uint
	State     *OutfitState
	UpdatedAt time.Time
}

type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: map[string]*Session{}}
}

func (s *SessionStore) Get(conversationID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[conversationID]
	if !ok {
		return nil, false
	}
	if time.Since(session.UpdatedAt) > sessionTTL {
		delete(s.sessions, conversationID)
		return nil, false
	}
	return session, true
}

func (s *SessionStore) Put(conversationID string, ownerID uint, state *OutfitState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conversationID] = &Session{
		OwnerID:   ownerID,
		State:     state,
		UpdatedAt: time.Now(),
	}
}

func (s *SessionStore) Delete(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, conversationID)
}
