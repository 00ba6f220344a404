package core

import (
	"sync"

	"github.com/dkeye/owndc/internal/domain"
)

type SessionID string

// Session binds one live connection to the identity authenticated on it
// and the rooms it currently occupies. It holds at most one text channel
// and at most one voice room.
type Session struct {
	id     SessionID
	signal SignalConnection

	mu      sync.RWMutex
	user    *domain.User
	channel domain.RoomID
	voice   domain.RoomID
}

func NewSession(id SessionID, signal SignalConnection) *Session {
	return &Session{id: id, signal: signal}
}

func (s *Session) ID() SessionID            { return s.id }
func (s *Session) Signal() SignalConnection { return s.signal }

// User returns a copy of the authenticated user, or nil.
func (s *Session) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) UserID() (domain.UserID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return "", false
	}
	return s.user.ID, true
}

func (s *Session) Authenticated() bool {
	_, ok := s.UserID()
	return ok
}

func (s *Session) SetUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		s.user = nil
		return
	}
	cp := *u
	s.user = &cp
}

func (s *Session) Channel() domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

func (s *Session) SetChannel(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channel = id
}

func (s *Session) Voice() domain.RoomID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voice
}

func (s *Session) SetVoice(id domain.RoomID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voice = id
}

// Reset clears identity and room bindings; the connection stays usable.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.channel = ""
	s.voice = ""
}
