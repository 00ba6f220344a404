package core

import (
	"sync"

	"github.com/dkeye/owndc/internal/domain"
	"github.com/rs/zerolog/log"
)

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room   *domain.Room
	mu     sync.RWMutex
	byUser map[domain.UserID]*Session
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:   room,
		byUser: make(map[domain.UserID]*Session),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *roomImpl) Has(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[uid]
	return ok
}

func (r *roomImpl) AddMember(uid domain.UserID, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, existed := r.byUser[uid]
	if existed && prev == sess {
		return false
	}
	// A reconnected user replaces its stale subscription.
	r.byUser[uid] = sess
	log.Debug().
		Str("module", "core.room").
		Str("room", string(r.room.ID)).
		Str("kind", r.room.Kind.String()).
		Str("user", string(uid)).
		Str("sid", string(sess.ID())).
		Msg("member added")
	return !existed
}

func (r *roomImpl) RemoveMember(uid domain.UserID, sess *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byUser[uid]
	if !ok {
		return false
	}
	if sess != nil && cur != sess {
		return false
	}
	delete(r.byUser, uid)
	log.Debug().
		Str("module", "core.room").
		Str("room", string(r.room.ID)).
		Str("kind", r.room.Kind.String()).
		Str("user", string(uid)).
		Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(from SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, s := range r.byUser {
		if s.ID() == from {
			continue
		}
		if err := s.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	log.Debug().
		Str("module", "core.room").
		Str("room", string(r.room.ID)).
		Str("from", string(from)).
		Int("sent_to", res.SendTo).
		Int("dropped", len(res.Dropped)).
		Msg("broadcast result")
	return res
}

func (r *roomImpl) Members() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	return out
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemberDTO, 0, len(r.byUser))
	for uid, s := range r.byUser {
		dto := MemberDTO{ID: uid}
		if u := s.User(); u != nil {
			dto.Username = u.Username
		}
		out = append(out, dto)
	}
	return out
}
