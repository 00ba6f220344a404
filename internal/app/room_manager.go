package app

import (
	"sync"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the membership tracker for one room kind. Text
// channels and voice rooms each get their own instance, so the same
// channel id can be live in both.
type RoomManagerImpl struct {
	kind  domain.RoomKind
	mu    sync.Mutex
	rooms map[domain.RoomID]core.RoomService
}

func NewRoomManager(kind domain.RoomKind) *RoomManagerImpl {
	return &RoomManagerImpl{kind: kind, rooms: make(map[domain.RoomID]core.RoomService)}
}

func (m *RoomManagerImpl) Kind() domain.RoomKind { return m.kind }

func (m *RoomManagerImpl) Join(id domain.RoomID, uid domain.UserID, sess *core.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		room = core.NewRoomService(&domain.Room{ID: id, Kind: m.kind})
		m.rooms[id] = room
		log.Debug().Str("module", "app.rooms").Str("kind", m.kind.String()).Str("room", string(id)).Msg("room created")
	}
	return room.AddMember(uid, sess)
}

func (m *RoomManagerImpl) Leave(id domain.RoomID, uid domain.UserID, sess *core.Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return false
	}
	removed := room.RemoveMember(uid, sess)
	if room.MemberCount() == 0 {
		delete(m.rooms, id)
		log.Debug().Str("module", "app.rooms").Str("kind", m.kind.String()).Str("room", string(id)).Msg("room dropped")
	}
	return removed
}

func (m *RoomManagerImpl) MembersOf(id domain.RoomID) []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return []domain.UserID{}
	}
	return room.Members()
}

func (m *RoomManagerImpl) Snapshot(id domain.RoomID) []core.MemberDTO {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return []core.MemberDTO{}
	}
	return room.MembersSnapshot()
}

// Broadcast holds the manager lock for the whole fan-out. Sends never
// block, so the lock is held only for the queue writes.
func (m *RoomManagerImpl) Broadcast(id domain.RoomID, from core.SessionID, data core.Frame) core.PublishResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[id]
	if !ok {
		return core.PublishResult{}
	}
	return room.Broadcast(from, data)
}

func (m *RoomManagerImpl) List() []core.RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.RoomInfo, 0, len(m.rooms))
	for id, r := range m.rooms {
		out = append(out, core.RoomInfo{ID: id, Kind: m.kind.String(), MemberCount: r.MemberCount()})
	}
	return out
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)
