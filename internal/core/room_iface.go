package core

import (
	"github.com/dkeye/owndc/internal/domain"
)

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*Session
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID       domain.UserID `json:"id"`
	Username string        `json:"username"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	Members() []domain.UserID
	MembersSnapshot() []MemberDTO
	Has(uid domain.UserID) bool

	// AddMember reports whether uid was newly added.
	AddMember(uid domain.UserID, sess *Session) bool
	// RemoveMember removes uid if it is bound to sess (any session when sess is nil).
	RemoveMember(uid domain.UserID, sess *Session) bool
	Broadcast(from SessionID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	Kind        string        `json:"kind"`
	MemberCount int           `json:"member_count"`
}

// RoomManager tracks the live rooms of one kind. Rooms are created on
// first join and dropped when their last member leaves.
type RoomManager interface {
	Kind() domain.RoomKind
	// Join reports whether uid was newly added to the room.
	Join(id domain.RoomID, uid domain.UserID, sess *Session) bool
	// Leave reports whether uid was removed; sess nil removes any binding.
	Leave(id domain.RoomID, uid domain.UserID, sess *Session) bool
	MembersOf(id domain.RoomID) []domain.UserID
	// Snapshot lists members with the names cached on their sessions.
	Snapshot(id domain.RoomID) []MemberDTO
	// Broadcast sends to every member except from. The room is resolved
	// and written to under the manager lock, so a concurrent drop and
	// recreate cannot hide a member that joined before the call.
	Broadcast(id domain.RoomID, from SessionID, data Frame) PublishResult
	List() []RoomInfo
}
