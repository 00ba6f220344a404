package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultGroupAvatar = "default-group.png"

var ErrGroupNameEmpty = errors.New("group name empty")

type GroupID string

type GroupRole string

const (
	GroupOwner  GroupRole = "owner"
	GroupAdmin  GroupRole = "admin"
	GroupMember GroupRole = "member"
)

type Group struct {
	ID        GroupID   `json:"id"`
	Name      string    `json:"name"`
	OwnerID   UserID    `json:"owner_id"`
	Avatar    string    `json:"avatar"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupSummary is a group as listed to one of its members.
type GroupSummary struct {
	Group
	OwnerUsername string `json:"owner_username"`
	MemberCount   int    `json:"member_count"`
}

func NewGroup(name string, owner UserID) (*Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameEmpty
	}
	return &Group{
		ID:        GroupID(uuid.NewString()),
		Name:      name,
		OwnerID:   owner,
		Avatar:    DefaultGroupAvatar,
		CreatedAt: time.Now().UTC(),
	}, nil
}
