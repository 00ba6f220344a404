package storage

import (
	"context"
	"errors"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// UserStore persists accounts and their presence status.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	SetUserStatus(ctx context.Context, id domain.UserID, status domain.Status) error
}

// FriendStore persists friendships in both directions.
type FriendStore interface {
	GetAcceptedFriends(ctx context.Context, id domain.UserID) ([]domain.Profile, error)
	ListFriendships(ctx context.Context, id domain.UserID) (*domain.FriendList, error)
	GetFriendshipBetween(ctx context.Context, a, b domain.UserID) (*domain.Friendship, error)
	CreateFriendRequest(ctx context.Context, f *domain.Friendship) error
	// AcceptFriendRequest accepts a pending request addressed to receiver.
	AcceptFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) (*domain.Friendship, error)
	DeclineFriendRequest(ctx context.Context, friendshipID string, receiver domain.UserID) error
	RemoveFriend(ctx context.Context, friendshipID string, user domain.UserID) error
}

// ChannelStore persists channels and their durable membership.
type ChannelStore interface {
	CreateChannel(ctx context.Context, ch *domain.Channel) error
	GetChannel(ctx context.Context, id domain.RoomID) (*domain.Channel, error)
	// ListChannels is the directory of every channel, newest first.
	ListChannels(ctx context.Context) ([]domain.ChannelSummary, error)
	ListChannelsForUser(ctx context.Context, user domain.UserID) ([]domain.Channel, error)
	// AddChannelMember returns ErrNotFound when the channel or user is unknown.
	AddChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error
	RemoveChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) error
	IsChannelMember(ctx context.Context, channel domain.RoomID, user domain.UserID) (bool, error)
	// DeleteChannel removes the channel with its members and messages.
	DeleteChannel(ctx context.Context, id domain.RoomID) error
}

// GroupStore persists groups and their members.
type GroupStore interface {
	// CreateGroup stores g and makes its owner a member with the owner role.
	CreateGroup(ctx context.Context, g *domain.Group) error
	GetGroup(ctx context.Context, id domain.GroupID) (*domain.Group, error)
	ListGroupsForUser(ctx context.Context, user domain.UserID) ([]domain.GroupSummary, error)
	// AddGroupMember returns ErrAlreadyExists for a member and ErrNotFound
	// when the group or user is unknown.
	AddGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID, role domain.GroupRole) error
	IsGroupMember(ctx context.Context, group domain.GroupID, user domain.UserID) (bool, error)
	DeleteGroup(ctx context.Context, id domain.GroupID) error
}

// MessageStore persists channel messages and direct messages.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	ListMessages(ctx context.Context, channel domain.RoomID, limit int) ([]domain.Message, error)
	InsertDirectMessage(ctx context.Context, m *domain.DirectMessage) (*domain.DirectMessage, error)
	ListDirectMessages(ctx context.Context, a, b domain.UserID, limit int) ([]domain.DirectMessage, error)
}

// Store groups every persistence concern.
type Store interface {
	UserStore
	FriendStore
	ChannelStore
	GroupStore
	MessageStore
	Close() error
}

var (
	_ core.Store = (Store)(nil)
	_ Store      = (*SQLStore)(nil)
	_ Store      = (*MemoryStore)(nil)
)
