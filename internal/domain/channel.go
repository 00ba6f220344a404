package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrChannelNameEmpty = errors.New("channel name empty")

type ChannelType string

const (
	ChannelText  ChannelType = "text"
	ChannelVoice ChannelType = "voice"
)

type Channel struct {
	ID        RoomID      `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelType `json:"type"`
	OwnerID   UserID      `json:"owner_id"`
	CreatedAt time.Time   `json:"created_at"`
}

func NewChannel(name string, typ ChannelType, owner UserID) (*Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrChannelNameEmpty
	}
	if typ != ChannelVoice {
		typ = ChannelText
	}
	return &Channel{
		ID:        RoomID(uuid.NewString()),
		Name:      name,
		Type:      typ,
		OwnerID:   owner,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// ChannelSummary is one row of the channel directory.
type ChannelSummary struct {
	Channel
	OwnerUsername string `json:"owner_username"`
	MemberCount   int    `json:"member_count"`
}
