package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyContent = errors.New("message content empty")

type Message struct {
	ID             string    `json:"id"`
	ChannelID      RoomID    `json:"channel_id"`
	SenderID       UserID    `json:"sender_id"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
	SenderUsername string    `json:"sender_username,omitempty"`
	SenderAvatar   string    `json:"sender_avatar,omitempty"`
}

type DirectMessage struct {
	ID             string     `json:"id"`
	SenderID       UserID     `json:"sender_id"`
	ReceiverID     UserID     `json:"receiver_id"`
	Content        string     `json:"content"`
	Timestamp      time.Time  `json:"timestamp"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	SenderUsername string     `json:"sender_username,omitempty"`
	SenderAvatar   string     `json:"sender_avatar,omitempty"`
}

func NewMessage(channel RoomID, sender UserID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	return &Message{
		ID:        uuid.NewString(),
		ChannelID: channel,
		SenderID:  sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}, nil
}

func NewDirectMessage(sender, receiver UserID, content string) (*DirectMessage, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	return &DirectMessage{
		ID:         uuid.NewString(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  time.Now().UTC(),
	}, nil
}
