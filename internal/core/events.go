package core

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/owndc/internal/domain"
)

// Inbound events (connection -> server).
const (
	EventAuthenticate          = "authenticate"
	EventJoinChannel           = "join-channel"
	EventLeaveChannel          = "leave-channel"
	EventSendMessage           = "send-message"
	EventTyping                = "typing"
	EventSendDM                = "send-dm"
	EventJoinVoice             = "join-voice"
	EventLeaveVoice            = "leave-voice"
	EventOffer                 = "offer"
	EventAnswer                = "answer"
	EventICECandidate          = "ice-candidate"
	EventFriendRequest         = "friend-request"
	EventFriendRequestAccepted = "friend-request-accepted"
	EventPing                  = "ping"
)

// Outbound events (server -> connection).
const (
	EventAuthenticated         = "authenticated"
	EventNewMessage            = "new-message"
	EventNewDM                 = "new-dm"
	EventUserTyping            = "user-typing"
	EventUserJoinedChannel     = "user-joined-channel"
	EventUserLeftChannel       = "user-left-channel"
	EventUserJoinedVoice       = "user-joined-voice"
	EventUserLeftVoice         = "user-left-voice"
	EventVoiceChannelUsers     = "voice-channel-users"
	EventFriendRequestReceived = "friend-request-received"
	EventFriendAcceptedBy      = "friend-request-accepted-by"
	EventFriendOnline          = "friend-online"
	EventFriendOffline         = "friend-offline"
	EventUserStatusChange      = "user-status-change"
	EventPong                  = "pong"
)

// Envelope is the wire shape of every frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func Encode(event string, data any) (Frame, error) {
	env := Envelope{Type: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = raw
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return b, nil
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("missing event type")
	}
	return env, nil
}

// Inbound payloads.

type MessagePayload struct {
	ChannelID domain.RoomID `json:"channelId"`
	Content   string        `json:"content"`
	MessageID string        `json:"messageId"`
	Timestamp string        `json:"timestamp"`
}

type TypingPayload struct {
	ChannelID domain.RoomID `json:"channelId"`
	IsTyping  bool          `json:"isTyping"`
}

type DirectMessagePayload struct {
	ReceiverID domain.UserID `json:"receiverId"`
	Content    string        `json:"content"`
	MessageID  string        `json:"messageId"`
	Timestamp  string        `json:"timestamp"`
}

// SignalPayload carries an opaque WebRTC blob addressed by user id.
type SignalPayload struct {
	TargetUserID domain.UserID   `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}

type FriendRequestPayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
	FriendshipID string        `json:"friendshipId"`
}

type FriendAcceptedPayload struct {
	TargetUserID domain.UserID `json:"targetUserId"`
}

// Outbound payloads.

type AuthenticatedEvent struct {
	Success bool         `json:"success"`
	User    *domain.User `json:"user,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type MessageEvent struct {
	ID             string        `json:"id"`
	ChannelID      domain.RoomID `json:"channel_id"`
	Content        string        `json:"content"`
	Timestamp      string        `json:"timestamp"`
	SenderID       domain.UserID `json:"sender_id"`
	SenderUsername string        `json:"sender_username"`
	SenderAvatar   string        `json:"sender_avatar,omitempty"`
}

type DirectMessageEvent struct {
	ID             string        `json:"id"`
	Content        string        `json:"content"`
	Timestamp      string        `json:"timestamp"`
	SenderID       domain.UserID `json:"sender_id"`
	SenderUsername string        `json:"sender_username"`
	SenderAvatar   string        `json:"sender_avatar,omitempty"`
	ReceiverID     domain.UserID `json:"receiver_id"`
}

type TypingEvent struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	ChannelID domain.RoomID `json:"channelId"`
	IsTyping  bool          `json:"isTyping"`
}

type RoomPresenceEvent struct {
	UserID    domain.UserID `json:"userId"`
	Username  string        `json:"username"`
	Avatar    string        `json:"avatar,omitempty"`
	ChannelID domain.RoomID `json:"channelId"`
}

type VoiceUsersEvent struct {
	ChannelID domain.RoomID    `json:"channelId"`
	Users     []domain.Profile `json:"users"`
}

type SignalEvent struct {
	UserID   domain.UserID   `json:"userId"`
	Username string          `json:"username,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type FriendRequestEvent struct {
	FriendshipID string         `json:"friendshipId"`
	From         domain.Profile `json:"from"`
}

type FriendAcceptedEvent struct {
	User domain.Profile `json:"user"`
}

type FriendPresenceEvent struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Avatar   string        `json:"avatar,omitempty"`
}

type StatusChangeEvent struct {
	UserID domain.UserID `json:"userId"`
	Status domain.Status `json:"status"`
}
