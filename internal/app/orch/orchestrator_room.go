package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinChannel moves the session into a text channel's broadcast group.
// The previous channel, if different, is left first with a notice.
// Joining a channel the user is not a durable member of is dropped.
func (o *Orchestrator) JoinChannel(ctx context.Context, sid core.SessionID, channel domain.RoomID) error {
	sess, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if channel == "" {
		return fmt.Errorf("%w: empty channel id", ErrBadPayload)
	}
	if err := o.authorizeRoom(ctx, channel, user.ID); err != nil {
		return err
	}

	if prev := sess.Channel(); prev != "" && prev != channel {
		o.leaveChannel(sess, user, prev)
	}

	sess.SetChannel(channel)
	if !o.Channels.Join(channel, user.ID, sess) {
		return nil
	}
	log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("user", string(user.ID)).Str("channel", string(channel)).Msg("joined channel")
	return o.broadcast(o.Channels, channel, sid, core.EventUserJoinedChannel, core.RoomPresenceEvent{
		UserID: user.ID, Username: user.Username, ChannelID: channel,
	})
}

func (o *Orchestrator) LeaveChannel(_ context.Context, sid core.SessionID, channel domain.RoomID) error {
	sess, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if channel == "" {
		return fmt.Errorf("%w: empty channel id", ErrBadPayload)
	}
	o.leaveChannel(sess, user, channel)
	return nil
}

func (o *Orchestrator) leaveChannel(sess *core.Session, user *domain.User, channel domain.RoomID) {
	if sess.Channel() == channel {
		sess.SetChannel("")
	}
	if !o.Channels.Leave(channel, user.ID, sess) {
		return
	}
	log.Debug().Str("module", "app.orch").Str("sid", string(sess.ID())).Str("user", string(user.ID)).Str("channel", string(channel)).Msg("left channel")
	if err := o.broadcast(o.Channels, channel, sess.ID(), core.EventUserLeftChannel, core.RoomPresenceEvent{
		UserID: user.ID, Username: user.Username, ChannelID: channel,
	}); err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("left-channel notice")
	}
}

// EvictFromChannel removes the user's live session from a channel whose
// durable membership was revoked. Remaining members get the left notice.
func (o *Orchestrator) EvictFromChannel(channel domain.RoomID, uid domain.UserID) {
	sess, ok := o.Registry.Lookup(uid)
	if !ok {
		return
	}
	if user := sess.User(); user != nil {
		o.leaveChannel(sess, user, channel)
	}
}

// CloseChannel evicts every live member of a deleted channel.
func (o *Orchestrator) CloseChannel(channel domain.RoomID) {
	for _, uid := range o.Channels.MembersOf(channel) {
		o.EvictFromChannel(channel, uid)
	}
}

// SendMessage relays an already persisted message to the channel's
// other live members.
func (o *Orchestrator) SendMessage(_ context.Context, sid core.SessionID, p core.MessagePayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if p.ChannelID == "" {
		return fmt.Errorf("%w: empty channel id", ErrBadPayload)
	}
	return o.broadcast(o.Channels, p.ChannelID, sid, core.EventNewMessage, core.MessageEvent{
		ID:             p.MessageID,
		ChannelID:      p.ChannelID,
		Content:        p.Content,
		Timestamp:      p.Timestamp,
		SenderID:       user.ID,
		SenderUsername: user.Username,
		SenderAvatar:   user.Avatar,
	})
}

func (o *Orchestrator) Typing(_ context.Context, sid core.SessionID, p core.TypingPayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if p.ChannelID == "" {
		return fmt.Errorf("%w: empty channel id", ErrBadPayload)
	}
	return o.broadcast(o.Channels, p.ChannelID, sid, core.EventUserTyping, core.TypingEvent{
		UserID:    user.ID,
		Username:  user.Username,
		ChannelID: p.ChannelID,
		IsTyping:  p.IsTyping,
	})
}
