package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinVoice adds the session to a voice room. Members already present
// get user-joined-voice; the joiner gets a voice-channel-users snapshot
// of everyone else so it can open peer connections to them.
func (o *Orchestrator) JoinVoice(ctx context.Context, sid core.SessionID, room domain.RoomID) error {
	sess, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if room == "" {
		return fmt.Errorf("%w: empty room id", ErrBadPayload)
	}
	if err := o.authorizeRoom(ctx, room, user.ID); err != nil {
		return err
	}

	if prev := sess.Voice(); prev != "" && prev != room {
		o.leaveVoice(sess, user, prev)
	}

	sess.SetVoice(room)
	if o.Voice.Join(room, user.ID, sess) {
		o.Metrics.VoiceJoined()
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("user", string(user.ID)).Str("room", string(room)).Msg("joined voice")
		if err := o.broadcast(o.Voice, room, sid, core.EventUserJoinedVoice, core.RoomPresenceEvent{
			UserID: user.ID, Username: user.Username, Avatar: user.Avatar, ChannelID: room,
		}); err != nil {
			return err
		}
	}

	o.sendTo(sess, core.EventVoiceChannelUsers, core.VoiceUsersEvent{
		ChannelID: room,
		Users:     o.voiceSnapshot(ctx, room, user.ID),
	})
	return nil
}

func (o *Orchestrator) LeaveVoice(_ context.Context, sid core.SessionID, room domain.RoomID) error {
	sess, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if room == "" {
		return fmt.Errorf("%w: empty room id", ErrBadPayload)
	}
	o.leaveVoice(sess, user, room)
	return nil
}

func (o *Orchestrator) leaveVoice(sess *core.Session, user *domain.User, room domain.RoomID) {
	if sess.Voice() == room {
		sess.SetVoice("")
	}
	if !o.Voice.Leave(room, user.ID, sess) {
		return
	}
	o.Metrics.VoiceLeft()
	log.Info().Str("module", "app.orch").Str("sid", string(sess.ID())).Str("user", string(user.ID)).Str("room", string(room)).Msg("left voice")
	if err := o.broadcast(o.Voice, room, sess.ID(), core.EventUserLeftVoice, core.RoomPresenceEvent{
		UserID: user.ID, Username: user.Username, ChannelID: room,
	}); err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("left-voice notice")
	}
}

// voiceSnapshot resolves the profiles of every member except self. A
// member whose store lookup fails falls back to the name cached on its
// session.
func (o *Orchestrator) voiceSnapshot(ctx context.Context, id domain.RoomID, self domain.UserID) []domain.Profile {
	members := o.Voice.Snapshot(id)
	out := make([]domain.Profile, 0, len(members))
	for _, m := range members {
		if m.ID == self {
			continue
		}
		sctx, cancel := o.storeContext(ctx)
		start := time.Now()
		u, err := o.Store.GetUserByID(sctx, m.ID)
		o.Metrics.ObserveStoreCall("get_user", time.Since(start).Seconds())
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("room", string(id)).Str("user", string(m.ID)).Msg("snapshot profile fallback")
			out = append(out, domain.Profile{ID: m.ID, Username: m.Username})
			continue
		}
		out = append(out, domain.Profile{ID: u.ID, Username: u.Username, Avatar: u.Avatar})
	}
	return out
}

// RelaySignal forwards an offer, answer or ICE candidate to the target
// user. The payload is never inspected.
func (o *Orchestrator) RelaySignal(_ context.Context, sid core.SessionID, kind string, p core.SignalPayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	switch kind {
	case core.EventOffer, core.EventAnswer, core.EventICECandidate:
	default:
		return fmt.Errorf("%w: unknown signal kind %q", ErrBadPayload, kind)
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("%w: empty target id", ErrBadPayload)
	}
	ev := core.SignalEvent{UserID: user.ID, Payload: p.Payload}
	if kind == core.EventOffer {
		ev.Username = user.Username
	}
	return o.deliver(p.TargetUserID, kind, ev)
}

// VoiceRooms lists the live voice rooms.
func (o *Orchestrator) VoiceRooms() []core.RoomInfo {
	return o.Voice.List()
}
