package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/owndc/internal/app/orch"
	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrRateLimited  = errors.New("too many authentication attempts")
)

// handle dispatches one inbound frame and logs the outcome. Handler
// errors never reach the peer.
func (ctl *SignalWSController) handle(ctx context.Context, cl *client, data []byte) {
	event, err := ctl.Dispatch(ctx, cl, data)
	ctl.Metrics.Event(event, orch.Result(err))
	if err == nil {
		return
	}
	ev := log.Debug()
	if orch.Result(err) != observability.ResultIgnored {
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "signal").Str("sid", string(cl.sid)).Str("event", event).Msg("event not handled")
}

// Dispatch decodes one envelope and invokes the matching router method.
// It returns the event type for metrics.
func (ctl *SignalWSController) Dispatch(ctx context.Context, cl *client, data []byte) (string, error) {
	env, err := core.Decode(data)
	if err != nil {
		return "invalid", fmt.Errorf("%w: %w", orch.ErrBadPayload, err)
	}
	o := ctl.Orch
	sid := cl.sid

	switch env.Type {
	case core.EventAuthenticate:
		return env.Type, ctl.authenticate(ctx, cl, env.Data)
	case core.EventPing:
		return env.Type, o.Ping(sid)

	case core.EventJoinChannel:
		id, err := decodeID(env.Data, "channelId")
		if err != nil {
			return env.Type, err
		}
		return env.Type, o.JoinChannel(ctx, sid, domain.RoomID(id))
	case core.EventLeaveChannel:
		id, err := decodeID(env.Data, "channelId")
		if err != nil {
			return env.Type, err
		}
		return env.Type, o.LeaveChannel(ctx, sid, domain.RoomID(id))
	case core.EventSendMessage:
		var p core.MessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.SendMessage(ctx, sid, p)
	case core.EventTyping:
		var p core.TypingPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.Typing(ctx, sid, p)

	case core.EventSendDM:
		var p core.DirectMessagePayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.SendDirectMessage(ctx, sid, p)
	case core.EventFriendRequest:
		var p core.FriendRequestPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.NotifyFriendRequest(ctx, sid, p)
	case core.EventFriendRequestAccepted:
		var p core.FriendAcceptedPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.NotifyFriendAccepted(ctx, sid, p)

	case core.EventJoinVoice:
		id, err := decodeID(env.Data, "channelId")
		if err != nil {
			return env.Type, err
		}
		return env.Type, o.JoinVoice(ctx, sid, domain.RoomID(id))
	case core.EventLeaveVoice:
		id, err := decodeID(env.Data, "channelId")
		if err != nil {
			return env.Type, err
		}
		return env.Type, o.LeaveVoice(ctx, sid, domain.RoomID(id))
	case core.EventOffer, core.EventAnswer, core.EventICECandidate:
		var p core.SignalPayload
		if err := decodePayload(env.Data, &p); err != nil {
			return env.Type, err
		}
		return env.Type, o.RelaySignal(ctx, sid, env.Type, p)

	default:
		return "unknown", fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
}

func (ctl *SignalWSController) authenticate(ctx context.Context, cl *client, raw json.RawMessage) error {
	if !ctl.Limiter.Allow(string(cl.sid)) {
		if sess, ok := ctl.Orch.Session(cl.sid); ok {
			if frame, err := core.Encode(core.EventAuthenticated, core.AuthenticatedEvent{Success: false, Error: "Too many attempts"}); err == nil {
				_ = sess.Signal().TrySend(frame)
			}
		}
		return ErrRateLimited
	}
	id, err := decodeID(raw, "userId")
	if err != nil {
		return err
	}
	uid := domain.UserID(id)
	if uid == "" {
		uid = cl.hint
	}
	return ctl.Orch.Authenticate(ctx, cl.sid, uid)
}

func decodePayload(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", orch.ErrBadPayload)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return fmt.Errorf("%w: %w", orch.ErrBadPayload, err)
	}
	return nil
}

// decodeID accepts either a bare JSON string or an object carrying the
// id under field. Missing data decodes to the empty id.
func decodeID(raw json.RawMessage, field string) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("%w: %w", orch.ErrBadPayload, err)
		}
		return s, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", fmt.Errorf("%w: %w", orch.ErrBadPayload, err)
	}
	v, ok := obj[field]
	if !ok {
		return "", nil
	}
	if err := json.Unmarshal(v, &s); err != nil {
		return "", fmt.Errorf("%w: %s: %w", orch.ErrBadPayload, field, err)
	}
	return s, nil
}
