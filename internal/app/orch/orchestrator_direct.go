package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
)

// SendDirectMessage relays an already persisted direct message to the
// receiver's current connection, if any.
func (o *Orchestrator) SendDirectMessage(_ context.Context, sid core.SessionID, p core.DirectMessagePayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if p.ReceiverID == "" {
		return fmt.Errorf("%w: empty receiver id", ErrBadPayload)
	}
	return o.deliver(p.ReceiverID, core.EventNewDM, core.DirectMessageEvent{
		ID:             p.MessageID,
		Content:        p.Content,
		Timestamp:      p.Timestamp,
		SenderID:       user.ID,
		SenderUsername: user.Username,
		SenderAvatar:   user.Avatar,
		ReceiverID:     p.ReceiverID,
	})
}

func (o *Orchestrator) NotifyFriendRequest(_ context.Context, sid core.SessionID, p core.FriendRequestPayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("%w: empty target id", ErrBadPayload)
	}
	from := user.Profile()
	from.Status = ""
	return o.deliver(p.TargetUserID, core.EventFriendRequestReceived, core.FriendRequestEvent{
		FriendshipID: p.FriendshipID,
		From:         from,
	})
}

func (o *Orchestrator) NotifyFriendAccepted(_ context.Context, sid core.SessionID, p core.FriendAcceptedPayload) error {
	_, user, err := o.authed(sid)
	if err != nil {
		return err
	}
	if p.TargetUserID == "" {
		return fmt.Errorf("%w: empty target id", ErrBadPayload)
	}
	profile := user.Profile()
	profile.Status = domain.StatusOnline
	return o.deliver(p.TargetUserID, core.EventFriendAcceptedBy, core.FriendAcceptedEvent{User: profile})
}
