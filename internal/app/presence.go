package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
	"github.com/rs/zerolog/log"
)

// Presence tells a user's online accepted friends about status changes
// and publishes a process-wide status event.
//
// The friend set is recomputed from the store on every change.
type Presence struct {
	Registry *Registry
	Store    core.Store
	Policy   Policy
	Metrics  *observability.Metrics
	Timeout  time.Duration
}

func NewPresence(reg *Registry, store core.Store, policy Policy, metrics *observability.Metrics, timeout time.Duration) *Presence {
	return &Presence{Registry: reg, Store: store, Policy: policy, Metrics: metrics, Timeout: timeout}
}

// AnnounceOnline must run after the user has been registered.
func (p *Presence) AnnounceOnline(ctx context.Context, u domain.Profile) error {
	return p.announce(ctx, u, domain.StatusOnline, core.EventFriendOnline, core.FriendPresenceEvent{
		UserID: u.ID, Username: u.Username, Avatar: u.Avatar,
	})
}

// AnnounceOffline must run after the user has been deregistered.
func (p *Presence) AnnounceOffline(ctx context.Context, u domain.Profile) error {
	return p.announce(ctx, u, domain.StatusOffline, core.EventFriendOffline, core.FriendPresenceEvent{
		UserID: u.ID, Username: u.Username,
	})
}

// OnlineFriends returns the accepted friends of uid that currently have a
// live connection.
func (p *Presence) OnlineFriends(ctx context.Context, uid domain.UserID) ([]domain.UserID, error) {
	sctx, cancel := p.storeContext(ctx)
	defer cancel()

	start := time.Now()
	friends, err := p.Store.GetAcceptedFriends(sctx, uid)
	p.Metrics.ObserveStoreCall("get_accepted_friends", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("accepted friends of %s: %w", uid, err)
	}

	out := make([]domain.UserID, 0, len(friends))
	for _, f := range friends {
		if f.ID == uid {
			continue
		}
		if p.Registry.Online(f.ID) {
			out = append(out, f.ID)
		}
	}
	return out, nil
}

func (p *Presence) announce(ctx context.Context, u domain.Profile, status domain.Status, event string, payload core.FriendPresenceEvent) error {
	var fanoutErr error
	online, err := p.OnlineFriends(ctx, u.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(u.ID)).Msg("skipping friend fan-out")
		fanoutErr = err
	} else if len(online) > 0 {
		frame, err := core.Encode(event, payload)
		if err != nil {
			return err
		}
		d := p.Registry.BroadcastToTargets(online, frame)
		p.record(event, d)
		log.Debug().
			Str("module", "app.presence").
			Str("user", string(u.ID)).
			Str("event", event).
			Int("sent", d.Sent).
			Msg("friends notified")
	}

	frame, err := core.Encode(core.EventUserStatusChange, core.StatusChangeEvent{UserID: u.ID, Status: status})
	if err != nil {
		return err
	}
	p.record(core.EventUserStatusChange, p.Registry.BroadcastAll(frame))
	return fanoutErr
}

func (p *Presence) record(event string, d Delivery) {
	p.Metrics.Deliveries(event, observability.OutcomeSent, d.Sent)
	p.Metrics.Deliveries(event, observability.OutcomeOffline, d.Offline)
	p.Metrics.Deliveries(event, observability.OutcomeDropped, len(d.Dropped))
	ApplyBackpressure(p.Policy, d.Dropped)
}

func (p *Presence) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}
