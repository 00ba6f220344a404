// Package orch routes inbound real-time events. Each event kind has one
// synchronous method that validates the sending session, mutates the
// registry and room state, and fans out the resulting frames.
package orch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/owndc/internal/app"
	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownSession         = errors.New("unknown session")
	ErrNotAuthenticated       = errors.New("session not authenticated")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrNotAuthorized          = errors.New("not authorized")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrBadPayload             = errors.New("bad payload")
)

type Orchestrator struct {
	Registry     *app.Registry
	Channels     core.RoomManager
	Voice        core.RoomManager
	Presence     *app.Presence
	Store        core.Store
	Policy       app.Policy
	Metrics      *observability.Metrics
	StoreTimeout time.Duration

	locks userLocks
}

// Connect binds a new connection. The session starts unauthenticated.
func (o *Orchestrator) Connect(sid core.SessionID, signal core.SignalConnection) *core.Session {
	sess := o.Registry.BindSignal(sid, signal)
	o.Metrics.ConnectionOpened()
	return sess
}

// Authenticate binds uid to the session. On failure the requesting
// connection alone receives authenticated{success:false} and stays usable.
func (o *Orchestrator) Authenticate(ctx context.Context, sid core.SessionID, uid domain.UserID) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownSession
	}
	if uid == "" {
		o.authFailed(sess)
		return fmt.Errorf("%w: empty user id", ErrAuthenticationFailed)
	}

	sctx, cancel := o.storeContext(ctx)
	start := time.Now()
	user, err := o.Store.GetUserByID(sctx, uid)
	o.Metrics.ObserveStoreCall("get_user", time.Since(start).Seconds())
	cancel()
	if err != nil {
		o.authFailed(sess)
		return fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	if cur, ok := sess.UserID(); ok && cur != uid {
		if err := o.release(ctx, sess); err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("sid", string(sid)).Msg("release previous identity")
		}
	}
	wasAuthenticated := sess.Authenticated()

	unlock := o.locks.lock(uid)
	defer unlock()

	prev := o.Registry.Register(uid, sess)
	sctx, cancel = o.storeContext(ctx)
	start = time.Now()
	err = o.Store.SetUserStatus(sctx, uid, domain.StatusOnline)
	o.Metrics.ObserveStoreCall("set_status", time.Since(start).Seconds())
	cancel()
	if err != nil {
		o.rollbackRegister(uid, sess, prev)
		o.authFailed(sess)
		return fmt.Errorf("%w: %w: %w", ErrAuthenticationFailed, ErrPersistenceUnavailable, err)
	}

	user.Status = domain.StatusOnline
	sess.SetUser(user)
	if !wasAuthenticated {
		o.Metrics.SessionAuthenticated()
	}
	if prev != nil {
		log.Info().
			Str("module", "app.orch").
			Str("user", string(uid)).
			Str("sid", string(sid)).
			Str("replaced", string(prev.ID())).
			Msg("user reconnected")
	}

	o.sendTo(sess, core.EventAuthenticated, core.AuthenticatedEvent{Success: true, User: user})

	if err := o.Presence.AnnounceOnline(ctx, user.Profile()); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("user", string(uid)).Msg("online announcement incomplete")
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("user", string(uid)).Msg("authenticated")
	return nil
}

// Disconnect tears down the session of a closed connection: it leaves
// every room, releases the user entry if it still belongs to this
// connection, and announces the user offline.
func (o *Orchestrator) Disconnect(ctx context.Context, sid core.SessionID) error {
	sess, ok := o.Registry.Unbind(sid)
	if !ok {
		return ErrUnknownSession
	}
	o.Metrics.ConnectionClosed()
	return o.release(ctx, sess)
}

// Ping answers keepalive events; it does not require authentication.
func (o *Orchestrator) Ping(sid core.SessionID) error {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return ErrUnknownSession
	}
	o.sendTo(sess, core.EventPong, nil)
	return nil
}

// Session returns the bound session for sid.
func (o *Orchestrator) Session(sid core.SessionID) (*core.Session, bool) {
	return o.Registry.GetSession(sid)
}

func (o *Orchestrator) release(ctx context.Context, sess *core.Session) error {
	user := sess.User()
	if user == nil {
		sess.Reset()
		return nil
	}
	uid := user.ID

	if v := sess.Voice(); v != "" {
		o.leaveVoice(sess, user, v)
	}
	if c := sess.Channel(); c != "" {
		o.Channels.Leave(c, uid, sess)
	}
	sess.Reset()
	o.Metrics.SessionReleased()

	unlock := o.locks.lock(uid)
	defer unlock()

	if !o.Registry.DeregisterIfCurrent(uid, sess) {
		log.Info().Str("module", "app.orch").Str("user", string(uid)).Str("sid", string(sess.ID())).Msg("stale session released")
		return nil
	}

	var statusErr error
	sctx, cancel := o.storeContext(ctx)
	start := time.Now()
	if err := o.Store.SetUserStatus(sctx, uid, domain.StatusOffline); err != nil {
		statusErr = fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
		log.Error().Err(err).Str("module", "app.orch").Str("user", string(uid)).Msg("set offline status")
	}
	o.Metrics.ObserveStoreCall("set_status", time.Since(start).Seconds())
	cancel()

	if err := o.Presence.AnnounceOffline(ctx, user.Profile()); err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Str("user", string(uid)).Msg("offline announcement incomplete")
	}
	log.Info().Str("module", "app.orch").Str("sid", string(sess.ID())).Str("user", string(uid)).Msg("released")
	return statusErr
}

func (o *Orchestrator) rollbackRegister(uid domain.UserID, sess, prev *core.Session) {
	if !o.Registry.DeregisterIfCurrent(uid, sess) {
		return
	}
	if prev != nil {
		if _, bound := o.Registry.GetSession(prev.ID()); bound {
			o.Registry.Register(uid, prev)
		}
	}
}

func (o *Orchestrator) authFailed(sess *core.Session) {
	o.sendTo(sess, core.EventAuthenticated, core.AuthenticatedEvent{Success: false, Error: "Authentication failed"})
}

// authed returns the session and user for sid, or ErrNotAuthenticated.
func (o *Orchestrator) authed(sid core.SessionID) (*core.Session, *domain.User, error) {
	sess, ok := o.Registry.GetSession(sid)
	if !ok {
		return nil, nil, ErrUnknownSession
	}
	user := sess.User()
	if user == nil {
		return nil, nil, ErrNotAuthenticated
	}
	return sess, user, nil
}

// authorizeRoom checks durable channel membership. Store failures deny.
func (o *Orchestrator) authorizeRoom(ctx context.Context, room domain.RoomID, uid domain.UserID) error {
	sctx, cancel := o.storeContext(ctx)
	defer cancel()
	start := time.Now()
	ok, err := o.Store.IsChannelMember(sctx, room, uid)
	o.Metrics.ObserveStoreCall("is_channel_member", time.Since(start).Seconds())
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("room", string(room)).Str("user", string(uid)).Msg("membership check")
		return fmt.Errorf("%w: %w", ErrPersistenceUnavailable, err)
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

// sendTo writes one event to a single session.
func (o *Orchestrator) sendTo(sess *core.Session, event string, payload any) {
	frame, err := core.Encode(event, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Str("event", event).Msg("encode")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		o.Metrics.Delivery(event, observability.OutcomeDropped)
		app.ApplyBackpressure(o.Policy, []*core.Session{sess})
		return
	}
	o.Metrics.Delivery(event, observability.OutcomeSent)
}

// deliver addresses one user through the registry. Offline targets are
// dropped silently.
func (o *Orchestrator) deliver(uid domain.UserID, event string, payload any) error {
	frame, err := core.Encode(event, payload)
	if err != nil {
		return err
	}
	d, _ := o.Registry.SendTo(uid, frame)
	o.Metrics.Deliveries(event, observability.OutcomeSent, d.Sent)
	o.Metrics.Deliveries(event, observability.OutcomeOffline, d.Offline)
	o.Metrics.Deliveries(event, observability.OutcomeDropped, len(d.Dropped))
	app.ApplyBackpressure(o.Policy, d.Dropped)
	if d.Offline > 0 {
		log.Debug().Str("module", "app.orch").Str("event", event).Str("target", string(uid)).Msg("target offline")
	}
	return nil
}

// broadcast sends to every member of the room except the sending session.
func (o *Orchestrator) broadcast(rooms core.RoomManager, id domain.RoomID, from core.SessionID, event string, payload any) error {
	frame, err := core.Encode(event, payload)
	if err != nil {
		return err
	}
	res := rooms.Broadcast(id, from, frame)
	o.Metrics.Deliveries(event, observability.OutcomeSent, res.SendTo)
	o.Metrics.Deliveries(event, observability.OutcomeDropped, len(res.Dropped))
	app.ApplyBackpressure(o.Policy, res.Dropped)
	return nil
}

func (o *Orchestrator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.StoreTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.StoreTimeout)
}

// Result classifies a handler error for the events metric.
func Result(err error) string {
	switch {
	case err == nil:
		return observability.ResultOK
	case errors.Is(err, ErrNotAuthenticated), errors.Is(err, ErrNotAuthorized), errors.Is(err, ErrUnknownSession):
		return observability.ResultIgnored
	default:
		return observability.ResultError
	}
}
