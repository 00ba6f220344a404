package app

import (
	"sync"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry owns every live session and maps authenticated users to the
// session currently addressing them. A user has at most one entry; a
// newer registration overwrites the older one.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*core.Session
	users    map[domain.UserID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*core.Session),
		users:    make(map[domain.UserID]*core.Session),
	}
}

// BindSignal creates the session for a freshly opened connection.
func (r *Registry) BindSignal(sid core.SessionID, signal core.SignalConnection) *core.Session {
	sess := core.NewSession(sid, signal)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = sess
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("bound signal")
	return sess
}

func (r *Registry) GetSession(sid core.SessionID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sid]
	return s, ok
}

// Unbind forgets the session of a closed connection. The user entry is
// left alone; callers release it with DeregisterIfCurrent.
func (r *Registry) Unbind(sid core.SessionID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sid]
	if ok {
		delete(r.sessions, sid)
		log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	}
	return s, ok
}

// Register points uid at sess, replacing any previous session. It
// returns the replaced session, if any.
func (r *Registry) Register(uid domain.UserID, sess *core.Session) *core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.users[uid]
	r.users[uid] = sess
	ev := log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("sid", string(sess.ID()))
	if prev != nil && prev != sess {
		ev = ev.Str("replaced", string(prev.ID()))
	} else {
		prev = nil
	}
	ev.Msg("registered user")
	return prev
}

func (r *Registry) Lookup(uid domain.UserID) (*core.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.users[uid]
	return s, ok
}

func (r *Registry) Online(uid domain.UserID) bool {
	_, ok := r.Lookup(uid)
	return ok
}

// Deregister removes uid unconditionally.
func (r *Registry) Deregister(uid domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[uid]; ok {
		delete(r.users, uid)
		log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("deregistered user")
	}
}

// DeregisterIfCurrent removes uid only while it still points at sess, so
// a teardown racing with a reconnect cannot evict the newer connection.
func (r *Registry) DeregisterIfCurrent(uid domain.UserID, sess *core.Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.users[uid]
	if !ok || cur != sess {
		return false
	}
	delete(r.users, uid)
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("sid", string(sess.ID())).Msg("deregistered user")
	return true
}

// Delivery summarises a best-effort fan-out.
type Delivery struct {
	Sent    int
	Offline int
	Dropped []*core.Session
}

// SendTo delivers frame to the session currently registered for uid.
// An absent user is not an error.
func (r *Registry) SendTo(uid domain.UserID, frame core.Frame) (Delivery, bool) {
	var d Delivery
	sess, ok := r.Lookup(uid)
	if !ok {
		d.Offline = 1
		return d, false
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		log.Debug().Err(err).Str("module", "app.registry").Str("user", string(uid)).Msg("delivery dropped")
		d.Dropped = append(d.Dropped, sess)
		return d, false
	}
	d.Sent = 1
	return d, true
}

// BroadcastToTargets delivers frame to each registered uid and silently
// skips users without a live connection.
func (r *Registry) BroadcastToTargets(uids []domain.UserID, frame core.Frame) Delivery {
	targets := make([]*core.Session, 0, len(uids))
	var d Delivery
	r.mu.RLock()
	for _, uid := range uids {
		if s, ok := r.users[uid]; ok {
			targets = append(targets, s)
		} else {
			d.Offline++
		}
	}
	r.mu.RUnlock()

	for _, s := range targets {
		if err := s.Signal().TrySend(frame); err != nil {
			d.Dropped = append(d.Dropped, s)
			continue
		}
		d.Sent++
	}
	return d
}

// BroadcastAll delivers frame to every bound connection, authenticated or not.
func (r *Registry) BroadcastAll(frame core.Frame) Delivery {
	r.mu.RLock()
	targets := make([]*core.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	var d Delivery
	for _, s := range targets {
		if err := s.Signal().TrySend(frame); err != nil {
			d.Dropped = append(d.Dropped, s)
			continue
		}
		d.Sent++
	}
	return d
}
