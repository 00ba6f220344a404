package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/storage"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Envelope
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return errors.New("queue full")
	}
	env, err := core.Decode(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) events() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		out = append(out, f.Type)
	}
	return out
}

func (c *fakeConn) last(t *testing.T, event string, into any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Type == event {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, into))
			return
		}
	}
	t.Fatalf("no %q frame received", event)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// failingFriends makes the friend query fail.
type failingFriends struct {
	*storage.MemoryStore
}

func (failingFriends) GetAcceptedFriends(context.Context, domain.UserID) ([]domain.Profile, error) {
	return nil, errors.New("database is locked")
}

func seedUser(t *testing.T, s *storage.MemoryStore, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name, name+"@example.org")
	require.NoError(t, err)
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func befriend(t *testing.T, s *storage.MemoryStore, a, b *domain.User) {
	t.Helper()
	ctx := context.Background()
	f := &domain.Friendship{UserID: a.ID, FriendID: b.ID}
	require.NoError(t, s.CreateFriendRequest(ctx, f))
	_, err := s.AcceptFriendRequest(ctx, f.ID, b.ID)
	require.NoError(t, err)
}

// connect binds a new connection and registers uid on it.
func connect(r *Registry, sid string, uid domain.UserID) (*core.Session, *fakeConn) {
	conn := &fakeConn{}
	sess := r.BindSignal(core.SessionID(sid), conn)
	if uid != "" {
		sess.SetUser(&domain.User{ID: uid})
		r.Register(uid, sess)
	}
	return sess, conn
}
