package orch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/owndc/internal/app"
	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
	"github.com/dkeye/owndc/internal/observability"
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

func (c *fakeConn) count(event string) int {
	n := 0
	for _, e := range c.events() {
		if e == event {
			n++
		}
	}
	return n
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
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
	t.Fatalf("no %q frame in %d received", event, len(c.frames))
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// flakyStore injects failures into the calls the router makes.
type flakyStore struct {
	*storage.MemoryStore
	getUserErr   error
	statusErr    error
	memberErr    error
	friendsErr   error
	blockGetUser bool

	// offlineGate, when set, holds every offline status write until it is
	// closed. offlineEntered is closed when the first such write arrives.
	offlineGate    chan struct{}
	offlineEntered chan struct{}
	enterOnce      sync.Once
}

func (s *flakyStore) GetUserByID(ctx context.Context, id domain.UserID) (*domain.User, error) {
	if s.blockGetUser {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.getUserErr != nil {
		return nil, s.getUserErr
	}
	return s.MemoryStore.GetUserByID(ctx, id)
}

func (s *flakyStore) SetUserStatus(ctx context.Context, id domain.UserID, st domain.Status) error {
	if s.statusErr != nil {
		return s.statusErr
	}
	if st == domain.StatusOffline && s.offlineGate != nil {
		s.enterOnce.Do(func() { close(s.offlineEntered) })
		<-s.offlineGate
	}
	return s.MemoryStore.SetUserStatus(ctx, id, st)
}

func (s *flakyStore) IsChannelMember(ctx context.Context, ch domain.RoomID, id domain.UserID) (bool, error) {
	if s.memberErr != nil {
		return false, s.memberErr
	}
	return s.MemoryStore.IsChannelMember(ctx, ch, id)
}

func (s *flakyStore) GetAcceptedFriends(ctx context.Context, id domain.UserID) ([]domain.Profile, error) {
	if s.friendsErr != nil {
		return nil, s.friendsErr
	}
	return s.MemoryStore.GetAcceptedFriends(ctx, id)
}

type harness struct {
	o       *Orchestrator
	mem     *storage.MemoryStore
	store   *flakyStore
	metrics *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mem := storage.NewMemoryStore()
	store := &flakyStore{MemoryStore: mem}
	reg := app.NewRegistry()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	timeout := 200 * time.Millisecond
	return &harness{
		mem:     mem,
		store:   store,
		metrics: metrics,
		o: &Orchestrator{
			Registry:     reg,
			Channels:     app.NewRoomManager(domain.RoomText),
			Voice:        app.NewRoomManager(domain.RoomVoice),
			Presence:     app.NewPresence(reg, store, app.SimplePolicy{}, metrics, timeout),
			Store:        store,
			Policy:       app.SimplePolicy{},
			Metrics:      metrics,
			StoreTimeout: timeout,
		},
	}
}

func (h *harness) user(t *testing.T, name string) *domain.User {
	t.Helper()
	u, err := domain.NewUser(name, name+"@example.org")
	require.NoError(t, err)
	require.NoError(t, h.mem.CreateUser(context.Background(), u))
	return u
}

func (h *harness) befriend(t *testing.T, a, b *domain.User) {
	t.Helper()
	ctx := context.Background()
	f := &domain.Friendship{UserID: a.ID, FriendID: b.ID}
	require.NoError(t, h.mem.CreateFriendRequest(ctx, f))
	_, err := h.mem.AcceptFriendRequest(ctx, f.ID, b.ID)
	require.NoError(t, err)
}

// channel creates a durable channel owned by the first user with every
// other user added as a member.
func (h *harness) channel(t *testing.T, name string, typ domain.ChannelType, users ...*domain.User) domain.RoomID {
	t.Helper()
	ctx := context.Background()
	ch, err := domain.NewChannel(name, typ, users[0].ID)
	require.NoError(t, err)
	require.NoError(t, h.mem.CreateChannel(ctx, ch))
	for _, u := range users[1:] {
		require.NoError(t, h.mem.AddChannelMember(ctx, ch.ID, u.ID))
	}
	return ch.ID
}

func (h *harness) connect(sid string) *fakeConn {
	conn := &fakeConn{}
	h.o.Connect(core.SessionID(sid), conn)
	return conn
}

// login connects and authenticates, then discards the frames produced so far.
func (h *harness) login(t *testing.T, sid string, u *domain.User) *fakeConn {
	t.Helper()
	conn := h.connect(sid)
	require.NoError(t, h.o.Authenticate(context.Background(), core.SessionID(sid), u.ID))
	conn.reset()
	return conn
}
