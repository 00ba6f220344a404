package orch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/owndc/internal/core"
	"github.com/dkeye/owndc/internal/domain"
)

// A joins "general", B joins "general", B disconnects.
func TestVoiceJoinAndDisconnectScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	general := h.channel(t, "general", domain.ChannelVoice, a, b)

	aConn := h.login(t, "s-a", a)
	bConn := h.login(t, "s-b", b)
	aConn.reset()

	require.NoError(t, h.o.JoinVoice(ctx, "s-a", general))
	var snap core.VoiceUsersEvent
	aConn.last(t, core.EventVoiceChannelUsers, &snap)
	assert.Empty(t, snap.Users, "first joiner sees an empty room")
	aConn.reset()

	require.NoError(t, h.o.JoinVoice(ctx, "s-b", general))

	var joined core.RoomPresenceEvent
	aConn.last(t, core.EventUserJoinedVoice, &joined)
	assert.Equal(t, b.ID, joined.UserID)
	assert.Equal(t, "bob", joined.Username)
	assert.Equal(t, domain.DefaultAvatar, joined.Avatar)
	assert.Equal(t, general, joined.ChannelID)
	assert.Zero(t, aConn.count(core.EventVoiceChannelUsers), "existing members get no snapshot")

	assert.Equal(t, []string{core.EventVoiceChannelUsers}, bConn.events(), "the joiner gets no joined notice for itself")
	bConn.last(t, core.EventVoiceChannelUsers, &snap)
	assert.Equal(t, general, snap.ChannelID)
	assert.Equal(t, []domain.Profile{{ID: a.ID, Username: "alice", Avatar: domain.DefaultAvatar}}, snap.Users)

	aConn.reset()
	require.NoError(t, h.o.Disconnect(ctx, "s-b"))

	var left core.RoomPresenceEvent
	aConn.last(t, core.EventUserLeftVoice, &left)
	assert.Equal(t, b.ID, left.UserID)
	assert.Equal(t, []domain.UserID{a.ID}, h.o.Voice.MembersOf(general))
}

func TestJoinVoice_SwitchRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	one := h.channel(t, "one", domain.ChannelVoice, a, b)
	two := h.channel(t, "two", domain.ChannelVoice, a, b)

	aConn := h.login(t, "s-a", a)
	h.login(t, "s-b", b)
	require.NoError(t, h.o.JoinVoice(ctx, "s-a", one))
	require.NoError(t, h.o.JoinVoice(ctx, "s-b", one))
	aConn.reset()

	require.NoError(t, h.o.JoinVoice(ctx, "s-b", two))
	assert.Equal(t, []string{core.EventUserLeftVoice}, aConn.events())
	assert.Equal(t, []domain.UserID{a.ID}, h.o.Voice.MembersOf(one))
	assert.Equal(t, []domain.UserID{b.ID}, h.o.Voice.MembersOf(two))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.VoiceParticipants))
}

func TestJoinVoice_RejoinResendsSnapshotOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	room := h.channel(t, "room", domain.ChannelVoice, a, b)

	aConn := h.login(t, "s-a", a)
	bConn := h.login(t, "s-b", b)
	require.NoError(t, h.o.JoinVoice(ctx, "s-a", room))
	require.NoError(t, h.o.JoinVoice(ctx, "s-b", room))
	aConn.reset()
	bConn.reset()

	require.NoError(t, h.o.JoinVoice(ctx, "s-b", room))
	assert.Empty(t, aConn.events())
	assert.Equal(t, []string{core.EventVoiceChannelUsers}, bConn.events())
}

func TestJoinVoice_SnapshotFallsBackToSessionProfile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	room := h.channel(t, "room", domain.ChannelVoice, a, b)

	h.login(t, "s-a", a)
	bConn := h.login(t, "s-b", b)
	require.NoError(t, h.o.JoinVoice(ctx, "s-a", room))

	h.store.getUserErr = errors.New("database is locked")
	require.NoError(t, h.o.JoinVoice(ctx, "s-b", room))

	var snap core.VoiceUsersEvent
	bConn.last(t, core.EventVoiceChannelUsers, &snap)
	assert.Equal(t, []domain.Profile{{ID: a.ID, Username: "alice"}}, snap.Users)
}

func TestJoinVoice_NotAMember(t *testing.T) {
	h := newHarness(t)
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	room := h.channel(t, "room", domain.ChannelVoice, a)
	bConn := h.login(t, "s-b", b)

	assert.ErrorIs(t, h.o.JoinVoice(context.Background(), "s-b", room), ErrNotAuthorized)
	assert.Empty(t, h.o.Voice.MembersOf(room))
	assert.Empty(t, bConn.events())
}

func TestLeaveVoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	room := h.channel(t, "room", domain.ChannelVoice, a, b)

	aConn := h.login(t, "s-a", a)
	bConn := h.login(t, "s-b", b)
	require.NoError(t, h.o.JoinVoice(ctx, "s-a", room))
	require.NoError(t, h.o.JoinVoice(ctx, "s-b", room))
	aConn.reset()
	bConn.reset()

	require.NoError(t, h.o.LeaveVoice(ctx, "s-b", room))
	assert.Equal(t, []string{core.EventUserLeftVoice}, aConn.events())
	assert.Empty(t, bConn.events())
	sess, _ := h.o.Session("s-b")
	assert.Empty(t, sess.Voice())

	require.NoError(t, h.o.LeaveVoice(ctx, "s-a", room))
	assert.Empty(t, h.o.VoiceRooms(), "empty voice rooms are dropped")
}

func TestRelaySignal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.user(t, "alice")
	b := h.user(t, "bob")
	aConn := h.login(t, "s-a", a)
	bConn := h.login(t, "s-b", b)
	aConn.reset()

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)
	require.NoError(t, h.o.RelaySignal(ctx, "s-a", core.EventOffer, core.SignalPayload{TargetUserID: b.ID, Payload: offer}))

	var ev core.SignalEvent
	bConn.last(t, core.EventOffer, &ev)
	assert.Equal(t, a.ID, ev.UserID)
	assert.Equal(t, "alice", ev.Username)
	assert.JSONEq(t, string(offer), string(ev.Payload), "payload is relayed untouched")

	candidate := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.1 54321 typ host","sdpMid":"0"}`)
	require.NoError(t, h.o.RelaySignal(ctx, "s-b", core.EventICECandidate, core.SignalPayload{TargetUserID: a.ID, Payload: candidate}))
	aConn.last(t, core.EventICECandidate, &ev)
	assert.Equal(t, b.ID, ev.UserID)
	assert.Empty(t, ev.Username)
	assert.JSONEq(t, string(candidate), string(ev.Payload))

	require.NoError(t, h.o.RelaySignal(ctx, "s-a", core.EventAnswer, core.SignalPayload{TargetUserID: "offline", Payload: offer}))
	assert.Equal(t, 1, bConn.count(core.EventOffer))

	assert.ErrorIs(t, h.o.RelaySignal(ctx, "s-a", "renegotiate", core.SignalPayload{TargetUserID: b.ID}), ErrBadPayload)
	assert.ErrorIs(t, h.o.RelaySignal(ctx, "s-a", core.EventAnswer, core.SignalPayload{}), ErrBadPayload)
}
