package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	f, err := Encode(EventUserStatusChange, StatusChangeEvent{UserID: "u1", Status: "online"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"user-status-change","data":{"userId":"u1","status":"online"}}`, string(f))

	f, err = Encode(EventPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(f))
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := Decode([]byte(`{"type":"join-channel","data":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventJoinChannel, env.Type)

	var ch string
	require.NoError(t, json.Unmarshal(env.Data, &ch))
	assert.Equal(t, "c1", ch)

	_, err = Decode([]byte(`{"data":1}`))
	assert.Error(t, err)
	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestSignalPayloadStaysOpaque(t *testing.T) {
	raw := `{"targetUserId":"bob","payload":{"sdp":"v=0\r\n","type":"offer","x-extra":[1,2]}}`
	var p SignalPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	f, err := Encode(EventOffer, SignalEvent{UserID: "alice", Payload: p.Payload})
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"offer","data":{"userId":"alice","payload":{"sdp":"v=0\r\n","type":"offer","x-extra":[1,2]}}}`,
		string(f))
}
