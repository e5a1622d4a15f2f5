package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aFirmae/Scribe/internal/config"
)

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{
		PingInterval:   30 * time.Second,
		PongWait:       60 * time.Second,
		WriteWait:      10 * time.Second,
		MaxMessageSize: 4096,
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case data := <-c.Send:
		return data
	case <-time.After(time.Second):
		t.Fatalf("no frame delivered to %s", c.ID)
		return nil
	}
}

func TestBroadcastToRoom(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	b := NewClient("sid-b", h, nil, testWSConfig())
	h.Register(a)
	h.Register(b)
	h.JoinRoom(a, "ROOM01")
	h.JoinRoom(b, "ROOM01")

	require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]string{"type": "ping"}, ""))

	for _, c := range []*Client{a, b} {
		var m map[string]string
		require.NoError(t, json.Unmarshal(recv(t, c), &m))
		assert.Equal(t, "ping", m["type"])
	}
}

func TestBroadcastExcludesHandle(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	b := NewClient("sid-b", h, nil, testWSConfig())
	h.Register(a)
	h.Register(b)
	h.JoinRoom(a, "ROOM01")
	h.JoinRoom(b, "ROOM01")

	require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]string{"type": "ping"}, "sid-a"))

	recv(t, b)
	select {
	case data := <-a.Send:
		t.Fatalf("excluded handle received frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastScopedToRoom(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	b := NewClient("sid-b", h, nil, testWSConfig())
	h.Register(a)
	h.Register(b)
	h.JoinRoom(a, "ROOM01")
	h.JoinRoom(b, "ROOM02")

	require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]string{"type": "ping"}, ""))

	recv(t, a)
	select {
	case data := <-b.Send:
		t.Fatalf("wrong room received frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastOrderingPreserved(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	h.Register(a)
	h.JoinRoom(a, "ROOM01")

	for i := 0; i < 20; i++ {
		require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]int{"seq": i}, ""))
	}

	for i := 0; i < 20; i++ {
		var m map[string]int
		require.NoError(t, json.Unmarshal(recv(t, a), &m))
		assert.Equal(t, i, m["seq"])
	}
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	h.Register(a)
	h.JoinRoom(a, "ROOM01")
	assert.Equal(t, 1, h.RoomClientCount("ROOM01"))

	h.LeaveRoom(a, "ROOM01")
	assert.Equal(t, 0, h.RoomClientCount("ROOM01"))

	require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]string{"type": "ping"}, ""))
	select {
	case data := <-a.Send:
		t.Fatalf("departed handle received frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseRoomClearsSessions(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	h.Register(a)
	h.JoinRoom(a, "ROOM01")
	a.Session.Join("ROOM01", "alice")

	h.CloseRoom("ROOM01")

	require.Eventually(t, func() bool {
		return h.RoomClientCount("ROOM01") == 0 && !a.Session.InRoom()
	}, time.Second, 10*time.Millisecond)
}

func TestCloseRoomDrainsPendingBroadcastFirst(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	h.Register(a)
	h.JoinRoom(a, "ROOM01")
	a.Session.Join("ROOM01", "alice")

	// The closing notice is queued right before teardown; members must
	// still receive it.
	require.NoError(t, h.BroadcastToRoom("ROOM01", map[string]string{"type": "room_deleted"}, ""))
	h.CloseRoom("ROOM01")

	var m map[string]string
	require.NoError(t, json.Unmarshal(recv(t, a), &m))
	assert.Equal(t, "room_deleted", m["type"])

	require.Eventually(t, func() bool {
		return h.RoomClientCount("ROOM01") == 0 && !a.Session.InRoom()
	}, time.Second, 10*time.Millisecond)
}

func TestUnregisterDropsMembershipAndClosesSend(t *testing.T) {
	h := startHub(t)

	a := NewClient("sid-a", h, nil, testWSConfig())
	h.Register(a)
	h.JoinRoom(a, "ROOM01")

	h.Unregister(a)

	require.Eventually(t, func() bool {
		return h.RoomClientCount("ROOM01") == 0
	}, time.Second, 10*time.Millisecond)

	select {
	case _, ok := <-a.Send:
		assert.False(t, ok, "send channel should be closed")
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}

func TestSessionCurrent(t *testing.T) {
	s := &Session{}

	code, name := s.Current()
	assert.Empty(t, code)
	assert.Empty(t, name)
	assert.False(t, s.InRoom())

	s.Join("ROOM01", "alice")
	code, name = s.Current()
	assert.Equal(t, "ROOM01", code)
	assert.Equal(t, "alice", name)
	assert.True(t, s.InRoom())

	s.Clear()
	assert.False(t, s.InRoom())
}
