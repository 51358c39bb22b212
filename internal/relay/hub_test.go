package relay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/daehyun-ko/chessduo/internal/protocol"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil { t.Fatalf("miniredis: %v", err) }
	t.Cleanup(mr.Close)

	opt, err := redis.ParseURL(fmt.Sprintf("redis://%s/0", mr.Addr()))
	if err != nil { t.Fatalf("redis.ParseURL: %v", err) }
	rdb := redis.NewClient(opt)
	t.Cleanup(func() { _ = rdb.Close() })

	return NewHub(NewStore(rdb, time.Hour), nil)
}

type fakeConn struct {
	id   string
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (c *fakeConn) ClientID() string { return c.id }

func (c *fakeConn) Send(_ context.Context, msg *protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) received(typ string) []*protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*protocol.Message
	for _, m := range c.msgs {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) lastOf(t *testing.T, typ string) *protocol.Message {
	t.Helper()
	msgs := c.received(typ)
	require.NotEmpty(t, msgs, "no %s frame received by %s", typ, c.id)
	return msgs[len(msgs)-1]
}

func dispatch(t *testing.T, h *Hub, c Conn, typ string, payload any) {
	t.Helper()
	msg, err := protocol.NewMessage(typ, payload)
	require.NoError(t, err)
	h.Dispatch(context.Background(), c, msg)
}

func createRoom(t *testing.T, h *Hub, c *fakeConn) string {
	t.Helper()
	h.Register(c)
	dispatch(t, h, c, protocol.TypeCreateRoom, nil)
	var created protocol.RoomCreatedPayload
	require.NoError(t, c.lastOf(t, protocol.TypeRoomCreated).DecodePayload(&created))
	require.NotEmpty(t, created.RoomID)
	return created.RoomID
}

func TestCreateAndJoinAssignsSides(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	roomID := createRoom(t, h, a)
	require.Regexp(t, `^RM-[A-Z0-9]{6}$`, roomID)

	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	var startB protocol.GameStartPayload
	require.NoError(t, b.lastOf(t, protocol.TypeGameStart).DecodePayload(&startB))
	require.Equal(t, "client-a", startB.White)
	require.Equal(t, "client-b", startB.Black)
	require.Empty(t, startB.FEN)

	// The creator is told the game started too.
	var startA protocol.GameStartPayload
	require.NoError(t, a.lastOf(t, protocol.TypeGameStart).DecodePayload(&startA))
	require.Equal(t, startB, startA)
}

func TestThirdJoinerRejected(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}
	c := &fakeConn{id: "client-c"}

	roomID := createRoom(t, h, a)
	h.Register(b)
	h.Register(c)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	dispatch(t, h, c, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	var errPayload protocol.ErrorPayload
	require.NoError(t, c.lastOf(t, protocol.TypeError).DecodePayload(&errPayload))
	require.Equal(t, "room_full", errPayload.Code)
	require.Empty(t, c.received(protocol.TypeGameStart))
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newTestHub(t)
	b := &fakeConn{id: "client-b"}
	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: "RM-NOSUCH"})

	var errPayload protocol.ErrorPayload
	require.NoError(t, b.lastOf(t, protocol.TypeError).DecodePayload(&errPayload))
	require.Equal(t, "room_not_found", errPayload.Code)
}

func TestMoveForwardedToPeer(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	roomID := createRoom(t, h, a)
	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	dispatch(t, h, a, protocol.TypeMove, protocol.MovePayload{RoomID: roomID, Move: "d2d4", FEN: "fen-after-d4"})

	var fwd protocol.MoveReceivedPayload
	require.NoError(t, b.lastOf(t, protocol.TypeMoveReceived).DecodePayload(&fwd))
	require.Equal(t, "d2d4", fwd.Move)
	require.Equal(t, "fen-after-d4", fwd.FEN)
	require.Empty(t, a.received(protocol.TypeMoveReceived), "move echoed back to sender")
}

func TestMoveFromStrangerRejected(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	x := &fakeConn{id: "client-x"}

	roomID := createRoom(t, h, a)
	h.Register(x)
	dispatch(t, h, x, protocol.TypeMove, protocol.MovePayload{RoomID: roomID, Move: "d2d4", FEN: "f"})

	var errPayload protocol.ErrorPayload
	require.NoError(t, x.lastOf(t, protocol.TypeError).DecodePayload(&errPayload))
	require.Equal(t, "not_in_room", errPayload.Code)
}

func TestRejoinReceivesSnapshot(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}

	roomID := createRoom(t, h, a)
	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
	dispatch(t, h, a, protocol.TypeMove, protocol.MovePayload{RoomID: roomID, Move: "d2d4", FEN: "fen-after-d4"})

	// B drops and comes back on a fresh connection.
	h.Unregister(context.Background(), b)
	b2 := &fakeConn{id: "client-b"}
	h.Register(b2)
	dispatch(t, h, b2, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	var start protocol.GameStartPayload
	require.NoError(t, b2.lastOf(t, protocol.TypeGameStart).DecodePayload(&start))
	require.Equal(t, "fen-after-d4", start.FEN)
	require.Equal(t, "client-a", start.White)
	require.Equal(t, "client-b", start.Black)
}

func TestSoloRejoinKeepsRoomAwaiting(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	ctx := context.Background()

	roomID := createRoom(t, h, a)
	h.Unregister(ctx, a)

	// The creator comes back before anyone joined: no opponent, no game yet.
	a2 := &fakeConn{id: "client-a"}
	h.Register(a2)
	dispatch(t, h, a2, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	var created protocol.RoomCreatedPayload
	require.NoError(t, a2.lastOf(t, protocol.TypeRoomCreated).DecodePayload(&created))
	require.Equal(t, roomID, created.RoomID)
	require.Empty(t, a2.received(protocol.TypeGameStart))

	meta, err := h.store.LoadMeta(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingOpponent, meta.State)

	// A fresh opponent can still take the black seat.
	b := &fakeConn{id: "client-b"}
	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	var start protocol.GameStartPayload
	require.NoError(t, b.lastOf(t, protocol.TypeGameStart).DecodePayload(&start))
	require.Equal(t, "client-a", start.White)
	require.Equal(t, "client-b", start.Black)
	require.NotEmpty(t, a2.received(protocol.TypeGameStart))
}

func TestRoomAbandonedWhenBothGone(t *testing.T) {
	h := newTestHub(t)
	a := &fakeConn{id: "client-a"}
	b := &fakeConn{id: "client-b"}
	ctx := context.Background()

	roomID := createRoom(t, h, a)
	h.Register(b)
	dispatch(t, h, b, protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})

	n, err := h.ActiveRooms(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	h.Unregister(ctx, a)
	meta, err := h.store.LoadMeta(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, StateActive, meta.State, "room abandoned while a peer is still connected")

	h.Unregister(ctx, b)
	meta, err = h.store.LoadMeta(ctx, roomID)
	require.NoError(t, err)
	require.Equal(t, StateAbandoned, meta.State)

	n, err = h.ActiveRooms(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)
}
