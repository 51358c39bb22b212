package relay

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/daehyun-ko/chessduo/internal/protocol"
)

// Conn is one connected client. The websocket layer implements it; tests use
// in-memory fakes.
type Conn interface {
	ClientID() string
	Send(ctx context.Context, msg *protocol.Message) error
}

// Hub routes protocol events between connected clients and the room store.
// Room state lives in the store; the hub only tracks live connections.
type Hub struct {
	store  *Store
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]Conn   // clientID -> live connection
	rooms map[string]string // clientID -> room code
}

func NewHub(store *Store, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		store:  store,
		logger: logger,
		conns:  make(map[string]Conn),
		rooms:  make(map[string]string),
	}
}

// Register makes the connection reachable for move forwarding. A reconnecting
// client replaces its previous connection.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ClientID()] = c
	h.mu.Unlock()
	h.logger.Info("client_connected", zap.String("client_id", c.ClientID()))
}

// Unregister drops the connection. When both participants of an active room
// are gone the room is marked abandoned; a lone disconnect keeps the room
// joinable for reconnection.
func (h *Hub) Unregister(ctx context.Context, c Conn) {
	clientID := c.ClientID()
	h.mu.Lock()
	if cur, ok := h.conns[clientID]; ok && cur == c {
		delete(h.conns, clientID)
	}
	code := h.rooms[clientID]
	delete(h.rooms, clientID)
	h.mu.Unlock()
	h.logger.Info("client_disconnected", zap.String("client_id", clientID))

	if code == "" {
		return
	}
	meta, err := h.store.LoadMeta(ctx, code)
	if err != nil || meta == nil {
		return
	}
	if peer := meta.PeerOf(clientID); peer != "" && h.connected(peer) {
		return
	}
	if meta.State == StateActive || meta.State == StateAwaitingOpponent {
		if err := h.store.SetState(ctx, code, StateAbandoned); err != nil {
			h.logger.Warn("room_abandon_error", zap.String("room_id", code), zap.Error(err))
		} else {
			h.logger.Info("room_abandoned", zap.String("room_id", code))
		}
	}
}

func (h *Hub) connected(clientID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[clientID]
	return ok
}

func (h *Hub) peerConn(clientID string) Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[clientID]
}

func (h *Hub) trackRoom(clientID, code string) {
	h.mu.Lock()
	h.rooms[clientID] = code
	h.mu.Unlock()
}

// ActiveRooms reports the number of active rooms for the health endpoint.
func (h *Hub) ActiveRooms(ctx context.Context) (int64, error) {
	return h.store.ActiveCount(ctx)
}

// Dispatch handles one inbound client frame.
func (h *Hub) Dispatch(ctx context.Context, c Conn, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeCreateRoom:
		h.handleCreate(ctx, c)
	case protocol.TypeJoinRoom:
		var p protocol.JoinRoomPayload
		if err := msg.DecodePayload(&p); err != nil {
			h.sendError(ctx, c, "bad_payload", "malformed join_room payload")
			return
		}
		h.handleJoin(ctx, c, p.RoomID)
	case protocol.TypeMove:
		var p protocol.MovePayload
		if err := msg.DecodePayload(&p); err != nil {
			h.sendError(ctx, c, "bad_payload", "malformed move payload")
			return
		}
		h.handleMove(ctx, c, p)
	default:
		h.sendError(ctx, c, "unknown_event", "unknown event type "+msg.Type)
	}
}

func (h *Hub) handleCreate(ctx context.Context, c Conn) {
	meta, err := h.store.CreateRoom(ctx, c.ClientID())
	if err != nil {
		h.logger.Error("room_create_error", zap.String("client_id", c.ClientID()), zap.Error(err))
		h.sendError(ctx, c, "create_failed", "could not create room")
		return
	}
	h.trackRoom(c.ClientID(), meta.Code)
	h.logger.Info("room_create", zap.String("room_id", meta.Code), zap.String("client_id", c.ClientID()))
	h.reply(ctx, c, protocol.TypeRoomCreated, protocol.RoomCreatedPayload{RoomID: meta.Code})
}

func (h *Hub) handleJoin(ctx context.Context, c Conn, roomID string) {
	meta, rejoined, err := h.store.Join(ctx, roomID, c.ClientID())
	if err != nil {
		h.joinError(ctx, c, roomID, err)
		return
	}
	h.trackRoom(c.ClientID(), meta.Code)

	start := protocol.GameStartPayload{White: meta.WhiteID, Black: meta.BlackID}
	if rejoined {
		if meta.BlackID == "" {
			// The creator came back before anyone joined; there is no game
			// to start yet.
			h.logger.Info("room_rejoin_solo", zap.String("room_id", meta.Code), zap.String("client_id", c.ClientID()))
			h.reply(ctx, c, protocol.TypeRoomCreated, protocol.RoomCreatedPayload{RoomID: meta.Code})
			return
		}
		// Re-attach: hand the returning client the latest snapshot.
		start.FEN = meta.FEN
		h.logger.Info("room_rejoin", zap.String("room_id", meta.Code), zap.String("client_id", c.ClientID()))
		h.reply(ctx, c, protocol.TypeGameStart, start)
		return
	}

	h.logger.Info("room_join", zap.String("room_id", meta.Code), zap.String("client_id", c.ClientID()))
	h.reply(ctx, c, protocol.TypeGameStart, start)
	if peer := h.peerConn(meta.PeerOf(c.ClientID())); peer != nil {
		h.reply(ctx, peer, protocol.TypeGameStart, start)
	}
}

func (h *Hub) joinError(ctx context.Context, c Conn, roomID string, err error) {
	code := "join_failed"
	message := "could not join room"
	switch {
	case errors.Is(err, ErrRoomNotFound):
		code, message = "room_not_found", "room not found or expired"
	case errors.Is(err, ErrRoomFull):
		code, message = "room_full", "room is full"
	case errors.Is(err, ErrInvalidArgs):
		code, message = "bad_room_code", "malformed room code"
	}
	h.logger.Warn("room_join_error", zap.String("room_id", roomID), zap.String("client_id", c.ClientID()), zap.Error(err))
	h.sendError(ctx, c, code, message)
}

func (h *Hub) handleMove(ctx context.Context, c Conn, p protocol.MovePayload) {
	meta, err := h.store.LoadMeta(ctx, p.RoomID)
	if err != nil {
		h.logger.Error("room_load_error", zap.String("room_id", p.RoomID), zap.Error(err))
		h.sendError(ctx, c, "move_failed", "could not load room")
		return
	}
	if meta == nil {
		h.sendError(ctx, c, "room_not_found", "room not found or expired")
		return
	}
	if !meta.HasParticipant(c.ClientID()) {
		h.sendError(ctx, c, "not_in_room", ErrNotInRoom.Error())
		return
	}

	if err := h.store.UpdateFEN(ctx, p.RoomID, p.FEN); err != nil {
		h.logger.Warn("room_fen_update_error", zap.String("room_id", p.RoomID), zap.Error(err))
	}

	peerID := meta.PeerOf(c.ClientID())
	peer := h.peerConn(peerID)
	if peer == nil {
		// Peer is offline; the stored FEN covers it on rejoin.
		h.logger.Debug("move_peer_offline", zap.String("room_id", p.RoomID), zap.String("peer_id", peerID))
		return
	}
	h.logger.Info("move_forward",
		zap.String("room_id", p.RoomID),
		zap.String("uci", p.Move),
		zap.String("from", c.ClientID()),
		zap.String("to", peerID))
	h.reply(ctx, peer, protocol.TypeMoveReceived, protocol.MoveReceivedPayload{Move: p.Move, FEN: p.FEN})
}

func (h *Hub) reply(ctx context.Context, c Conn, typ string, payload any) {
	msg, err := protocol.NewMessage(typ, payload)
	if err != nil {
		h.logger.Error("reply_encode_error", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := c.Send(ctx, msg); err != nil {
		h.logger.Warn("reply_send_error", zap.String("type", typ), zap.String("client_id", c.ClientID()), zap.Error(err))
	}
}

func (h *Hub) sendError(ctx context.Context, c Conn, code, message string) {
	h.reply(ctx, c, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: message})
}
