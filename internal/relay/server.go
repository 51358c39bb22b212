package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/daehyun-ko/chessduo/internal/protocol"
)

// Server exposes the relay over HTTP: /ws for the game protocol, /healthz for
// probes.
type Server struct {
	hub    *Hub
	logger *zap.Logger
	http   *http.Server
}

func NewServer(addr string, hub *Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{hub: hub, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests running over httptest.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.logger.Info("relay_listen", zap.String("addr", s.http.Addr))
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type wsConn struct {
	clientID string
	ws       *websocket.Conn
}

func (c *wsConn) ClientID() string { return c.clientID }

func (c *wsConn) Send(ctx context.Context, msg *protocol.Message) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.ws, msg)
}

// handleWS upgrades the connection and pumps frames into the hub until the
// client goes away. The cid query parameter is the client's stable identity
// across reconnects; one is minted when absent.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("cid"))
	if clientID == "" {
		clientID = uuid.NewString()
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("ws_accept_error", zap.Error(err))
		return
	}
	conn := &wsConn{clientID: clientID, ws: ws}
	s.hub.Register(conn)

	ctx := r.Context()
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.hub.Unregister(cleanupCtx, conn)
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}()

	for {
		var msg protocol.Message
		if err := wsjson.Read(ctx, ws, &msg); err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return
			}
			s.logger.Debug("ws_read_end", zap.String("client_id", clientID), zap.Error(err))
			return
		}
		s.hub.Dispatch(ctx, conn, &msg)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	active, err := s.hub.ActiveRooms(ctx)
	status := "ok"
	code := http.StatusOK
	if err != nil {
		s.logger.Warn("healthz_store_error", zap.Error(err))
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"activeRooms": active,
	})
}
