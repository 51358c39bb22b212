// Package relayclient is the client-side transport of the session protocol: a
// websocket connection to the relay with bounded reconnection, and an HTTP
// health probe.
package relayclient

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/daehyun-ko/chessduo/internal/protocol"
)

// State of the websocket connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

var ErrNotConnected = errors.New("relay connection is not established")

type MessageCallback func(*protocol.Message)

type StateCallback func(State)

// Client holds one logical connection to the relay. The client identity stays
// stable across reconnects, and a held room code is re-announced after every
// re-established transport so the relay can restore the pairing.
type Client struct {
	wsURL    string
	clientID string
	logger   *zap.Logger

	conn   *websocket.Conn
	state  State
	stateM sync.RWMutex

	msgCb   MessageCallback
	stateCb StateCallback

	roomM  sync.Mutex
	roomID string

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

func New(wsURL string, maxReconnectAttempts int, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		wsURL:                wsURL,
		clientID:             uuid.NewString(),
		logger:               logger,
		state:                StateDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
	}
}

// ClientID returns the stable identity sent to the relay.
func (c *Client) ClientID() string { return c.clientID }

// OnMessage sets the inbound frame handler. Set before Connect.
func (c *Client) OnMessage(cb MessageCallback) { c.msgCb = cb }

// OnStateChange sets the connection state handler. Set before Connect.
func (c *Client) OnStateChange(cb StateCallback) { c.stateCb = cb }

// State reports the current connection state.
func (c *Client) State() State {
	c.stateM.RLock()
	defer c.stateM.RUnlock()
	return c.state
}

// Connect dials the relay and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	c.stateM.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.stateM.Unlock()
		return nil
	}
	c.stateM.Unlock()

	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := c.dial(dialCtx)
	if err != nil {
		c.setState(StateFailed)
		c.scheduleReconnect()
		return err
	}

	c.conn = conn
	c.setState(StateConnected)

	c.wg.Add(2)
	go c.listen()
	go c.pingLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("cid", c.clientID)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	return conn, err
}

func (c *Client) listen() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		if c.conn == nil {
			return
		}
		var msg protocol.Message
		if err := wsjson.Read(c.rootCtx, c.conn, &msg); err != nil {
			if c.isStopping() {
				return
			}
			c.logger.Warn("relay_read_error", zap.Error(err))
			c.setState(StateDisconnected)
			_ = c.closeConn(websocket.StatusGoingAway, "reconnect")
			c.scheduleReconnect()
			return
		}
		if c.msgCb != nil {
			c.msgCb(&msg)
		}
	}
}

func (c *Client) pingLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-c.stopCh:
			return
		case <-t.C:
			if c.conn == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(c.rootCtx, 3*time.Second)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				failures++
				if failures >= 2 {
					if c.isStopping() {
						return
					}
					c.setState(StateDisconnected)
					_ = c.closeConn(websocket.StatusGoingAway, "ping failure")
					c.scheduleReconnect()
					failures = 0
				}
				continue
			}
			failures = 0
		}
	}
}

func (c *Client) scheduleReconnect() {
	if c.maxReconnectAttempts <= 0 {
		return
	}
	c.setState(StateReconnecting)

	go func() {
		for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
			select {
			case <-c.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
			conn, err := c.dial(dialCtx)
			cancel()
			if err != nil {
				c.logger.Warn("relay_reconnect_error", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}

			c.conn = conn
			c.setState(StateConnected)
			c.logger.Info("relay_reconnected", zap.Int("attempt", attempt))

			c.wg.Add(2)
			go c.listen()
			go c.pingLoop()

			c.rejoinRoom()
			return
		}
		c.setState(StateFailed)
	}()
}

// rejoinRoom re-announces the held room code on a fresh transport. The relay
// re-attaches the pairing and replies game_start with the latest snapshot.
func (c *Client) rejoinRoom() {
	c.roomM.Lock()
	roomID := c.roomID
	c.roomM.Unlock()
	if roomID == "" {
		return
	}
	if err := c.JoinRoom(roomID); err != nil {
		c.logger.Warn("relay_rejoin_error", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	c.logger.Info("relay_rejoin_sent", zap.String("room_id", roomID))
}

// TrackRoom remembers the room code for reconnection.
func (c *Client) TrackRoom(roomID string) {
	c.roomM.Lock()
	c.roomID = roomID
	c.roomM.Unlock()
}

// CreateRoom asks the relay for a fresh room.
func (c *Client) CreateRoom() error {
	return c.send(protocol.TypeCreateRoom, nil)
}

// JoinRoom asks to be paired into roomID and tracks it for reconnection.
func (c *Client) JoinRoom(roomID string) error {
	c.TrackRoom(roomID)
	return c.send(protocol.TypeJoinRoom, protocol.JoinRoomPayload{RoomID: roomID})
}

// SendMove emits a locally accepted move together with the resulting
// position.
func (c *Client) SendMove(roomID, move, fen string) error {
	return c.send(protocol.TypeMove, protocol.MovePayload{RoomID: roomID, Move: move, FEN: fen})
}

func (c *Client) send(typ string, payload any) error {
	if c.State() != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	msg, err := protocol.NewMessage(typ, payload)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.rootCtx, 10*time.Second)
	defer cancel()
	return wsjson.Write(ctx, c.conn, msg)
}

func (c *Client) setState(state State) {
	c.stateM.Lock()
	c.state = state
	c.stateM.Unlock()
	if c.stateCb != nil {
		c.stateCb(state)
	}
}

// Close tears the transport down and waits for the loops to exit.
func (c *Client) Close(ctx context.Context) error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	_ = c.closeConn(websocket.StatusNormalClosure, "close")

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if c.rootCancel != nil {
			c.rootCancel()
		}
		return nil
	}
}

func (c *Client) closeConn(code websocket.StatusCode, reason string) error {
	if c.conn == nil {
		return nil
	}
	defer func() { c.conn = nil }()
	return c.conn.Close(code, reason)
}

func (c *Client) isStopping() bool {
	select {
	case <-c.stopCh:
		return true
	default:
		return false
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}
