package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/daehyun-ko/chessduo/internal/bot"
	"github.com/daehyun-ko/chessduo/internal/game"
	"github.com/daehyun-ko/chessduo/internal/protocol"
)

var (
	ErrNotYourTurn = errors.New("not your turn")
	ErrGameOver    = errors.New("game is over")
	ErrNoRelay     = errors.New("no relay configured")
	ErrStopped     = errors.New("coordinator stopped")
)

// Relay is the outbound half of the session protocol. Implementations deliver
// inbound frames back through Coordinator.HandleRelayMessage.
type Relay interface {
	ClientID() string
	CreateRoom() error
	JoinRoom(roomID string) error
	SendMove(roomID, move, fen string) error
	// TrackRoom remembers the room code so the transport can re-announce
	// join_room after a reconnect.
	TrackRoom(roomID string)
}

// Update is pushed to the consumer after every accepted mutation or
// user-visible notice.
type Update struct {
	Session Session
	Status  game.Status
	Notice  string
}

type eventKind int

const (
	evStartLocal eventKind = iota
	evStartVsBot
	evCreateRoom
	evJoinRoom
	evHumanMove
	evBotMove
	evBotRetry
	evResign
	evRelayMessage
	evSnapshot
)

type event struct {
	kind       eventKind
	epoch      uint64
	move       game.Move
	difficulty string
	roomID     string
	msg        *protocol.Message
	reply      chan error
	snap       chan Update
}

// Coordinator is the single dispatcher: every event source (human input,
// scheduler callback, relay frame) is funneled through one loop, so no two
// mutations of the position are ever concurrent.
type Coordinator struct {
	store  *game.Store
	sched  *bot.Scheduler
	relay  Relay
	logger *zap.Logger

	events  chan event
	updates chan Update

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Owned by the run loop.
	sess  Session
	epoch uint64
}

func NewCoordinator(store *game.Store, sched *bot.Scheduler, relay Relay, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		sched:   sched,
		relay:   relay,
		logger:  logger,
		events:  make(chan event, 32),
		updates: make(chan Update, 64),
		stopCh:  make(chan struct{}),
		sess:    Session{Mode: ModeLocal},
	}
}

// Start launches the dispatch loop.
func (c *Coordinator) Start() {
	c.wg.Add(1)
	go c.run()
}

// Stop shuts the loop down and invalidates pending scheduler results.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		if c.sched != nil {
			c.sched.CancelPending()
		}
	})
	c.wg.Wait()
}

// Updates delivers session/status snapshots after each accepted mutation.
func (c *Coordinator) Updates() <-chan Update { return c.updates }

func (c *Coordinator) StartLocal() error { return c.do(event{kind: evStartLocal}) }

func (c *Coordinator) StartVsBot(difficulty string) error {
	return c.do(event{kind: evStartVsBot, difficulty: difficulty})
}

func (c *Coordinator) CreateRoom() error { return c.do(event{kind: evCreateRoom}) }

func (c *Coordinator) JoinRoom(roomID string) error {
	return c.do(event{kind: evJoinRoom, roomID: roomID})
}

// SubmitMove dispatches a human-originated move attempt.
func (c *Coordinator) SubmitMove(uci string) error {
	mv, err := game.ParseUCI(uci)
	if err != nil {
		return err
	}
	return c.do(event{kind: evHumanMove, move: mv})
}

// Resign ends the game in favor of the side not to move. Local and vs-bot
// sessions only.
func (c *Coordinator) Resign() error { return c.do(event{kind: evResign}) }

// HandleRelayMessage enqueues an inbound relay frame. Called from the
// transport's read loop; fire-and-forget.
func (c *Coordinator) HandleRelayMessage(msg *protocol.Message) {
	c.enqueue(event{kind: evRelayMessage, msg: msg})
}

// Snapshot returns the current session and projected status.
func (c *Coordinator) Snapshot() (Session, game.Status) {
	ev := event{kind: evSnapshot, snap: make(chan Update, 1)}
	select {
	case c.events <- ev:
	case <-c.stopCh:
		return Session{}, game.Status{}
	}
	select {
	case upd := <-ev.snap:
		return upd.Session, upd.Status
	case <-c.stopCh:
		return Session{}, game.Status{}
	}
}

func (c *Coordinator) do(ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case c.events <- ev:
	case <-c.stopCh:
		return ErrStopped
	}
	select {
	case err := <-ev.reply:
		return err
	case <-c.stopCh:
		return ErrStopped
	}
}

func (c *Coordinator) enqueue(ev event) {
	select {
	case c.events <- ev:
	case <-c.stopCh:
	}
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

func (c *Coordinator) dispatch(ev event) {
	var err error
	switch ev.kind {
	case evStartLocal:
		c.resetSession(Session{Mode: ModeLocal})
		c.emit("")
	case evStartVsBot:
		difficulty := ev.difficulty
		if difficulty == "" {
			difficulty = bot.DefaultPreset
		}
		c.resetSession(Session{Mode: ModeVsBot, Difficulty: difficulty})
		c.emit("")
	case evCreateRoom:
		err = c.handleCreateRoom()
	case evJoinRoom:
		err = c.handleJoinRoom(ev.roomID)
	case evHumanMove:
		err = c.handleHumanMove(ev.move)
	case evBotMove:
		c.handleBotMove(ev)
	case evBotRetry:
		if ev.epoch == c.epoch && c.sess.Mode == ModeVsBot {
			c.maybeTriggerBot()
		}
	case evResign:
		err = c.handleResign()
	case evRelayMessage:
		c.handleRelayMessage(ev.msg)
	case evSnapshot:
		ev.snap <- Update{Session: c.sess, Status: c.store.Project()}
	}
	if ev.reply != nil {
		ev.reply <- err
	}
}

// resetSession tears down the previous session: continuations scheduled for
// it (bot timer, late relay frames) are invalidated by the epoch bump.
func (c *Coordinator) resetSession(next Session) {
	c.epoch++
	if c.sched != nil {
		c.sched.CancelPending()
	}
	c.store.Reset()
	c.sess = next
}

func (c *Coordinator) handleCreateRoom() error {
	if c.relay == nil {
		return ErrNoRelay
	}
	c.resetSession(Session{Mode: ModeOnline, Phase: PhaseNoRoom})
	if err := c.relay.CreateRoom(); err != nil {
		return err
	}
	c.emit("")
	return nil
}

func (c *Coordinator) handleJoinRoom(roomID string) error {
	if c.relay == nil {
		return ErrNoRelay
	}
	c.resetSession(Session{Mode: ModeOnline, RoomID: roomID, Phase: PhaseNoRoom})
	c.relay.TrackRoom(roomID)
	if err := c.relay.JoinRoom(roomID); err != nil {
		return err
	}
	c.emit("")
	return nil
}

func (c *Coordinator) handleHumanMove(mv game.Move) error {
	if c.store.Project().Finished {
		return ErrGameOver
	}
	if !MayMove(c.sess, c.store.SideToMove()) {
		return ErrNotYourTurn
	}
	res, err := c.store.ApplyMove(mv)
	if err != nil {
		return err
	}
	c.logger.Info("session_move",
		zap.String("origin", "human"),
		zap.String("mode", c.sess.Mode.String()),
		zap.String("uci", res.UCI),
		zap.String("san", res.SAN))
	c.emit("")
	c.afterLocalMove(res)
	return nil
}

// afterLocalMove runs the mode-specific follow-up of an accepted local move:
// emit it to the peer, or hand the turn to the automated opponent.
func (c *Coordinator) afterLocalMove(res *game.MoveResult) {
	switch c.sess.Mode {
	case ModeOnline:
		if err := c.relay.SendMove(c.sess.RoomID, res.UCI, res.FEN); err != nil {
			c.logger.Error("relay_send_error", zap.String("uci", res.UCI), zap.Error(err))
		}
	case ModeVsBot:
		c.maybeTriggerBot()
	}
}

func (c *Coordinator) maybeTriggerBot() {
	if c.sched == nil || c.store.SideToMove() == HumanSide || c.store.Project().Finished {
		return
	}
	epoch := c.epoch
	fen := c.store.FEN()
	ok := c.sched.Trigger(fen, c.sess.Difficulty, func(mv game.Move) {
		c.enqueue(event{kind: evBotMove, epoch: epoch, move: mv})
	})
	if !ok {
		// A canceled computation has not drained yet; try again shortly.
		time.AfterFunc(5*time.Millisecond, func() {
			c.enqueue(event{kind: evBotRetry, epoch: epoch})
		})
	}
}

func (c *Coordinator) handleBotMove(ev event) {
	if ev.epoch != c.epoch || c.sess.Mode != ModeVsBot {
		c.logger.Debug("bot_move_dropped", zap.String("uci", ev.move.UCI()))
		return
	}
	res, err := c.store.ApplyMove(ev.move)
	if err != nil {
		// The selector only returns legal moves; a rejection here means the
		// position changed underneath it. Position stays as-is.
		c.logger.Error("bot_move_rejected", zap.String("uci", ev.move.UCI()), zap.Error(err))
		return
	}
	c.logger.Info("session_move",
		zap.String("origin", "bot"),
		zap.String("uci", res.UCI),
		zap.String("san", res.SAN))
	c.emit("")
}

func (c *Coordinator) handleResign() error {
	if c.sess.Mode == ModeOnline {
		return errors.New("resign is not supported in online games")
	}
	if c.store.Project().Finished {
		return ErrGameOver
	}
	resigning := c.store.SideToMove()
	if c.sess.Mode == ModeVsBot {
		resigning = HumanSide
	}
	c.epoch++
	if c.sched != nil {
		c.sched.CancelPending()
	}
	c.store.Resign(resigning)
	c.logger.Info("session_resign", zap.String("side", string(resigning)))
	c.emit("")
	return nil
}

func (c *Coordinator) handleRelayMessage(msg *protocol.Message) {
	if msg == nil || c.sess.Mode != ModeOnline {
		return
	}
	switch msg.Type {
	case protocol.TypeRoomCreated:
		var p protocol.RoomCreatedPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logger.Warn("relay_bad_payload", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		c.sess.RoomID = p.RoomID
		c.sess.LocalSide = game.White
		c.sess.Phase = PhaseAwaitingOpponent
		c.relay.TrackRoom(p.RoomID)
		c.logger.Info("room_created", zap.String("room_id", p.RoomID))
		c.emit("room " + p.RoomID + " created, waiting for opponent")

	case protocol.TypeGameStart:
		var p protocol.GameStartPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logger.Warn("relay_bad_payload", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		if p.Black == "" {
			// No opponent seated yet; the game has not started.
			c.logger.Warn("relay_game_start_no_opponent", zap.String("room_id", c.sess.RoomID))
			c.sess.Phase = PhaseAwaitingOpponent
			c.sess.RemoteConnected = false
			c.emit("waiting for opponent")
			return
		}
		c.sess.Phase = PhaseActive
		c.sess.RemoteConnected = true
		if c.relay.ClientID() == p.Black {
			c.sess.LocalSide = game.Black
		} else {
			c.sess.LocalSide = game.White
		}
		notice := "game started, you play " + string(c.sess.LocalSide)
		if p.FEN != "" {
			// Reconnection: the server snapshot wins over any stale local state.
			if err := c.store.LoadSnapshot(p.FEN); err != nil {
				c.logger.Error("relay_snapshot_error", zap.Error(err))
			} else {
				c.logger.Info("relay_snapshot_loaded", zap.String("fen", p.FEN))
				notice = "rejoined game, you play " + string(c.sess.LocalSide)
			}
		}
		c.emit(notice)

	case protocol.TypeMoveReceived:
		var p protocol.MoveReceivedPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logger.Warn("relay_bad_payload", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		c.handleRemoteMove(p.Move, p.FEN)

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logger.Warn("relay_bad_payload", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		c.logger.Warn("relay_error", zap.String("code", p.Code), zap.String("message", p.Message))
		c.emit("relay: " + p.Message)

	default:
		c.logger.Debug("relay_unknown_event", zap.String("type", msg.Type))
	}
}

// handleRemoteMove applies the peer's move through the normal apply path so
// capture and check effects are derived exactly as for a local move, then
// reconciles the result against the position the peer declares. Any
// divergence is corrected by trusting the declared position.
func (c *Coordinator) handleRemoteMove(move, declaredFEN string) {
	res, err := c.store.ApplyUCI(move)
	switch {
	case err != nil:
		c.logger.Warn("relay_desync_corrected",
			zap.String("reason", "apply_failed"),
			zap.String("uci", move),
			zap.Error(err))
		c.forceSnapshot(declaredFEN)
	case res.FEN != declaredFEN:
		c.logger.Warn("relay_desync_corrected",
			zap.String("reason", "fen_mismatch"),
			zap.String("uci", move),
			zap.String("local_fen", res.FEN),
			zap.String("declared_fen", declaredFEN))
		c.forceSnapshot(declaredFEN)
	default:
		c.logger.Info("session_move",
			zap.String("origin", "remote"),
			zap.String("uci", res.UCI),
			zap.String("san", res.SAN))
	}
	c.emit("")
}

func (c *Coordinator) forceSnapshot(fen string) {
	if fen == "" {
		return
	}
	if err := c.store.LoadSnapshot(fen); err != nil {
		c.logger.Error("relay_snapshot_error", zap.String("fen", fen), zap.Error(err))
	}
}

func (c *Coordinator) emit(notice string) {
	upd := Update{Session: c.sess, Status: c.store.Project(), Notice: notice}
	select {
	case c.updates <- upd:
	default:
		c.logger.Debug("update_dropped")
	}
}
