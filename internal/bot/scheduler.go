package bot

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/daehyun-ko/chessduo/internal/game"
)

const (
	stateIdle int32 = iota
	stateComputing
)

// DefaultThinkDelay paces bot replies so they do not land instantly.
const DefaultThinkDelay = 500 * time.Millisecond

// Scheduler runs at most one bot-move computation at a time. Trigger while a
// computation is in flight is a no-op; the scheduler returns to idle after
// every computation regardless of result.
type Scheduler struct {
	selector *Selector
	delay    time.Duration
	logger   *zap.Logger

	state atomic.Int32
	wg    sync.WaitGroup

	mu       sync.Mutex
	cancelCh chan struct{}
}

func NewScheduler(selector *Selector, delay time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay <= 0 {
		delay = DefaultThinkDelay
	}
	return &Scheduler{selector: selector, delay: delay, logger: logger}
}

// Trigger schedules one computation against fen. deliver is invoked from the
// scheduler's goroutine once a move is chosen; callers are expected to enqueue
// it onto their own dispatch loop. Returns false when a computation is already
// in flight.
func (s *Scheduler) Trigger(fen, difficulty string, deliver func(mv game.Move)) bool {
	if !s.state.CompareAndSwap(stateIdle, stateComputing) {
		s.logger.Debug("bot_trigger_ignored", zap.String("reason", "computing"))
		return false
	}
	cancel := make(chan struct{})
	s.mu.Lock()
	s.cancelCh = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			if s.cancelCh == cancel {
				s.cancelCh = nil
			}
			s.mu.Unlock()
			s.state.Store(stateIdle)
		}()

		select {
		case <-cancel:
			s.logger.Debug("bot_result_dropped", zap.String("reason", "canceled"))
			return
		case <-time.After(s.delay):
		}

		mv, err := s.selector.SelectMove(fen, difficulty)
		if err != nil {
			s.logger.Error("bot_select_error", zap.Error(err))
			return
		}
		if mv == nil {
			// Terminal position, nothing to play.
			return
		}
		select {
		case <-cancel:
			s.logger.Debug("bot_result_dropped", zap.String("reason", "canceled"), zap.String("move", mv.UCI()))
			return
		default:
		}
		deliver(*mv)
	}()
	return true
}

// Computing reports whether a computation is in flight.
func (s *Scheduler) Computing() bool { return s.state.Load() == stateComputing }

// CancelPending aborts any in-flight computation. A computation waiting out
// its think delay is interrupted and the scheduler returns to idle right away;
// a result already computed is dropped.
func (s *Scheduler) CancelPending() {
	s.mu.Lock()
	if s.cancelCh != nil {
		close(s.cancelCh)
		s.cancelCh = nil
	}
	s.mu.Unlock()
}

// Wait blocks until in-flight computations finish. Used on shutdown and in
// tests.
func (s *Scheduler) Wait() { s.wg.Wait() }
