package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/daehyun-ko/chessduo/internal/bot"
	appcfg "github.com/daehyun-ko/chessduo/internal/config"
	"github.com/daehyun-ko/chessduo/internal/game"
	"github.com/daehyun-ko/chessduo/internal/obslog"
	"github.com/daehyun-ko/chessduo/internal/relayclient"
	"github.com/daehyun-ko/chessduo/internal/session"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger error: %v", err)
	}
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	sched := bot.NewScheduler(bot.NewSelector(cfg.BotRandomSeed), cfg.BotDelay(), obslog.L())

	var rc *relayclient.Client
	var relayRef session.Relay
	if cfg.RelayURL != "" {
		rc = relayclient.New(cfg.RelayURL, cfg.ReconnectMaxAttempts, obslog.L())
		relayRef = rc
	}

	coord := session.NewCoordinator(game.NewStore(), sched, relayRef, obslog.L())

	if rc != nil {
		rc.OnMessage(coord.HandleRelayMessage)
		rc.OnStateChange(func(state relayclient.State) {
			obslog.L().Info("relay_state", zap.String("state", state.String()))
		})
		if err := rc.Connect(context.Background()); err != nil {
			obslog.L().Warn("relay_connect_error", zap.Error(err))
			fmt.Println("warning: relay unreachable, online play unavailable for now")
		}
	}

	coord.Start()
	go printUpdates(coord)

	fmt.Println("chessduo — local two-player game ready")
	fmt.Println(`type "help" for commands`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !handleCommand(coord, line) {
			break
		}
	}

	coord.Stop()
	if rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = rc.Close(ctx)
	}
}

// handleCommand runs one command line; returns false to quit.
func handleCommand(coord *session.Coordinator, line string) bool {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	var err error
	switch cmd {
	case "quit", "exit":
		return false
	case "help":
		printHelp()
		return true
	case "local":
		err = coord.StartLocal()
	case "bot":
		level := ""
		if len(fields) > 1 {
			level = fields[1]
		}
		err = coord.StartVsBot(level)
	case "create":
		err = coord.CreateRoom()
	case "join":
		if len(fields) < 2 {
			fmt.Println("usage: join <room-code>")
			return true
		}
		err = coord.JoinRoom(strings.ToUpper(fields[1]))
	case "resign":
		err = coord.Resign()
	case "status":
		sess, st := coord.Snapshot()
		fmt.Printf("[%s] %s\n", sess.Mode, renderStatus(st))
	default:
		// Anything else is a move attempt in coordinate notation.
		err = coord.SubmitMove(cmd)
	}
	if err != nil {
		fmt.Println("error:", err)
	}
	return true
}

func printUpdates(coord *session.Coordinator) {
	for upd := range coord.Updates() {
		if upd.Notice != "" {
			fmt.Println("\n*", upd.Notice)
		}
		fmt.Printf("\n[%s] %s\n> ", upd.Session.Mode, renderStatus(upd.Status))
	}
}

func renderStatus(st game.Status) string {
	if st.Finished {
		switch {
		case st.Winner != "":
			return fmt.Sprintf("game over: %s wins", st.Winner)
		case st.IsStalemate:
			return "game over: draw by stalemate"
		case st.DrawKind != game.DrawNone:
			return fmt.Sprintf("game over: draw (%s)", st.DrawKind)
		default:
			return "game over: draw"
		}
	}
	line := fmt.Sprintf("%s's turn", st.Turn)
	if st.IsCheck {
		line += " (check)"
	}
	return line
}

func printHelp() {
	fmt.Println(`commands:
  local            start a two-player game on this device
  bot [level1..8]  start a game against the automated opponent
  create           create an online room (you play white)
  join <code>      join an online room by its code
  <move>           play a move in coordinate notation, e.g. e2e4 or e7e8q
  resign           resign the current game
  status           print whose turn it is
  quit             leave`)
}
