// Command centaurd is the firmware-level controller for the sensor
// chess board: it owns the serial link to the MCU, turns lift/place and
// button events into a legal game, drives LED guidance and sound,
// persists moves, renders the e-paper status frame, and optionally
// impersonates third-party boards for external chess apps.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	goserial "github.com/daedaluz/goserial"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/boardctl"
	"github.com/centaurfirmware/centaurd/internal/bus"
	"github.com/centaurfirmware/centaurd/internal/clock"
	"github.com/centaurfirmware/centaurd/internal/demux"
	"github.com/centaurfirmware/centaurd/internal/display"
	"github.com/centaurfirmware/centaurd/internal/emulators"
	"github.com/centaurfirmware/centaurd/internal/game"
	"github.com/centaurfirmware/centaurd/internal/gameloop"
	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/persistence"
	"github.com/centaurfirmware/centaurd/internal/players"
	"github.com/centaurfirmware/centaurd/internal/previewsink"
	"github.com/centaurfirmware/centaurd/internal/recognizer"
	"github.com/centaurfirmware/centaurd/internal/serial"
	"github.com/centaurfirmware/centaurd/internal/settings"
	"github.com/centaurfirmware/centaurd/internal/spine"
	"github.com/centaurfirmware/centaurd/internal/uci"
)

var (
	device         = flag.String("device", "/dev/serial0", "MCU serial device")
	dataDir        = flag.String("data", defaultDataDir(), "data directory for the move store and FEN log")
	preview        = flag.Bool("preview", false, "open a desktop preview window instead of the e-paper sink")
	emulatorAddr   = flag.String("emulator-listen", "", "TCP address bridging external chess apps to the protocol emulators (empty = disabled)")
	engineSide     = flag.String("engine", "off", "play the engine on one side: off, white, black")
	enginePath     = flag.String("engine-path", "stockfish", "path to a UCI-speaking engine binary")
	difficulty     = flag.String("difficulty", "medium", "engine difficulty: easy, medium, hard")
	clockSeconds   = flag.Int("clock", 0, "per-side time control in seconds (0 = untimed)")
	clockIncrement = flag.Int("increment", 0, "per-move increment in seconds")
)

func defaultDataDir() string {
	dir, err := persistence.DataDir()
	if err != nil {
		return "./centaurd-data"
	}
	return dir
}

func main() {
	flag.Parse()
	log := logging.Default()

	if err := run(log); err != nil {
		log.Errorf("centaurd: %v", err)
		os.Exit(1)
	}
}

func run(log logging.Logger) error {
	cfg := settings.Default()

	// Serial port first: without it there is no board and startup is
	// fatal.
	port, err := openPortWithRetry(*device, cfg.BoardDiscoveryRetries(), log)
	if err != nil {
		return err
	}
	defer port.Close()

	parser := serial.NewParser(serial.DefaultKnownResponseTypes())
	parser.RegisterShortResponse(serial.CmdGetButtons.ExpectedResponseType, 4)
	arbiter := bus.New(port, log)
	reader := bus.NewReader(port, parser, arbiter, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sp := spine.New(ctx, log)
	go func() {
		// The reader blocks in a UART read; closing the port is what
		// actually unblocks it when the spine shuts down.
		<-sp.Context().Done()
		port.Close()
	}()
	sp.Go("serial-reader", reader.Run)

	// MCU discovery with backoff; the parser needs the learned address
	// to recognize orphaned frames.
	addr1, addr2, err := boardctl.Discover(arbiter, cfg.BoardDiscoveryRetries())
	if err != nil {
		sp.Shutdown()
		sp.Wait()
		return err
	}
	parser.SetLearnedAddress(addr1, addr2)
	log.Infof("centaurd: board discovered at %02x%02x", addr1, addr2)

	controller := boardctl.New(arbiter, log)
	if res := arbiter.RequestResponse(bus.High, serial.CmdNotifyEnable, nil, 2*time.Second, 2); res.Err != nil {
		log.Infof("centaurd: enabling notifications: %v", res.Err)
	}

	// Persistence.
	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		return fmt.Errorf("data dir: %w", err)
	}
	store, err := persistence.Open(filepath.Join(*dataDir, "games"))
	if err != nil {
		return err
	}
	defer store.Close()
	fenLog := persistence.NewFENLog(filepath.Join(*dataDir, "live.fen"))

	// Game core.
	g := game.New()
	loopRef := &loopHolder{}
	whitePlayer, blackPlayer, client := buildPlayers(loopRef, log)
	if client != nil {
		defer client.Close()
	}
	pm := players.NewManager(whitePlayer, blackPlayer, log)

	var assistant *players.AssistantManager
	if client != nil {
		assistant = players.NewAssistant(client, uci.SearchLimits{Depth: 8, MoveTime: time.Second}, nil, log)
	}

	rec := recognizer.New(g, log, func(color board.Color) bool {
		// Only a human's king lift starts the resignation gesture.
		return pm.Player(color).Kind() == players.Human
	}, func() [64]byte {
		occ, err := controller.GetState()
		if err != nil {
			return g.ToPiecePresenceState()
		}
		return occ
	})

	// Display (sink chosen by flag).
	renderer, err := display.NewRenderer(log)
	if err != nil {
		return err
	}
	var sink display.Sink = display.NullSink{}
	var wnd *previewsink.Window
	if *preview {
		wnd = previewsink.New(log)
		sink = wnd
	}
	disp := display.NewWorker(renderer, sink, log)
	sp.Go("display", disp.Run)
	if wnd != nil {
		g.OnPositionChange(func() { wnd.SetFEN(g.FEN()) })
	}

	// Emulators.
	emuCore := gameloop.NewEmuCore(g, controller, controller.GetMeta, log)
	var emuMgr *emulators.Manager
	var emuSender *emulatorSender
	if *emulatorAddr != "" {
		emuMgr, emuSender = buildEmulatorManager(emuCore, pm, log)
	}

	ck := clock.New(*clockSeconds, *clockSeconds, *clockIncrement)

	loop := gameloop.New(gameloop.Config{
		Game:       g,
		Recognizer: rec,
		IO:         controller,
		Clock:      ck,
		Players:    pm,
		Assistant:  assistant,
		Emulators:  emuMgr,
		Store:      store,
		FENLog:     fenLog,
		Display:    disp,
		Settings:   cfg,
		Eval:       evaluator(client),
		EmuCore:    emuCore,
		Log:        log,
		OnShutdown: func() {
			shutdownSequence(pm, emuMgr, controller, disp, sp, log)
		},
	})
	loopRef.loop = loop
	sp.Go("game", loop.Run)

	// Demux feeds the game loop through the bounded piece-callback
	// queue so the serial reader never blocks on a slow listener.
	dmx := demux.New(loop.PostEvent, time.Duration(cfg.InactivityTimeoutS())*time.Second)
	pktQueue := spine.NewQueue[serial.Packet](spine.DefaultQueueDepth, "piece-callback", log)
	arbiter.SetListener(func(pkt serial.Packet) { pktQueue.Push(pkt) })
	sp.Go("piece-callback", func(ctx context.Context) error {
		return pktQueue.Drain(ctx, dmx.HandlePacket)
	})
	sp.Go("watchdog", func(ctx context.Context) error {
		dmx.RunWatchdog(ctx, time.Second)
		return ctx.Err()
	})

	// Background occupancy validation: low-priority polls that always
	// yield to real commands.
	sp.Go("board-poll", func(ctx context.Context) error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if _, err := controller.GetStateLowPriority(); err != nil && err != bus.ErrSkipped && err != bus.ErrTimeout {
					log.Infof("centaurd: background poll: %v", err)
				}
			}
		}
	})

	if emuMgr != nil {
		sp.Go("emulator-transport", func(ctx context.Context) error {
			return serveEmulators(ctx, *emulatorAddr, emuMgr, emuSender, log)
		})
	}

	if err := pm.Start(); err != nil {
		sp.Shutdown()
		sp.Wait()
		return err
	}
	controller.Beep(boardctl.BeepPowerOn)
	log.Infof("centaurd: running")

	if wnd != nil {
		// Ebiten owns the main goroutine; the spine runs everything else.
		err := wnd.Run()
		sp.Shutdown()
		werr := sp.Wait()
		if err != nil {
			return err
		}
		return werr
	}
	return sp.Wait()
}

// loopHolder breaks the construction cycle between the players (whose
// move sink posts into the loop) and the loop (whose config holds the
// player manager).
type loopHolder struct{ loop *gameloop.Loop }

func (h *loopHolder) sink(color board.Color, uci string) {
	if h.loop != nil {
		h.loop.OnPlayerMove(color, uci)
	}
}

// buildPlayers starts the external engine process named by -engine-path
// and hands it to whichever side -engine requests. The board never
// searches for its own move; it drives the engine the way a GUI drives
// Stockfish and executes whatever it answers.
func buildPlayers(holder *loopHolder, log logging.Logger) (white, black players.Player, client *uci.Client) {
	white = players.NewHuman("White")
	black = players.NewHuman("Black")
	if *engineSide == "off" {
		return white, black, nil
	}

	client = uci.New(*enginePath, log)
	if err := client.Start(); err != nil {
		log.Errorf("centaurd: engine process %s unavailable, falling back to two human seats: %v", *enginePath, err)
		return white, black, nil
	}

	var limits uci.SearchLimits
	switch *difficulty {
	case "easy":
		limits = uci.DifficultySettings[uci.Easy]
	case "hard":
		limits = uci.DifficultySettings[uci.Hard]
	default:
		limits = uci.DifficultySettings[uci.Medium]
	}

	switch *engineSide {
	case "white":
		white = players.NewEngine("Engine", board.White, client, limits, holder.sink, log)
	case "black":
		black = players.NewEngine("Engine", board.Black, client, limits, holder.sink, log)
	}
	return white, black, client
}

func evaluator(client *uci.Client) gameloop.Evaluator {
	if client == nil {
		return nil
	}
	return client
}

func buildEmulatorManager(core *gameloop.EmuCore, pm *players.Manager, log logging.Logger) (*emulators.Manager, *emulatorSender) {
	sender := &emulatorSender{}
	nus := emulators.NewNUS(core, sender.send, log)
	a := emulators.NewEmulatorA(core, sender.send, log)
	b := emulators.NewEmulatorB(core, sender.send, log)

	mgr := emulators.NewManager([]emulators.Emulator{nus, a, b}, log)
	mgr.OnAttach(func(emulators.Emulator) { pm.Pause() })
	mgr.OnDetach(pm.Resume)
	return mgr, sender
}

// emulatorSender routes emulator output to whichever app connection is
// current. A single connection at a time matches the one-app-per-board
// reality of the impersonated devices.
type emulatorSender struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *emulatorSender) setConn(conn net.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *emulatorSender) send(data []byte) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	if _, err := conn.Write(data); err != nil {
		s.setConn(nil)
	}
}

// serveEmulators accepts one app connection at a time on addr and
// bridges its byte stream to the protocol manager. BLE/RFCOMM pairing
// itself is out of scope; a companion bridge terminates the radio
// and connects here.
func serveEmulators(ctx context.Context, addr string, mgr *emulators.Manager, sender *emulatorSender, log logging.Logger) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("emulator listener: %w", err)
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		log.Infof("centaurd: app connected from %s", conn.RemoteAddr())
		sender.setConn(conn)

		buf := make([]byte, 256)
		for {
			n, rerr := conn.Read(buf)
			if n > 0 {
				mgr.Feed(buf[:n])
			}
			if rerr != nil {
				break
			}
		}
		conn.Close()
		sender.setConn(nil)
		mgr.Disconnect()
		log.Infof("centaurd: app disconnected")
	}
}

func openPortWithRetry(device string, retries int, log logging.Logger) (*goserial.Port, error) {
	backoff := 500 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		p, err := serial.Port(device)
		if err == nil {
			return p, nil
		}
		lastErr = err
		log.Infof("centaurd: open %s (attempt %d/%d): %v", device, attempt+1, retries+1, err)
	}
	return nil, fmt.Errorf("serial port unavailable after %d attempt(s): %w", retries+1, lastErr)
}

// shutdownSequence runs the ordered power-off teardown: players, emulators,
// MCU sleep (loudly logged on failure — the MCU would otherwise drain
// the battery), display, then the process itself via spine cancellation.
func shutdownSequence(pm *players.Manager, emuMgr *emulators.Manager, controller *boardctl.Controller, disp *display.Worker, sp *spine.Spine, log logging.Logger) {
	log.Infof("centaurd: shutting down")

	pm.Stop()
	if emuMgr != nil {
		emuMgr.Disconnect()
	}

	controller.Beep(boardctl.BeepPowerOff)
	if err := controller.Sleep(3, time.Second); err != nil {
		st := disp.Last()
		st.Status = "board sleep FAILED"
		disp.Publish(st)
		log.Errorf("centaurd: MCU refused to sleep, battery will drain: %v", err)
		time.Sleep(2 * time.Second) // let the warning render
	}

	sp.Shutdown() // stops display (closing the sink) and everything else

	// Halt the host last. Without the privilege to do so
	// (development hosts) the process just exits.
	if err := exec.Command("poweroff").Start(); err != nil {
		log.Infof("centaurd: host poweroff unavailable: %v", err)
	}
}
