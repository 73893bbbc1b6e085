package players

import (
	"context"
	"time"

	"github.com/centaurfirmware/centaurd/internal/board"
	"github.com/centaurfirmware/centaurd/internal/logging"
)

// RemoteSession is the narrow surface an online game provider must
// expose. The WiFi/Bluetooth transport behind it is out of scope;
// the core only ever consumes moves from the channel and pushes the
// local side's replies back.
type RemoteSession interface {
	// Moves yields the remote opponent's moves in UCI as they are
	// played. The channel is closed when the session ends.
	Moves() <-chan string
	// Send transmits the local side's committed move.
	Send(uci string) error
	Close() error
}

// OnlinePlayer relays a remote opponent. Moves stream in regardless of
// RequestMove; the request is only used to note that the game now waits
// on the remote side.
type OnlinePlayer struct {
	name    string
	color   board.Color
	session RemoteSession
	sink    MoveSink
	log     logging.Logger

	cancel context.CancelFunc
}

// NewOnline creates an online player for color fed by session.
func NewOnline(name string, color board.Color, session RemoteSession, sink MoveSink, log logging.Logger) *OnlinePlayer {
	if name == "" {
		name = "Online"
	}
	return &OnlinePlayer{name: name, color: color, session: session, sink: sink, log: log}
}

func (p *OnlinePlayer) Kind() Kind   { return Online }
func (p *OnlinePlayer) Name() string { return p.name }

// Start begins streaming the opponent's moves to the sink.
func (p *OnlinePlayer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case uci, ok := <-p.session.Moves():
				if !ok {
					if p.log != nil {
						p.log.Infof("players: online session for %s closed", p.name)
					}
					return
				}
				if p.sink != nil {
					p.sink(p.color, uci)
				}
			}
		}
	}()
	return nil
}

func (p *OnlinePlayer) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if err := p.session.Close(); err != nil && p.log != nil {
		p.log.Infof("players: closing online session: %v", err)
	}
}

// RequestMove is a no-op: the remote opponent plays on its own schedule.
func (p *OnlinePlayer) RequestMove(*board.Position, time.Duration) {}

// CancelMove is a no-op: a remote opponent cannot be aborted, and moves
// it sends later still reach the sink.
func (p *OnlinePlayer) CancelMove() {}

// NotifyLocalMove forwards the local side's committed move to the remote
// session so the opponent sees it.
func (p *OnlinePlayer) NotifyLocalMove(uci string) {
	if err := p.session.Send(uci); err != nil && p.log != nil {
		p.log.Errorf("players: sending %q to online session: %v", uci, err)
	}
}
