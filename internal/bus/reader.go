package bus

import (
	"bufio"
	"context"
	"io"

	"github.com/centaurfirmware/centaurd/internal/logging"
	"github.com/centaurfirmware/centaurd/internal/serial"
)

// Reader is the serial-reader thread: it owns
// nothing but its own framing buffer, blocks on the UART read, and
// delivers completed packets onto the Arbiter. It never blocks on
// anything the Arbiter itself might wait on, keeping the real-time board
// polling loop unstalled even if a downstream listener is slow (the
// piece-callback queue, not this type, absorbs that risk — see
// internal/demux).
type Reader struct {
	port    io.Reader
	parser  *serial.Parser
	arbiter *Arbiter
	log     logging.Logger
}

// NewReader builds a Reader that deframes bytes from port with parser
// and dispatches completed packets to arbiter.
func NewReader(port io.Reader, parser *serial.Parser, arbiter *Arbiter, log logging.Logger) *Reader {
	parser.OnOrphan(func(discarded []byte) {
		if log != nil {
			log.Infof("serial: discarded %d orphaned byte(s): % x", len(discarded), discarded)
		}
	})
	return &Reader{port: port, parser: parser, arbiter: arbiter, log: log}
}

// Run reads one byte at a time until ctx is cancelled or the port
// returns an error. It is meant to run on its own goroutine for the
// lifetime of the process.
func (r *Reader) Run(ctx context.Context) error {
	br := bufio.NewReaderSize(r.port, 1)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b, err := br.ReadByte()
		if err != nil {
			if ctx.Err() != nil {
				// Shutdown closes the port out from under us; that read
				// error is the normal exit, not a failure.
				return ctx.Err()
			}
			return err
		}

		if r.arbiter.InRawCapture() {
			r.arbiter.FeedRaw(b)
			continue
		}

		pkt, ok := r.parser.Feed(b)
		if !ok {
			continue
		}
		r.arbiter.Dispatch(*pkt)
	}
}
