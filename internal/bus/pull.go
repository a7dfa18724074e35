package bus

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"

	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

var pullLogger = logger.GetForComponent("bus_pull")

// Handler consumes one decoded message. It is called from a single goroutine
// per puller so handlers see messages in arrival order per connection.
type Handler func(kind uint8, msg any)

// Puller is the receiving half of a push/pull pair. It binds the unix socket,
// accepts any number of pushers and fans their frames into the handler.
type Puller struct {
	listener net.Listener
	handler  Handler
	inbox    chan frame
	wg       sync.WaitGroup
}

// NewPuller binds the endpoint's socket, removing a stale socket file left by
// a previous run.
func NewPuller(endpoint string, handler Handler) (*Puller, error) {
	path, err := SocketPath(endpoint)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	return &Puller{
		listener: ln,
		handler:  handler,
		inbox:    make(chan frame, 256),
	}, nil
}

// Run accepts pushers and dispatches messages until ctx is done.
func (p *Puller) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		p.listener.Close()
	}()

	p.wg.Add(1)
	go p.dispatch(ctx)

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				p.wg.Wait()
				return nil
			}
			return err
		}
		p.wg.Add(1)
		go p.readLoop(ctx, conn)
	}
}

func (p *Puller) dispatch(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case f := <-p.inbox:
			msg, err := DecodePayload(f.kind, f.payload)
			if err != nil {
				metrics.BusStructuralErrors.Inc()
				pullLogger.Warn().Err(err).Uint8("kind", f.kind).Msg("Skipping undecodable frame")
				continue
			}
			metrics.BusMessagesReceived.WithLabelValues(KindName(f.kind)).Inc()
			p.handler(f.kind, msg)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Puller) readLoop(ctx context.Context, conn net.Conn) {
	defer p.wg.Done()
	defer conn.Close()
	for {
		kind, payload, err := ReadFrame(conn)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				metrics.BusStructuralErrors.Inc()
				pullLogger.Warn().Err(err).Msg("Dropping pusher connection")
			}
			return
		}
		select {
		case p.inbox <- frame{kind: kind, payload: payload}:
		case <-ctx.Done():
			return
		}
	}
}
