package bus

import (
	"net"
	"sync"
	"time"

	"github.com/hernan-erasmo/overlord/internal/config"
	"github.com/hernan-erasmo/overlord/internal/logger"
	"github.com/hernan-erasmo/overlord/internal/metrics"
)

var pushLogger = logger.GetForComponent("bus_push")

type frame struct {
	kind    uint8
	payload []byte
}

// Pusher is the sending half of a push/pull pair. Send never blocks the hot
// path: frames queue up to the high water mark and newer frames are dropped
// once it is full. A background goroutine owns the socket and reconnects with
// a fixed backoff while the puller is away.
type Pusher struct {
	socketPath string
	queue      chan frame
	done       chan struct{}
	closeOnce  sync.Once
}

// NewPusher starts a pusher for the given ipc:// endpoint.
func NewPusher(endpoint string) (*Pusher, error) {
	path, err := SocketPath(endpoint)
	if err != nil {
		return nil, err
	}
	p := &Pusher{
		socketPath: path,
		queue:      make(chan frame, config.BusHighWaterMark),
		done:       make(chan struct{}),
	}
	go p.run()
	return p, nil
}

// Send queues one message. On a full queue the message is dropped and counted,
// never blocked on.
func (p *Pusher) Send(msg any) error {
	kind, err := KindOf(msg)
	if err != nil {
		return err
	}
	payload, err := EncodePayload(msg)
	if err != nil {
		return err
	}
	select {
	case p.queue <- frame{kind: kind, payload: payload}:
		metrics.BusMessagesSent.WithLabelValues(KindName(kind)).Inc()
		return nil
	default:
		metrics.BusMessagesDropped.WithLabelValues(KindName(kind)).Inc()
		pushLogger.Warn().Str("kind", KindName(kind)).Msg("Queue at high water mark, dropping message")
		return nil
	}
}

// Close stops the background writer. Queued frames not yet written are lost,
// which matches the freshness-over-completeness stance of the pipeline.
func (p *Pusher) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}

func (p *Pusher) run() {
	var conn net.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()
	for {
		if conn == nil {
			var err error
			conn, err = net.Dial("unix", p.socketPath)
			if err != nil {
				metrics.Reconnects.WithLabelValues("bus_push").Inc()
				pushLogger.Debug().Err(err).Str("socket", p.socketPath).Msg("Puller not reachable, retrying")
				select {
				case <-time.After(config.ReconnectDelay):
					continue
				case <-p.done:
					return
				}
			}
			pushLogger.Info().Str("socket", p.socketPath).Msg("Connected to puller")
		}
		select {
		case f := <-p.queue:
			if err := WriteFrame(conn, f.kind, f.payload); err != nil {
				pushLogger.Warn().Err(err).Msg("Write failed, reconnecting")
				conn.Close()
				conn = nil
				// The frame is stale by the time the socket recovers. Drop it.
				metrics.BusMessagesDropped.WithLabelValues(KindName(f.kind)).Inc()
			}
		case <-p.done:
			return
		}
	}
}
