// Package ingest is the shared network-facing task spec.md §5 describes:
// it blocks on a socket read with a short timeout, parses RTP packets,
// and dispatches them into the per-SSRC packet rings — never blocking on
// any participant's downstream state. The read-parse-dispatch shape is
// grounded on Azunyan1111-interceptor/pkg/videoframe/receiver_interceptor.go's
// BindRemoteStream: both read a datagram into a reusable buffer, parse an
// rtp.Packet, and route it to per-SSRC state keyed off pkt.SSRC. This
// package plays that role directly over a UDP socket instead of as a
// pion/interceptor RTPReaderFunc, since the engine here is not part of a
// full ICE/DTLS WebRTC session.
package ingest

import (
	"errors"
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/rtp"

	"github.com/hightechgrace/media-streamer/internal/participant"
	"github.com/hightechgrace/media-streamer/internal/ring"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Dispatcher is the subset of *participant.Registry the ingest loop needs.
type Dispatcher interface {
	Get(ssrc uint32) *participant.Participant
}

// Reader is the subset of *net.UDPConn (or any packet socket) the ingest
// loop needs; satisfied by rtpsock.Socket.RTPConn().
type Reader interface {
	SetReadDeadline(time.Time) error
	Read([]byte) (int, error)
}

// Loop runs the shared ingest task until Stop is called.
type Loop struct {
	conn       Reader
	dispatcher Dispatcher
	log        logging.LeveledLogger

	readTimeout int
	bufSize     int

	stop chan struct{}
}

// New builds an ingest Loop reading from conn and dispatching into
// dispatcher. readTimeout is the per-read deadline spec.md §5 calls "a
// short timeout (~10ms)"; bufSize bounds the largest single datagram this
// loop will accept.
func New(conn Reader, dispatcher Dispatcher, log logging.LeveledLogger, readTimeout time.Duration, bufSize int) *Loop {
	if bufSize <= 0 {
		bufSize = 65536
	}
	return &Loop{
		conn:        conn,
		dispatcher:  dispatcher,
		log:         log,
		readTimeout: int(readTimeout),
		bufSize:     bufSize,
		stop:        make(chan struct{}),
	}
}

// Run reads and dispatches packets until Stop is called. Intended to run
// in its own goroutine; it is the one shared "ingest task" of spec.md §5,
// not one-per-participant.
func (l *Loop) Run() {
	buf := make([]byte, l.bufSize)
	for {
		select {
		case <-l.stop:
			return
		default:
		}

		l.conn.SetReadDeadline(time.Now().Add(time.Duration(l.readTimeout)))
		n, err := l.conn.Read(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			select {
			case <-l.stop:
				return
			default:
			}
			l.log.Warnf("ingest: read error: %v", err)
			continue
		}

		l.dispatch(buf[:n])
	}
}

// Stop signals Run to return. Run may still be blocked inside one Read
// call for up to readTimeout before it observes the stop signal.
func (l *Loop) Stop() { close(l.stop) }

func (l *Loop) dispatch(datagram []byte) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(datagram); err != nil {
		l.log.Warnf("ingest: malformed RTP packet (%d bytes): %v", len(datagram), err)
		return
	}

	payloadCopy := make([]byte, len(pkt.Payload))
	copy(payloadCopy, pkt.Payload)

	p := l.dispatcher.Get(pkt.SSRC)
	p.IngestPacket(&ring.Packet{
		PayloadType: wire.PayloadType(pkt.PayloadType),
		Marker:      pkt.Marker,
		Timestamp:   pkt.Timestamp,
		Sequence:    pkt.SequenceNumber,
		Payload:     payloadCopy,
		RecvTime:    time.Now(),
	})
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
