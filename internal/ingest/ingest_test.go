package ingest

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/participant"
	"github.com/hightechgrace/media-streamer/internal/transmit"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// fakeConn yields one queued datagram per Read call, then blocks until a
// deadline passes (simulating the ~10ms idle-socket timeout) once drained.
type fakeConn struct {
	datagrams [][]byte
	idx       int
	deadline  time.Time
}

func (c *fakeConn) SetReadDeadline(t time.Time) error { c.deadline = t; return nil }

func (c *fakeConn) Read(buf []byte) (int, error) {
	if c.idx < len(c.datagrams) {
		n := copy(buf, c.datagrams[c.idx])
		c.idx++
		return n, nil
	}
	time.Sleep(time.Until(c.deadline))
	return 0, &net.OpError{Op: "read", Err: timeoutErr{}}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestLoop_DispatchesPacketsBySSRC(t *testing.T) {
	cfg := config.Default()
	cfg.PlayoutDelayIntraMS = 1
	reg := decode.NewRegistry()
	reg.RegisterDecompressor(0x56595559, 0x56595559, 0, "raw", decode.NewRawDecompressor)
	participants := participant.NewRegistry(cfg, reg, nil, nil, nil)
	defer participants.StopReaper()

	fr := transmit.New(1200, 1, 4242, 96)
	desc := wire.VideoDesc{Width: 4, Height: 4, PixelFormat: 0x56595559, FPS: wire.FPS30}
	rtpPkts, err := fr.Fragment(transmit.Frame{Substream: 0, Buffer: []byte("hello-ingest-loop"), Desc: desc}, 1000)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	var datagrams [][]byte
	for _, p := range rtpPkts {
		raw, err := (&rtp.Packet{Header: p.Header, Payload: p.Payload}).Marshal()
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		datagrams = append(datagrams, raw)
	}

	conn := &fakeConn{datagrams: datagrams}
	loop := New(conn, participants, logging.ForComponent("ingest-test"), 5*time.Millisecond, 2048)
	go loop.Run()
	defer loop.Stop()

	deadline := time.After(2 * time.Second)
	for {
		p := participants.Get(4242)
		// LastPacket is set when the participant is created, so it cannot
		// show that packets were dispatched; a frame counted as displayed
		// (no sink is configured) can only come from dispatched packets.
		if p.Counters().Displayed >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for ingest loop to dispatch packets")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

var _ io.Reader = (*fakeConn)(nil)
