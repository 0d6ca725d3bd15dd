package participant

import (
	"testing"
	"time"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/display"
	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/ring"
	"github.com/hightechgrace/media-streamer/internal/transmit"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

type fakeSink struct{ put int }

func (f *fakeSink) GetFrame() (display.Framebuffer, error) { return make([]byte, 4096), nil }
func (f *fakeSink) PutFrame(display.Framebuffer, display.PutFlags) error {
	f.put++
	return nil
}
func (f *fakeSink) Reconfigure(wire.VideoDesc) error { return nil }
func (f *fakeSink) Shifts() (decode.Shifts, error)   { return decode.DefaultShifts, nil }
func (f *fakeSink) Pitch() (int, error)              { return 64, nil }
func (f *fakeSink) NativeCodecs() []uint32           { return nil }
func (f *fakeSink) NativeInterlacing() []wire.Interlacing {
	return []wire.Interlacing{wire.Progressive}
}
func (f *fakeSink) VideoMode() display.TileLayout { return display.LayoutMerged }

func TestParticipant_SingleFrameEndToEnd(t *testing.T) {
	cfg := config.Default()
	cfg.PlayoutDelayIntraMS = 1

	registry := decode.NewRegistry()
	registry.RegisterDecompressor(0x56595559, 0x56595559, 0, "raw", decode.NewRawDecompressor)

	sink := &fakeSink{}
	p := New(1, cfg, registry, sink, logging.ForComponent("participant-test"), nil)
	p.Start()
	defer p.Stop()

	fr := transmit.New(1200, 1, 1, 96)
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = byte(i)
	}
	desc := wire.VideoDesc{Width: 8, Height: 8, PixelFormat: 0x56595559, FPS: wire.FPS30}
	packets, err := fr.Fragment(transmit.Frame{Substream: 0, Buffer: buf, Desc: desc}, 1000)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}

	for _, pkt := range packets {
		p.IngestPacket(&ring.Packet{
			PayloadType: wire.PayloadVideo,
			Marker:      pkt.Marker,
			Timestamp:   pkt.Timestamp,
			Sequence:    pkt.SequenceNumber,
			Payload:     pkt.Payload,
			RecvTime:    time.Now(),
		})
	}

	deadline := time.After(2 * time.Second)
	for {
		if p.Counters().Displayed == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for frame to be displayed, counters=%+v", p.Counters())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if sink.put != 1 {
		t.Fatalf("expected exactly 1 put_frame call, got %d", sink.put)
	}
}
