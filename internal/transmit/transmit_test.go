package transmit

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/hightechgrace/media-streamer/internal/bufpool"
	"github.com/hightechgrace/media-streamer/internal/frame"
	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/ring"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// TestFragmenter_RoundTripThroughAssembler exercises spec.md §8 P2: a frame
// fragmented by C8 and re-ingested through the frame assembler (C2)
// reconstructs byte-identical to the input.
func TestFragmenter_RoundTripThroughAssembler(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	buf := make([]byte, 5000)
	rnd.Read(buf)

	fr := New(1200, 1, 0xAAAA, 96)
	desc := wire.VideoDesc{Width: 1280, Height: 720, PixelFormat: 0x56595559, FPS: wire.FPS30}
	packets, err := fr.Fragment(Frame{Substream: 0, Buffer: buf, Desc: desc}, 90000)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	if len(packets) < 2 {
		t.Fatalf("expected multiple fragments for a 5000-byte buffer at 1200 MTU")
	}

	asm := frame.NewAssembler(bufpool.New(), logging.ForComponent("transmit-test"), nil)
	var unit *frame.FrameUnit
	for _, pkt := range packets {
		rp := &ring.Packet{
			PayloadType: wire.PayloadVideo,
			Marker:      pkt.Marker,
			Timestamp:   pkt.Timestamp,
			Sequence:    pkt.SequenceNumber,
			Payload:     pkt.Payload,
			RecvTime:    time.Now(),
		}
		unit, err = asm.Ingest(rp)
		if err != nil {
			t.Fatalf("Ingest: %v", err)
		}
	}

	if !unit.Complete() {
		t.Fatalf("expected frame to complete after ingesting every fragment")
	}
	if !bytes.Equal(unit.Substreams[0].Buffer, buf) {
		t.Fatalf("round-tripped buffer does not match original")
	}
}

func TestFragmenter_MarkerResendsDuplicateLastFragment(t *testing.T) {
	fr := New(1200, 5, 1, 96)
	buf := make([]byte, 100)
	packets, err := fr.Fragment(Frame{Substream: 0, Buffer: buf}, 1)
	if err != nil {
		t.Fatalf("Fragment: %v", err)
	}
	markerCount := 0
	for _, p := range packets {
		if p.Marker {
			markerCount++
		}
	}
	if markerCount != 6 {
		t.Fatalf("expected 6 marker packets (1 original + 5 resends), got %d", markerCount)
	}
}
