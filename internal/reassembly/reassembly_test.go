package reassembly

import (
	"testing"
	"time"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/frame"
	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

func TestMailbox_PutTakeRoundTrip(t *testing.T) {
	mb := NewMailbox[int]()
	done := make(chan struct{})
	go func() {
		v, ok := mb.Take()
		if !ok || v != 42 {
			t.Errorf("expected (42, true), got (%d, %v)", v, ok)
		}
		close(done)
	}()
	if ok := mb.Put(42); !ok {
		t.Fatalf("Put failed")
	}
	<-done
}

func TestMailbox_CloseUnblocksBlockedPut(t *testing.T) {
	mb := NewMailbox[int]()
	mb.Put(1) // fills the slot

	blockedPut := make(chan bool)
	go func() { blockedPut <- mb.Put(2) }()

	mb.Close()
	if ok := <-blockedPut; ok {
		t.Fatalf("expected Put to fail after Close")
	}
}

func TestStage_CompleteSubstreamPassesThrough(t *testing.T) {
	s := New(logging.ForComponent("reassembly-test"), nil, func() bool { return false }, config.FECEnabled)
	unit := &frame.FrameUnit{
		Timestamp:              1,
		ExpectedSubstreamCount: 1,
		Substreams: map[int]*frame.SubstreamState{
			0: {ExpectedBytes: 3, ReceivedBytes: 3, Buffer: []byte{1, 2, 3}, MarkerSeen: true},
		},
		CreatedAt: time.Now(),
	}

	out, err := s.Reassemble(unit)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if len(out.Substreams[0]) != 3 {
		t.Fatalf("expected 3-byte substream buffer, got %d", len(out.Substreams[0]))
	}
}

func TestStage_IncompleteSubstreamDroppedUnlessTolerant(t *testing.T) {
	unit := &frame.FrameUnit{
		Timestamp:              1,
		ExpectedSubstreamCount: 1,
		Substreams: map[int]*frame.SubstreamState{
			0: {ExpectedBytes: 10, ReceivedBytes: 3, Buffer: []byte{1, 2, 3}},
		},
		CreatedAt: time.Now(),
	}

	strict := New(logging.ForComponent("reassembly-test"), nil, func() bool { return false }, config.FECEnabled)
	if _, err := strict.Reassemble(unit); err == nil {
		t.Fatalf("expected incomplete substream to be dropped when decompressor is not tolerant")
	}

	tolerant := New(logging.ForComponent("reassembly-test"), nil, func() bool { return true }, config.FECEnabled)
	if _, err := tolerant.Reassemble(unit); err != nil {
		t.Fatalf("expected tolerant decompressor to accept incomplete substream, got %v", err)
	}
}

func TestStage_FECDisabledSkipsRecoveryOnCompleteSubstream(t *testing.T) {
	s := New(logging.ForComponent("reassembly-test"), nil, func() bool { return false }, config.FECDisabled)
	unit := &frame.FrameUnit{
		Timestamp:              1,
		ExpectedSubstreamCount: 1,
		PayloadType:            wire.PayloadVideoLDGM,
		Substreams: map[int]*frame.SubstreamState{
			0: {ExpectedBytes: 3, ReceivedBytes: 3, Buffer: []byte{9, 9, 9}, MarkerSeen: true},
		},
		CreatedAt: time.Now(),
	}

	out, err := s.Reassemble(unit)
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if string(out.Substreams[0]) != string([]byte{9, 9, 9}) {
		t.Fatalf("expected the complete buffer to pass through unchanged with FEC disabled, got %v", out.Substreams[0])
	}
}

func TestStage_DescChangeTriggersReconfigure(t *testing.T) {
	var old, new_ wire.VideoDesc
	called := false
	s := New(logging.ForComponent("reassembly-test"), func(o, n wire.VideoDesc) {
		called = true
		old, new_ = o, n
	}, func() bool { return false }, config.FECEnabled)

	mk := func(w, h uint16) *frame.FrameUnit {
		desc := wire.VideoDesc{Width: w, Height: h}
		return &frame.FrameUnit{
			Timestamp:              1,
			ExpectedSubstreamCount: 1,
			Substreams:             map[int]*frame.SubstreamState{0: {ExpectedBytes: 1, ReceivedBytes: 1, Buffer: []byte{1}, MarkerSeen: true}},
			Desc:                   &desc,
			CreatedAt:              time.Now(),
		}
	}

	if _, err := s.Reassemble(mk(1280, 720)); err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if called {
		t.Fatalf("first descriptor must not trigger reconfigure")
	}

	if _, err := s.Reassemble(mk(1920, 1080)); err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if !called {
		t.Fatalf("expected reconfigure on descriptor change")
	}
	if old.Width != 1280 || new_.Width != 1920 {
		t.Fatalf("unexpected old/new descriptors: %+v %+v", old, new_)
	}
}
