package display

import (
	"errors"
	"testing"

	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

type fakeSink struct {
	failPut bool
}

func (f *fakeSink) GetFrame() (Framebuffer, error)  { return struct{}{}, nil }
func (f *fakeSink) PutFrame(Framebuffer, PutFlags) error {
	if f.failPut {
		return errors.New("put failed")
	}
	return nil
}
func (f *fakeSink) Reconfigure(wire.VideoDesc) error           { return nil }
func (f *fakeSink) Shifts() (decode.Shifts, error)             { return decode.Shifts{}, errors.New("no shifts") }
func (f *fakeSink) Pitch() (int, error)                        { return 0, errors.New("no pitch") }
func (f *fakeSink) NativeCodecs() []uint32                     { return nil }
func (f *fakeSink) NativeInterlacing() []wire.Interlacing      { return nil }
func (f *fakeSink) VideoMode() TileLayout                      { return LayoutMerged }

func TestHandoff_GetPutConservation(t *testing.T) {
	h := New(&fakeSink{})
	for i := 0; i < 5; i++ {
		fb, err := h.GetFrame()
		if err != nil {
			t.Fatalf("GetFrame: %v", err)
		}
		if err := h.PutFrame(fb, PutFlags{}); err != nil {
			t.Fatalf("PutFrame: %v", err)
		}
	}
	get, put, dropped := h.Counts()
	if get != put || dropped != 0 {
		t.Fatalf("expected get==put and no drops, got get=%d put=%d dropped=%d", get, put, dropped)
	}
}

func TestHandoff_FailedPutIncrementsDropped(t *testing.T) {
	h := New(&fakeSink{failPut: true})
	fb, _ := h.GetFrame()
	if err := h.PutFrame(fb, PutFlags{}); err == nil {
		t.Fatalf("expected PutFrame error")
	}
	_, _, dropped := h.Counts()
	if dropped != 1 {
		t.Fatalf("expected 1 dropped frame, got %d", dropped)
	}
}

func TestHandoff_ReconfigureFallsBackToDefaults(t *testing.T) {
	h := New(&fakeSink{})
	shifts, pitch, err := h.Reconfigure(wire.VideoDesc{Width: 100, Height: 50})
	if err != nil {
		t.Fatalf("Reconfigure: %v", err)
	}
	if shifts != decode.DefaultShifts {
		t.Fatalf("expected default shifts on query failure, got %+v", shifts)
	}
	if pitch != 400 {
		t.Fatalf("expected auto-linesize fallback pitch=400, got %d", pitch)
	}
}
