package main

import (
	"sync"

	"github.com/pion/logging"

	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/display"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// logSink is a reference display.Sink with no real video output: it
// allocates a correctly-sized buffer per GetFrame and logs put_frame calls.
// A concrete display backend is out of scope (spec.md Non-goals); this
// exists so the receiver binary exercises the full C7 handoff end to end.
type logSink struct {
	log logging.LeveledLogger

	mu     sync.Mutex
	width  int
	height int
}

func newLogSink(log logging.LeveledLogger) *logSink {
	return &logSink{log: log, width: 640, height: 480}
}

func (s *logSink) GetFrame() (display.Framebuffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return make([]byte, s.width*s.height*4), nil
}

func (s *logSink) PutFrame(fb display.Framebuffer, flags display.PutFlags) error {
	buf, _ := fb.([]byte)
	s.log.Infof("display: put_frame (%d bytes, non_blocking=%v)", len(buf), flags.NonBlocking)
	return nil
}

func (s *logSink) Reconfigure(desc wire.VideoDesc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = int(desc.Width), int(desc.Height)
	s.log.Infof("display: reconfigure to %dx%d fourcc=%08x", desc.Width, desc.Height, desc.PixelFormat)
	return nil
}

func (s *logSink) Shifts() (decode.Shifts, error) { return decode.DefaultShifts, nil }

func (s *logSink) Pitch() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width * 4, nil
}

func (s *logSink) NativeCodecs() []uint32 { return []uint32{0x56595559} }

func (s *logSink) NativeInterlacing() []wire.Interlacing {
	return []wire.Interlacing{wire.Progressive}
}

func (s *logSink) VideoMode() display.TileLayout { return display.LayoutMerged }
