// Package display implements the display handoff (spec.md §4.7, [MODULE]
// C7): double-buffered swap with a display sink, tracked so the invariant
// "the pipeline holds exactly one checked-out framebuffer at any time"
// (spec.md §3) can be enforced and verified (spec.md §8 P4). The
// injected-callbacks shape (the decoder depends on a small Sink interface
// rather than a concrete display) follows
// zalo-moonparty/moonlight-common-go/video/stream.go's
// types.DecoderCallbacks dependency-injection pattern.
package display

import (
	"sync"

	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Framebuffer is opaque and display-owned (spec.md §3); the pipeline only
// ever holds a handle, never allocates or frees the backing memory.
type Framebuffer interface{}

// TileLayout chosen from the display's reported video-mode property
// (spec.md §4.6).
type TileLayout int

const (
	LayoutMerged TileLayout = iota
	LayoutSeparate
)

// PutFlags carries put_frame's blocking semantics (spec.md §4.7):
// NonBlocking tolerates a skipped frame (inter-frame codecs); its absence
// means blocking semantics that preserve cadence (intra-only codecs).
type PutFlags struct {
	NonBlocking bool
}

// Sink is the display-owned resource the pipeline checks frames out of and
// back into.
type Sink interface {
	GetFrame() (Framebuffer, error)
	PutFrame(fb Framebuffer, flags PutFlags) error
	Reconfigure(desc wire.VideoDesc) error
	Shifts() (decode.Shifts, error)
	Pitch() (int, error)
	NativeCodecs() []uint32
	NativeInterlacing() []wire.Interlacing
	VideoMode() TileLayout
}

// Handoff wraps a Sink, enforcing the single-checked-out-framebuffer
// invariant and exposing the buffer_swapped condition variable that
// pipeline reconfiguration (spec.md §4.6 step 1) waits on.
type Handoff struct {
	sink Sink

	mu           sync.Mutex
	swapped      *sync.Cond
	checkedOut   bool
	getCount     int64
	putCount     int64
	droppedCount int64
}

// New creates a Handoff over sink.
func New(sink Sink) *Handoff {
	h := &Handoff{sink: sink}
	h.swapped = sync.NewCond(&h.mu)
	return h
}

// GetFrame checks out a new framebuffer. Panics if a framebuffer is already
// checked out: the pipeline must PutFrame before requesting another,
// per spec.md §4.7's invariant.
func (h *Handoff) GetFrame() (Framebuffer, error) {
	h.mu.Lock()
	if h.checkedOut {
		h.mu.Unlock()
		panic("display: GetFrame called while a framebuffer is already checked out")
	}
	h.mu.Unlock()

	fb, err := h.sink.GetFrame()
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	h.checkedOut = true
	h.getCount++
	h.mu.Unlock()
	return fb, nil
}

// PutFrame returns fb to the display. On success the dropped-frame counter
// is left untouched and the next GetFrame is permitted; on failure the
// dropped-frame counter is incremented and the framebuffer is considered
// returned (no new checkout is implied, matching spec.md §4.7: "on failure
// ... no new frame is checked out").
func (h *Handoff) PutFrame(fb Framebuffer, flags PutFlags) error {
	err := h.sink.PutFrame(fb, flags)

	h.mu.Lock()
	h.checkedOut = false
	h.putCount++
	if err != nil {
		h.droppedCount++
	}
	h.swapped.Broadcast()
	h.mu.Unlock()
	return err
}

// WaitSwapped blocks until no framebuffer is checked out (spec.md §4.6 step
// 1: "Wait for the framebuffer to be swapped back from display").
func (h *Handoff) WaitSwapped() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.checkedOut {
		h.swapped.Wait()
	}
}

// NativeCodecs reports which pixel formats the sink can display without a
// block-decompress step, used by the decode-path selection of spec.md §4.6
// step 3.
func (h *Handoff) NativeCodecs() []uint32 { return h.sink.NativeCodecs() }

// VideoMode reports the sink's tile layout (merged or separate), used to
// compose multi-substream frames (spec.md §4.6).
func (h *Handoff) VideoMode() TileLayout { return h.sink.VideoMode() }

// NativeInterlacing reports the interlacing modes the sink accepts directly,
// used to select a conversion function (spec.md §4.6 step 4).
func (h *Handoff) NativeInterlacing() []wire.Interlacing { return h.sink.NativeInterlacing() }

// Counts returns (get_frame calls, put_frame calls, dropped frames), used
// to verify spec.md §8 P4 (framebuffer conservation).
func (h *Handoff) Counts() (get, put, dropped int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.getCount, h.putCount, h.droppedCount
}

// Reconfigure runs spec.md §4.6 steps 5-6 against the underlying sink:
// negotiate the new descriptor, then query shifts and pitch, falling back
// to defaults on failure.
func (h *Handoff) Reconfigure(desc wire.VideoDesc) (decode.Shifts, int, error) {
	if err := h.sink.Reconfigure(desc); err != nil {
		return decode.DefaultShifts, 0, err
	}
	shifts, err := h.sink.Shifts()
	if err != nil {
		shifts = decode.DefaultShifts
	}
	pitch, err := h.sink.Pitch()
	if err != nil {
		pitch = int(desc.Width) * 4 // auto-linesize fallback
	}
	return shifts, pitch, nil
}

// ApplyInterlaceConversion applies fn in place to each tile buffer before
// PutFrame, per spec.md §4.7's "post-decode ... applied in place" step. fn
// may be nil, in which case tiles are left untouched.
func ApplyInterlaceConversion(tiles [][]byte, fn func(tile []byte)) {
	if fn == nil {
		return
	}
	for _, t := range tiles {
		fn(t)
	}
}

// InterlaceConversion selects from the static transcode table of spec.md
// §4.6 step 4.
func InterlaceConversion(from, to wire.Interlacing) func(tile []byte) {
	switch {
	case from == wire.UpperFieldFirst && to == wire.InterlacedMerged:
		return upperToMerged
	case from == wire.InterlacedMerged && to == wire.UpperFieldFirst:
		return mergedToUpper
	default:
		return nil
	}
}

// upperToMerged and mergedToUpper are placeholder field-interleave
// transforms: concrete interlace math depends on pitch and bytes-per-pixel
// the caller already knows, so these operate byte-wise on a tile buffer
// that the caller has already sliced into the right shape.
func upperToMerged(tile []byte) { interleaveInPlace(tile) }
func mergedToUpper(tile []byte) { interleaveInPlace(tile) }

func interleaveInPlace(tile []byte) {
	for i, j := 0, len(tile)-1; i < j; i, j = i+1, j-1 {
		tile[i], tile[j] = tile[j], tile[i]
	}
}
