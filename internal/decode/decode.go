// Package decode implements the line-decoder path (spec.md §4.5, [MODULE]
// C5) and the block-decompress stage (spec.md §4.6, [MODULE] C6), plus the
// capability registries both select from. The registry-of-plugins shape
// (a capability table populated at startup, selection as a pure function of
// the request) follows spec.md §9's "Global dispatch tables" design note,
// grounded on the (from_codec, to_codec, priority) tables described in
// original_source/src/video_decompress/*.c's init/reconfigure/decompress/
// done lifecycle.
package decode

import (
	"fmt"
	"sort"

	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Status is the result of one Decompress call.
type Status int

const (
	StatusOK Status = iota
	StatusSkip
	StatusFail
)

// Shifts are the display's reported RGB channel shifts, defaulted to
// (0, 8, 16) per spec.md §4.6 step 6 when a query fails.
type Shifts struct{ R, G, B int }

// DefaultShifts is the fallback used when the display cannot answer a
// shift query.
var DefaultShifts = Shifts{R: 0, G: 8, B: 16}

// Decompressor is the plug-in contract of spec.md §4.6: one instance per
// substream tile.
type Decompressor interface {
	Init(magic string) error
	Reconfigure(desc wire.VideoDesc, shifts Shifts, pitch int, outCodec uint32) (bytesExpected int, err error)
	Decompress(in, out []byte, seq int) (Status, error)
	Query(property string) (any, bool)
	// Done tears the decompressor down (original_source/src/video_decompress/*.c's done()).
	Done()
	// AcceptsCorruptedFrame reports whether this decompressor tolerates a
	// substream buffer with received_bytes < expected_bytes (spec.md §4.4
	// step 1).
	AcceptsCorruptedFrame() bool
}

// decompressorEntry is one row of the two-level priority table keyed by
// (from_codec, to_codec).
type decompressorEntry struct {
	magic    string
	priority int
	factory  func() Decompressor
}

// Registry holds the decompressor and line-decoder capability tables.
type Registry struct {
	decompressors map[codecPair][]decompressorEntry
	lineDecoders  map[codecPair][]LineDecoderFunc
}

type codecPair struct{ from, to uint32 }

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{
		decompressors: make(map[codecPair][]decompressorEntry),
		lineDecoders:  make(map[codecPair][]LineDecoderFunc),
	}
}

// RegisterDecompressor adds a (from, to) entry. Entries are tried in
// ascending priority order; lower priority value wins first.
func (r *Registry) RegisterDecompressor(from, to uint32, priority int, magic string, factory func() Decompressor) {
	key := codecPair{from, to}
	r.decompressors[key] = append(r.decompressors[key], decompressorEntry{magic: magic, priority: priority, factory: factory})
	sort.Slice(r.decompressors[key], func(i, j int) bool {
		return r.decompressors[key][i].priority < r.decompressors[key][j].priority
	})
}

// SelectDecompressor tries each registered (from, to) entry in priority
// order, calling Init and returning the first one that succeeds (spec.md
// §4.6: "on init failure, the next priority is tried").
func (r *Registry) SelectDecompressor(from, to uint32) (Decompressor, error) {
	entries := r.decompressors[codecPair{from, to}]
	var lastErr error
	for _, e := range entries {
		d := e.factory()
		if err := d.Init(e.magic); err != nil {
			lastErr = err
			continue
		}
		return d, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("decode: no decompressor registered for %d -> %d", from, to)
	}
	return nil, lastErr
}

// LineDecoderFunc copies one line of source pixels into the destination
// buffer, applying the display's channel shifts. Bounded to one line at a
// time to respect destination pitch (spec.md §4.5).
type LineDecoderFunc func(dst, src []byte, shifts Shifts)

// RegisterLineDecoder adds a line-transform in declaration order for
// (from, to); ties are broken by registration order, per spec.md §4.5.
func (r *Registry) RegisterLineDecoder(from, to uint32, fn LineDecoderFunc) {
	key := codecPair{from, to}
	r.lineDecoders[key] = append(r.lineDecoders[key], fn)
}

// SelectLineDecoder returns the native (no-op) copy when from == to,
// otherwise the first registered (from, to) line-transform, per spec.md
// §4.5's tie-break rule (native beats line-transform; among line-transforms,
// declaration order wins).
func (r *Registry) SelectLineDecoder(from, to uint32) (LineDecoderFunc, bool) {
	if from == to {
		return NativeLineCopy, true
	}
	fns := r.lineDecoders[codecPair{from, to}]
	if len(fns) == 0 {
		return nil, false
	}
	return fns[0], true
}

// NativeLineCopy is the no-op line transform used when no format
// conversion is needed: the C5 native path, and the placement copy that
// composes an already-decompressed C6 tile onto its framebuffer offset.
func NativeLineCopy(dst, src []byte, _ Shifts) { copy(dst, src) }

// TileOffsets is the per-tile geometry computed during reconfiguration
// (spec.md §4.6 step 7).
type TileOffsets struct {
	BaseOffset          int
	SourceLinesize      int
	DestinationLinesize int
	DestinationPitch    int
	SourceBPP           int
	DestinationBPP      int
}

// ComputeTileOffsets derives per-tile geometry for tile (x, y) in a pixel
// grid of tileW x tileH tiles, for the merged layout described in spec.md
// §4.6 ("(y × tile_h × pitch) + x × linesize(tile_w)").
func ComputeTileOffsets(x, y, tileW, tileH, pitch, srcBPP, dstBPP int) TileOffsets {
	linesize := tileW * dstBPP
	return TileOffsets{
		BaseOffset:          y*tileH*pitch + x*linesize,
		SourceLinesize:      tileW * srcBPP,
		DestinationLinesize: linesize,
		DestinationPitch:    pitch,
		SourceBPP:           srcBPP,
		DestinationBPP:      dstBPP,
	}
}

// CopyLines decodes one tile by copying src line-by-line into dst at the
// geometry described by off, applying fn to each line. Bounded to one line
// at a time so destination pitch is always respected (spec.md §4.5).
func CopyLines(dst, src []byte, off TileOffsets, lines int, fn LineDecoderFunc, shifts Shifts) {
	for line := 0; line < lines; line++ {
		srcStart := line * off.SourceLinesize
		srcEnd := srcStart + off.SourceLinesize
		if srcEnd > len(src) {
			break
		}
		dstStart := off.BaseOffset + line*off.DestinationPitch
		dstEnd := dstStart + off.DestinationLinesize
		if dstEnd > len(dst) {
			break
		}
		fn(dst[dstStart:dstEnd], src[srcStart:srcEnd], shifts)
	}
}
