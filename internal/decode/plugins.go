package decode

import "github.com/hightechgrace/media-streamer/internal/wire"

// RawDecompressor is a passthrough plug-in: bytes_expected is desc.Height ×
// pitch (the output tile size) and Decompress simply copies. It exercises the full
// init/reconfigure/decompress/done lifecycle
// (original_source/src/video_decompress/*.c) without implementing a real
// codec, since concrete video codecs are out of scope for this engine.
type RawDecompressor struct {
	magic   string
	desc    wire.VideoDesc
	pitch   int
	running bool
}

func NewRawDecompressor() Decompressor { return &RawDecompressor{} }

func (d *RawDecompressor) Init(magic string) error {
	d.magic = magic
	d.running = true
	return nil
}

func (d *RawDecompressor) Reconfigure(desc wire.VideoDesc, _ Shifts, pitch int, _ uint32) (int, error) {
	d.desc = desc
	d.pitch = pitch
	return int(desc.Height) * pitch, nil
}

func (d *RawDecompressor) Decompress(in, out []byte, _ int) (Status, error) {
	n := copy(out, in)
	if n < len(in) {
		return StatusSkip, nil
	}
	return StatusOK, nil
}

func (d *RawDecompressor) Query(property string) (any, bool) {
	switch property {
	case "magic":
		return d.magic, true
	case "pitch":
		return d.pitch, true
	default:
		return nil, false
	}
}

func (d *RawDecompressor) Done() { d.running = false }

func (d *RawDecompressor) AcceptsCorruptedFrame() bool { return false }

// CheckerboardDecompressor renders a synthetic checkerboard tile instead of
// decoding its input. It tolerates incomplete input (AcceptsCorruptedFrame
// returns true), which makes it a reference decompressor for the
// corrupted-but-accepted path in spec.md §4.4 step 1. cmd/receiver
// registers it as the lower-priority fallback behind the raw passthrough.
type CheckerboardDecompressor struct {
	magic    string
	desc     wire.VideoDesc
	pitch    int
	tileSize int
}

func NewCheckerboardDecompressor() Decompressor { return &CheckerboardDecompressor{tileSize: 16} }

func (d *CheckerboardDecompressor) Init(magic string) error {
	d.magic = magic
	return nil
}

func (d *CheckerboardDecompressor) Reconfigure(desc wire.VideoDesc, _ Shifts, pitch int, _ uint32) (int, error) {
	d.desc = desc
	d.pitch = pitch
	return int(desc.Height) * pitch, nil
}

func (d *CheckerboardDecompressor) Decompress(_ []byte, out []byte, _ int) (Status, error) {
	for y := 0; y < int(d.desc.Height); y++ {
		rowStart := y * d.pitch
		if rowStart >= len(out) {
			break
		}
		rowEnd := rowStart + d.pitch
		if rowEnd > len(out) {
			rowEnd = len(out)
		}
		for x := rowStart; x < rowEnd; x++ {
			if ((x-rowStart)/d.tileSize+y/d.tileSize)%2 == 0 {
				out[x] = 0xFF
			} else {
				out[x] = 0x00
			}
		}
	}
	return StatusOK, nil
}

func (d *CheckerboardDecompressor) Query(property string) (any, bool) {
	if property == "magic" {
		return d.magic, true
	}
	return nil, false
}

func (d *CheckerboardDecompressor) Done() {}

func (d *CheckerboardDecompressor) AcceptsCorruptedFrame() bool { return true }
