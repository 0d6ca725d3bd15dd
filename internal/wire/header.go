// Package wire implements the application-layer RTP payload header defined
// in spec.md §6: a 24-byte (video, no FEC) or 32-byte (video-with-FEC)
// header of big-endian 32-bit words, prefixing fragment bytes inside the
// RTP payload. Encode/decode mirrors the bit layout in the spec's table
// exactly; nothing here interprets pixel data.
package wire

import (
	"encoding/binary"
	"fmt"
)

// PayloadType distinguishes the two RTP payload types this engine carries.
// These are application payload type values, not RTP-level PT negotiation;
// the wire octet is carried by the RTP packet's own PayloadType field.
type PayloadType uint8

const (
	// PayloadVideo is "video without FEC".
	PayloadVideo PayloadType = iota
	// PayloadVideoLDGM is "video with FEC", header extended with (k, m, c, seed).
	PayloadVideoLDGM
)

// Interlacing is the 3-bit interlacing kind carried in word 5 bits 31..29.
type Interlacing uint8

const (
	Progressive Interlacing = iota
	UpperFieldFirst
	LowerFieldFirst
	InterlacedMerged
	Segmented
)

func (i Interlacing) String() string {
	switch i {
	case Progressive:
		return "progressive"
	case UpperFieldFirst:
		return "upper-field-first"
	case LowerFieldFirst:
		return "lower-field-first"
	case InterlacedMerged:
		return "interlaced-merged"
	case Segmented:
		return "segmented"
	default:
		return "unknown"
	}
}

// FPS is the fractional framerate carried in word 5: a 10-bit numerator, a
// 4-bit denominator, and a divisor flag (NTSC-style ÷1.001). Grounded on
// original_source/src/tv_std.c's table of named video standards.
type FPS struct {
	Numerator   uint16
	Denominator uint8
	DivisorFlag bool
}

// Named standards from the original C source's tv_std table.
var (
	FPS25    = FPS{Numerator: 25, Denominator: 1, DivisorFlag: false}
	FPS29_97 = FPS{Numerator: 30, Denominator: 1, DivisorFlag: true}
	FPS30    = FPS{Numerator: 30, Denominator: 1, DivisorFlag: false}
	FPS50    = FPS{Numerator: 50, Denominator: 1, DivisorFlag: false}
	FPS59_94 = FPS{Numerator: 60, Denominator: 1, DivisorFlag: true}
	FPS60    = FPS{Numerator: 60, Denominator: 1, DivisorFlag: false}
)

// Float returns the framerate as frames per second.
func (f FPS) Float() float64 {
	if f.Denominator == 0 {
		return 0
	}
	v := float64(f.Numerator) / float64(f.Denominator)
	if f.DivisorFlag {
		v /= 1.001
	}
	return v
}

// nonZero reports whether both the numerator and the denominator are set.
func (f FPS) nonZero() bool { return f.Numerator != 0 && f.Denominator != 0 }

// FECParams carries the LDGM parameters (k, m, c, seed) from §6's extended
// header. The two extension words follow the six base words: word 6 holds
// k<<19 | m<<6 | c and word 7 holds seed.
type FECParams struct {
	K    uint16 // 13 bits
	M    uint16 // 13 bits
	C    uint8  // 6 bits
	Seed uint32
}

const (
	headerWordsVideo = 6
	headerWordsLDGM  = 8
	wordSize         = 4

	// HeaderSizeVideo is the 24-byte header for payload type VIDEO.
	HeaderSizeVideo = headerWordsVideo * wordSize
	// HeaderSizeVideoLDGM is the 32-byte header for payload type VIDEO-LDGM.
	HeaderSizeVideoLDGM = headerWordsLDGM * wordSize
)

// Header is the decoded form of the §6 application payload header.
type Header struct {
	SubstreamIndex uint16 // 0..1023, word 0 bits 31..22
	BufferID       uint32 // 22-bit rolling counter, word 0 bits 21..0
	Offset         uint32 // word 1: byte offset of fragment within frame
	BufferLength   uint32 // word 2: total buffer length in bytes

	// First-packet-only fields (zero on subsequent packets of the same
	// frame; callers must track the descriptor separately once seen).
	Width       uint16
	Height      uint16
	FourCC      uint32
	Interlacing Interlacing
	FPS         FPS

	// FEC is non-nil only for PayloadVideoLDGM.
	FEC *FECParams
}

// Size returns the encoded size of h in bytes, depending on whether FEC is set.
func (h *Header) Size() int {
	if h.FEC != nil {
		return HeaderSizeVideoLDGM
	}
	return HeaderSizeVideo
}

// Encode writes h's wire representation to dst, which must be at least
// h.Size() bytes.
func (h *Header) Encode(dst []byte) (int, error) {
	n := h.Size()
	if len(dst) < n {
		return 0, fmt.Errorf("wire: encode: dst too small: need %d, have %d", n, len(dst))
	}
	if h.SubstreamIndex > 1023 {
		return 0, fmt.Errorf("wire: encode: substream index %d out of range", h.SubstreamIndex)
	}
	if h.BufferID >= 1<<22 {
		return 0, fmt.Errorf("wire: encode: buffer id %d out of range", h.BufferID)
	}

	word0 := uint32(h.SubstreamIndex)<<22 | (h.BufferID & 0x3FFFFF)
	binary.BigEndian.PutUint32(dst[0:4], word0)
	binary.BigEndian.PutUint32(dst[4:8], h.Offset)
	binary.BigEndian.PutUint32(dst[8:12], h.BufferLength)
	binary.BigEndian.PutUint32(dst[12:16], uint32(h.Width)<<16|uint32(h.Height))
	binary.BigEndian.PutUint32(dst[16:20], h.FourCC)

	word5 := uint32(h.Interlacing&0x7) << 29
	word5 |= uint32(h.FPS.Numerator&0x3FF) << 19
	word5 |= uint32(h.FPS.Denominator&0xF) << 15
	if h.FPS.DivisorFlag {
		word5 |= 1 << 14
	}
	binary.BigEndian.PutUint32(dst[20:24], word5)

	if h.FEC != nil {
		word6 := uint32(h.FEC.K&0x1FFF)<<19 | uint32(h.FEC.M&0x1FFF)<<6 | uint32(h.FEC.C&0x3F)
		binary.BigEndian.PutUint32(dst[24:28], word6)
		binary.BigEndian.PutUint32(dst[28:32], h.FEC.Seed)
	}

	return n, nil
}

// Decode parses a §6 header from the front of src, returning the decoded
// header and the number of bytes consumed. pt determines whether the
// extended FEC words are present.
func Decode(src []byte, pt PayloadType) (*Header, int, error) {
	minLen := HeaderSizeVideo
	if pt == PayloadVideoLDGM {
		minLen = HeaderSizeVideoLDGM
	}
	if len(src) < minLen {
		return nil, 0, fmt.Errorf("wire: decode: short header: need %d, have %d", minLen, len(src))
	}

	word0 := binary.BigEndian.Uint32(src[0:4])
	h := &Header{
		SubstreamIndex: uint16(word0 >> 22),
		BufferID:       word0 & 0x3FFFFF,
		Offset:         binary.BigEndian.Uint32(src[4:8]),
		BufferLength:   binary.BigEndian.Uint32(src[8:12]),
	}

	wh := binary.BigEndian.Uint32(src[12:16])
	h.Width = uint16(wh >> 16)
	h.Height = uint16(wh & 0xFFFF)
	h.FourCC = binary.BigEndian.Uint32(src[16:20])

	word5 := binary.BigEndian.Uint32(src[20:24])
	h.Interlacing = Interlacing((word5 >> 29) & 0x7)
	h.FPS = FPS{
		Numerator:   uint16((word5 >> 19) & 0x3FF),
		Denominator: uint8((word5 >> 15) & 0xF),
		DivisorFlag: (word5>>14)&0x1 == 1,
	}

	if pt == PayloadVideoLDGM {
		word6 := binary.BigEndian.Uint32(src[24:28])
		h.FEC = &FECParams{
			K:    uint16((word6 >> 19) & 0x1FFF),
			M:    uint16((word6 >> 6) & 0x1FFF),
			C:    uint8(word6 & 0x3F),
			Seed: binary.BigEndian.Uint32(src[28:32]),
		}
	}

	return h, minLen, nil
}

// HasDescriptor reports whether h carries the first-packet-only video
// descriptor fields (width/height/fourcc/fps/interlacing are meaningful
// only when this is true — by convention the fragmenter zeroes them on
// non-first packets, and 0x0 is not a legal frame size).
func (h *Header) HasDescriptor() bool {
	return h.Width != 0 && h.Height != 0
}

// VideoDesc is the negotiated stream descriptor of §3, derived from a
// first-packet header.
type VideoDesc struct {
	Width       uint16
	Height      uint16
	PixelFormat uint32 // fourcc
	Interlacing Interlacing
	FPS         FPS
}

// DescFromHeader extracts a VideoDesc from a first-packet header.
func DescFromHeader(h *Header) VideoDesc {
	return VideoDesc{
		Width:       h.Width,
		Height:      h.Height,
		PixelFormat: h.FourCC,
		Interlacing: h.Interlacing,
		FPS:         h.FPS,
	}
}

// Equal reports whether two descriptors describe the same video mode.
func (d VideoDesc) Equal(o VideoDesc) bool {
	return d.Width == o.Width && d.Height == o.Height &&
		d.PixelFormat == o.PixelFormat && d.Interlacing == o.Interlacing &&
		d.FPS == o.FPS
}
