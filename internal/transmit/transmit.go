// Package transmit implements the transmit fragmenter (spec.md §4.8,
// [MODULE] C8), the symmetric dual of C1-C4 on the send side: it writes the
// §6 application header, fragments a frame buffer to MTU, and emits RTP
// packets. Built on github.com/pion/rtp for the RTP envelope, the same
// package the teacher and zalo-moonparty use for their receive paths
// (n0remac-robot-webrtc/webrtc/sfu.go constructs and rewrites *rtp.Packet
// values the same way).
package transmit

import (
	"github.com/pion/rtp"

	"github.com/hightechgrace/media-streamer/internal/wire"
)

// fragmentGranularity: fragment length is the largest multiple of this
// that fits MTU - 40 - header_size (spec.md §4.8).
const fragmentGranularity = 48

// rtpOverhead approximates the UDP/IP header budget subtracted from MTU
// before fragment sizing (spec.md §4.8's "MTU − 40").
const rtpOverhead = 40

// Fragmenter writes RTP packets carrying the §6 application header.
type Fragmenter struct {
	mtu           int
	markerResends int
	ssrc          uint32
	payloadType   uint8

	bufferID uint32 // 22-bit rolling counter, incremented per frame
	seq      uint16
}

// New creates a Fragmenter. markerResends is config.Config's
// MarkerRetransmitCount (default 5, spec.md §4.8).
func New(mtu int, markerResends int, ssrc uint32, rtpPayloadType uint8) *Fragmenter {
	return &Fragmenter{mtu: mtu, markerResends: markerResends, ssrc: ssrc, payloadType: rtpPayloadType}
}

// Frame describes one substream's buffer to fragment for one video frame.
type Frame struct {
	Substream int
	Buffer    []byte
	Desc      wire.VideoDesc // written into the first packet only
	FEC       *wire.FECParams
}

// Fragment writes f into a sequence of RTP packets for timestamp ts. The
// marker bit is set on the last fragment, which is additionally resent (per
// Fragmenter.markerResends) for robustness against trailing loss.
func (fr *Fragmenter) Fragment(f Frame, ts uint32) ([]*rtp.Packet, error) {
	headerSize := wire.HeaderSizeVideo
	if f.FEC != nil {
		headerSize = wire.HeaderSizeVideoLDGM
	}

	budget := fr.mtu - rtpOverhead - headerSize
	fragLen := (budget / fragmentGranularity) * fragmentGranularity
	if fragLen <= 0 {
		fragLen = fragmentGranularity
	}

	bufferID := fr.bufferID
	fr.bufferID = (fr.bufferID + 1) & 0x3FFFFF

	var packets []*rtp.Packet
	total := len(f.Buffer)
	for offset := 0; offset < total || (total == 0 && offset == 0); offset += fragLen {
		end := offset + fragLen
		if end > total {
			end = total
		}
		isFirst := offset == 0
		isLast := end == total

		hdr := &wire.Header{
			SubstreamIndex: uint16(f.Substream),
			BufferID:       bufferID,
			Offset:         uint32(offset),
			BufferLength:   uint32(total),
			FEC:            f.FEC,
		}
		if isFirst {
			hdr.Width = f.Desc.Width
			hdr.Height = f.Desc.Height
			hdr.FourCC = f.Desc.PixelFormat
			hdr.Interlacing = f.Desc.Interlacing
			hdr.FPS = f.Desc.FPS
		}

		pkt, err := fr.buildPacket(hdr, f.Buffer[offset:end], ts, isLast)
		if err != nil {
			return nil, err
		}
		packets = append(packets, pkt)

		if isLast {
			for i := 0; i < fr.markerResends; i++ {
				resend, err := fr.buildPacket(hdr, f.Buffer[offset:end], ts, true)
				if err != nil {
					return nil, err
				}
				packets = append(packets, resend)
			}
		}
		if total == 0 {
			break
		}
	}
	return packets, nil
}

func (fr *Fragmenter) buildPacket(hdr *wire.Header, body []byte, ts uint32, marker bool) (*rtp.Packet, error) {
	payload := make([]byte, hdr.Size()+len(body))
	if _, err := hdr.Encode(payload); err != nil {
		return nil, err
	}
	copy(payload[hdr.Size():], body)

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         marker,
			PayloadType:    fr.payloadType,
			SequenceNumber: fr.seq,
			Timestamp:      ts,
			SSRC:           fr.ssrc,
		},
		Payload: payload,
	}
	fr.seq++
	return pkt, nil
}
