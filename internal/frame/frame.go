// Package frame implements the frame assembler (spec.md §4.2, [MODULE] C2):
// packets are grouped by (timestamp, substream_id) extracted from the
// application header into FrameUnits. Grounded on
// Azunyan1111-interceptor/pkg/videoframe/frame_assembler.go's shape
// (VideoFrameAssembler.AssembleFrame accumulating packet payloads into a
// frame buffer) generalized from VP8's single-substream model to this
// engine's multi-substream (tiled/stereo) header fields.
package frame

import (
	"time"

	"github.com/pion/logging"

	"github.com/hightechgrace/media-streamer/internal/bufpool"
	"github.com/hightechgrace/media-streamer/internal/ring"
	"github.com/hightechgrace/media-streamer/internal/streamerr"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Fragment records one packet's contribution to a substream's assembly
// buffer, used for completeness bookkeeping (spec.md §4.2).
type Fragment struct {
	Offset uint32
	Length uint32
}

// SubstreamState is the per-substream accumulation state of one FrameUnit.
type SubstreamState struct {
	ExpectedBytes uint32
	ReceivedBytes uint32
	Fragments     []Fragment
	MarkerSeen    bool
	Buffer        []byte

	fec        *wire.FECParams
	offsetSeen map[uint32]struct{}
}

// FEC returns the FEC parameters recorded for this substream, or nil if
// none were carried (non-LDGM payload type).
func (s *SubstreamState) FEC() *wire.FECParams { return s.fec }

// Complete reports whether this substream has received every byte it
// expects and has seen its marker packet.
func (s *SubstreamState) Complete() bool {
	return s.ExpectedBytes > 0 && s.ReceivedBytes == s.ExpectedBytes && s.MarkerSeen
}

// FrameUnit is the set of packets sharing (SSRC, timestamp) across every
// substream the current video mode expects (spec.md §3).
type FrameUnit struct {
	Timestamp              uint32
	ExpectedSubstreamCount int
	Substreams             map[int]*SubstreamState
	Desc                   *wire.VideoDesc
	PayloadType            wire.PayloadType
	CreatedAt              time.Time

	// Corrupted is set when per-substream buffer_length disagrees across
	// packets of the same substream, or when FEC parameters diverge across
	// substreams within this frame (spec.md §9 Open Question 2: diverging
	// FEC parameters within a frame drop the frame rather than guessing).
	Corrupted bool
}

// Complete reports whether every substream in 0..ExpectedSubstreamCount is
// itself complete (spec.md §4.2).
func (f *FrameUnit) Complete() bool {
	if f.Corrupted {
		return false
	}
	for i := 0; i < f.ExpectedSubstreamCount; i++ {
		s, ok := f.Substreams[i]
		if !ok || !s.Complete() {
			return false
		}
	}
	return true
}

// ModeChange describes a substream-id-driven mode inference event
// (spec.md §4.2 and Open Question 1).
type ModeChange struct {
	InferredFromSubstream int
	NewExpectedCount      int
}

// Assembler groups ring packets into FrameUnits keyed by timestamp.
type Assembler struct {
	pool                   *bufpool.Pool
	log                    logging.LeveledLogger
	onModeChange           func(ModeChange)
	expectedSubstreamCount int

	units map[uint32]*FrameUnit
}

// NewAssembler creates an Assembler starting in normal (single-substream)
// mode. onModeChange, if non-nil, is invoked synchronously whenever the
// assembler infers a new mode from an out-of-range substream id.
func NewAssembler(pool *bufpool.Pool, log logging.LeveledLogger, onModeChange func(ModeChange)) *Assembler {
	return &Assembler{
		pool:                   pool,
		log:                    log,
		onModeChange:           onModeChange,
		expectedSubstreamCount: 1,
		units:                  make(map[uint32]*FrameUnit),
	}
}

// Ingest decodes p's application header and folds it into the FrameUnit for
// p.Timestamp, creating the unit if this is its first packet. It returns
// the (possibly still-incomplete) unit.
func (a *Assembler) Ingest(p *ring.Packet) (*FrameUnit, error) {
	hdr, _, err := wire.Decode(p.Payload, p.PayloadType)
	if err != nil {
		return nil, streamerr.Transient("frame: decode header", err).WithTimestamp(p.Timestamp)
	}

	if !a.maybeInferMode(int(hdr.SubstreamIndex)) {
		return nil, streamerr.Transient("frame: substream id out of range", nil).WithTimestamp(p.Timestamp).WithSubstream(int(hdr.SubstreamIndex))
	}

	unit, ok := a.units[p.Timestamp]
	if !ok {
		unit = &FrameUnit{
			Timestamp:              p.Timestamp,
			ExpectedSubstreamCount: a.expectedSubstreamCount,
			Substreams:             make(map[int]*SubstreamState),
			PayloadType:            p.PayloadType,
			CreatedAt:              p.RecvTime,
		}
		a.units[p.Timestamp] = unit
	}

	sub, ok := unit.Substreams[int(hdr.SubstreamIndex)]
	if !ok {
		sub = &SubstreamState{ExpectedBytes: hdr.BufferLength, Buffer: a.pool.Get(int(hdr.BufferLength))}
		unit.Substreams[int(hdr.SubstreamIndex)] = sub
	} else if sub.ExpectedBytes != hdr.BufferLength {
		unit.Corrupted = true
		a.log.Warnf("frame: buffer_length mismatch within substream %d at ts=%d: %d != %d",
			hdr.SubstreamIndex, p.Timestamp, sub.ExpectedBytes, hdr.BufferLength)
	}

	a.applyFEC(unit, sub, hdr)

	fragLen := uint32(len(p.Payload) - hdr.Size())
	end := hdr.Offset + fragLen
	if int(end) > len(sub.Buffer) {
		grown := a.pool.Get(int(end))
		copy(grown, sub.Buffer)
		a.pool.Put(sub.Buffer)
		sub.Buffer = grown
	}
	copy(sub.Buffer[hdr.Offset:end], p.Payload[hdr.Size():])

	// A retransmitted last-packet carries the same offset under a new
	// sequence number (spec.md §4.8); only the first copy counts toward
	// received_bytes so duplicates are idempotent (spec.md §8 P3).
	if sub.offsetSeen == nil {
		sub.offsetSeen = make(map[uint32]struct{})
	}
	if _, dup := sub.offsetSeen[hdr.Offset]; !dup {
		sub.offsetSeen[hdr.Offset] = struct{}{}
		sub.Fragments = append(sub.Fragments, Fragment{Offset: hdr.Offset, Length: fragLen})
		sub.ReceivedBytes += fragLen
	}
	if p.Marker {
		sub.MarkerSeen = true
	}

	if hdr.HasDescriptor() && unit.Desc == nil {
		desc := wire.DescFromHeader(hdr)
		unit.Desc = &desc
	}

	return unit, nil
}

// applyFEC records hdr's FEC parameters against the unit, marking it
// corrupted if a later substream disagrees with the first one seen.
func (a *Assembler) applyFEC(unit *FrameUnit, sub *SubstreamState, hdr *wire.Header) {
	if hdr.FEC == nil {
		return
	}
	sub.fec = hdr.FEC
	for _, other := range unit.Substreams {
		if other.fec == nil || other == sub {
			continue
		}
		if *other.fec != *hdr.FEC {
			unit.Corrupted = true
			a.log.Warnf("frame: FEC params diverge within frame ts=%d, dropping", unit.Timestamp)
			return
		}
	}
}

// maybeInferMode implements spec.md §4.2's mode inference: a substream id
// exceeding the current expected count infers a new mode (1 -> stereo, 3 ->
// 4K-tiled). Any other out-of-range id is dropped and logged rather than
// guessed (spec.md §9 Open Question 1). It returns false when the packet
// must be dropped.
func (a *Assembler) maybeInferMode(substream int) bool {
	if substream < a.expectedSubstreamCount {
		return true
	}
	var newCount int
	switch substream {
	case 1:
		newCount = 2
	case 3:
		newCount = 4
	default:
		a.log.Warnf("frame: substream id %d exceeds expected count %d, dropping (no inference rule)", substream, a.expectedSubstreamCount)
		return false
	}
	a.expectedSubstreamCount = newCount
	if a.onModeChange != nil {
		a.onModeChange(ModeChange{InferredFromSubstream: substream, NewExpectedCount: newCount})
	}
	return true
}

// Release drops bookkeeping for ts, returning buffers to the pool. Callers
// invoke this once a unit has been handed downstream (decoded or dropped).
func (a *Assembler) Release(ts uint32) {
	unit, ok := a.units[ts]
	if !ok {
		return
	}
	for _, sub := range unit.Substreams {
		a.pool.Put(sub.Buffer)
	}
	delete(a.units, ts)
}

// Get returns the FrameUnit for ts without creating one.
func (a *Assembler) Get(ts uint32) (*FrameUnit, bool) {
	u, ok := a.units[ts]
	return u, ok
}
