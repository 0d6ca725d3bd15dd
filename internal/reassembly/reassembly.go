package reassembly

import (
	"github.com/pion/logging"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/fec"
	"github.com/hightechgrace/media-streamer/internal/frame"
	"github.com/hightechgrace/media-streamer/internal/streamerr"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Outcome is what Reassemble handed the decompress stage: the processed
// substream buffers and the descriptor they were reassembled under.
type Outcome struct {
	Timestamp  uint32
	Desc       wire.VideoDesc
	Substreams map[int][]byte
}

// ReconfigureFunc is invoked when the reassembled descriptor differs from
// the currently negotiated one (spec.md §4.4 step 3).
type ReconfigureFunc func(old, new wire.VideoDesc)

// Stage implements [MODULE] C4. One Stage exists per participant.
type Stage struct {
	log          logging.LeveledLogger
	desc         wire.VideoDesc
	hasDesc      bool
	onReconfig   ReconfigureFunc
	acceptsCorru func() bool // current decompressor's accepts_corrupted_frame
	fecMode      config.FECMode
}

// New creates a reassembly Stage. acceptsCorrupted reports whether the
// currently active decompressor tolerates incomplete substream buffers
// (spec.md §4.4 step 1); it is queried fresh on every frame since the
// active decompressor can change across a reconfiguration. fecMode
// selects whether FEC recovery is attempted at all (config.Config's
// FECMode) — when disabled, LDGM substreams are passed through as-is,
// which only succeeds when nothing was actually missing.
func New(log logging.LeveledLogger, onReconfig ReconfigureFunc, acceptsCorrupted func() bool, fecMode config.FECMode) *Stage {
	return &Stage{log: log, onReconfig: onReconfig, acceptsCorru: acceptsCorrupted, fecMode: fecMode}
}

// Reassemble runs spec.md §4.4 steps 1-3 over unit, returning the Outcome to
// hand to the decompress stage, or an error if the unit must be dropped.
func (s *Stage) Reassemble(unit *frame.FrameUnit) (*Outcome, error) {
	if unit.Corrupted {
		return nil, streamerr.IncompleteFrame("reassembly: unit already marked corrupted", nil).WithTimestamp(unit.Timestamp)
	}

	out := &Outcome{Timestamp: unit.Timestamp, Substreams: make(map[int][]byte, len(unit.Substreams))}

	for idx, sub := range unit.Substreams {
		if sub.ReceivedBytes != sub.ExpectedBytes {
			if s.acceptsCorru == nil || !s.acceptsCorru() {
				return nil, streamerr.IncompleteFrame("reassembly: substream incomplete", nil).
					WithTimestamp(unit.Timestamp).WithSubstream(idx)
			}
			s.log.Warnf("reassembly: substream %d incomplete at ts=%d, decompressor tolerates it", idx, unit.Timestamp)
		}

		buf := sub.Buffer
		if unit.PayloadType == wire.PayloadVideoLDGM && s.fecMode != config.FECDisabled {
			params := sub.FEC()
			if params == nil {
				return nil, streamerr.FEC("reassembly: missing FEC params on LDGM substream", nil).
					WithTimestamp(unit.Timestamp).WithSubstream(idx)
			}
			ranges := make([]fec.Range, len(sub.Fragments))
			for i, f := range sub.Fragments {
				ranges[i] = fec.Range{Offset: f.Offset, Length: f.Length}
			}
			recovered, err := fec.Recover(buf, ranges, *params)
			if err != nil {
				return nil, streamerr.FEC("reassembly: FEC recovery failed", err).
					WithTimestamp(unit.Timestamp).WithSubstream(idx)
			}
			buf = recovered
		}
		out.Substreams[idx] = buf
	}

	if unit.Desc != nil {
		out.Desc = *unit.Desc
		if !s.hasDesc {
			s.desc = *unit.Desc
			s.hasDesc = true
		} else if !s.desc.Equal(*unit.Desc) {
			old := s.desc
			s.desc = *unit.Desc
			if s.onReconfig != nil {
				s.onReconfig(old, s.desc)
			}
		}
	} else {
		out.Desc = s.desc
	}

	return out, nil
}
