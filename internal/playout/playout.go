// Package playout implements the playout buffer (spec.md §4.3, [MODULE]
// C3): FrameUnits are held keyed by timestamp and released once their
// playout delay has elapsed, or dropped once they exceed the configured max
// age. The single-slot release/prune shape follows
// zalo-moonparty/moonlight-common-go/video/stream.go's FrameAssembly
// bookkeeping (a per-frame completion flag checked by a polling loop),
// adapted to hold multiple in-flight units keyed by timestamp rather than
// one frame at a time.
package playout

import (
	"sort"
	"time"

	"github.com/hightechgrace/media-streamer/internal/frame"
)

// Buffer holds FrameUnits keyed by timestamp for one participant.
type Buffer struct {
	playoutDelay time.Duration
	maxAge       time.Duration
	depth        int

	units map[uint32]*frame.FrameUnit
	order []uint32 // ascending by RTP timestamp, wraparound-aware

	hasEmitted  bool
	lastEmitted uint32
}

// New creates a playout Buffer. depth is the configured backlog cap
// (config.Config.BacklogMaxUnits); once exceeded, the oldest unit is
// dropped to satisfy spec.md §8 P6.
func New(playoutDelay, maxAge time.Duration, depth int) *Buffer {
	return &Buffer{
		playoutDelay: playoutDelay,
		maxAge:       maxAge,
		depth:        depth,
		units:        make(map[uint32]*frame.FrameUnit),
	}
}

// SetPlayoutDelay revises the delay, e.g. on an FPS-changed notification
// from the decoder (spec.md §4.3).
func (b *Buffer) SetPlayoutDelay(d time.Duration) { b.playoutDelay = d }

func tsLess(a, b uint32) bool { return int32(a-b) < 0 }

// Put admits unit, keyed by its timestamp. If the timestamp is already
// present the existing entry is left untouched (the frame assembler
// mutates FrameUnits in place, so re-admitting the same pointer is a
// no-op). Exceeding the configured depth drops the oldest unit.
func (b *Buffer) Put(unit *frame.FrameUnit) {
	if _, ok := b.units[unit.Timestamp]; ok {
		return
	}
	b.units[unit.Timestamp] = unit
	i := sort.Search(len(b.order), func(i int) bool { return !tsLess(b.order[i], unit.Timestamp) })
	b.order = append(b.order, 0)
	copy(b.order[i+1:], b.order[i:])
	b.order[i] = unit.Timestamp

	for b.depth > 0 && len(b.order) > b.depth {
		oldest := b.order[0]
		b.order = b.order[1:]
		delete(b.units, oldest)
	}
}

func (b *Buffer) releaseTime(unit *frame.FrameUnit) time.Time {
	return unit.CreatedAt.Add(b.playoutDelay)
}

// TryPop returns the earliest FrameUnit whose release time has passed and
// which is either complete or has at least one packet received, enforcing
// strictly increasing timestamp order per spec.md §4.3. Returns nil if
// nothing is ready.
func (b *Buffer) TryPop(now time.Time) *frame.FrameUnit {
	if len(b.order) == 0 {
		return nil
	}
	ts := b.order[0]
	unit := b.units[ts]
	if now.Before(b.releaseTime(unit)) {
		return nil
	}
	if !unit.Complete() && len(unit.Substreams) == 0 {
		return nil
	}
	b.order = b.order[1:]
	delete(b.units, ts)
	b.hasEmitted = true
	b.lastEmitted = ts
	return unit
}

// Prune drops units older than now - maxAge, returning their timestamps so
// the caller can release frame-assembler state for them.
func (b *Buffer) Prune(now time.Time) []uint32 {
	if b.maxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-b.maxAge)
	var dropped []uint32
	kept := b.order[:0]
	for _, ts := range b.order {
		unit := b.units[ts]
		if unit.CreatedAt.Before(cutoff) {
			dropped = append(dropped, ts)
			delete(b.units, ts)
			continue
		}
		kept = append(kept, ts)
	}
	b.order = kept
	return dropped
}

// Len reports the number of FrameUnits currently buffered.
func (b *Buffer) Len() int { return len(b.order) }
