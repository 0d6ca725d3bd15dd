// Package ring implements the packet ring (spec.md §4.1, [MODULE] C1): a
// per-SSRC ordered store of RTP packets, timestamp-indexed. The sequence
// unwrapping and age-window rejection follow the shape of
// Azunyan1111-interceptor's pkg/videoframe/packet_buffer.go
// (VideoPacketBuffer), adapted from its fixed power-of-2 array to a map of
// timestamp groups since this engine indexes by (timestamp, sequence)
// rather than by a single rolling sequence space.
package ring

import (
	"sort"
	"time"

	"github.com/pion/logging"
)

// clockRateDefault is the RTP media clock rate assumed when converting the
// configured age window (a wall-clock duration) into RTP timestamp ticks.
// 90 kHz is the conventional RTP video clock rate (RFC 3551); the engine
// does not negotiate a different one, consistent with spec.md's Non-goal on
// RTCP-based clock synchronization.
const clockRateDefault = 90000

// group holds every packet seen for one (SSRC, timestamp) pair, i.e. the
// packets contributing to a single future FrameUnit.
type group struct {
	timestamp uint32
	firstSeen time.Time
	packets   []*Packet
	seqSeen   map[uint16]struct{}
}

func (g *group) insert(p *Packet) bool {
	if _, dup := g.seqSeen[p.Sequence]; dup {
		return false
	}
	g.seqSeen[p.Sequence] = struct{}{}
	p.unwrapped = unwrapAgainst(g.packets, p.Sequence)
	g.packets = append(g.packets, p)
	sort.Slice(g.packets, func(i, j int) bool { return g.packets[i].unwrapped < g.packets[j].unwrapped })
	return true
}

// unwrapAgainst resolves p's 16-bit sequence number against an existing,
// already-unwrapped run of packets in the same group, treating wraparound
// within ±32768 as consecutive (spec.md §4.1).
func unwrapAgainst(existing []*Packet, seq uint16) int64 {
	if len(existing) == 0 {
		return int64(seq)
	}
	ref := existing[len(existing)-1].unwrapped
	refSeq := uint16(ref)
	diff := int32(seq) - int32(refSeq)
	if diff > 32768 {
		diff -= 65536
	} else if diff < -32768 {
		diff += 65536
	}
	return ref + int64(diff)
}

// Ring is one per-SSRC ordered store of RTP packets.
type Ring struct {
	ageWindow time.Duration
	clockRate uint32
	log       logging.LeveledLogger

	groups       map[uint32]*group
	order        []uint32 // timestamps, kept sorted ascending
	hasNewest    bool
	newestStamp  uint32
	lowWatermark uint32 // timestamps <= this have been pruned; reject on reinsert
	hasWatermark bool
}

// New creates a Ring with the given rejection age window. log may be nil,
// in which case a pion default logger named "ring" is used.
func New(ageWindow time.Duration, log logging.LeveledLogger) *Ring {
	if log == nil {
		log = logging.NewDefaultLoggerFactory().NewLogger("ring")
	}
	return &Ring{
		ageWindow: ageWindow,
		clockRate: clockRateDefault,
		log:       log,
		groups:    make(map[uint32]*group),
	}
}

// Insert stores p, rejecting it if its timestamp is older than the newest
// seen timestamp by more than the configured age window, or if its
// timestamp has already been pruned via RemoveBefore. Returns false if the
// packet was rejected or was a duplicate within its group.
func (r *Ring) Insert(p *Packet) bool {
	if r.hasWatermark && tsLE(p.Timestamp, r.lowWatermark) {
		r.log.Tracef("ring: rejecting packet for pruned timestamp %d", p.Timestamp)
		return false
	}

	if r.hasNewest {
		diff := int32(p.Timestamp - r.newestStamp)
		ageTicks := int32(r.ageWindow.Seconds() * float64(r.clockRate))
		if diff < -ageTicks {
			r.log.Debugf("ring: rejecting stale packet, timestamp=%d newest=%d", p.Timestamp, r.newestStamp)
			return false
		}
		if diff > 0 {
			r.newestStamp = p.Timestamp
		}
	} else {
		r.newestStamp = p.Timestamp
		r.hasNewest = true
	}

	g, ok := r.groups[p.Timestamp]
	if !ok {
		g = &group{timestamp: p.Timestamp, firstSeen: p.RecvTime, seqSeen: make(map[uint16]struct{})}
		r.groups[p.Timestamp] = g
		r.insertOrder(p.Timestamp)
	}
	return g.insert(p)
}

func (r *Ring) insertOrder(ts uint32) {
	i := sort.Search(len(r.order), func(i int) bool { return tsLess(ts, r.order[i]) || ts == r.order[i] })
	r.order = append(r.order, 0)
	copy(r.order[i+1:], r.order[i:])
	r.order[i] = ts
}

// tsLess orders two RTP timestamps accounting for 32-bit wraparound.
func tsLess(a, b uint32) bool { return int32(a-b) < 0 }

// tsLE reports whether a is less than or equal to b under wraparound order.
func tsLE(a, b uint32) bool { return a == b || tsLess(a, b) }

// ReadyGroup is a snapshot of one timestamp group's packets, returned by
// IterateReady.
type ReadyGroup struct {
	Timestamp uint32
	FirstSeen time.Time
	Packets   []*Packet
}

// IterateReady returns every group whose release deadline (firstSeen +
// playoutDelay) has passed, in ascending timestamp order. It does not
// remove the groups; callers that consume a group should follow up with
// RemoveBefore.
func (r *Ring) IterateReady(now time.Time, playoutDelay time.Duration) []ReadyGroup {
	var ready []ReadyGroup
	for _, ts := range r.order {
		g := r.groups[ts]
		if g == nil {
			continue
		}
		if now.Sub(g.firstSeen) < playoutDelay {
			continue
		}
		ready = append(ready, ReadyGroup{Timestamp: g.timestamp, FirstSeen: g.firstSeen, Packets: append([]*Packet(nil), g.packets...)})
	}
	return ready
}

// RemoveBefore drops every group with timestamp <= ts (wraparound-aware)
// and records ts as the low watermark, so late packets for pruned groups
// are rejected by Insert rather than silently reviving a dead group.
func (r *Ring) RemoveBefore(ts uint32) {
	r.lowWatermark = ts
	r.hasWatermark = true

	kept := r.order[:0]
	for _, gts := range r.order {
		if tsLE(gts, ts) {
			delete(r.groups, gts)
			continue
		}
		kept = append(kept, gts)
	}
	r.order = kept
}

// Len reports the number of live timestamp groups held by the ring.
func (r *Ring) Len() int { return len(r.groups) }
