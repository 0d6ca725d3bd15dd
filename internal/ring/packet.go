package ring

import (
	"time"

	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Packet is the immutable-after-ingestion record described in spec.md §3:
// the RTP-level fields the ring needs for ordering plus the raw payload
// (application header + user bytes), unparsed beyond the RTP layer itself.
type Packet struct {
	PayloadType wire.PayloadType
	Marker      bool
	Timestamp   uint32
	Sequence    uint16
	Payload     []byte // app header || fragment bytes
	RecvTime    time.Time

	// unwrapped is filled in by the ring on insert and reused for ordering.
	unwrapped int64
}

// PayloadLength returns the number of payload bytes (including the
// application header).
func (p *Packet) PayloadLength() int { return len(p.Payload) }
