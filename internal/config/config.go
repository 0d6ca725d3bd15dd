// Package config holds the streaming engine's configuration as a single
// data record, constructed by cmd/ entrypoints and passed down to every
// component that needs it.
package config

import "time"

// FECMode selects whether the reassembly stage attempts LDGM-style FEC
// recovery on substreams carried with payload type VIDEO-LDGM.
type FECMode int

const (
	// FECDisabled never invokes FEC recovery; a video-with-FEC substream
	// with any fragment missing is dropped as incomplete unless the active
	// decompressor accepts corrupted frames.
	FECDisabled FECMode = iota
	// FECEnabled invokes FEC recovery per §4.4 step 2.
	FECEnabled
)

// Config is the single configuration record described in spec.md §9.
type Config struct {
	// PlayoutDelayIntraMS is the initial playout delay estimate for
	// intra-only codecs, in milliseconds (default 40).
	PlayoutDelayIntraMS int

	// PlayoutDelayInterMultiplier scales the frame period to derive the
	// initial playout delay estimate for inter-frame codecs (default 2.2).
	PlayoutDelayInterMultiplier float64

	// FECMode selects FEC recovery behavior.
	FECMode FECMode

	// MTU bounds the transmit fragmenter's packet size (§4.8).
	MTU int

	// RMemTarget is the target receive-socket buffer size as a multiple of
	// the largest observed frame (§6), e.g. 1.1.
	RMemTarget float64

	// RMemCap bounds how large the receive buffer is allowed to grow.
	RMemCap int

	// BacklogMaxUnits bounds the playout buffer's depth (P6).
	BacklogMaxUnits int

	// MaxFrameAgeMS bounds how long a FrameUnit may sit in the playout
	// buffer before prune() discards it.
	MaxFrameAgeMS int

	// MarkerRetransmitCount is how many times the transmitter resends the
	// last-fragment header per frame (§4.8, default 5).
	MarkerRetransmitCount int

	// ParticipantTimeout is how long a participant may go without receiving
	// a packet before the registry reaps it (§12.1 of SPEC_FULL.md).
	ParticipantTimeout time.Duration
}

// Default returns the configuration spec.md describes as defaults.
func Default() Config {
	return Config{
		PlayoutDelayIntraMS:         40,
		PlayoutDelayInterMultiplier: 2.2,
		FECMode:                     FECEnabled,
		MTU:                         1400,
		RMemTarget:                  1.1,
		RMemCap:                     32 << 20,
		BacklogMaxUnits:             64,
		MaxFrameAgeMS:               500,
		MarkerRetransmitCount:       5,
		ParticipantTimeout:          30 * time.Second,
	}
}

// PlayoutDelay computes the playout delay for a codec given its frame
// period, per §4.3.
func (c Config) PlayoutDelay(intraOnly bool, framePeriod time.Duration) time.Duration {
	if intraOnly {
		return time.Duration(c.PlayoutDelayIntraMS) * time.Millisecond
	}
	return time.Duration(float64(framePeriod) * c.PlayoutDelayInterMultiplier)
}
