package participant

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/display"
	intlog "github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Registry keeps the live participant table and reaps timed-out entries
// (SPEC_FULL.md §12 item 1, grounded on original_source/transmitter/
// participants.c's last_update/TTL tracking).
type Registry struct {
	cfg           config.Config
	registry      *decode.Registry
	newSink       func(ssrc uint32) display.Sink
	onReconfigure func(ssrc uint32, old, new_ wire.VideoDesc)
	log           logging.LeveledLogger

	mu    sync.Mutex
	table map[uint32]*Participant

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry creates a Registry. newSink, if non-nil, is called once per
// new participant to obtain its display sink; nil means no display
// handoff is started for new participants (useful for ingest-only
// deployments such as the transmitter side). onReconfigure, if non-nil, is
// forwarded to every participant created and fired whenever that
// participant's negotiated video descriptor changes (internal/control
// wires this to publish a debug-channel event).
func NewRegistry(cfg config.Config, reg *decode.Registry, newSink func(ssrc uint32) display.Sink, onReconfigure func(ssrc uint32, old, new_ wire.VideoDesc), log logging.LeveledLogger) *Registry {
	if log == nil {
		log = intlog.ForComponent("participant-registry")
	}
	return &Registry{
		cfg:           cfg,
		registry:      reg,
		newSink:       newSink,
		onReconfigure: onReconfigure,
		log:           log,
		table:         make(map[uint32]*Participant),
		stop:          make(chan struct{}),
	}
}

// Get returns the participant for ssrc, creating and starting one on first
// use (spec.md §3: "Created on first packet from an unseen SSRC").
func (r *Registry) Get(ssrc uint32) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.table[ssrc]; ok {
		return p
	}
	var sink display.Sink
	if r.newSink != nil {
		sink = r.newSink(ssrc)
	}
	p := New(ssrc, r.cfg, r.registry, sink, r.participantLogger(ssrc), r.onReconfigure)
	p.Start()
	r.table[ssrc] = p
	return p
}

func (r *Registry) participantLogger(ssrc uint32) logging.LeveledLogger {
	return intlog.ForParticipant(ssrc)
}

// Remove tears down and deletes the participant for ssrc, if present
// (spec.md §3: "destroyed on explicit removal or timeout").
func (r *Registry) Remove(ssrc uint32) {
	r.mu.Lock()
	p, ok := r.table[ssrc]
	delete(r.table, ssrc)
	r.mu.Unlock()
	if ok {
		p.Stop()
	}
}

// StartReaper launches the background goroutine that removes participants
// that have received no packet within cfg.ParticipantTimeout (any packet
// handed to IngestPacket counts, even one the ring rejects).
func (r *Registry) StartReaper(interval time.Duration) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stop:
				return
			case <-ticker.C:
				r.reapOnce()
			}
		}
	}()
}

func (r *Registry) reapOnce() {
	now := time.Now()
	var dead []uint32
	r.mu.Lock()
	for ssrc, p := range r.table {
		if now.Sub(p.LastPacket()) > r.cfg.ParticipantTimeout {
			dead = append(dead, ssrc)
		}
	}
	r.mu.Unlock()

	for _, ssrc := range dead {
		r.log.Infof("participant %d: timed out, removing", ssrc)
		r.Remove(ssrc)
	}
}

// SSRCs lists the currently tracked participants, for internal/metrics's
// Collector to enumerate on each scrape.
func (r *Registry) SSRCs() []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint32, 0, len(r.table))
	for ssrc := range r.table {
		out = append(out, ssrc)
	}
	return out
}

// CountersFor returns the counters for ssrc, implementing
// internal/metrics.Source.
func (r *Registry) CountersFor(ssrc uint32) (displayed, dropped, corrupted uint64, maxFrameSize int, ok bool) {
	r.mu.Lock()
	p, present := r.table[ssrc]
	r.mu.Unlock()
	if !present {
		return 0, 0, 0, 0, false
	}
	c := p.Counters()
	return c.Displayed, c.Dropped, c.Corrupted, int(c.MaxFrameSize), true
}

// StopReaper stops the reaper goroutine and every tracked participant.
func (r *Registry) StopReaper() {
	close(r.stop)
	r.wg.Wait()
	r.mu.Lock()
	all := make([]*Participant, 0, len(r.table))
	for _, p := range r.table {
		all = append(all, p)
	}
	r.table = make(map[uint32]*Participant)
	r.mu.Unlock()
	for _, p := range all {
		p.Stop()
	}
}
