// Package participant orchestrates one participant's pipeline: the packet
// ring (C1), frame assembler (C2), and playout buffer (C3) are drained
// synchronously on packet arrival (spec.md §5's ingest task "never blocks
// on downstream state"); the reassembly task (C4) and decompress task
// (C5/C6/C7) run as the two per-participant goroutines spec.md §5
// describes, connected by the single-slot mailbox in internal/reassembly.
// The task-per-participant shape with a shared ingest path is grounded on
// zalo-moonparty/moonlight-common-go/video/stream.go's receiveLoop /
// decoderLoop split (one shared network loop, one decode goroutine per
// stream).
package participant

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/hightechgrace/media-streamer/internal/bufpool"
	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/display"
	"github.com/hightechgrace/media-streamer/internal/frame"
	"github.com/hightechgrace/media-streamer/internal/playout"
	"github.com/hightechgrace/media-streamer/internal/reassembly"
	"github.com/hightechgrace/media-streamer/internal/ring"
	"github.com/hightechgrace/media-streamer/internal/streamerr"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

// Counters are the per-participant counters spec.md §7 calls for,
// exported via internal/metrics's prometheus.Collector.
type Counters struct {
	Displayed    uint64
	Dropped      uint64
	Corrupted    uint64
	MaxFrameSize uint64
}

// decodePath is spec.md §4.6 step 3's choice between the native/
// line-transform path (C5) and the block-decompress path (C6).
type decodePath int

const (
	pathBlockDecompress decodePath = iota
	pathLineDecoder
)

// tileState is one substream tile's handle within decoderState: its
// placement geometry in the merged framebuffer, plus either a
// per-tile decompressor (C6) or a line-transform (C5).
type tileState struct {
	offsets      decode.TileOffsets
	tileH        int
	decompressor decode.Decompressor
	lineDecoder  decode.LineDecoderFunc
}

// forLayout adapts a tile's offsets to where it is actually rendered:
// into the shared merged framebuffer at its computed offset, or into its
// own tile-sized framebuffer starting at offset 0 (spec.md §4.6: "Tile
// layout is either separate ... or merged").
func (t tileState) forLayout(layout display.TileLayout) decode.TileOffsets {
	if layout == display.LayoutSeparate {
		o := t.offsets
		o.BaseOffset = 0
		o.DestinationPitch = o.DestinationLinesize
		return o
	}
	return t.offsets
}

// decoderState is spec.md §4.6's DecoderState: the decode path and
// per-substream-tile handles, rebuilt whenever the negotiated descriptor
// or substream (tile) count changes.
type decoderState struct {
	path        decodePath
	shifts      decode.Shifts
	pitch       int
	interlaceFn func(tile []byte)
	tiles       map[int]tileState
}

// Participant owns exactly one packet ring and one playout buffer
// (spec.md §3).
type Participant struct {
	SSRC uint32

	cfg      config.Config
	log      logging.LeveledLogger
	registry *decode.Registry
	sink     *display.Handoff

	ring       *ring.Ring
	asm        *frame.Assembler
	playoutBuf *playout.Buffer
	reassembly *reassembly.Stage
	mailbox    *reassembly.Mailbox[*reassembly.Outcome]

	counters Counters

	lastPacket atomic.Int64 // unix nanos, for timeout reaping

	shutdown chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	currentDesc wire.VideoDesc
	decoder     *decoderState

	onReconfigureHook func(ssrc uint32, old, new_ wire.VideoDesc)
}

// New creates a Participant pipeline for ssrc. sink may be nil in tests
// that only exercise ingest/reassembly. onReconfigureHook, if non-nil, is
// called in addition to logging whenever the negotiated video descriptor
// changes (internal/control publishes it to debug clients).
func New(ssrc uint32, cfg config.Config, registry *decode.Registry, sink display.Sink, log logging.LeveledLogger, onReconfigureHook func(ssrc uint32, old, new_ wire.VideoDesc)) *Participant {
	p := &Participant{
		SSRC:              ssrc,
		cfg:               cfg,
		log:               log,
		registry:          registry,
		shutdown:          make(chan struct{}),
		onReconfigureHook: onReconfigureHook,
	}
	if sink != nil {
		p.sink = display.New(sink)
	}

	p.ring = ring.New(cfg.PlayoutDelay(true, 0)*2, log)
	p.playoutBuf = playout.New(cfg.PlayoutDelay(true, 0), time.Duration(cfg.MaxFrameAgeMS)*time.Millisecond, cfg.BacklogMaxUnits)
	p.asm = frame.NewAssembler(bufpool.New(), log, p.onModeChange)
	p.reassembly = reassembly.New(log, p.onReconfigure, p.acceptsCorrupted, cfg.FECMode)
	p.mailbox = reassembly.NewMailbox[*reassembly.Outcome]()

	p.lastPacket.Store(time.Now().UnixNano())
	return p
}

// acceptsCorrupted reports whether the currently selected decode path
// tolerates a substream buffer with received_bytes < expected_bytes
// (spec.md §4.4 step 1). The line-decoder path always tolerates it: every
// row copy in decode.CopyLines bounds-checks against the source buffer's
// actual length and simply stops early. The block-decompress path
// delegates to the per-tile decompressor (they are all the same plug-in,
// so any one answers for the group).
func (p *Participant) acceptsCorrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decoder == nil {
		return false
	}
	if p.decoder.path == pathLineDecoder {
		return true
	}
	for _, t := range p.decoder.tiles {
		if t.decompressor != nil {
			return t.decompressor.AcceptsCorruptedFrame()
		}
	}
	return false
}

func (p *Participant) onModeChange(mc frame.ModeChange) {
	p.log.Infof("participant %d: inferred mode from substream %d, expecting %d substreams", p.SSRC, mc.InferredFromSubstream, mc.NewExpectedCount)
}

func (p *Participant) onReconfigure(old, new_ wire.VideoDesc) {
	p.log.Infof("participant %d: video descriptor changed %+v -> %+v", p.SSRC, old, new_)
	if p.onReconfigureHook != nil {
		p.onReconfigureHook(p.SSRC, old, new_)
	}
}

// LastPacket reports when this participant last received a packet, used by
// Registry's reaper (spec.md §3: "destroyed on explicit removal or
// timeout").
func (p *Participant) LastPacket() time.Time {
	return time.Unix(0, p.lastPacket.Load())
}

// IngestPacket runs spec.md §4.1's Insert, then immediately drains any
// groups whose ring-level age window has elapsed through the frame
// assembler (C2) into the playout buffer (C3) — this work is in-memory and
// non-blocking, consistent with the shared ingest task never blocking on
// downstream state (spec.md §5).
func (p *Participant) IngestPacket(pkt *ring.Packet) {
	p.lastPacket.Store(time.Now().UnixNano())
	if !p.ring.Insert(pkt) {
		return
	}
	p.pump(time.Now())
}

func (p *Participant) pump(now time.Time) {
	ready := p.ring.IterateReady(now, p.cfg.PlayoutDelay(true, 0)*2)
	if len(ready) == 0 {
		return
	}
	var maxTS uint32
	for i, g := range ready {
		for _, rp := range g.Packets {
			unit, err := p.asm.Ingest(rp)
			if err != nil {
				if streamerr.IsTransient(err) {
					p.log.Warnf("participant %d: %v", p.SSRC, err)
					continue
				}
				atomic.AddUint64(&p.counters.Corrupted, 1)
				continue
			}
			p.playoutBuf.Put(unit)
		}
		if i == 0 || tsAfter(g.Timestamp, maxTS) {
			maxTS = g.Timestamp
		}
	}
	p.ring.RemoveBefore(maxTS)
}

func tsAfter(a, b uint32) bool { return int32(a-b) > 0 }

// updateMaxUint64 atomically raises *addr to v if v is larger, with no
// lost-update race against concurrent raisers.
func updateMaxUint64(addr *uint64, v uint64) {
	for {
		cur := atomic.LoadUint64(addr)
		if v <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(addr, cur, v) {
			return
		}
	}
}

// RunReassembly is the reassembly task of spec.md §5: it pulls FrameUnits
// from the playout buffer and blocks only on the mailbox handoff.
func (p *Participant) RunReassembly() {
	defer p.wg.Done()
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.shutdown:
			p.mailbox.Close()
			return
		case <-ticker.C:
			now := time.Now()
			// The ring only releases groups to the frame assembler once
			// their own age-window deadline has elapsed, independent of
			// whether a new packet triggered IngestPacket's inline pump
			// (spec.md §5's ~10ms socket-read timeout plays the same role
			// on the real ingest path).
			p.pump(now)
			for {
				unit := p.playoutBuf.TryPop(now)
				if unit == nil {
					break
				}
				outcome, err := p.reassembly.Reassemble(unit)
				if err != nil {
					if streamerr.IsIncompleteFrame(err) && !unit.Corrupted {
						atomic.AddUint64(&p.counters.Dropped, 1)
					} else {
						atomic.AddUint64(&p.counters.Corrupted, 1)
					}
					p.asm.Release(unit.Timestamp)
					continue
				}
				if !p.mailbox.Put(outcome) {
					return
				}
				p.asm.Release(unit.Timestamp)
			}
			for _, ts := range p.playoutBuf.Prune(now) {
				p.asm.Release(ts)
				atomic.AddUint64(&p.counters.Dropped, 1)
			}
		}
	}
}

// RunDecompress is the decompress task of spec.md §5: it pulls completed
// reassembly outcomes and calls put_frame. Start always launches it; when
// the participant has no display Sink, decodeAndDisplay does nothing and
// each outcome is still counted as displayed.
func (p *Participant) RunDecompress() {
	defer p.wg.Done()
	for {
		outcome, ok := p.mailbox.Take()
		if !ok {
			return
		}
		if err := p.decodeAndDisplay(outcome); err != nil {
			p.log.Errorf("participant %d: decode/display failed: %v", p.SSRC, err)
			atomic.AddUint64(&p.counters.Dropped, 1)
			continue
		}
		atomic.AddUint64(&p.counters.Displayed, 1)
	}
}

// gridFor returns the tile grid for n substreams: 1x1 for normal mode,
// 2x1 for stereo, 2x2 for 4K-tiled (spec.md §4.2's mode inference: 1 for
// normal, 2 for stereo, 4 for 4K-tiled).
func gridFor(n int) (cols, rows int) {
	switch n {
	case 1:
		return 1, 1
	case 2:
		return 2, 1
	case 4:
		return 2, 2
	default:
		return n, 1
	}
}

const fourccUYVY = 0x56595559 // "UYVY", the engine's one raw wire pixel format

// bytesPerPixel reports the source sample size used for tile-offset math.
func bytesPerPixel(fourcc uint32) int {
	if fourcc == fourccUYVY {
		return 2
	}
	return 4
}

// displayBytesPerPixel is the fixed sample size of the framebuffers this
// engine's display sinks allocate (width*height*4, e.g. cmd/receiver's
// logSink).
const displayBytesPerPixel = 4

func interlacingSupported(want wire.Interlacing, native []wire.Interlacing) bool {
	for _, n := range native {
		if n == want {
			return true
		}
	}
	return false
}

// sinkSupportsNative reports whether the display can show fourcc directly,
// making the native/line-transform path (C5) eligible (spec.md §4.6 step
// 3).
func (p *Participant) sinkSupportsNative(fourcc uint32) bool {
	for _, c := range p.sink.NativeCodecs() {
		if c == fourcc {
			return true
		}
	}
	return false
}

// reconfigureLocked rebuilds decoder state for desc and substreamCount. It
// must be called with p.mu held, and waits for the in-flight framebuffer to
// be swapped back first (spec.md §4.6 step 1: "the single synchronization
// point with the display thread") so the old decoder state is never torn
// down while display still holds a buffer it wrote into.
func (p *Participant) reconfigureLocked(desc wire.VideoDesc, substreamCount int) error {
	p.sink.WaitSwapped()

	if p.decoder != nil {
		for _, t := range p.decoder.tiles {
			if t.decompressor != nil {
				t.decompressor.Done()
			}
		}
	}

	shifts, pitch, err := p.sink.Reconfigure(desc)
	if err != nil {
		return streamerr.Fatal("participant: display reconfigure failed", err).WithSSRC(p.SSRC)
	}

	cols, rows := gridFor(substreamCount)
	tileW := int(desc.Width) / cols
	tileH := int(desc.Height) / rows
	srcBPP := bytesPerPixel(desc.PixelFormat)

	path := pathBlockDecompress
	if p.sinkSupportsNative(desc.PixelFormat) {
		path = pathLineDecoder
	}

	tiles := make(map[int]tileState, substreamCount)
	for idx := 0; idx < substreamCount; idx++ {
		x, y := idx%cols, idx/cols
		off := decode.ComputeTileOffsets(x, y, tileW, tileH, pitch, srcBPP, displayBytesPerPixel)
		ts := tileState{offsets: off, tileH: tileH}

		if path == pathLineDecoder {
			fn, ok := p.registry.SelectLineDecoder(desc.PixelFormat, desc.PixelFormat)
			if !ok {
				return streamerr.Fatal("participant: no line decoder available", nil).WithSSRC(p.SSRC)
			}
			ts.lineDecoder = fn
		} else {
			d, err := p.registry.SelectDecompressor(desc.PixelFormat, desc.PixelFormat)
			if err != nil {
				return streamerr.Fatal("participant: no decompressor available", err).WithSSRC(p.SSRC)
			}
			tileDesc := desc
			tileDesc.Width = uint16(tileW)
			tileDesc.Height = uint16(tileH)
			if _, err := d.Reconfigure(tileDesc, shifts, off.DestinationLinesize, desc.PixelFormat); err != nil {
				return streamerr.Fatal("participant: decompressor reconfigure failed", err).WithSSRC(p.SSRC)
			}
			ts.decompressor = d
		}
		tiles[idx] = ts
	}

	var interlaceFn func([]byte)
	if native := p.sink.NativeInterlacing(); len(native) > 0 && !interlacingSupported(desc.Interlacing, native) {
		interlaceFn = display.InterlaceConversion(desc.Interlacing, native[0])
	}

	p.decoder = &decoderState{path: path, shifts: shifts, pitch: pitch, interlaceFn: interlaceFn, tiles: tiles}
	p.currentDesc = desc
	return nil
}

// renderTile decodes (or line-transforms) one substream's buffer and
// composes it into out at the geometry layout dictates (spec.md §4.6:
// "one decompressor instance per substream tile").
func (p *Participant) renderTile(dec *decoderState, layout display.TileLayout, idx int, buf []byte, out []byte) error {
	tile := dec.tiles[idx]
	off := tile.forLayout(layout)

	if dec.path == pathLineDecoder {
		decode.CopyLines(out, buf, off, tile.tileH, tile.lineDecoder, dec.shifts)
		return nil
	}

	tileOut := make([]byte, tile.tileH*off.DestinationLinesize)
	if _, err := tile.decompressor.Decompress(buf, tileOut, 0); err != nil {
		return err
	}
	placement := off
	placement.SourceLinesize = off.DestinationLinesize
	decode.CopyLines(out, tileOut, placement, tile.tileH, decode.NativeLineCopy, dec.shifts)
	return nil
}

// decodeAndDisplay runs spec.md §4.6/§4.7 for one reassembled frame:
// select (or reuse) the decode path and per-tile decoder/line-transform
// for the negotiated descriptor, reconfigure on change, render every
// substream tile at its computed offset, apply any interlace conversion,
// and hand the framebuffer back to the display.
func (p *Participant) decodeAndDisplay(outcome *reassembly.Outcome) error {
	if p.sink == nil {
		return nil
	}

	p.mu.Lock()
	if p.decoder == nil || p.currentDesc != outcome.Desc || len(p.decoder.tiles) != len(outcome.Substreams) {
		if err := p.reconfigureLocked(outcome.Desc, len(outcome.Substreams)); err != nil {
			p.mu.Unlock()
			return err
		}
	}
	dec := p.decoder
	p.mu.Unlock()

	var total int
	for _, buf := range outcome.Substreams {
		total += len(buf)
	}
	updateMaxUint64(&p.counters.MaxFrameSize, uint64(total))

	if dec.interlaceFn != nil {
		tiles := make([][]byte, 0, len(outcome.Substreams))
		for _, buf := range outcome.Substreams {
			tiles = append(tiles, buf)
		}
		display.ApplyInterlaceConversion(tiles, dec.interlaceFn)
	}

	layout := p.sink.VideoMode()
	if layout == display.LayoutSeparate {
		for idx, buf := range outcome.Substreams {
			fb, err := p.sink.GetFrame()
			if err != nil {
				return err
			}
			out, ok := fb.([]byte)
			if !ok {
				tile := dec.tiles[idx]
				out = make([]byte, tile.tileH*tile.offsets.DestinationLinesize)
			}
			if err := p.renderTile(dec, layout, idx, buf, out); err != nil {
				p.sink.PutFrame(fb, display.PutFlags{})
				return err
			}
			if err := p.sink.PutFrame(fb, display.PutFlags{}); err != nil {
				return err
			}
		}
		return nil
	}

	fb, err := p.sink.GetFrame()
	if err != nil {
		return err
	}
	out, ok := fb.([]byte)
	if !ok {
		out = make([]byte, dec.pitch*int(p.currentDesc.Height))
	}
	for idx, buf := range outcome.Substreams {
		if err := p.renderTile(dec, layout, idx, buf, out); err != nil {
			p.sink.PutFrame(fb, display.PutFlags{})
			return err
		}
	}
	return p.sink.PutFrame(fb, display.PutFlags{})
}

// Start launches the reassembly and decompress goroutines.
func (p *Participant) Start() {
	p.wg.Add(2)
	go p.RunReassembly()
	go p.RunDecompress()
}

// Stop signals shutdown and waits for both tasks to exit, in the order
// spec.md §5 requires: reassembly closes the mailbox, which drains the
// decompress task before it exits.
func (p *Participant) Stop() {
	close(p.shutdown)
	p.wg.Wait()
}

// Counters returns a snapshot of this participant's counters.
func (p *Participant) Counters() Counters {
	return Counters{
		Displayed:    atomic.LoadUint64(&p.counters.Displayed),
		Dropped:      atomic.LoadUint64(&p.counters.Dropped),
		Corrupted:    atomic.LoadUint64(&p.counters.Corrupted),
		MaxFrameSize: atomic.LoadUint64(&p.counters.MaxFrameSize),
	}
}
