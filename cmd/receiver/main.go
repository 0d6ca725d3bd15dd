// Command receiver runs the receive-side media streaming engine: it binds
// an RTP/RTCP socket pair, demuxes packets to per-SSRC participants, and
// exposes Prometheus metrics plus a debug websocket control channel.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hightechgrace/media-streamer/internal/config"
	"github.com/hightechgrace/media-streamer/internal/control"
	"github.com/hightechgrace/media-streamer/internal/decode"
	"github.com/hightechgrace/media-streamer/internal/display"
	"github.com/hightechgrace/media-streamer/internal/ingest"
	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/metrics"
	"github.com/hightechgrace/media-streamer/internal/participant"
	"github.com/hightechgrace/media-streamer/internal/rtpsock"
	"github.com/hightechgrace/media-streamer/internal/wire"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:5004", "RTP listen address (RTCP binds to port+1)")
	httpAddr := flag.String("http", ":9090", "address to serve /metrics and /debug/ws on")
	mtu := flag.Int("mtu", 1400, "MTU stored in the receiver's config (the receive path does not read it)")
	rmemTarget := flag.Float64("rmem-target", 1.1, "receive buffer target as a multiple of the largest observed frame")
	rmemCap := flag.Int("rmem-cap", 32<<20, "receive buffer cap in bytes")
	playoutIntraMS := flag.Int("playout-delay-intra-ms", 40, "initial playout delay for intra-only codecs")
	participantTimeout := flag.Duration("participant-timeout", 30*time.Second, "time without a packet before a participant is reaped")
	flag.Parse()

	log := logging.ForComponent("receiver")

	cfg := config.Default()
	cfg.MTU = *mtu
	cfg.RMemTarget = *rmemTarget
	cfg.RMemCap = *rmemCap
	cfg.PlayoutDelayIntraMS = *playoutIntraMS
	cfg.ParticipantTimeout = *participantTimeout

	const fourccUYVY = 0x56595559 // "UYVY"
	registry := decode.NewRegistry()
	registry.RegisterDecompressor(fourccUYVY, fourccUYVY, 0, "raw", decode.NewRawDecompressor)
	// Tried only if the raw passthrough fails to initialize (spec.md
	// §4.6's "on init failure, the next priority is tried"); tolerates
	// corrupted/incomplete frames the raw decompressor would reject.
	registry.RegisterDecompressor(fourccUYVY, fourccUYVY, 100, "checkerboard", decode.NewCheckerboardDecompressor)

	hub := control.NewHub(logging.ForComponent("control"))
	go hub.Run()
	defer hub.Stop()

	newSink := func(ssrc uint32) display.Sink {
		return newLogSink(logging.ForParticipant(ssrc))
	}
	onReconfigure := func(ssrc uint32, old, new_ wire.VideoDesc) {
		hub.PublishReconfigure(control.ReconfigureEvent{
			SSRC:   ssrc,
			Width:  int(new_.Width),
			Height: int(new_.Height),
			FourCC: new_.PixelFormat,
		})
	}
	participants := participant.NewRegistry(cfg, registry, newSink, onReconfigure, logging.ForComponent("participant-registry"))
	participants.StartReaper(5 * time.Second)
	defer participants.StopReaper()

	go broadcastCounters(participants, hub, 2*time.Second)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(metrics.New(participants))

	sock, err := rtpsock.Open(rtpsock.Options{
		ListenAddr: *listenAddr,
		RMemTarget: cfg.RMemTarget,
		RMemCap:    cfg.RMemCap,
	}, logging.ForComponent("rtpsock"))
	if err != nil {
		log.Errorf("failed to open RTP socket: %v", err)
		return
	}
	defer sock.Close()

	loop := ingest.New(sock.RTPConn(), participants, logging.ForComponent("ingest"), 10*time.Millisecond, 65536)
	go loop.Run()
	defer loop.Stop()

	rtcpStop := make(chan struct{})
	go runRTCPLoop(sock, logging.ForComponent("rtcp"), rtcpStop)
	defer close(rtcpStop)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/ws", hub.HandleWS)

	log.Infof("receiver listening: rtp=%s http=%s", *listenAddr, *httpAddr)
	if err := http.ListenAndServe(*httpAddr, mux); err != nil {
		log.Errorf("http server exited: %v", err)
	}
	fmt.Println("receiver shutting down")
}

// runRTCPLoop drains the RTCP socket rtpsock.Open bound at port+1, logging
// each received packet. Session-level SDES/bandwidth accounting is out of
// scope; this exists so received RTCP is actually read off the wire
// instead of silently filling the OS receive queue.
func runRTCPLoop(sock *rtpsock.Socket, log logging.LeveledLogger, stop <-chan struct{}) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-stop:
			return
		default:
		}
		sock.RTCPConn().SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		packets, err := sock.ReadRTCP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-stop:
				return
			default:
			}
			log.Warnf("rtcp: read error: %v", err)
			continue
		}
		for _, p := range packets {
			log.Debugf("rtcp: received %T", p)
		}
	}
}

// countersSource is the subset of *participant.Registry broadcastCounters
// needs; the same Source shape internal/metrics.Collector reads from.
type countersSource interface {
	SSRCs() []uint32
	CountersFor(ssrc uint32) (displayed, dropped, corrupted uint64, maxFrameSize int, ok bool)
}

// broadcastCounters periodically pushes every participant's counters to
// the debug websocket channel, so connected clients see live state
// without polling /metrics.
func broadcastCounters(source countersSource, hub *control.Hub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for _, ssrc := range source.SSRCs() {
			displayed, dropped, corrupted, _, ok := source.CountersFor(ssrc)
			if !ok {
				continue
			}
			hub.PublishCounters(control.CountersSnapshot{
				SSRC:      ssrc,
				Displayed: displayed,
				Dropped:   dropped,
				Corrupted: corrupted,
			})
		}
	}
}
