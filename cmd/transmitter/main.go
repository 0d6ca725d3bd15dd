// Command transmitter is the symmetric send-side counterpart to
// cmd/receiver: it synthesizes a test pattern, fragments it with C8, and
// sends RTP packets to a destination address. Capturing real video is
// out of scope; the synthetic pattern exists so the fragmenter and the
// receiver's whole pipeline can be exercised end to end without external
// capture hardware.
package main

import (
	"flag"
	"time"

	"github.com/hightechgrace/media-streamer/internal/logging"
	"github.com/hightechgrace/media-streamer/internal/transmit"
	"github.com/hightechgrace/media-streamer/internal/wire"

	"net"
)

const fourccUYVY = 0x56595559 // "UYVY", matches internal/decode's raw passthrough registration

func main() {
	dest := flag.String("dest", "127.0.0.1:5004", "destination RTP address")
	mtu := flag.Int("mtu", 1400, "MTU bound for fragmentation")
	markerResends := flag.Int("marker-resends", 5, "number of times the last-fragment marker packet is resent")
	ssrc := flag.Uint("ssrc", 1, "RTP SSRC to send as")
	payloadType := flag.Uint("payload-type", 96, "RTP payload type byte")
	width := flag.Int("width", 64, "synthetic frame width")
	height := flag.Int("height", 64, "synthetic frame height")
	fps := flag.Float64("fps", 30, "frames per second")
	flag.Parse()

	log := logging.ForComponent("transmitter")

	addr, err := net.ResolveUDPAddr("udp", *dest)
	if err != nil {
		log.Errorf("resolve destination: %v", err)
		return
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		log.Errorf("dial: %v", err)
		return
	}
	defer conn.Close()

	fr := transmit.New(*mtu, *markerResends, uint32(*ssrc), uint8(*payloadType))
	desc := wire.VideoDesc{
		Width:       uint16(*width),
		Height:      uint16(*height),
		PixelFormat: fourccUYVY,
		Interlacing: wire.Progressive,
		FPS:         wire.FPS30,
	}

	frameSize := *width * *height * 2 // UYVY is 2 bytes/pixel
	period := time.Duration(float64(time.Second) / *fps)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var ts uint32
	clockTick := uint32(90000 / *fps)
	frameIdx := 0

	log.Infof("transmitter sending %dx%d to %s at %.1f fps", *width, *height, *dest, *fps)

	for range ticker.C {
		buf := syntheticFrame(frameSize, frameIdx)
		packets, err := fr.Fragment(transmit.Frame{Substream: 0, Buffer: buf, Desc: desc}, ts)
		if err != nil {
			log.Errorf("fragment: %v", err)
			continue
		}
		for _, pkt := range packets {
			raw, err := pkt.Marshal()
			if err != nil {
				log.Errorf("marshal: %v", err)
				continue
			}
			if _, err := conn.Write(raw); err != nil {
				log.Errorf("write: %v", err)
			}
		}
		ts += clockTick
		frameIdx++
	}
}

// syntheticFrame produces a deterministic, frame-index-dependent pattern
// so successive frames differ (useful for eyeballing frame cadence on the
// receive side) without depending on any capture source.
func syntheticFrame(size, frameIdx int) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte((i + frameIdx) % 256)
	}
	return buf
}
