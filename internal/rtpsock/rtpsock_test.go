package rtpsock

import (
	"net"
	"testing"

	"github.com/hightechgrace/media-streamer/internal/logging"
)

func TestOpen_BindsRTPAndAdjacentRTCPPort(t *testing.T) {
	sock, err := Open(Options{ListenAddr: "127.0.0.1:0", RMemTarget: 1.1, RMemCap: 1 << 20}, logging.ForComponent("rtpsock-test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sock.Close()

	rtpAddr := sock.RTPConn().LocalAddr().(*net.UDPAddr)
	rtcpAddr := sock.RTCPConn().LocalAddr().(*net.UDPAddr)
	if rtcpAddr.Port != rtpAddr.Port+1 {
		t.Fatalf("expected rtcp port %d, got %d", rtpAddr.Port+1, rtcpAddr.Port)
	}
}

func TestGrowForFrameSize_CapsAtRMemCap(t *testing.T) {
	sock, err := Open(Options{ListenAddr: "127.0.0.1:0", RMemTarget: 2.0, RMemCap: 4096}, logging.ForComponent("rtpsock-test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sock.Close()

	sock.GrowForFrameSize(1_000_000)
	if sock.currentBuf != sock.cap {
		t.Fatalf("expected buffer growth to cap at %d, got %d", sock.cap, sock.currentBuf)
	}
}
