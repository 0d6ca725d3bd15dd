// Package rtpsock owns the UDP socket pair spec.md §6 describes: an RTP
// socket and its RTCP peer at port+1, with a receive buffer that is grown
// as observed frame sizes grow. Socket setup here is plain net.ListenUDP
// with UDPConn.SetReadBuffer; the teacher repo never manages a
// receive-buffer size itself (its transport is WebRTC/pion, not raw UDP),
// so the growth policy is grounded instead on original_source's
// rtp/rtp.c socket-buffer-growth behavior, expressed with Go's standard
// net package, and RTCP datagrams are parsed with the teacher's own
// pion/rtcp dependency.
package rtpsock

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pion/rtcp"
)

// Socket is a bound RTP/RTCP UDP socket pair.
type Socket struct {
	log logging.LeveledLogger

	rtpConn  *net.UDPConn
	rtcpConn *net.UDPConn

	target     float64
	cap        int
	currentBuf int
}

// Options configures socket construction.
type Options struct {
	// ListenAddr is the RTP bind address, e.g. "0.0.0.0:5004" or
	// "[::]:5004". The RTCP socket binds to the same host, port+1.
	ListenAddr string
	// RMemTarget is the target receive-buffer multiplier against the
	// largest observed frame (spec.md §6, e.g. 1.1).
	RMemTarget float64
	// RMemCap bounds how large the receive buffer is allowed to grow, in
	// bytes.
	RMemCap int
}

// Open binds the RTP socket and its RTCP peer at port+1.
func Open(opts Options, log logging.LeveledLogger) (*Socket, error) {
	rtpAddr, err := net.ResolveUDPAddr("udp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpsock: resolve %q: %w", opts.ListenAddr, err)
	}
	rtpConn, err := net.ListenUDP("udp", rtpAddr)
	if err != nil {
		return nil, fmt.Errorf("rtpsock: listen rtp: %w", err)
	}

	boundAddr := rtpConn.LocalAddr().(*net.UDPAddr)
	rtcpAddr := *boundAddr
	rtcpAddr.Port = boundAddr.Port + 1
	rtcpConn, err := net.ListenUDP("udp", &rtcpAddr)
	if err != nil {
		rtpConn.Close()
		return nil, fmt.Errorf("rtpsock: listen rtcp: %w", err)
	}

	s := &Socket{
		log:      log,
		rtpConn:  rtpConn,
		rtcpConn: rtcpConn,
		target:   opts.RMemTarget,
		cap:      opts.RMemCap,
	}
	return s, nil
}

// RTPConn returns the bound RTP socket for reading/writing packets.
func (s *Socket) RTPConn() *net.UDPConn { return s.rtpConn }

// RTCPConn returns the bound RTCP socket.
func (s *Socket) RTCPConn() *net.UDPConn { return s.rtcpConn }

// Close closes both sockets.
func (s *Socket) Close() error {
	err1 := s.rtpConn.Close()
	err2 := s.rtcpConn.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// GrowForFrameSize adjusts the RTP receive buffer toward
// RMemTarget * largestFrameSize, capped at RMemCap. Failure to grow is
// logged, never returned as an error (spec.md §6: "Failure to grow is
// logged, not fatal").
func (s *Socket) GrowForFrameSize(largestFrameSize int) {
	want := int(float64(largestFrameSize) * s.target)
	if s.cap > 0 && want > s.cap {
		want = s.cap
	}
	if want <= s.currentBuf {
		return
	}
	if err := s.rtpConn.SetReadBuffer(want); err != nil {
		s.log.Warnf("rtpsock: failed to grow receive buffer to %d bytes: %v", want, err)
		return
	}
	s.currentBuf = want
}

// ReadRTCP reads and parses one RTCP packet batch from the RTCP socket.
// Session-level SDES/bandwidth accounting is out of scope (spec.md's
// Non-goals); this exists so a received RTCP packet is at least parsed
// and can be logged or discarded by the caller instead of silently
// filling the OS receive queue.
func (s *Socket) ReadRTCP(buf []byte) ([]rtcp.Packet, error) {
	n, _, err := s.rtcpConn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return rtcp.Unmarshal(buf[:n])
}
