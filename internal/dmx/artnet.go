// SPDX-License-Identifier: MIT
package dmx

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"beatlight/internal/log"
)

// ArtNetPort is the UDP port Art-Net nodes listen on.
const ArtNetPort = 6454

/*
ArtDMX packet layout (protocol revision 14)

	offset  size  field
	0       8     ID "Art-Net\x00"
	8       2     OpCode 0x5000, little-endian
	10      2     ProtVer 14, big-endian
	12      1     Sequence (1..255, 0 disables reordering)
	13      1     Physical
	14      1     SubUni (low byte of the port address)
	15      1     Net (high seven bits)
	16      2     Length, big-endian, even, 2..512
	18      n     channel data, start code excluded
*/
const artDMXHeaderLen = 18

// AppendArtDMX appends one ArtDMX packet carrying channels to dst.
func AppendArtDMX(dst []byte, seq uint8, universe uint16, channels []byte) []byte {
	n := len(channels)
	if n%2 == 1 {
		n++
	}
	if n < 2 {
		n = 2
	}

	dst = append(dst, "Art-Net\x00"...)
	dst = append(dst, 0x00, 0x50, 0x00, 14, seq, 0x00, byte(universe&0xff), byte(universe>>8)&0x7f)
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	dst = append(dst, channels...)
	for i := len(channels); i < n; i++ {
		dst = append(dst, 0)
	}
	return dst
}

// ArtNetSink sends each frame as an ArtDMX packet over UDP.
type ArtNetSink struct {
	target   string
	universe uint16

	mu     sync.Mutex // Protects conn, seq and packet during Close.
	conn   *net.UDPConn
	seq    uint8
	packet []byte
}

// NewArtNetSink dials target ("host:port"; port defaults to 6454). A
// broadcast address is allowed.
func NewArtNetSink(target string, universe uint16) (*ArtNetSink, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		target = net.JoinHostPort(target, fmt.Sprint(ArtNetPort))
	}
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, &DeviceError{Port: target, Err: fmt.Errorf("failed to resolve Art-Net target: %w", err)}
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, &DeviceError{Port: target, Err: fmt.Errorf("failed to dial Art-Net target: %w", err)}
	}

	log.Infof("Art-Net: sending universe %d to %s", universe, conn.RemoteAddr())
	return &ArtNetSink{
		target:   target,
		universe: universe & 0x7fff,
		conn:     conn,
		packet:   make([]byte, 0, artDMXHeaderLen+MaxChannels),
	}, nil
}

func (s *ArtNetSink) Send(frame []byte) error {
	if len(frame) == 0 || frame[0] != StartCode {
		return fmt.Errorf("art-net: frame without start code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("art-net: sink %s is closed", s.target)
	}

	s.seq++
	if s.seq == 0 {
		s.seq = 1
	}
	s.packet = AppendArtDMX(s.packet[:0], s.seq, s.universe, frame[1:])
	if _, err := s.conn.Write(s.packet); err != nil {
		return fmt.Errorf("art-net: send to %s: %w", s.target, err)
	}
	return nil
}

func (s *ArtNetSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	if err != nil {
		return fmt.Errorf("art-net: close %s: %w", s.target, err)
	}
	return nil
}

func (s *ArtNetSink) Name() string { return "artnet:" + s.target }
