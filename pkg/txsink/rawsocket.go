// Package txsink implements the batched transmit side of the
// dataplane: workers hand it a batch of frame buffers, it writes them
// out a raw datalink socket and reports how many succeeded.
package txsink

import (
	"fmt"
	"net"

	"github.com/mdlayher/packet"

	upepacket "github.com/upe-project/upe/pkg/packet"
)

// RawSocket transmits frames on a live interface via the same
// AF_PACKET transport capture.RawSocket reads from.
type RawSocket struct {
	conn *packet.Conn
	addr *packet.Addr
}

// NewRawSocket opens a raw socket for transmit-only use on ifaceName.
func NewRawSocket(ifaceName string) (*RawSocket, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("txsink: lookup interface %q: %w", ifaceName, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("txsink: listen on %q: %w", ifaceName, err)
	}
	return &RawSocket{
		conn: conn,
		addr: &packet.Addr{HardwareAddr: ifi.HardwareAddr},
	}, nil
}

// SendBatch writes each buffer's frame in order, stopping at the first
// failure: the returned sent count is the number of leading frames
// that went out successfully, matching the "first N succeeded" partial
// -send contract workers rely on.
func (s *RawSocket) SendBatch(batch []*upepacket.Buffer) (int, error) {
	for i, buf := range batch {
		if _, err := s.conn.WriteTo(buf.Data(), s.addr); err != nil {
			return i, fmt.Errorf("txsink: write frame %d of %d: %w", i, len(batch), err)
		}
	}
	return len(batch), nil
}

// Close releases the underlying socket.
func (s *RawSocket) Close() error {
	return s.conn.Close()
}
