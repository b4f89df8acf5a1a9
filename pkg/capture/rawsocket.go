package capture

import (
	"fmt"
	"net"

	"github.com/mdlayher/packet"
	"golang.org/x/sys/unix"
)

// RawSocket reads Ethernet frames off a live interface via an
// AF_PACKET socket, bypassing the kernel's IP stack entirely: frames
// arrive exactly as they appear on the wire, headers and all.
type RawSocket struct {
	conn *packet.Conn
	ifi  *net.Interface
}

// NewRawSocket opens a raw datalink socket on the named interface,
// receiving every EtherType (unix.ETH_P_ALL).
func NewRawSocket(ifaceName string) (*RawSocket, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("capture: lookup interface %q: %w", ifaceName, err)
	}
	conn, err := packet.Listen(ifi, packet.Raw, int(htons(uint16(unix.ETH_P_ALL))), nil)
	if err != nil {
		return nil, fmt.Errorf("capture: listen on %q: %w", ifaceName, err)
	}
	return &RawSocket{conn: conn, ifi: ifi}, nil
}

// ReadFrame reads the next frame arriving on the interface.
func (r *RawSocket) ReadFrame(dst []byte) (int, error) {
	n, _, err := r.conn.ReadFrom(dst)
	if err != nil {
		return 0, fmt.Errorf("capture: read: %w", err)
	}
	return n, nil
}

// Close releases the underlying socket.
func (r *RawSocket) Close() error {
	return r.conn.Close()
}

// htons converts a host-order uint16 to network byte order, needed
// because AF_PACKET's protocol field is compared in network order at
// the kernel boundary.
func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
