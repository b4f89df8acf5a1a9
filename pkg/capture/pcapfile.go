package capture

import (
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket/pcapgo"
)

// PcapFile replays a pre-recorded capture file frame by frame, for
// running the dataplane against fixed traffic without a live
// interface — integration tests and reproducible benchmarks.
type PcapFile struct {
	f   *os.File
	rdr *pcapgo.Reader
}

// NewPcapFile opens path as a classic pcap capture file.
func NewPcapFile(path string) (*PcapFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: open %q: %w", path, err)
	}
	rdr, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("capture: read pcap header %q: %w", path, err)
	}
	return &PcapFile{f: f, rdr: rdr}, nil
}

// ReadFrame returns the next recorded frame. It returns ErrClosed once
// the file is exhausted, so the dataplane's ingress loop can treat
// end-of-capture the same as a deliberate shutdown.
func (p *PcapFile) ReadFrame(dst []byte) (int, error) {
	data, _, err := p.rdr.ReadPacketData()
	if err == io.EOF {
		return 0, ErrClosed
	}
	if err != nil {
		return 0, fmt.Errorf("capture: read pcap record: %w", err)
	}
	n := copy(dst, data)
	return n, nil
}

// Close releases the underlying file.
func (p *PcapFile) Close() error {
	return p.f.Close()
}
