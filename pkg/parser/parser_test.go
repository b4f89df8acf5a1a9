package parser

import "testing"

func TestParseRejectsShortEthernetFrame(t *testing.T) {
	frame := make([]byte, 12)
	if _, err := Parse(frame); err != ErrNotClassifiable {
		t.Fatalf("got err=%v, want ErrNotClassifiable", err)
	}
}

func TestParseRejectsTruncatedIPHeader(t *testing.T) {
	frame := make([]byte, 14+3)
	setEtherType(frame, etherTypeIPv4)
	if _, err := Parse(frame); err != ErrNotClassifiable {
		t.Fatalf("got err=%v, want ErrNotClassifiable", err)
	}
}

func TestParseRejectsTruncatedTCPHeader(t *testing.T) {
	frame := make([]byte, 14+20+3)
	setEtherType(frame, etherTypeIPv4)
	ip := frame[14:]
	ip[0] = 0x45
	ip[9] = protoTCP
	if _, err := Parse(frame); err != ErrNotClassifiable {
		t.Fatalf("got err=%v, want ErrNotClassifiable", err)
	}
}

func TestParseRejectsARP(t *testing.T) {
	frame := make([]byte, 14+28)
	setEtherType(frame, 0x0806)
	if _, err := Parse(frame); err != ErrNotClassifiable {
		t.Fatalf("got err=%v, want ErrNotClassifiable for ARP", err)
	}
}

func TestParseIPv4UDP(t *testing.T) {
	frame := buildIPv4(protoUDP, []byte{0x1f, 0x90, 0x00, 0x35, 0x00, 0x00, 0x00, 0x00})
	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.IPVer != 4 {
		t.Fatalf("got IPVer=%d, want 4", key.IPVer)
	}
	if key.SrcPort != 0x1f90 || key.DstPort != 0x0035 {
		t.Fatalf("got ports %d/%d, want 8080/53", key.SrcPort, key.DstPort)
	}
	if key.Protocol != protoUDP {
		t.Fatalf("got protocol %d, want %d", key.Protocol, protoUDP)
	}
}

func TestParseIPv4TCP(t *testing.T) {
	tcp := make([]byte, 20)
	tcp[0], tcp[1] = 0x00, 0x50 // src port 80
	tcp[2], tcp[3] = 0xc3, 0x50 // dst port 50000
	tcp[12] = 5 << 4            // data offset 20
	frame := buildIPv4(protoTCP, tcp)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.SrcPort != 80 || key.DstPort != 50000 {
		t.Fatalf("got ports %d/%d, want 80/50000", key.SrcPort, key.DstPort)
	}
}

func TestParseICMPv4MapsIdentifierAndTypeCode(t *testing.T) {
	icmp := make([]byte, 8)
	icmp[0] = 8    // echo request
	icmp[1] = 0    // code
	icmp[4] = 0x12 // identifier high byte
	icmp[5] = 0x34 // identifier low byte
	frame := buildIPv4(protoICMP, icmp)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.SrcPort != 0x1234 {
		t.Fatalf("got src_port=%#x, want 0x1234", key.SrcPort)
	}
	if key.DstPort != 0x0800 {
		t.Fatalf("got dst_port=%#x, want 0x0800 (type=8, code=0)", key.DstPort)
	}
}

func TestParseIPv6UDP(t *testing.T) {
	udp := []byte{0x04, 0xd2, 0x00, 0x35, 0x00, 0x00, 0x00, 0x00}
	frame := buildIPv6(protoUDP, udp)

	key, err := Parse(frame)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.IPVer != 6 {
		t.Fatalf("got IPVer=%d, want 6", key.IPVer)
	}
	if key.SrcPort != 1234 || key.DstPort != 53 {
		t.Fatalf("got ports %d/%d, want 1234/53", key.SrcPort, key.DstPort)
	}
}

func TestParseIPv6UDPAtOddOffset(t *testing.T) {
	udp := []byte{0x04, 0xd2, 0x00, 0x35, 0x00, 0x00, 0x00, 0x00}
	frame := buildIPv6(protoUDP, udp)

	// Back the frame with a one-byte pad so the frame itself starts at
	// an odd address offset within its backing array, exercising the
	// byte-wise field reads against a misaligned base.
	backing := make([]byte, 1+len(frame))
	copy(backing[1:], frame)
	odd := backing[1:]

	key, err := Parse(odd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.IPVer != 6 {
		t.Fatalf("got IPVer=%d, want 6", key.IPVer)
	}
	if key.SrcPort != 1234 || key.DstPort != 53 {
		t.Fatalf("got ports %d/%d, want 1234/53", key.SrcPort, key.DstPort)
	}
}

func TestParseRejectsTruncatedIPv6Header(t *testing.T) {
	frame := make([]byte, 14+39)
	setEtherType(frame, etherTypeIPv6)
	frame[14] = 0x60
	if _, err := Parse(frame); err != ErrNotClassifiable {
		t.Fatalf("got err=%v, want ErrNotClassifiable", err)
	}
}

func setEtherType(frame []byte, et uint16) {
	frame[12] = byte(et >> 8)
	frame[13] = byte(et)
}

func buildIPv4(protocol uint8, l4 []byte) []byte {
	frame := make([]byte, 14+20+len(l4))
	setEtherType(frame, etherTypeIPv4)
	ip := frame[14 : 14+20]
	ip[0] = 0x45 // version 4, IHL 5
	ip[9] = protocol
	copy(ip[12:16], []byte{10, 0, 0, 1})
	copy(ip[16:20], []byte{10, 0, 0, 2})
	copy(frame[14+20:], l4)
	return frame
}

func buildIPv6(nextHeader uint8, l4 []byte) []byte {
	frame := make([]byte, 14+40+len(l4))
	setEtherType(frame, etherTypeIPv6)
	ip := frame[14 : 14+40]
	ip[0] = 0x60 // version 6
	ip[6] = nextHeader
	copy(ip[8:24], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1})
	copy(ip[24:40], []byte{0xfe, 0x80, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 2})
	copy(frame[14+40:], l4)
	return frame
}
