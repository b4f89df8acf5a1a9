package logging

import (
	"net"
	"strings"
	"testing"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"error", SyslogError},
		{"warning", SyslogWarning},
		{"info", SyslogInfo},
		{"unknown", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := ParseSeverity(tt.name); got != tt.want {
			t.Errorf("ParseSeverity(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestShouldSendNoFilter(t *testing.T) {
	c := &SyslogClient{MinSeverity: 0}
	if !c.ShouldSend(SyslogError) {
		t.Error("no filter should pass error")
	}
	if !c.ShouldSend(SyslogWarning) {
		t.Error("no filter should pass warning")
	}
	if !c.ShouldSend(SyslogInfo) {
		t.Error("no filter should pass info")
	}
}

func TestShouldSendErrorOnly(t *testing.T) {
	c := &SyslogClient{MinSeverity: SyslogError}
	if !c.ShouldSend(SyslogError) {
		t.Error("error filter should pass error")
	}
	if c.ShouldSend(SyslogWarning) {
		t.Error("error filter should block warning")
	}
	if c.ShouldSend(SyslogInfo) {
		t.Error("error filter should block info")
	}
}

func TestShouldSendWarningAndAbove(t *testing.T) {
	c := &SyslogClient{MinSeverity: SyslogWarning}
	if !c.ShouldSend(SyslogError) {
		t.Error("warning filter should pass error (higher severity)")
	}
	if !c.ShouldSend(SyslogWarning) {
		t.Error("warning filter should pass warning")
	}
	if c.ShouldSend(SyslogInfo) {
		t.Error("warning filter should block info")
	}
}

func TestShouldSendInfoAll(t *testing.T) {
	c := &SyslogClient{MinSeverity: SyslogInfo}
	if !c.ShouldSend(SyslogError) {
		t.Error("info filter should pass error")
	}
	if !c.ShouldSend(SyslogWarning) {
		t.Error("info filter should pass warning")
	}
	if !c.ShouldSend(SyslogInfo) {
		t.Error("info filter should pass info")
	}
}

func TestSyslogSendReceive(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	addr := pc.LocalAddr().(*net.UDPAddr)

	client, err := NewSyslogClient("127.0.0.1", addr.Port)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if err := client.Send(SyslogWarning, "test message"); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 4096)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatal(err)
	}

	got := string(buf[:n])
	// Priority = facility*8 + severity = 16*8 + 4 = 132
	if got[:5] != "<132>" {
		t.Errorf("unexpected priority prefix: %q", got[:10])
	}
	if !strings.Contains(got, "upe: test message") {
		t.Errorf("message not found in %q", got)
	}
}

func TestSyslogCategoryFilter(t *testing.T) {
	c := &SyslogClient{Categories: CategoryForward | CategoryDrop}
	if !c.ShouldSendEvent(SyslogInfo, CategoryForward) {
		t.Error("should pass forward")
	}
	if !c.ShouldSendEvent(SyslogInfo, CategoryDrop) {
		t.Error("should pass drop")
	}
	if c.ShouldSendEvent(SyslogInfo, CategoryLearn) {
		t.Error("should block learn")
	}
	// Zero categories = no filter
	c2 := &SyslogClient{Categories: 0}
	if !c2.ShouldSendEvent(SyslogInfo, CategoryLearn) {
		t.Error("no filter should pass all")
	}
}

func TestSyslogCategoryFilterCombinesWithSeverity(t *testing.T) {
	c := &SyslogClient{MinSeverity: SyslogWarning, Categories: CategoryDrop}
	if !c.ShouldSendEvent(SyslogError, CategoryDrop) {
		t.Error("error severity with matching category should pass")
	}
	if c.ShouldSendEvent(SyslogInfo, CategoryDrop) {
		t.Error("info severity should be blocked by severity filter regardless of category")
	}
	if c.ShouldSendEvent(SyslogError, CategoryForward) {
		t.Error("matching severity with non-matching category should be blocked")
	}
}
