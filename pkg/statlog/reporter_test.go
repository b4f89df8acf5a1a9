package statlog

import (
	"context"
	"testing"
	"time"

	"github.com/upe-project/upe/pkg/dataplane"
	"github.com/upe-project/upe/pkg/neighbor"
	"github.com/upe-project/upe/pkg/packet"
	"github.com/upe-project/upe/pkg/ruletable"
)

// blockingSource never returns a frame; it exists only so a Manager
// can be constructed and run without an ingress loop actually doing
// anything observable before the test stops it.
type blockingSource struct {
	done chan struct{}
}

func (s *blockingSource) ReadFrame(dst []byte) (int, error) {
	<-s.done
	return 0, errStopped
}

func (s *blockingSource) Close() error {
	close(s.done)
	return nil
}

type errStoppedType struct{}

func (errStoppedType) Error() string { return "statlog: test source stopped" }

var errStopped error = errStoppedType{}

type discardSink struct{}

func (discardSink) SendBatch(batch []*packet.Buffer) (int, error) { return len(batch), nil }

func newTestManager(t *testing.T) *dataplane.Manager {
	t.Helper()
	m, err := dataplane.New(dataplane.Config{
		PoolSize:    32,
		RingCount:   2,
		RingSize:    8,
		WorkerBurst: 4,
		NeighborCap: 8,
		TxMAC:       neighbor.MAC{1, 2, 3, 4, 5, 6},
		Source:      &blockingSource{done: make(chan struct{})},
		Sink:        discardSink{},
		RuleTable:   ruletable.New(),
	})
	if err != nil {
		t.Fatalf("dataplane.New: %v", err)
	}
	return m
}

func TestReporterSnapshotDoesNotPanicWithEmptyDataplane(t *testing.T) {
	m := newTestManager(t)
	r := New(m, time.Hour)
	r.snapshot() // must not panic on a manager with no traffic yet
}

func TestReporterRunStopsOnContextCancel(t *testing.T) {
	m := newTestManager(t)
	r := New(m, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
