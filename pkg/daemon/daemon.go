// Package daemon implements the upe daemon lifecycle: load the rule
// file, bring up the dataplane, and run the control surfaces (HTTP
// API, embedded console, stats reporter) until told to stop.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/upe-project/upe/pkg/api"
	"github.com/upe-project/upe/pkg/capture"
	"github.com/upe-project/upe/pkg/cli"
	"github.com/upe-project/upe/pkg/config"
	"github.com/upe-project/upe/pkg/dataplane"
	"github.com/upe-project/upe/pkg/logging"
	"github.com/upe-project/upe/pkg/neighbor"
	"github.com/upe-project/upe/pkg/packet"
	"github.com/upe-project/upe/pkg/statlog"
	"github.com/upe-project/upe/pkg/txsink"
	"github.com/upe-project/upe/pkg/worker"
)

// Options configures the daemon.
type Options struct {
	RuleFile  string
	IfaceName string // interface both capture and transmit happen on

	PoolSize    int
	RingCount   int
	RingSize    int
	WorkerBurst int

	PcapReplay string // if set, read frames from this pcap file instead of IfaceName

	APIAddr      string
	APIHTTPSAddr string
	APITLS       bool
	APIAuth      *api.AuthConfig

	CLISocket string // Unix-domain socket path for the embedded console; empty disables it
	NoConsole bool   // skip attaching the console to the daemon's own stdio

	StatsInterval time.Duration

	SyslogHost   string
	SyslogPort   int
	LocalLogPath string

	FlowAggInterval time.Duration // 0 disables top-N flow aggregation
	FlowAggTopN     int

	TracePath      string // empty disables trace-file logging
	TraceFileSize  int64
	TraceFileCount int
	TraceFlags     []string // "forward", "drop", "learn"; empty means all
}

// Daemon is the main upe daemon.
type Daemon struct {
	opts Options
	dp   *dataplane.Manager
	api  *api.Server
}

// New creates a new Daemon.
func New(opts Options) *Daemon {
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 30 * time.Second
	}
	return &Daemon{opts: opts}
}

// Run starts the daemon and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting upe daemon",
		"rule_file", d.opts.RuleFile,
		"iface", d.opts.IfaceName,
		"pid", os.Getpid())

	rt, err := config.LoadFile(d.opts.RuleFile)
	if err != nil {
		return fmt.Errorf("daemon: load rule file: %w", err)
	}
	slog.Info("rule file loaded", "file", d.opts.RuleFile, "rules", len(rt.Rules()))

	source, sink, txMAC, err := d.openDatapath()
	if err != nil {
		return fmt.Errorf("daemon: open datapath: %w", err)
	}

	d.dp, err = dataplane.New(dataplane.Config{
		PoolSize:    d.opts.PoolSize,
		RingCount:   d.opts.RingCount,
		RingSize:    d.opts.RingSize,
		WorkerBurst: d.opts.WorkerBurst,
		NeighborCap: 4096,
		TxMAC:       txMAC,
		Source:      source,
		Sink:        sink,
		RuleTable:   rt,
	})
	if err != nil {
		return fmt.Errorf("daemon: create dataplane: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var wg sync.WaitGroup

	d.applyLoggingConfig(ctx, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.dp.Run()
	}()

	reporter := statlog.New(d.dp, d.opts.StatsInterval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	if d.opts.APIAddr != "" {
		d.api = api.NewServer(api.Config{
			Addr:      d.opts.APIAddr,
			HTTPSAddr: d.opts.APIHTTPSAddr,
			TLS:       d.opts.APITLS,
			Auth:      d.opts.APIAuth,
			Manager:   d.dp,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.api.Run(ctx); err != nil {
				slog.Warn("API server stopped with error", "err", err)
			}
		}()
	}

	if d.opts.CLISocket != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := cli.Serve(ctx, d.opts.CLISocket, d.dp); err != nil {
				slog.Warn("CLI socket stopped with error", "err", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	if !d.opts.NoConsole {
		shell := cli.New(d.dp)
		go func() {
			errCh <- shell.Run()
		}()
	}

	var runErr error
	select {
	case err := <-errCh:
		if err != nil {
			runErr = fmt.Errorf("console: %w", err)
		}
	case <-ctx.Done():
		slog.Info("signal received, shutting down")
	}

	stop()
	d.dp.Stop()
	d.dp.Wait()
	wg.Wait()

	slog.Info("shutdown complete")
	return runErr
}

// openDatapath resolves the capture source and transmit sink for the
// configured interface, or a pcap file when replaying recorded
// traffic instead of reading from a live link. Replay mode has no
// real transmit interface, so forwarded frames are discarded by a
// sink that reports every frame as sent.
func (d *Daemon) openDatapath() (capture.Source, worker.TxSink, neighbor.MAC, error) {
	if d.opts.PcapReplay != "" {
		src, err := capture.NewPcapFile(d.opts.PcapReplay)
		if err != nil {
			return nil, nil, neighbor.MAC{}, fmt.Errorf("open pcap replay file: %w", err)
		}
		return src, discardSink{}, neighbor.MAC{}, nil
	}

	if d.opts.IfaceName == "" {
		return nil, nil, neighbor.MAC{}, fmt.Errorf("no interface configured")
	}
	txMAC, err := hardwareAddr(d.opts.IfaceName)
	if err != nil {
		return nil, nil, neighbor.MAC{}, err
	}
	src, err := capture.NewRawSocket(d.opts.IfaceName)
	if err != nil {
		return nil, nil, neighbor.MAC{}, fmt.Errorf("open capture socket: %w", err)
	}
	sink, err := txsink.NewRawSocket(d.opts.IfaceName)
	if err != nil {
		src.Close()
		return nil, nil, neighbor.MAC{}, fmt.Errorf("open transmit socket: %w", err)
	}
	return src, sink, txMAC, nil
}

// discardSink reports every frame it is handed as sent without ever
// transmitting it, used when replaying a pcap file with no live interface to
// send the forwarded result back out on.
type discardSink struct{}

func (discardSink) SendBatch(batch []*packet.Buffer) (int, error) { return len(batch), nil }

func hardwareAddr(ifaceName string) (neighbor.MAC, error) {
	ifi, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return neighbor.MAC{}, fmt.Errorf("lookup interface %q: %w", ifaceName, err)
	}
	var mac neighbor.MAC
	if len(ifi.HardwareAddr) != 6 {
		return mac, fmt.Errorf("interface %q has no 6-byte hardware address", ifaceName)
	}
	copy(mac[:], ifi.HardwareAddr)
	return mac, nil
}

// applyLoggingConfig wires the side-channel log consumers onto the
// dataplane's Reporter. FlowAggregator and TraceWriter both consume
// via Reporter.AddCallback rather than Reporter's syslog/local-writer
// slots, so each gets its own goroutine tracked on wg, stopped when
// ctx is cancelled.
func (d *Daemon) applyLoggingConfig(ctx context.Context, wg *sync.WaitGroup) {
	if d.opts.SyslogHost != "" {
		client, err := logging.NewSyslogClient(d.opts.SyslogHost, d.opts.SyslogPort)
		if err != nil {
			slog.Warn("failed to create syslog client", "host", d.opts.SyslogHost, "err", err)
		} else {
			slog.Info("syslog forwarding configured", "host", d.opts.SyslogHost, "port", d.opts.SyslogPort)
			d.dp.Reporter().SetSyslogClients([]*logging.SyslogClient{client})
		}
	}
	if d.opts.LocalLogPath != "" {
		writer, err := logging.NewLocalLogWriter(logging.LocalLogConfig{Path: d.opts.LocalLogPath})
		if err != nil {
			slog.Warn("failed to create local event log", "path", d.opts.LocalLogPath, "err", err)
		} else {
			slog.Info("local event log configured", "path", d.opts.LocalLogPath)
			d.dp.Reporter().ReplaceLocalWriters([]*logging.LocalLogWriter{writer})
		}
	}
	if d.opts.FlowAggInterval > 0 {
		agg := logging.NewFlowAggregator(d.opts.FlowAggInterval, d.opts.FlowAggTopN)
		agg.SetLogFunc(func(severity int, msg string) {
			slog.Info(msg, "severity", severity)
		})
		d.dp.Reporter().AddCallback(agg.HandleEvent)
		slog.Info("flow aggregation configured", "interval", d.opts.FlowAggInterval, "top_n", d.opts.FlowAggTopN)
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.Run(ctx)
		}()
	}
	if d.opts.TracePath != "" {
		tw, err := logging.NewTraceWriter(logging.TraceConfig{
			Path:      d.opts.TracePath,
			FileSize:  d.opts.TraceFileSize,
			FileCount: d.opts.TraceFileCount,
			Flags:     d.opts.TraceFlags,
		})
		if err != nil {
			slog.Warn("failed to create trace writer", "path", d.opts.TracePath, "err", err)
		} else {
			slog.Info("trace-file logging configured", "path", d.opts.TracePath)
			d.dp.Reporter().AddCallback(tw.HandleEvent)
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-ctx.Done()
				tw.Close()
			}()
		}
	}
}
