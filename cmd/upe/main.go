// upe is the userspace packet engine daemon: it loads a rule file,
// attaches to an interface, and forwards frames through a worker pool
// until stopped, while exposing an HTTP status API and an interactive
// console.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/upe-project/upe/pkg/api"
	"github.com/upe-project/upe/pkg/daemon"
	"github.com/upe-project/upe/pkg/logging"
)

func main() {
	ruleFile := flag.String("rules", "/etc/upe/rules.conf", "rule file path")
	iface := flag.String("iface", "", "interface to capture and transmit on")
	pcapReplay := flag.String("pcap-replay", "", "replay frames from a pcap file instead of a live interface")

	poolSize := flag.Int("pool-size", 4096, "buffer pool size")
	ringCount := flag.Int("ring-count", 4, "number of worker rings, must be a power of two")
	ringSize := flag.Int("ring-size", 1024, "per-worker ring capacity, must be a power of two")
	workerBurst := flag.Int("worker-burst", 32, "packets dequeued per worker iteration")

	apiAddr := flag.String("api-addr", "127.0.0.1:8080", "HTTP API listen address (empty to disable)")
	apiHTTPSAddr := flag.String("api-https-addr", "", "HTTPS API listen address (empty to disable)")
	apiTLS := flag.Bool("api-tls", false, "enable HTTPS with an auto-generated certificate")
	apiUser := flag.String("api-user", "", "HTTP Basic Auth username (empty to disable API auth)")
	apiPass := flag.String("api-pass", "", "HTTP Basic Auth password")
	apiKey := flag.String("api-key", "", "API key accepted via X-API-Key or Bearer auth")

	cliSocket := flag.String("cli-socket", "/var/run/upe/cli.sock", "Unix-domain socket for the embedded console (empty to disable)")
	noConsole := flag.Bool("no-console", false, "do not attach the console to the daemon's own stdio")

	statsInterval := flag.Duration("stats-interval", 30*time.Second, "interval between aggregate stats log lines")

	syslogHost := flag.String("syslog-host", "", "forward disposition events to this syslog host (empty to disable)")
	syslogPort := flag.Int("syslog-port", 514, "syslog UDP port")
	localLogPath := flag.String("local-log", "", "write disposition events to this local log file (empty to disable)")

	flowAggInterval := flag.Duration("flow-aggregate-interval", 0, "flush a top-N forwarded-bytes report on this interval (0 disables flow aggregation)")
	flowAggTopN := flag.Int("flow-aggregate-top-n", 10, "number of top sources/destinations to report per flush")

	tracePath := flag.String("trace-file", "", "write matching dataplane events to this trace file (empty disables trace logging)")
	traceFileSize := flag.Int64("trace-file-size", 10*1024*1024, "max trace file size in bytes before rotation")
	traceFileCount := flag.Int("trace-file-count", 3, "number of rotated trace files to keep")
	traceFlags := flag.String("trace-flags", "", "comma-separated event types to trace: forward,drop,learn (empty means all)")

	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	var traceFlagList []string
	if *traceFlags != "" {
		traceFlagList = strings.Split(*traceFlags, ",")
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	textHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	if *syslogHost != "" {
		client, err := logging.NewSyslogClient(*syslogHost, *syslogPort)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upe: failed to create syslog client for daemon logs: %v\n", err)
			slog.SetDefault(slog.New(textHandler))
		} else {
			syslogHandler := logging.NewSyslogSlogHandler(textHandler)
			syslogHandler.SetClients([]*logging.SyslogClient{client})
			slog.SetDefault(slog.New(syslogHandler))
		}
	} else {
		slog.SetDefault(slog.New(textHandler))
	}

	var auth *api.AuthConfig
	if *apiUser != "" || *apiKey != "" {
		auth = &api.AuthConfig{
			Users:   map[string]string{},
			APIKeys: map[string]bool{},
		}
		if *apiUser != "" {
			auth.Users[*apiUser] = *apiPass
		}
		if *apiKey != "" {
			auth.APIKeys[*apiKey] = true
		}
	}

	d := daemon.New(daemon.Options{
		RuleFile:      *ruleFile,
		IfaceName:     *iface,
		PcapReplay:    *pcapReplay,
		PoolSize:      *poolSize,
		RingCount:     *ringCount,
		RingSize:      *ringSize,
		WorkerBurst:   *workerBurst,
		APIAddr:       *apiAddr,
		APIHTTPSAddr:  *apiHTTPSAddr,
		APITLS:        *apiTLS,
		APIAuth:       auth,
		CLISocket:     *cliSocket,
		NoConsole:     *noConsole,
		StatsInterval: *statsInterval,
		SyslogHost:    *syslogHost,
		SyslogPort:    *syslogPort,
		LocalLogPath:  *localLogPath,

		FlowAggInterval: *flowAggInterval,
		FlowAggTopN:     *flowAggTopN,

		TracePath:      *tracePath,
		TraceFileSize:  *traceFileSize,
		TraceFileCount: *traceFileCount,
		TraceFlags:     traceFlagList,
	})

	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "upe: %v\n", err)
		os.Exit(1)
	}
}
