package cli

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/upe-project/upe/pkg/dataplane"
)

// Serve listens on a Unix-domain socket at sockPath and runs one
// independent console session per connection, each reading and
// writing over that connection rather than the daemon's own stdio.
// It blocks until ctx is cancelled.
func Serve(ctx context.Context, sockPath string, dp *dataplane.Manager) error {
	os.Remove(sockPath) // stale socket from a prior run

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		return err
	}
	defer ln.Close()
	defer os.Remove(sockPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	slog.Info("CLI socket listening", "path", sockPath)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go serveConn(conn, dp)
	}
}

func serveConn(conn net.Conn, dp *dataplane.Manager) {
	defer conn.Close()
	session := newSession(dp, conn, conn, conn, time.Now())
	if err := session.Run(); err != nil {
		slog.Warn("CLI session ended with error", "remote", conn.RemoteAddr(), "err", err)
	}
}
