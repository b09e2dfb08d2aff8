package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"chorus/internal/db"
	"chorus/internal/engine"
	"chorus/internal/migrate"
)

// Options configure a standalone API server.
type Options struct {
	Addr            string
	Workspace       string
	CleanupInterval time.Duration
	Logger          *log.Logger
	// Ready, when set, receives the bound address once the listener is up.
	Ready func(addr string)
}

// Run opens the workspace database, migrates it and serves the API until
// ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	e := engine.New(conn)
	handler, err := New(Config{Engine: e, Logger: logger})
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	swept := startLockCleanup(loopCtx, e, opts.CleanupInterval, logger.WithPrefix("locks"))

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	logger.Info("serving", "addr", ln.Addr().String(), "db", db.Path(opts.Workspace))
	if opts.Ready != nil {
		opts.Ready(ln.Addr().String())
	}

	select {
	case err = <-served:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = srv.Shutdown(shutdownCtx)
		cancel()
		<-served
	}
	stopLoop()
	<-swept
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
