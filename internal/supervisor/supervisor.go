// Package supervisor binds the configured host:port, serves until a
// shutdown or config reload, and respawns the listener on the fresh
// configuration without trying to preserve in-flight sessions across
// the respawn.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hostbridge/sysbridge/internal/config"
)

// Status is the supervisor's state machine value.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
	// reloadGrace is the pause between a listener's shutdown and the
	// next bind attempt, giving the OS time to release the port.
	reloadGrace = 500 * time.Millisecond
)

// HandlerFactory builds the HTTP handler for a given config snapshot,
// so a reload can serve a handler wired against the fresh document
// (e.g. a changed auth policy) without restarting the whole process.
type HandlerFactory func(config.AppConfig) http.Handler

// Supervisor owns exactly one live listener at a time and respawns it
// whenever the config manager reports a change. No attempt is made to
// preserve open sessions across a reload.
type Supervisor struct {
	cfg     *config.Manager
	handler HandlerFactory
	logger  *slog.Logger

	reloadCh chan struct{}

	mu     sync.Mutex
	status Status
	err    error
}

// New builds a Supervisor and registers itself as a config-change
// listener, so config.Manager.Save (or a file-triggered reload) alone
// is enough to trigger a respawn.
func New(cfg *config.Manager, handler HandlerFactory, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		cfg:      cfg,
		handler:  handler,
		logger:   logger.With("component", "supervisor"),
		reloadCh: make(chan struct{}, 1),
		status:   StatusStarting,
	}
	cfg.OnChange(func(config.AppConfig) { s.requestReload() })
	return s
}

func (s *Supervisor) requestReload() {
	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

// Status reports the supervisor's current state and, for StatusError,
// the error that caused it.
func (s *Supervisor) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

func (s *Supervisor) setStatus(status Status, err error) {
	s.mu.Lock()
	s.status = status
	s.err = err
	s.mu.Unlock()
}

// Run binds and serves the current config, respawning the listener on
// every subsequent reload signal, until ctx is cancelled or a bind/serve
// error terminates the process.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		serveCtx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- s.serveOnce(serveCtx) }()

		select {
		case <-ctx.Done():
			cancel()
			<-errCh
			return nil
		case <-s.reloadCh:
			s.logger.Info("reload requested")
			cancel()
			<-errCh
			time.Sleep(reloadGrace)
		case err := <-errCh:
			cancel()
			return err
		}
	}
}

// serveOnce binds a single listener against the config snapshot at call
// time and serves until ctx is cancelled or the listener fails.
func (s *Supervisor) serveOnce(ctx context.Context) error {
	cfg := s.cfg.Get()
	s.setStatus(StatusStarting, nil)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.setStatus(StatusError, err)
		return err
	}

	httpServer := &http.Server{
		Handler:           s.handler(cfg),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.setStatus(StatusRunning, nil)
	s.logger.Info("listening", "addr", addr)

	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- httpServer.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("graceful shutdown failed", "err", err)
		}
		<-serveErrCh
		s.setStatus(StatusStopped, nil)
		return nil
	case err := <-serveErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.setStatus(StatusError, err)
			return err
		}
		s.setStatus(StatusStopped, nil)
		return nil
	}
}
