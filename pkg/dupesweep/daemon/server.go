package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/grpc"

	dupesweepv1 "github.com/jamesainslie/dupesweep/pkg/dupesweep/api/v1"
)

// Config holds server configuration.
type Config struct {
	SocketPath string

	// HTTPAddr enables the HTTP endpoints when set.
	HTTPAddr string
}

// Server serves a Service over gRPC and, optionally, HTTP.
type Server struct {
	cfg      Config
	service  *Service
	grpc     *grpc.Server
	listener net.Listener

	http         *http.Server
	httpListener net.Listener
}

// NewServer listens on the unix socket (and HTTP address, if any).
func NewServer(cfg Config, svc *Service) (*Server, error) {
	// Remove stale socket if exists
	if err := os.RemoveAll(cfg.SocketPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.SocketPath), 0o755); err != nil {
		return nil, err
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(context.Background(), "unix", cfg.SocketPath)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		service:  svc,
		grpc:     grpc.NewServer(),
		listener: listener,
	}
	dupesweepv1.RegisterDaemonServer(srv.grpc, svc)

	if cfg.HTTPAddr != "" {
		httpListener, err := lc.Listen(context.Background(), "tcp", cfg.HTTPAddr)
		if err != nil {
			_ = listener.Close()
			return nil, err
		}
		srv.httpListener = httpListener
		srv.http = &http.Server{
			Handler:           NewRouter(svc),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return srv, nil
}

// HTTPAddr returns the bound HTTP address, or "" when HTTP is disabled.
func (s *Server) HTTPAddr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Serve serves until Close. It returns the first listener error.
func (s *Server) Serve() error {
	errc := make(chan error, 2)
	go func() { errc <- s.grpc.Serve(s.listener) }()
	if s.http != nil {
		go func() {
			err := s.http.Serve(s.httpListener)
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
			errc <- err
		}()
	}
	return <-errc
}

// Close stops the servers and removes the socket.
func (s *Server) Close() error {
	var errs []error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, s.http.Shutdown(ctx))
		cancel()
	}
	s.grpc.GracefulStop()
	errs = append(errs, os.RemoveAll(s.cfg.SocketPath))
	return errors.Join(errs...)
}
