// Package server owns the listen/serve/shutdown lifecycle of the HTTP API
// and the gRPC probe endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	grpcsrv "github.com/uvci/resto/pkg/grpc"
	"github.com/uvci/resto/pkg/logger"
)

type Config struct {
	Addr    string
	Handler http.Handler

	// GRPC is optional; it is served on GRPCAddr next to the HTTP server.
	GRPC     *grpcsrv.Server
	GRPCAddr string

	ShutdownTimeout time.Duration
	// Ready, if non-nil, is closed once every listener is bound.
	Ready chan<- struct{}
}

// Run serves until ctx is done or a server fails, then shuts both down.
// In-flight HTTP requests get ShutdownTimeout to finish.
func Run(ctx context.Context, cfg Config) error {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           cfg.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 2)
	go func() {
		logger.Info("server: http listening", "addr", lis.Addr().String())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- fmt.Errorf("server: http: %w", err)
		}
	}()

	if cfg.GRPC != nil {
		glis, err := grpcsrv.Listen(cfg.GRPCAddr)
		if err != nil {
			_ = srv.Close()
			return err
		}
		go func() {
			if err := cfg.GRPC.Serve(glis); err != nil {
				errs <- err
			}
		}()
	}
	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("server: shutting down")
	case runErr = <-errs:
		logger.Error("server: stopped on error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout)
	defer cancel()
	if cfg.GRPC != nil {
		cfg.GRPC.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("server: shutdown: %w", err))
	}
	return runErr
}
