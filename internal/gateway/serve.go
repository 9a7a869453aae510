package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ServeOptions struct {
	HTTPAddr string
	// GRPCAddr empty disables the health server.
	GRPCAddr       string
	AdminTokenHash string
	// WatchPaths are manifest files; Reload runs after they change.
	WatchPaths      []string
	Reload          func(context.Context) error
	ShutdownTimeout time.Duration
	Logger          *zap.Logger
	// Ready is called with the bound addresses once every listener is up.
	Ready func(httpAddr, grpcAddr string)
}

// Serve runs the HTTP, MCP and gRPC health surfaces until ctx is cancelled.
func Serve(ctx context.Context, svc *Service, opts ServeOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	if err := svc.reg.Initialize(ctx); err != nil {
		return fmt.Errorf("initial registry load: %w", err)
	}
	hs := NewHealthServer(logger)
	hs.SetServing(true)

	httpLn, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", opts.HTTPAddr, err)
	}
	var grpcLn net.Listener
	if opts.GRPCAddr != "" {
		grpcLn, err = net.Listen("tcp", opts.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return fmt.Errorf("listen grpc %s: %w", opts.GRPCAddr, err)
		}
	}

	if len(opts.WatchPaths) > 0 && opts.Reload != nil {
		w := NewManifestWatcher(opts.WatchPaths, opts.Reload, logger)
		if err := w.Start(ctx); err != nil {
			logger.Warn("manifest watcher disabled", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	handler := NewHTTPServer(svc, HTTPOptions{AdminTokenHash: opts.AdminTokenHash, Logger: logger}).Router()
	httpSrv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", httpLn.Addr().String()))
		if err := httpSrv.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	grpcAddr := ""
	if grpcLn != nil {
		grpcAddr = grpcLn.Addr().String()
		g.Go(func() error {
			return hs.Serve(grpcLn)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hs.SetServing(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		hs.Stop()
		return err
	})
	if opts.Ready != nil {
		opts.Ready(httpLn.Addr().String(), grpcAddr)
	}
	return g.Wait()
}
