package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/secqr/internal/auth"
	"github.com/example/secqr/internal/handlers"
	"github.com/example/secqr/internal/usecase"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scan API over HTTP",
		Long: `Serve exposes image upload and camera-frame scanning, URL reporting, and
(with a database) scan history over HTTP. SIGINT or SIGTERM drains
in-flight requests before exiting.`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}
	cmd.Flags().String("addr", "", "Listen address (overrides config)")
	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	rt, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer rt.logger.Sync() //nolint:errcheck

	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	if addr == "" {
		addr = rt.cfg.Server.Addr
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
	defer cancel()

	client := rt.apiClient()
	b, err := newBackends(ctx, rt, client)
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	server := &http.Server{
		Addr:              addr,
		Handler:           newRouter(rt, client, b),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	rt.logger.Info("secqr API listening", zap.String("addr", listener.Addr().String()))
	return serveHTTPServerWithListener(server, rt.cfg.Server.ShutdownTimeout, rt.logger, listener)
}

func newRouter(rt *app, client scanService, b *backends) *gin.Engine {
	if !rt.verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	r.MaxMultipartMemory = rt.cfg.Upload.MaxBytes

	handlers.RegisterRoutes(r, handlers.Dependencies{
		Decoder:       client,
		Reputation:    b.reputation,
		Reporter:      usecase.NewReporter(client, b.marker, rt.logger),
		ScanHistory:   b.scanHistory,
		History:       b.history,
		Auth:          auth.JWTMiddleware(rt.cfg.Server.JWTSecret, rt.cfg.Server.JWTAudience),
		MaxUploadSize: rt.cfg.Upload.MaxBytes,
		Camera:        rt.cameraConstraints(),
		Logger:        rt.logger,
	})
	return r
}

// scanService is the scan service surface the router needs.
type scanService interface {
	usecase.Decoder
	usecase.ReportSubmitter
}

// serveHTTPServerWithListener serves until the listener fails or SIGINT or
// SIGTERM arrives, then drains in-flight scans for up to shutdownTimeout.
func serveHTTPServerWithListener(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener) error {
	return serveUntilSignal(server, shutdownTimeout, logger, listener, nil)
}

// serveUntilSignal is serveHTTPServerWithListener with an injectable signal
// source. A nil signals channel subscribes to SIGINT and SIGTERM.
func serveUntilSignal(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signals <-chan os.Signal) error {
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	served := make(chan error, 1)
	go func() { served <- serve(server, listener) }()

	select {
	case err := <-served:
		return err
	case sig, ok := <-signals:
		if !ok {
			return <-served
		}
		logger.Info("draining in-flight scans",
			zap.Stringer("signal", sig),
			zap.Duration("timeout", shutdownTimeout))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-served
	}
}

func serve(server *http.Server, listener net.Listener) error {
	var err error
	if listener != nil {
		err = server.Serve(listener)
	} else {
		err = server.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
