package pgrst

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edgeflare/dataprovider/pkg/dataserver"
	"github.com/edgeflare/dataprovider/pkg/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the data provider operations over HTTP",
		Long:  `serve exposes POST /{operation}/{resource} with the operation params as JSON body, and /metrics on metrics.addr when set`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("server.listenAddr", "", "address the data provider server listens on")
	cmd.Flags().String("metrics.addr", "", "address of the prometheus metrics server, disabled when empty")
	_ = a.v.BindPFlag("server.listenAddr", cmd.Flags().Lookup("server.listenAddr"))
	_ = a.v.BindPFlag("metrics.addr", cmd.Flags().Lookup("metrics.addr"))
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if a.cfg.Metrics.Addr != "" {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{
			Addr:   a.cfg.Metrics.Addr,
			Logger: a.logger.Named("metrics"),
		})
	}

	opts := dataserver.Options{
		Logger:     a.logger,
		BasicAuth:  a.cfg.Server.BasicAuth,
		PathPrefix: a.cfg.Server.PathPrefix,
	}
	if c := a.cfg.Server; c.TLSCertFile != "" {
		cert, err := tls.LoadX509KeyPair(c.TLSCertFile, c.TLSKeyFile)
		if err != nil {
			return fmt.Errorf("error loading TLS key pair: %w", err)
		}
		opts.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}
	server := dataserver.New(a.newProvider(a.newClient()), opts)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(a.cfg.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down server")
	case serveErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	a.logger.Info("server gracefully stopped")
	return nil
}
