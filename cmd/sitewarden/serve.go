package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httpadapter "sitewarden/internal/adapters/http"
	"sitewarden/internal/workers/scanrunner"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background scan workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().Int("workers", 2, "number of background scan workers")
	_ = a.v.BindPFlag("server.listen_addr", cmd.Flags().Lookup("listen"))
	_ = a.v.BindPFlag("workers.count", cmd.Flags().Lookup("workers"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	svc, err := buildServices(ctx, a.cfg, a.log)
	if err != nil {
		return err
	}
	defer svc.Close()

	srv := httpadapter.New(svc.scanner, svc.websites, svc.reports, a.log)
	httpSrv := &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()
	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		scanrunner.Run(workerCtx, svc.store, svc.scanner, a.cfg.Workers.Count, a.cfg.Workers.PollInterval, a.log)
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	a.log.Infow("listening", "addr", a.cfg.Server.ListenAddr, "workers", a.cfg.Workers.Count, "driver", a.cfg.Database.Driver)

	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Infow("shutting down")
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		serveErr = errors.Join(serveErr, err)
	}
	stopWorkers()
	// Workers finish the scans they already claimed.
	<-workersDone
	return serveErr
}
