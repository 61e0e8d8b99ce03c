package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/anima/internal/cli"
	httpAdapter "github.com/aretw0/anima/pkg/adapters/http"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes the soul over HTTP: POST /perceive, the working memory, the facts and
a server-sent event stream of speech and memory diffs at /events.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Stop()

		streams := httpAdapter.NewStreamManager(httpAdapter.WithStreamLogger(logger))
		app, err := cli.Build(ctx, cfg, cli.BuildOptions{
			Sink:    streams,
			Metrics: cfg.HTTP.Metrics,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		defer app.Close()

		opts := []httpAdapter.Option{
			httpAdapter.WithStreams(streams),
			httpAdapter.WithLogger(logger),
		}
		if app.Registry != nil {
			app.Registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			opts = append(opts, httpAdapter.WithMetrics(app.Registry))
		}

		srv := &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           httpAdapter.NewServer(app.Soul, opts...).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", app.Soul.Name(), srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			// Give outstanding requests a deadline for completion.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown did not complete: %w", err)
			}
			return nil
		})

		if err := g.Wait(); err != nil {
			return err
		}
		if sig := ctx.Signal(); sig != nil {
			logger.Info("server stopped", "signal", sig)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Anima server stopped gracefully")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (default :8080)")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics at /metrics")
	mustBind("http.addr", serveCmd.Flags().Lookup("addr"))
	mustBind("http.metrics", serveCmd.Flags().Lookup("metrics"))
}
