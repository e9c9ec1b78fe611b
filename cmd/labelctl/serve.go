package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"labelcomposer/internal/handler"
	"labelcomposer/internal/hub"
	"labelcomposer/internal/logging"
	"labelcomposer/internal/watcher"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		addr  string
		dir   string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, optionally watching a scheme directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("schemes") {
				a.cfg.Schemes.Dir = dir
			}
			if cmd.Flags().Changed("watch") {
				a.cfg.Schemes.Watch = watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&dir, "schemes", "", "directory of scheme files to load (overrides config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload scheme files when they change")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	a.logger.Info("starting labelcomposer", "config", a.cfg.Summary())

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sseHub := hub.New(logging.ForComponent("hub"))
	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      handler.NewRouter(st.svc, sseHub, st.metrics, logging.ForComponent("http")),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sseHub.Run(ctx, st.bus)
	})

	if a.cfg.Schemes.Dir != "" {
		w := watcher.New(a.cfg.Schemes.Dir, a.cfg.Schemes.Pattern, st.svc).
			WithDebounce(a.cfg.Schemes.Debounce.Duration()).
			WithLogger(logging.ForComponent("watcher")).
			WithMetrics(st.metrics)
		if err := w.Sync(ctx); err != nil {
			a.logger.Warn("some scheme files failed to load", "error", err)
		}
		if a.cfg.Schemes.Watch {
			g.Go(func() error {
				return w.Watch(ctx)
			})
		}
	}

	g.Go(func() error {
		a.logger.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.Info("server stopped")
	return nil
}
