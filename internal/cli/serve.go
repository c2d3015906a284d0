package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/park285/liarslock/internal/api"
	"github.com/park285/liarslock/internal/msgcat"
	"github.com/park285/liarslock/internal/obslog"
	"github.com/park285/liarslock/internal/sweeper"
)

type ServeOptions struct {
	*RootOptions
	NoSweeper bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the timeout sweeper",
		Long: `Run the match service.

Without REDIS_URL the service keeps state in process memory and without
DATABASE_URL finished matches are archived in memory only.

Example:
  REDIS_URL=redis://localhost:6379/0 liarslock serve
  liarslock serve --no-sweeper`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(contextOf(cmd), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.NoSweeper, "no-sweeper", false, "do not run the timeout sweeper in this process")
	return cmd
}

func runServe(parent context.Context, opts *ServeOptions) error {
	cfg := opts.Config
	log := obslog.L()
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Warn("backend_close_failed", zap.Error(err))
		}
	}()

	msgs, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	srv := api.New(api.Deps{
		Engine:   b.engine,
		Registry: b.registry,
		Archive:  b.archive,
		Messages: msgs,
		Logger:   log,
	})

	if !opts.NoSweeper {
		sw := sweeper.New(b.engine, sweeper.WithInterval(cfg.SweepInterval), sweeper.WithBatch(cfg.SweepBatch))
		if err := sw.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = sw.Stop() }()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.HTTPAddr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown_requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
