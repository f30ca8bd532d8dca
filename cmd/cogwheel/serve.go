// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/holomush/cogwheel/internal/admin"
	"github.com/holomush/cogwheel/internal/cog"
	"github.com/holomush/cogwheel/internal/config"
	"github.com/holomush/cogwheel/internal/lifecycle"
	"github.com/holomush/cogwheel/internal/logging"
	"github.com/holomush/cogwheel/internal/module"
	"github.com/holomush/cogwheel/internal/module/lua"
	"github.com/holomush/cogwheel/internal/observability"
	"github.com/holomush/cogwheel/internal/watch"
	"github.com/holomush/cogwheel/pkg/errutil"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load modules and run the command console",
		Long: `Load the admin cog and the configured autoload modules, then read
commands from standard input until interrupted or told to quit.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := logging.SetDefault("cogwheel", version, logging.Options{
				Format: cfg.Log.Format,
				Level:  cfg.Log.Level,
			}); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// runServe runs the host until ctx is done or the console quits.
func runServe(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return oops.Wrapf(err, "invalid configuration")
	}

	table, release, err := openAliasTable(ctx, cfg.Aliases)
	if err != nil {
		return err
	}
	defer release()

	con := newConsole(in, out)
	catalog := module.NewCatalog()
	importer := lua.NewImporter(cfg.Modules.Dir)

	opts := []lifecycle.Option{lifecycle.WithHost(con)}
	if cfg.Modules.DrainLoops {
		opts = append(opts, lifecycle.WithDrainLoops(cfg.Modules.DrainTimeout))
	}
	mgr := lifecycle.New(cog.NewRegistry(), table, module.Chain{catalog, importer}, opts...)
	con.mgr = mgr

	var (
		ready   atomic.Bool
		obsErrs <-chan error
		metrics *observability.Metrics
	)
	if cfg.Metrics.Addr != "" {
		obs := observability.NewServer(cfg.Metrics.Addr,
			observability.WithReadiness(ready.Load),
			observability.WithInventory(mgr))
		if obsErrs, err = obs.Start(); err != nil {
			return oops.Code("SERVER_FAILED").Wrapf(err, "start observability server")
		}
		defer func() {
			ctx, cancel := shutdownContext(ctx)
			defer cancel()
			if err := obs.Stop(ctx); err != nil {
				errutil.LogWarnContext(ctx, nil, "stopping observability server", err)
			}
		}()
		metrics = obs.Metrics()
	}
	recordReload := func(trigger string) func(string, error) {
		return func(_ string, err error) {
			if metrics != nil {
				metrics.RecordReload(trigger, err)
			}
		}
	}

	defer func() {
		slog.InfoContext(ctx, "shutting down")
		ctx, cancel := shutdownContext(ctx)
		defer cancel()
		if err := mgr.Close(ctx); err != nil {
			errutil.LogWarnContext(ctx, nil, "closing modules", err)
		}
	}()

	admin.Register(catalog, mgr, recordReload("console"))
	if err := mgr.LoadModule(ctx, admin.ModuleName); err != nil {
		return err
	}
	for _, name := range cfg.Modules.Autoload {
		err := mgr.LoadModule(ctx, name)
		recordReload("startup")(name, err)
		if err != nil {
			errutil.LogErrorContext(ctx, nil, "autoload failed", err, "module", name)
		}
	}

	var watcher *watch.Watcher
	if cfg.Modules.Watch {
		if watcher, err = watch.New(cfg.Modules.Dir, importer, mgr,
			watch.WithDebounce(cfg.Modules.Debounce),
			watch.WithReloadHook(recordReload("watch"))); err != nil {
			return err
		}
	}

	ready.Store(true)
	slog.InfoContext(ctx, "cogwheel ready", "modules_dir", cfg.Modules.Dir, "autoload", cfg.Modules.Autoload)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	g.Go(func() error { return con.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if obsErrs != nil {
		g.Go(func() error {
			select {
			case err, ok := <-obsErrs:
				if ok && err != nil {
					return oops.Code("SERVER_FAILED").Wrapf(err, "observability server")
				}
				return nil
			case <-gctx.Done():
				return nil
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func shutdownContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
}
