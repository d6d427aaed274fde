package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/internal/fuse"
	"github.com/diskvfs/diskvfs/pkg/api"
	"github.com/diskvfs/diskvfs/pkg/types"
)

const shutdownTimeout = 10 * time.Second

// signalContext is cancelled on SIGINT or SIGTERM.
func (s *state) signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigc)

		select {
		case sig := <-sigc:
			s.logger.Info("graceful shutdown initiated", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// probe is the periodic health check of each tracked component.
func (s *state) probe(ctx context.Context, component string) error {
	switch component {
	case filesystem.ComponentBackend:
		return s.fsys.HealthCheck(ctx)
	case filesystem.ComponentIdentity:
		_, err := s.fsys.StatResolved(ctx, types.RootPath())
		return err
	}
	return nil
}

func (s *state) runServe(c *cli.Context) error {
	settings := s.cfg.API
	if addr := c.String("address"); addr != "" {
		settings.Address = addr
	}

	ctx, cancel := s.signalContext(c.Context)
	defer cancel()

	go s.tracker.StartHealthChecks(ctx, s.probe)

	server := api.NewServer(api.ServerConfigFromSettings(settings), s.fsys, s.tracker, s.collector, s.logger)
	errc := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	return server.Shutdown(shutdownCtx)
}

func (s *state) runMount(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	settings := s.cfg.FUSE
	settings.MountPoint = c.Args().Get(0)
	if c.Bool("read-only") {
		settings.ReadOnly = true
	}
	if c.Bool("allow-other") {
		settings.AllowOther = true
	}

	ctx, cancel := s.signalContext(c.Context)
	defer cancel()

	manager := fuse.NewMountManager(s.fsys, settings, s.logger)
	if err := manager.Mount(ctx); err != nil {
		return err
	}

	s.tracker.RegisterComponent(fuse.ComponentMount)
	watcher := fuse.NewMountWatcher(manager, s.tracker, s.cfg.Health.CheckInterval)
	watcher.Start()
	defer watcher.Stop()

	go s.tracker.StartHealthChecks(ctx, func(ctx context.Context, component string) error {
		if component == fuse.ComponentMount && !manager.IsMounted() {
			return fmt.Errorf("%s is not mounted", manager.MountPoint())
		}
		return s.probe(ctx, component)
	})

	manager.Wait()
	return nil
}
