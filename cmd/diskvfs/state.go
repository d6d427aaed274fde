package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/diskvfs/diskvfs/internal/config"
	"github.com/diskvfs/diskvfs/internal/filesystem"
	"github.com/diskvfs/diskvfs/internal/metrics"
	"github.com/diskvfs/diskvfs/pkg/health"
	"github.com/diskvfs/diskvfs/pkg/utils"
)

// state holds what every command needs. It is filled by setup, before any action runs.
type state struct {
	stdin io.Reader

	cfg       *config.Configuration
	logger    *utils.StructuredLogger
	logCloser io.Closer
	collector *metrics.Collector
	tracker   *health.Tracker
	fsys      *filesystem.FileSystem
	session   *filesystem.Session
}

// setup loads the configuration (defaults, then file, then environment, then flags),
// opens the log output and assembles the filesystem.
func (s *state) setup(c *cli.Context) error {
	cfg := config.NewDefault()
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if level := c.String("log-level"); level != "" {
		cfg.Global.LogLevel = level
	}
	if root := c.String("root"); root != "" {
		cfg.Filesystem.Root = root
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg

	logger, closer, err := newLogger(cfg.Global)
	if err != nil {
		return err
	}
	s.logger, s.logCloser = logger, closer

	s.collector, err = metrics.NewCollector(metrics.ConfigFromSettings(cfg.Metrics))
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	s.tracker = health.NewTracker(health.ConfigFromSettings(cfg.Health))
	for _, component := range []string{filesystem.ComponentBackend, filesystem.ComponentIdentity} {
		s.tracker.RegisterComponent(component)
		s.collector.UpdateComponentHealth(component, true)
	}
	s.tracker.AddHealthListener(&healthGauge{collector: s.collector})

	s.fsys, err = filesystem.NewFromConfig(cfg, filesystem.Options{
		Logger:   logger,
		Recorder: s.collector,
		Observer: s.collector,
		Health:   s.tracker,
	})
	if err != nil {
		return err
	}

	s.session = s.fsys.NewSession()
	if cwd := c.String("cwd"); cwd != "" {
		if err := s.session.SetWorkingDirectory(c.Context, cwd); err != nil {
			return err
		}
	}
	return nil
}

func (s *state) teardown(*cli.Context) error {
	if s.logCloser != nil {
		return s.logCloser.Close()
	}
	return nil
}

func newLogger(global config.GlobalConfig) (*utils.StructuredLogger, io.Closer, error) {
	level, err := utils.ParseLogLevel(global.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	format, err := utils.ParseLogFormat(global.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	output, closer, err := utils.OpenLogOutput(global.LogFile)
	if err != nil {
		return nil, nil, err
	}

	cfg := utils.DefaultStructuredLoggerConfig()
	cfg.Level = level
	cfg.Format = format
	cfg.Output = output
	logger, err := utils.NewStructuredLogger(cfg)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, nil, err
	}
	return logger, closer, nil
}

// healthGauge mirrors component availability into the metrics collector.
type healthGauge struct {
	collector *metrics.Collector
}

func (h *healthGauge) OnStateChange(component string, _, newState health.HealthState, _ error) {
	h.collector.UpdateComponentHealth(component, newState != health.StateUnavailable)
}

func (h *healthGauge) OnHealthCheck(string, bool, error) {}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s: expected %d argument(s), got %d\nusage: %s %s",
			c.Command.Name, n, c.NArg(), c.Command.Name, c.Command.ArgsUsage)
	}
	return nil
}
