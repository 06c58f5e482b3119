package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/getpup/pupdeploy/config"
	"github.com/getpup/pupdeploy/confirm"
	"github.com/getpup/pupdeploy/deploy"
	"github.com/getpup/pupdeploy/logging"
	"github.com/getpup/pupdeploy/metrics"
	"github.com/getpup/pupdeploy/remote"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// app is one configured invocation of the CLI.
type app struct {
	file    config.File
	logger  *logging.Logger
	orch    *deploy.Orchestrator
	pusher  *metrics.Pusher
	logFile *os.File
}

func newApp(opts *globalOptions, stdin *os.File, stderr io.Writer) (*app, error) {
	// 1. Load the configuration
	f, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{file: f}
	runID := uuid.NewString()

	// 2. Logging, tagged with the run ID
	logOpts := logging.Options{
		Level:   f.Log.Level,
		Format:  f.Log.Format,
		Output:  stderr,
		NoColor: !isTerminal(stderr),
	}
	if opts.logLevel != "" {
		logOpts.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		logOpts.Format = opts.logFormat
	}
	if f.Log.File != "" {
		lf, err := os.OpenFile(f.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		a.logFile = lf
		logOpts.File = lf
	}
	a.logger = logging.New(logOpts).WithRunID(runID)

	// 3. Transport, counting remote commands when metrics are enabled
	sshConfig := f.SSHConfig(a.logger)
	if f.MetricsEnabled() {
		sshConfig.Observe = metrics.NewCollector(f.Project).ObserveRemoteCommand
		if f.Metrics.PushgatewayURL != "" {
			a.pusher = metrics.NewPusher(f.Metrics.PushgatewayURL, f.Project, runID, nil)
		}
	}

	// 4. Bind the configuration and build the orchestrator
	cfg, err := f.Deploy(config.Runtime{
		Runner: remote.NewSSHRunner(sshConfig),
		Prompter: confirm.New(confirm.Options{
			Yes:            opts.yes,
			NonInteractive: opts.nonInteractive,
			In:             stdin,
			Out:            stderr,
		}),
		Logger: a.logger,
	})
	if err != nil {
		a.closeLog()
		return nil, err
	}
	cfg.RunID = runID

	a.orch, err = deploy.New(cfg)
	if err != nil {
		a.closeLog()
		return nil, err
	}

	return a, nil
}

// Close pushes the metrics of the run and closes the log file.
// A failed push is logged; it never changes the outcome of the run.
func (a *app) Close(ctx context.Context) {
	if a.pusher != nil {
		if err := a.pusher.Push(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn(ctx, "failed to push metrics", "error", err)
		}
	}
	a.closeLog()
}

func (a *app) closeLog() {
	if a.logFile != nil {
		_ = a.logFile.Close()
		a.logFile = nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
