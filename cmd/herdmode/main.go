// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Command herdmode keeps authenticated connections open to a fleet of
// milking machine controllers and accepts mode change commands over
// HTTP.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/gnuflag"
	"github.com/juju/loggo"
	"github.com/juju/lumberjack/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/herdmode/herdmode/config"
	corelogger "github.com/herdmode/herdmode/core/logger"
	"github.com/herdmode/herdmode/internal/auth"
	"github.com/herdmode/herdmode/internal/fleet"
	"github.com/herdmode/herdmode/internal/metrics"
	"github.com/herdmode/herdmode/internal/transport"
)

var logger = loggo.GetLogger("herdmode.cmd")

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(Main(os.Args[1:], os.Stderr))
}

// options holds the parsed command line.
type options struct {
	configPath    string
	loggingConfig string
	logFile       string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := gnuflag.NewFlagSet("herdmode", gnuflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "config.json", "path to the configuration file")
	fs.StringVar(&opts.loggingConfig, "logging-config", "<root>=INFO", "loggo module levels")
	fs.StringVar(&opts.logFile, "log-file", "", "also write logs to this file, rotated")
	if err := fs.Parse(true, args); err != nil {
		return options{}, errors.Trace(err)
	}
	if len(fs.Args()) > 0 {
		return options{}, errors.Errorf("unrecognized arguments: %v", fs.Args())
	}
	return opts, nil
}

// Main runs the fleet until it fails or the process is interrupted,
// returning the process exit code.
func Main(args []string, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "herdmode: %v\n", err)
		return exitUsage
	}
	if err := setupLogging(opts); err != nil {
		fmt.Fprintf(stderr, "herdmode: %v\n", err)
		return exitUsage
	}

	cfg, err := config.Read(opts.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "herdmode: %v\n", err)
		return exitError
	}
	if err := run(cfg); err != nil {
		logger.Errorf("%v", err)
		return exitError
	}
	return exitOK
}

func setupLogging(opts options) error {
	if err := loggo.ConfigureLoggers(opts.loggingConfig); err != nil {
		return errors.Annotate(err, "logging config")
	}
	if opts.logFile == "" {
		return nil
	}
	writer := &lumberjack.Logger{
		Filename:   opts.logFile,
		MaxSize:    100, // megabytes
		MaxBackups: 2,
		Compress:   true,
	}
	if err := loggo.RegisterWriter("file", loggo.NewSimpleWriter(writer, loggo.DefaultFormatter)); err != nil {
		return errors.Annotate(err, "log file")
	}
	return nil
}

func run(cfg config.Config) error {
	negotiator, err := auth.NewNegotiator(auth.Config{
		SaltURL:    cfg.SaltURL,
		LoginURL:   cfg.LoginURL,
		HTTPClient: auth.NewHTTPClient(cfg.InsecureSkipVerify, cfg.HTTPTimeout),
		Hasher:     auth.ScryptHasher{},
	})
	if err != nil {
		return errors.Trace(err)
	}
	if cfg.InsecureSkipVerify {
		logger.Warningf("TLS certificate verification is disabled")
	}

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collector,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	w, err := fleet.NewWorker(fleet.Config{
		Endpoints: cfg.Endpoints(),
		Username:  cfg.Username,
		Password:  cfg.Password,
		Tokens:    negotiator,
		Dialer: transport.NewDialer(transport.Config{
			Origin:             cfg.Origin,
			UserAgent:          cfg.UserAgent,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
			HandshakeTimeout:   cfg.HTTPTimeout,
		}),
		Clock:             clock.WallClock,
		NewLogger:         corelogger.GetLogger,
		Metrics:           collector,
		Gatherer:          registry,
		ListenAddress:     cfg.ListenAddress,
		LoginAttempts:     cfg.LoginAttempts,
		LoginRetryDelay:   cfg.LoginRetryDelay,
		RetryDelay:        cfg.RetryDelay,
		AuthMessageDelay:  cfg.AuthMessageDelay,
		KeepaliveInterval: cfg.KeepaliveInterval,
		WriteTimeout:      cfg.WriteTimeout,
	})
	if err != nil {
		return errors.Trace(err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signals)

	done := make(chan error, 1)
	go func() {
		done <- w.Wait()
	}()

	logger.Infof("managing %d machines", len(cfg.Endpoints()))
	select {
	case sig := <-signals:
		logger.Infof("received %v, shutting down", sig)
		w.Kill()
		return errors.Trace(<-done)
	case err := <-done:
		return errors.Trace(err)
	}
}
