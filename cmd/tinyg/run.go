package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tinyg-go/pkg/config"
	"tinyg-go/pkg/host"
	"tinyg-go/pkg/log"
)

type runFlags struct {
	config   string
	port     string
	baud     int
	listen   string
	metrics  string
	mode     string
	logLevel string
	script   string
}

var runOpts runFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the controller",
	Long: `Run the controller until interrupted, or until console input ends and the
machine has stopped.

Flags override the matching settings in the configuration file.`,
	RunE: runController,
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runOpts.config, "config", "c", "", "configuration file (tinyg.cfg)")
	f.StringVar(&runOpts.port, "port", "", "serial port for the console, '-' for stdin/stdout")
	f.IntVar(&runOpts.baud, "baud", 0, "serial baud rate")
	f.StringVar(&runOpts.listen, "listen", "", "websocket console address")
	f.StringVar(&runOpts.metrics, "metrics", "", "metrics endpoint address")
	f.StringVar(&runOpts.mode, "mode", "", "communications mode: text, json or grbl")
	f.StringVar(&runOpts.logLevel, "log-level", "", "log level: debug, info, warn or error")
	f.StringVar(&runOpts.script, "script", "", "diagnostic script to play at startup")
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command, path string) (*config.ControllerConfig, error) {
	cfg, err := config.LoadController(path)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return cfg, nil
	}
	f := cmd.Flags()
	if f.Changed("port") {
		cfg.USB.Port = runOpts.port
	}
	if f.Changed("baud") {
		cfg.USB.Baud = runOpts.baud
	}
	if f.Changed("listen") {
		cfg.Net.Listen = runOpts.listen
	}
	if f.Changed("metrics") {
		cfg.Metrics.Listen = runOpts.metrics
	}
	if f.Changed("mode") {
		cfg.CommunicationsMode = runOpts.mode
	}
	if f.Changed("log-level") {
		cfg.Log.Level = runOpts.logLevel
	}
	return cfg, cfg.Validate()
}

func runController(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, runOpts.config)
	if err != nil {
		return err
	}
	closer, err := log.Configure(log.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	var opts []host.Option
	if runOpts.script != "" {
		opts = append(opts, host.WithScript(runOpts.script))
	}
	h, err := host.New(cfg, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return h.Run(ctx)
}
