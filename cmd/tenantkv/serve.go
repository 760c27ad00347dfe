package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrife/tenantkv/config"
	"github.com/jrife/tenantkv/utils/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newServeCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()

			if configFile != "" {
				var err error

				if cfg, err = config.Load(configFile); err != nil {
					return err
				}
			}

			return serve(cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to a TOML config file")

	return cmd
}

// newLogger builds the process logger. Logs are written to
// a rotating file if one is configured and to stderr otherwise.
func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var out zapcore.WriteSyncer = zapcore.Lock(os.Stderr)

	if cfg.File.Filename != "" {
		out = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSize,
			MaxAge:     cfg.File.MaxDays,
			MaxBackups: cfg.File.MaxBackups,
			LocalTime:  true,
		})
	}

	return log.New(cfg.Level, out)
}

func serve(cfg *config.Config) error {
	logger, err := newLogger(cfg.Log)

	if err != nil {
		return fmt.Errorf("could not create logger: %s", err)
	}

	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	a, err := newApp(cfg, logger, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)

	if err != nil {
		return err
	}

	defer a.close()

	listener, err := net.Listen("tcp", cfg.ListenAddr)

	if err != nil {
		return fmt.Errorf("could not listen on %s: %s", cfg.ListenAddr, err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	go func() {
		sig := <-signals
		logger.Info("stopping", zap.String("signal", sig.String()))

		if err := a.frontend.Stop(); err != nil {
			logger.Error("could not stop frontend", zap.Error(err))
		}
	}()

	logger.Info("serving", zap.String("addr", listener.Addr().String()), zap.String("backend", cfg.Backend.Plugin), zap.String("overflow", cfg.Overflow.Plugin))

	return a.frontend.Listen(listener)
}
