// Command bldc-host reads the drive's monitor stream over serial and
// publishes every frame as a telemetry sample.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"bldc/host/logging"
	"bldc/host/serial"
	"bldc/host/telemetry"
)

var (
	configPath = flag.String("config", "", "Host configuration file (YAML)")
	device     = flag.String("device", "", "Serial device path, overrides the config")
)

func main() {
	flag.Parse()

	cfg, err := loadHostConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *device != "" {
		cfg.Serial.Device = *device
	}

	logger := logging.New(cfg.Log)
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("bldc-host failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg HostConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	producer, err := telemetry.New(cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer producer.Close()

	dispatcher := telemetry.NewDispatcher(producer, cfg.Telemetry.Topic, cfg.Telemetry.Workers, cfg.QueueLen, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	port, err := serial.Open(&cfg.Serial)
	if err != nil {
		return err
	}
	logger.Info("Monitoring drive",
		zap.String("device", cfg.Serial.Device),
		zap.String("board", cfg.Board),
		zap.Strings("columns", cfg.Columns))

	// Closing the port unblocks a pending read
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	reader := serial.NewMonitorReader(port)
	for ctx.Err() == nil {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			// Read timeout without data
			reader.Reset()
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return fmt.Errorf("read monitor: %w", err)
		}
		if len(frame.Values) != len(cfg.Columns) {
			logger.Debug("Monitor width mismatch",
				zap.Int("values", len(frame.Values)), zap.Int("columns", len(cfg.Columns)))
		}
		if !dispatcher.Dispatch(telemetry.NewSample(cfg.Board, frame.Time, cfg.Columns, frame.Values)) {
			logger.Warn("Telemetry queue full, dropping sample")
		}
	}

	logger.Info("Shutting down", zap.Int("skipped_lines", reader.Skipped()))
	return nil
}
