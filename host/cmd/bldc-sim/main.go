// Command bldc-sim calibrates a simulated drive: it runs the self-test and
// the anti-cogging sweep on the bench motor and saves the resulting
// configuration.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"bldc/config"
	"bldc/core"
	"bldc/host/logging"
	"bldc/motor"
	"bldc/sim"
)

var (
	configPath = flag.String("config", "", "Drive configuration to start from (YAML)")
	outPath    = flag.String("out", "bldc-calibrated.yaml", "Where to save the calibrated configuration")
	axisFlag   = flag.Int("axis", 0, "Axis to calibrate")
	cogging    = flag.Float64("cogging", 0.004, "Simulated cogging torque amplitude [N m]")
	cogCycles  = flag.Int("cogging-cycles", 42, "Cogging cycles per revolution")
	skipAC     = flag.Bool("skip-anticogging", false, "Only run the self-test")
	maxSweep   = flag.Duration("max-sweep", 60*time.Second, "Simulated time limit of the anti-cogging sweep")
	logLevel   = flag.String("log-level", "info", "Log level")
)

// Control time slice between sweep progress checks
const sweepSlice = 100 * time.Millisecond

func main() {
	flag.Parse()

	logger := logging.New(logging.Config{Level: *logLevel})
	defer logger.Sync()

	core.SetDebugWriter(logging.DebugWriter(logger))
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()

	if err := run(logger); err != nil {
		core.DumpTimingRing()
		logger.Error("Calibration failed", zap.Error(err), zap.String("shutdown_reason", core.ShutdownReason()))
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	cfg := motor.DefaultBoardConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *axisFlag < 0 || *axisFlag >= motor.NumAxes {
		return fmt.Errorf("axis %d out of range", *axisFlag)
	}

	params := [motor.NumAxes]sim.MotorParams{sim.DefaultMotorParams(), sim.DefaultMotorParams()}
	for i := range params {
		params[i].CPR = int(cfg.Axes[i].Encoder.CPR)
		params[i].PolePairs = int(cfg.Axes[i].Encoder.PolePairs)
		params[i].CoggingTorque = *cogging
		params[i].CoggingCycles = *cogCycles
	}
	bench := sim.NewBench(params)
	board, err := motor.NewBoard(cfg, bench.Hardware())
	if err != nil {
		return err
	}
	bench.Attach(board)
	core.OnShutdown(func(reason string) {
		board.DisableAll()
		logger.Error("Drive shut down", zap.String("reason", reason))
	})

	// Let the DC offset filters settle
	bench.Run(time.Second)

	a := board.Axes[*axisFlag]
	bench.SetOutputs(a.ID, true)
	if e := a.SelfTest(); e != motor.ErrNone {
		return fmt.Errorf("selftest: %w", e)
	}
	logger.Info("Self-test done",
		zap.Int("axis", a.ID),
		zap.Float32("phase_resistance", a.PhaseResistance),
		zap.Float32("phase_inductance", a.PhaseInductance),
		zap.Int32("encoder_offset", a.Rotor.Offset))

	if !*skipAC {
		if err := sweep(bench, a, logger); err != nil {
			return err
		}
	}

	if err := config.Save(*outPath, board.Snapshot()); err != nil {
		return err
	}
	logger.Info("Saved configuration", zap.String("path", *outPath), zap.Duration("sim_time", bench.Now()))
	return nil
}

// sweep runs the anti-cogging calibration in slices of control time until
// the map is complete.
func sweep(bench *sim.Bench, a *motor.Axis, logger *zap.Logger) error {
	if a.Anticogging == nil {
		return fmt.Errorf("axis %d has no anti-cogging map", a.ID)
	}
	if !a.StartAnticoggingCalibration() {
		return fmt.Errorf("anti-cogging calibration refused, errors %v", a.Errors())
	}

	start := bench.Now()
	for a.Anticogging.Calibrating {
		if bench.Now()-start > *maxSweep {
			return fmt.Errorf("anti-cogging sweep incomplete at count %d", a.Anticogging.Index)
		}
		a.Enable()
		bench.SetOutputs(a.ID, true)
		bench.After(sweepSlice, a.Disable)
		if e := a.ControlLoop(context.Background()); e != motor.ErrNone {
			return fmt.Errorf("anti-cogging sweep: %w", e)
		}
		logger.Debug("Sweep progress", zap.Int("index", a.Anticogging.Index))
	}

	for _, h := range a.Anticogging.Harmonics {
		logger.Info("Cogging harmonic",
			zap.Int32("index", h.Index), zap.Float32("real", h.Real), zap.Float32("imag", h.Imag))
	}
	return nil
}
