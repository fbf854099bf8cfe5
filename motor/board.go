package motor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/multierr"

	"bldc/anticogging"
	"bldc/core"
)

// Hardware bundles every driver the board needs.
type Hardware struct {
	ADC      core.ADCDriver
	Inverter core.InverterDriver
	Brake    core.BrakeDriver
	Encoder  core.EncoderDriver
	Gate     core.GateDriver
}

// RegisteredHardware collects the drivers registered with core by the
// target. It panics if one is missing.
func RegisteredHardware() Hardware {
	return Hardware{
		ADC:      core.MustADC(),
		Inverter: core.MustInverter(),
		Brake:    core.MustBrake(),
		Encoder:  core.MustEncoder(),
		Gate:     core.MustGate(),
	}
}

// Board is the complete drive: both axes, the shared bus and the sampling
// sequencer.
type Board struct {
	Config    BoardConfig
	Axes      [NumAxes]*Axis
	Bus       *Bus
	Sequencer *Sequencer
	Params    *core.Registry

	hw     Hardware
	cancel context.CancelFunc
	wg     sync.WaitGroup

	paramMu  sync.Mutex
	paramErr error
}

// NewBoard builds the drive. Missing axis sections are filled with defaults.
func NewBoard(cfg BoardConfig, hw Hardware) (*Board, error) {
	if hw.ADC == nil || hw.Inverter == nil || hw.Brake == nil || hw.Encoder == nil || hw.Gate == nil {
		return nil, errors.New("motor: incomplete hardware")
	}
	for len(cfg.Axes) < NumAxes {
		cfg.Axes = append(cfg.Axes, DefaultAxisConfig(len(cfg.Axes)))
	}

	b := &Board{
		Config: cfg,
		Bus:    NewBus(hw.Brake, cfg),
		hw:     hw,
	}
	drv := Drivers{Inverter: hw.Inverter, Encoder: hw.Encoder, Gate: hw.Gate}
	for i := 0; i < NumAxes; i++ {
		a, err := NewAxis(i, cfg.Axes[i], cfg, drv, b.Bus)
		if err != nil {
			return nil, err
		}
		b.Axes[i] = a
	}
	b.Sequencer = NewSequencer(b.Axes, hw.ADC, hw.Inverter, hw.Gate, cfg)

	b.Params = core.NewRegistry()
	if err := b.registerParams(); err != nil {
		return nil, err
	}
	return b, nil
}

// Start arms the sampling sequence and launches both axis threads.
func (b *Board) Start(ctx context.Context) {
	ctx, b.cancel = context.WithCancel(ctx)
	b.Bus.UpdateBrake(0)
	b.Sequencer.Start()
	for _, a := range b.Axes {
		b.wg.Add(1)
		go func(a *Axis) {
			defer b.wg.Done()
			a.Run(ctx)
		}(a)
	}
}

// Stop disables both axes and waits for their threads to exit.
func (b *Board) Stop() {
	b.DisableAll()
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
}

// DisableAll turns every bridge off. Safe from any context, including
// shutdown hooks.
func (b *Board) DisableAll() {
	for _, a := range b.Axes {
		a.Disable()
	}
	b.Bus.UpdateBrake(0)
}

// Errors returns the combined faults of both axes, nil if there are none.
func (b *Board) Errors() error {
	var err error
	for _, a := range b.Axes {
		if e := a.Errors(); e != ErrNone {
			err = multierr.Append(err, axisError{id: a.ID, err: e})
		}
	}
	return err
}

type axisError struct {
	id  int
	err Error
}

func (e axisError) Error() string {
	return "axis" + core.FormatInt(e.id) + ": " + e.err.String()
}

func (e axisError) Unwrap() error {
	return e.err
}

// Snapshot returns the persisted configuration including calibration
// results. Call it while the axes are idle.
func (b *Board) Snapshot() BoardConfig {
	cfg := b.Config
	cfg.Axes = make([]AxisConfig, NumAxes)
	for i, a := range b.Axes {
		ac := a.Config
		ac.Motor.ShuntConductance = a.ShuntConductance()
		ac.Motor.PhaseResistance = a.PhaseResistance
		ac.Motor.PhaseInductance = a.PhaseInductance
		ac.Encoder.Offset = a.Rotor.Offset
		if a.Anticogging != nil {
			ac.Anticogging.Harmonics = append([]anticogging.Harmonic(nil), a.Anticogging.Harmonics...)
		}
		cfg.Axes[i] = ac
	}
	return cfg
}

// SetParam writes a parameter. Axis parameters are applied on the owning
// axis thread at the start of its next cycle.
func (b *Board) SetParam(name string, v core.Value) error {
	idx, ok := b.Params.Lookup(name)
	if !ok {
		return core.ErrParamName
	}
	p, err := b.Params.Describe(idx)
	if err != nil {
		return err
	}
	if p.Access != core.ReadWrite {
		return core.ErrParamReadOnly
	}
	if p.Kind != v.Kind {
		return core.ErrParamType
	}

	a := b.axisOf(name)
	if a == nil || !a.Running() {
		return b.Params.Set(idx, v)
	}
	if !a.Post(func(*Axis) {
		if err := b.Params.Set(idx, v); err != nil {
			b.recordParamError(name, err)
		}
	}) {
		return errors.New("motor: axis mailbox full")
	}
	return nil
}

func (b *Board) recordParamError(name string, err error) {
	core.DebugPrintln("[PARAM] " + name + ": " + err.Error())
	b.paramMu.Lock()
	b.paramErr = multierr.Append(b.paramErr, fmt.Errorf("%s: %w", name, err))
	b.paramMu.Unlock()
}

// ParamErrors returns and clears the failures of parameter writes that were
// applied on an axis thread after SetParam had returned.
func (b *Board) ParamErrors() error {
	b.paramMu.Lock()
	defer b.paramMu.Unlock()
	err := b.paramErr
	b.paramErr = nil
	return err
}

func (b *Board) axisOf(name string) *Axis {
	for _, a := range b.Axes {
		if strings.HasPrefix(name, axisPrefix(a.ID)) {
			return a
		}
	}
	return nil
}

func axisPrefix(id int) string {
	return "axis" + core.FormatInt(id) + "."
}
