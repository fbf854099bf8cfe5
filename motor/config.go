package motor

import (
	"bldc/anticogging"
	"bldc/core"
)

// NumAxes is the number of motor axes on the board.
const NumAxes = 2

// BoardConfig is the persisted configuration of the whole drive.
type BoardConfig struct {
	BrakeResistance  float32      `mapstructure:"brake_resistance" yaml:"brake_resistance"`                             // [ohm]
	UnderVoltageTrip float32      `mapstructure:"dc_bus_undervoltage_trip_level" yaml:"dc_bus_undervoltage_trip_level"` // [V]
	OverVoltageTrip  float32      `mapstructure:"dc_bus_overvoltage_trip_level" yaml:"dc_bus_overvoltage_trip_level"`   // [V]
	DCCalTau         float32      `mapstructure:"dc_cal_tau" yaml:"dc_cal_tau"`                                         // [s]
	SampleTimeoutMS  float32      `mapstructure:"sample_timeout_ms" yaml:"sample_timeout_ms"`
	Axes             []AxisConfig `mapstructure:"axes" yaml:"axes"`
}

// AxisConfig groups the per-axis settings.
type AxisConfig struct {
	Controller  ControllerConfig  `mapstructure:"controller" yaml:"controller"`
	Motor       MotorConfig       `mapstructure:"motor" yaml:"motor"`
	Encoder     EncoderConfig     `mapstructure:"encoder" yaml:"encoder"`
	Trap        TrapConfig        `mapstructure:"trap" yaml:"trap"`
	Anticogging AnticoggingConfig `mapstructure:"anticogging" yaml:"anticogging"`
}

// ControllerConfig holds the cascade gains and limits.
type ControllerConfig struct {
	ControlMode       ControlMode `mapstructure:"control_mode" yaml:"control_mode"`
	PosGain           float32     `mapstructure:"pos_gain" yaml:"pos_gain"`                       // [(counts/s) / counts]
	VelGain           float32     `mapstructure:"vel_gain" yaml:"vel_gain"`                       // [A/(counts/s)]
	VelIntegratorGain float32     `mapstructure:"vel_integrator_gain" yaml:"vel_integrator_gain"` // [A/(counts/s * s)]
	VelLimit          float32     `mapstructure:"vel_limit" yaml:"vel_limit"`                     // [counts/s]
	VelLimitTolerance float32     `mapstructure:"vel_limit_tolerance" yaml:"vel_limit_tolerance"` // 0 disables overspeed
	VelRampRate       float32     `mapstructure:"vel_ramp_rate" yaml:"vel_ramp_rate"`             // [counts/s^2]
	SetpointsInCPR    bool        `mapstructure:"setpoints_in_cpr" yaml:"setpoints_in_cpr"`
}

// MotorConfig holds the current-loop settings and calibration results.
type MotorConfig struct {
	CurrentLim              float32 `mapstructure:"current_lim" yaml:"current_lim"`           // [A]
	SelftestCurrent         float32 `mapstructure:"selftest_current" yaml:"selftest_current"` // [A]
	ShuntConductance        float32 `mapstructure:"shunt_conductance" yaml:"shunt_conductance"`
	MaxModulation           float32 `mapstructure:"max_modulation" yaml:"max_modulation"`
	CurrentControlBandwidth float32 `mapstructure:"current_control_bandwidth" yaml:"current_control_bandwidth"` // [rad/s]
	ControlDeadline         int     `mapstructure:"control_deadline" yaml:"control_deadline"`                   // [timer clocks]
	PhaseResistance         float32 `mapstructure:"phase_resistance" yaml:"phase_resistance"`                   // [ohm]
	PhaseInductance         float32 `mapstructure:"phase_inductance" yaml:"phase_inductance"`                   // [H]
}

// EncoderConfig describes the position sensor.
type EncoderConfig struct {
	CPR          int32   `mapstructure:"cpr" yaml:"cpr"`
	PolePairs    int32   `mapstructure:"pole_pairs" yaml:"pole_pairs"`
	Offset       int32   `mapstructure:"offset" yaml:"offset"`
	PLLBandwidth float32 `mapstructure:"pll_bandwidth" yaml:"pll_bandwidth"` // [rad/s]
}

// TrapConfig bounds planned trajectories.
type TrapConfig struct {
	VelLimit   float32 `mapstructure:"vel_limit" yaml:"vel_limit"`     // [counts/s]
	AccelLimit float32 `mapstructure:"accel_limit" yaml:"accel_limit"` // [counts/s^2]
	DecelLimit float32 `mapstructure:"decel_limit" yaml:"decel_limit"` // [counts/s^2]
	APerCSS    float32 `mapstructure:"a_per_css" yaml:"a_per_css"`     // [A/(counts/s^2)]
}

// AnticoggingConfig holds the calibration thresholds and the compressed map.
type AnticoggingConfig struct {
	PosThreshold float32                `mapstructure:"calib_pos_threshold" yaml:"calib_pos_threshold"` // [counts]
	VelThreshold float32                `mapstructure:"calib_vel_threshold" yaml:"calib_vel_threshold"` // [counts/s]
	Harmonics    []anticogging.Harmonic `mapstructure:"harmonics" yaml:"harmonics"`
}

// DefaultAxisConfig returns the settings of a freshly flashed axis.
func DefaultAxisConfig(axis int) AxisConfig {
	deadline := core.PeriodClocks
	if axis == 1 {
		// The second timer runs half a period behind the first
		deadline = 3 * core.PeriodClocks / 2
	}
	return AxisConfig{
		Controller: ControllerConfig{
			ControlMode:       ModeCurrent,
			PosGain:           20.0,
			VelGain:           15.0 / 10000.0,
			VelIntegratorGain: 10.0 / 10000.0,
			VelLimit:          20000.0,
			VelLimitTolerance: 1.2,
			VelRampRate:       10000.0,
		},
		Motor: MotorConfig{
			CurrentLim:              10.0,
			SelftestCurrent:         10.0,
			ShuntConductance:        1.0 / 0.0005,
			MaxModulation:           0.20,
			CurrentControlBandwidth: 2000.0,
			ControlDeadline:         deadline,
		},
		Encoder: EncoderConfig{
			CPR:          8192,
			PolePairs:    7,
			PLLBandwidth: 1000.0,
		},
		Trap: TrapConfig{
			VelLimit:   20000.0,
			AccelLimit: 50000.0,
			DecelLimit: 50000.0,
		},
		Anticogging: AnticoggingConfig{
			PosThreshold: 5.0,
			VelThreshold: 5.0,
			Harmonics:    make([]anticogging.Harmonic, anticogging.NumHarmonics),
		},
	}
}

// DefaultBoardConfig returns the settings of a freshly flashed board.
func DefaultBoardConfig() BoardConfig {
	cfg := BoardConfig{
		BrakeResistance:  0.47,
		UnderVoltageTrip: 8.0,
		OverVoltageTrip:  1.08 * 24.0,
		DCCalTau:         0.2,
		SampleTimeoutMS:  2,
	}
	for i := 0; i < NumAxes; i++ {
		cfg.Axes = append(cfg.Axes, DefaultAxisConfig(i))
	}
	return cfg
}
