// Package config loads and persists the drive configuration: gains, limits,
// calibration results and the compressed anti-cogging map.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"bldc/motor"
)

// EnvPrefix prefixes environment overrides of the board-level keys, for
// example BLDC_DC_BUS_OVERVOLTAGE_TRIP_LEVEL.
const EnvPrefix = "BLDC"

// Load reads a configuration file over the defaults. An empty path returns
// the defaults with environment overrides applied. Axis sections may be
// partial; missing keys keep their default.
func Load(path string) (motor.BoardConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return motor.BoardConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := motor.DefaultBoardConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return motor.BoardConfig{}, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)

	if err := Validate(cfg); err != nil {
		return motor.BoardConfig{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(path string, cfg motor.BoardConfig) error {
	var settings map[string]interface{}
	if err := mapstructure.Decode(cfg, &settings); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	v := viper.New()
	for k, val := range settings {
		v.Set(k, val)
	}
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "yaml" && ext != "yml" {
		return errors.New("config: save path must end in .yaml or .yml")
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Board-level keys are registered so that environment overrides apply
	// even when the file does not mention them.
	d := motor.DefaultBoardConfig()
	v.SetDefault("brake_resistance", d.BrakeResistance)
	v.SetDefault("dc_bus_undervoltage_trip_level", d.UnderVoltageTrip)
	v.SetDefault("dc_bus_overvoltage_trip_level", d.OverVoltageTrip)
	v.SetDefault("dc_cal_tau", d.DCCalTau)
	v.SetDefault("sample_timeout_ms", d.SampleTimeoutMS)
	return v
}

// applyDefaults fills axis sections a file left out or zeroed.
func applyDefaults(cfg *motor.BoardConfig) {
	for len(cfg.Axes) < motor.NumAxes {
		cfg.Axes = append(cfg.Axes, motor.DefaultAxisConfig(len(cfg.Axes)))
	}
	for i := range cfg.Axes {
		ax := &cfg.Axes[i]
		d := motor.DefaultAxisConfig(i)
		if ax.Motor.ControlDeadline == 0 {
			ax.Motor.ControlDeadline = d.Motor.ControlDeadline
		}
		if ax.Encoder.CPR == 0 {
			ax.Encoder.CPR = d.Encoder.CPR
		}
		if ax.Encoder.PolePairs == 0 {
			ax.Encoder.PolePairs = d.Encoder.PolePairs
		}
		if ax.Encoder.PLLBandwidth == 0 {
			ax.Encoder.PLLBandwidth = d.Encoder.PLLBandwidth
		}
	}
}
