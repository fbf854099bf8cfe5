package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"bldc/host/logging"
	"bldc/host/serial"
	"bldc/host/telemetry"
)

// HostConfig is the bldc-host configuration file.
type HostConfig struct {
	Board     string           `mapstructure:"board"`
	Serial    serial.Config    `mapstructure:"serial"`
	Columns   []string         `mapstructure:"columns"` // names of the monitor slots, in order
	QueueLen  int              `mapstructure:"queue_len"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
	Log       logging.Config   `mapstructure:"log"`
}

func loadHostConfig(path string) (HostConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BLDC_HOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := serial.DefaultConfig("/dev/ttyACM0")
	v.SetDefault("board", "bldc0")
	v.SetDefault("serial.device", def.Device)
	v.SetDefault("serial.baud", def.Baud)
	v.SetDefault("serial.read_timeout_ms", def.ReadTimeout)
	v.SetDefault("columns", []string{"vbus_voltage"})
	v.SetDefault("queue_len", 1024)
	v.SetDefault("telemetry.kind", "none")
	v.SetDefault("telemetry.topic", "bldc.monitor")
	v.SetDefault("telemetry.workers", 2)
	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return HostConfig{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	var cfg HostConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return HostConfig{}, fmt.Errorf("decode host config: %w", err)
	}
	if len(cfg.Columns) == 0 {
		return HostConfig{}, fmt.Errorf("no monitor columns configured")
	}
	return cfg, nil
}
