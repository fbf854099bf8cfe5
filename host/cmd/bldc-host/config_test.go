package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadHostConfigDefaults(t *testing.T) {
	cfg, err := loadHostConfig("")
	if err != nil {
		t.Fatalf("loadHostConfig: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyACM0" || cfg.Serial.Baud != 115200 {
		t.Errorf("serial = %+v", cfg.Serial)
	}
	if cfg.Telemetry.Kind != "none" || cfg.Telemetry.Workers != 2 {
		t.Errorf("telemetry = %+v", cfg.Telemetry)
	}
}

func TestLoadHostConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "host.yaml")
	data := `
board: bench1
serial:
  device: /dev/ttyUSB3
columns: [vbus_voltage, axis0.Iq, axis0.pll_vel]
telemetry:
  kind: mqtt
  topic: bldc/monitor
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadHostConfig(path)
	if err != nil {
		t.Fatalf("loadHostConfig: %v", err)
	}
	if cfg.Board != "bench1" || cfg.Serial.Device != "/dev/ttyUSB3" {
		t.Errorf("board %q device %q", cfg.Board, cfg.Serial.Device)
	}
	if cfg.Serial.Baud != 115200 {
		t.Errorf("baud default lost: %d", cfg.Serial.Baud)
	}
	if len(cfg.Columns) != 3 || cfg.Columns[2] != "axis0.pll_vel" {
		t.Errorf("columns = %v", cfg.Columns)
	}
	if cfg.Telemetry.MQTT.QoS != 1 || cfg.Telemetry.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("mqtt = %+v", cfg.Telemetry.MQTT)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestLoadHostConfigMissingFile(t *testing.T) {
	if _, err := loadHostConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
