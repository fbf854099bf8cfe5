package serial

import (
	"io"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `mapstructure:"device"`

	// Baud rate of the drive's debug UART (USB CDC ignores this)
	Baud int `mapstructure:"baud"`

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int `mapstructure:"read_timeout_ms"`
}

// DefaultConfig returns the configuration of the drive's monitor link
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 500, // longer than one monitor period
	}
}
