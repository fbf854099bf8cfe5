package core

// EncoderDriver exposes the free-running 16-bit quadrature counters.
type EncoderDriver interface {
	// Count returns the raw counter of an axis. It wraps modulo 65536.
	Count(axis int) uint16
}

var encoderDriver EncoderDriver

// SetEncoderDriver is called by target-specific code to register its driver.
func SetEncoderDriver(d EncoderDriver) {
	encoderDriver = d
}

// MustEncoder returns the configured driver or panics if missing.
func MustEncoder() EncoderDriver {
	if encoderDriver == nil {
		panic("encoder driver not configured")
	}
	return encoderDriver
}
