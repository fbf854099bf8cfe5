// Package anticogging holds the per-count cogging feed-forward map, its
// calibration sweep and its compressed harmonic form.
package anticogging

import (
	"errors"

	"gonum.org/v1/gonum/dsp/fourier"
)

// NumHarmonics is the number of harmonics kept for persistence.
const NumHarmonics = 8

// Map size limits
const (
	MinSize = 64
	MaxSize = 65536
)

// ErrSize is returned for map sizes the FFT plan does not support.
var ErrSize = errors.New("anticogging: map size must be a power of two in [64, 65536]")

// Map is the feed-forward current per encoder count. Only Values stays
// resident; the FFT plan and its buffers exist from StartCalibration until
// the sweep is compressed, or for the duration of a Decompress call.
type Map struct {
	Values []float32 // [A], indexed by encoder count
	Use    bool      // lookups are applied by the controller

	// Calibration sweep state
	Calibrating  bool
	Index        int
	PosThreshold float32 // [counts]
	VelThreshold float32 // [counts/s]

	// Harmonics receives the compressed map when a sweep completes.
	Harmonics []Harmonic

	scratch *spectrum
	top     []int
	best    []float64
}

// spectrum is the transform scratch of one map.
type spectrum struct {
	fft *fourier.CmplxFFT
	buf []complex128
	mag []float64
}

// New allocates a map of size cpr. The transform scratch is not allocated.
func New(cpr int) (*Map, error) {
	if cpr < MinSize || cpr > MaxSize || cpr&(cpr-1) != 0 {
		return nil, ErrSize
	}
	return &Map{
		Values:    make([]float32, cpr),
		Harmonics: make([]Harmonic, NumHarmonics),
		top:       make([]int, NumHarmonics),
		best:      make([]float64, NumHarmonics),
	}, nil
}

// acquire returns the transform scratch, allocating it if needed.
func (m *Map) acquire() *spectrum {
	if m.scratch == nil {
		n := len(m.Values)
		m.scratch = &spectrum{
			fft: fourier.NewCmplxFFT(n),
			buf: make([]complex128, n),
			mag: make([]float64, n/2),
		}
	}
	return m.scratch
}

// release drops the transform scratch unless a sweep still needs it.
func (m *Map) release() {
	if !m.Calibrating {
		m.scratch = nil
	}
}

// Resident reports whether the transform scratch is currently allocated.
func (m *Map) Resident() bool {
	return m.scratch != nil
}

// Len returns the map size (the encoder CPR).
func (m *Map) Len() int {
	return len(m.Values)
}

// Lookup returns the feed-forward current at a position in counts.
// The position is truncated toward zero, then wrapped so that -1 maps to
// the last entry.
func (m *Map) Lookup(pos float32) float32 {
	n := len(m.Values)
	i := int(pos) % n
	if i < 0 {
		i += n
	}
	return m.Values[i]
}

// Reset clears the map and disables it.
func (m *Map) Reset() {
	for i := range m.Values {
		m.Values[i] = 0
	}
	m.Use = false
	m.Calibrating = false
	m.Index = 0
	m.release()
}

// StartCalibration begins a sweep from count zero and allocates the
// transform scratch, so completing the sweep does not allocate.
func (m *Map) StartCalibration() {
	m.acquire()
	m.Index = 0
	m.Calibrating = true
}

// CalibrationStep advances the sweep by at most one count. It must be called
// every control cycle while Calibrating. integrator is the velocity
// integrator current holding the rotor at the current index.
//
// It returns the position setpoint to hold and whether the sweep finished.
// On completion the setpoint returns to zero, the map is compressed into
// Harmonics and enabled.
func (m *Map) CalibrationStep(pos, vel, integrator float32) (setpoint float32, done bool) {
	if !m.Calibrating {
		return 0, false
	}

	posErr := float32(m.Index) - pos
	if abs32(posErr) <= m.PosThreshold && abs32(vel) < m.VelThreshold {
		m.Values[m.Index] = integrator
		m.Index++
	}
	if m.Index < len(m.Values) {
		return float32(m.Index), false
	}

	m.Index = 0
	m.Calibrating = false
	m.Compress(m.Harmonics)
	m.Use = true
	return 0, true
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
