package anticogging

import "math/cmplx"

// Harmonic is one retained FFT bin of the map. It is the only structured
// record the drive persists.
type Harmonic struct {
	Index int32   `mapstructure:"index" yaml:"index"`
	Real  float32 `mapstructure:"real" yaml:"real"`
	Imag  float32 `mapstructure:"imag" yaml:"imag"`
}

// Compress stores the len(dst) strongest non-DC bins of the map into dst
// (at most NumHarmonics). Only the lower half of the spectrum is searched;
// the map is real so the upper half mirrors it. Slots for which no non-zero
// bin exists are zeroed.
func (m *Map) Compress(dst []Harmonic) {
	sp := m.acquire()
	defer m.release()

	for i, v := range m.Values {
		sp.buf[i] = complex(float64(v), 0)
	}
	sp.fft.Coefficients(sp.buf, sp.buf)

	for i := range sp.mag {
		sp.mag[i] = cmplx.Abs(sp.buf[i])
	}
	// Ignore the DC component
	sp.mag[0] = 0

	n := len(dst)
	if n > len(m.top) {
		n = len(m.top)
	}
	highestIndices(sp.mag, m.top[:n], m.best[:n])

	for i := range dst {
		if i >= n {
			dst[i] = Harmonic{}
			continue
		}
		idx := m.top[i]
		if idx == 0 || sp.mag[idx] == 0 {
			dst[i] = Harmonic{}
			continue
		}
		dst[i] = Harmonic{
			Index: int32(idx),
			Real:  float32(real(sp.buf[idx])),
			Imag:  float32(imag(sp.buf[idx])),
		}
	}
}

// Decompress rebuilds the map from stored harmonics and enables it.
// Entries outside the lower half of the spectrum are ignored.
func (m *Map) Decompress(h []Harmonic) {
	sp := m.acquire()
	defer m.release()

	for i := range sp.buf {
		sp.buf[i] = 0
	}

	n := len(m.Values)
	for _, e := range h {
		if e.Index < 0 || int(e.Index) >= n/2 {
			continue
		}
		sp.buf[e.Index] = complex(float64(e.Real), float64(e.Imag))
	}

	sp.fft.Sequence(sp.buf, sp.buf)

	// The inverse transform is unnormalised. Only one side of each conjugate
	// pair was stored, so twice the real part restores the amplitude.
	scale := 2 / float64(n)
	for i := range m.Values {
		m.Values[i] = float32(real(sp.buf[i]) * scale)
	}
	m.Use = true
}

// highestIndices writes the indices of the len(indices) largest values into
// indices, in ascending order of value, using a partial selection sort.
// best is scratch of the same length. The retained maxima start at zero
// (values[0] for the top slot), so non-positive values are never selected;
// ties keep whichever index came first.
func highestIndices(values []float64, indices []int, best []float64) {
	n := len(indices)
	if n == 0 || len(values) == 0 {
		return
	}

	for i := 0; i < n-1; i++ {
		best[i] = 0
		indices[i] = 0
	}
	best[n-1] = values[0]
	indices[n-1] = 0

	for i := 1; i < len(values); i++ {
		v := values[i]
		if v <= best[0] {
			continue
		}
		// Shift smaller maxima down until v finds its slot
		for j := 1; j <= n; j++ {
			if j < n && v > best[j] {
				best[j-1] = best[j]
				indices[j-1] = indices[j]
			} else {
				best[j-1] = v
				indices[j-1] = i
				break
			}
		}
	}
}
