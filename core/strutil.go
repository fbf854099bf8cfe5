package core

// itoa converts an integer to a string without using fmt package
// This is a lightweight alternative for embedded systems
func itoa(n int) string {
	if n < 0 {
		return "-" + utoa64(uint64(-int64(n)))
	}
	return utoa64(uint64(n))
}

// utoa converts an unsigned integer to a string
func utoa(n uint32) string {
	return utoa64(uint64(n))
}

func utoa64(n uint64) string {
	if n == 0 {
		return "0"
	}

	// Build string from right to left
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// ftoa formats f with a fixed number of decimals, rounding half away from zero.
func ftoa(f float32, decimals int) string {
	v := float64(f)
	if v != v {
		return "nan"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	if v > 1e15 {
		if neg {
			return "-inf"
		}
		return "inf"
	}

	scale := uint64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	n := uint64(v*float64(scale) + 0.5)

	s := utoa64(n / scale)
	if decimals > 0 {
		frac := utoa64(n % scale)
		for len(frac) < decimals {
			frac = "0" + frac
		}
		s += "." + frac
	}
	if neg && n != 0 {
		s = "-" + s
	}
	return s
}

// FormatInt is itoa for other packages.
func FormatInt(n int) string {
	return itoa(n)
}

// FormatFloat is ftoa for other packages.
func FormatFloat(f float32, decimals int) string {
	return ftoa(f, decimals)
}
