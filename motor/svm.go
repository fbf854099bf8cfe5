package motor

const (
	oneBySqrt3 = 0.57735026919
	twoBySqrt3 = 1.15470053838
	sqrt3By2   = 0.86602540378
)

// SVM converts a modulation vector to the three phase compare fractions.
// The timers run in inverted compare mode: a fraction t gives a high-side
// duty of 1-t. Inputs are expected inside the SVM hexagon.
func SVM(alpha, beta float32) (tA, tB, tC float32) {
	var sextant int
	if beta >= 0 {
		if alpha >= 0 {
			// Quadrant I
			if oneBySqrt3*beta > alpha {
				sextant = 2
			} else {
				sextant = 1
			}
		} else {
			// Quadrant II
			if -oneBySqrt3*beta > alpha {
				sextant = 3
			} else {
				sextant = 2
			}
		}
	} else {
		if alpha >= 0 {
			// Quadrant IV
			if -oneBySqrt3*beta > alpha {
				sextant = 5
			} else {
				sextant = 6
			}
		} else {
			// Quadrant III
			if oneBySqrt3*beta > alpha {
				sextant = 4
			} else {
				sextant = 5
			}
		}
	}

	switch sextant {
	case 1:
		// Vector on-times
		t1 := alpha - oneBySqrt3*beta
		t2 := twoBySqrt3 * beta
		// PWM timings
		tA = (1 - t1 - t2) * 0.5
		tB = tA + t1
		tC = tB + t2
	case 2:
		t2 := alpha + oneBySqrt3*beta
		t3 := -alpha + oneBySqrt3*beta
		tB = (1 - t2 - t3) * 0.5
		tA = tB + t3
		tC = tA + t2
	case 3:
		t3 := twoBySqrt3 * beta
		t4 := -alpha - oneBySqrt3*beta
		tB = (1 - t3 - t4) * 0.5
		tC = tB + t3
		tA = tC + t4
	case 4:
		t4 := -alpha + oneBySqrt3*beta
		t5 := -twoBySqrt3 * beta
		tC = (1 - t4 - t5) * 0.5
		tB = tC + t5
		tA = tB + t4
	case 5:
		t5 := -alpha - oneBySqrt3*beta
		t6 := alpha - oneBySqrt3*beta
		tC = (1 - t5 - t6) * 0.5
		tA = tC + t5
		tB = tA + t6
	case 6:
		t6 := -twoBySqrt3 * beta
		t1 := alpha + oneBySqrt3*beta
		tA = (1 - t6 - t1) * 0.5
		tC = tA + t1
		tB = tC + t6
	}
	return tA, tB, tC
}
