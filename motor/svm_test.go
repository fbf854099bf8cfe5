package motor

import (
	"math"
	"testing"
)

func TestSVMReconstructsVector(t *testing.T) {
	const radius = 0.8
	for deg := 0; deg < 360; deg += 7 {
		th := float64(deg) * math.Pi / 180
		alpha := float32(radius * math.Cos(th))
		beta := float32(radius * math.Sin(th))

		tA, tB, tC := SVM(alpha, beta)
		for _, x := range []float32{tA, tB, tC} {
			if x < 0 || x > 1 {
				t.Fatalf("%d deg: timing %f outside [0, 1]", deg, x)
			}
		}

		// Inverted compare: phase duty is 1-t
		gotAlpha := (tB+tC)/2 - tA
		gotBeta := (tC - tB) * sqrt3By2
		if !approx(gotAlpha, alpha, 1e-5) || !approx(gotBeta, beta, 1e-5) {
			t.Errorf("%d deg: got (%f, %f), want (%f, %f)", deg, gotAlpha, gotBeta, alpha, beta)
		}
	}
}

func TestSVMZeroIsCentered(t *testing.T) {
	tA, tB, tC := SVM(0, 0)
	if tA != 0.5 || tB != 0.5 || tC != 0.5 {
		t.Errorf("SVM(0, 0) = %v, %v, %v", tA, tB, tC)
	}
}
