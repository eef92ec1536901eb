package resize

import "math"

// The dot-gain 20% curve models ink spread on paper: a nominal coverage k
// prints as 1.8k - 0.8k², which is 70% at a nominal 50% dot.  Samples store
// lightness, so coverage is 1 - v.
var (
	dotGainToLinear = buildLUT(func(v float64) float64 {
		k := 1 - v
		return 1 - (1.8*k - 0.8*k*k)
	})
	linearToDotGain = buildLUT(func(v float64) float64 {
		printed := 1 - v
		k := (1.8 - math.Sqrt(3.24-3.2*printed)) / 1.6
		return 1 - k
	})
)

func buildLUT(f func(float64) float64) [256]uint8 {
	var lut [256]uint8
	for i := range lut {
		v := math.Round(f(float64(i)/255) * 255)
		switch {
		case v < 0:
			v = 0
		case v > 255:
			v = 255
		}
		lut[i] = uint8(v)
	}
	return lut
}

func applyLUT(pix []uint8, lut [256]uint8) {
	for i, v := range pix {
		pix[i] = lut[v]
	}
}
