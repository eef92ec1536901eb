package chain

import "github.com/Skryldev/batch-upscale/core"

// IsGrayscale reports whether r is effectively a grayscale image.
//
// For every pixel that is neither pure black nor pure white the absolute
// differences of the channel pairs (r,g), (r,b) and (g,b) are taken, each
// reduced by threshold and floored at zero.  The image is grayscale when the
// mean difference per channel is at most threshold/12.  An image made only of
// pure black and white pixels is reported as colour; a single channel raster
// is always grayscale.
func IsGrayscale(r *core.Raster, threshold int) bool {
	if r.Channels == 1 {
		return true
	}

	var sum, count int64
	c := r.Channels
	for i := 0; i+c <= len(r.Pix); i += c {
		rv, gv, bv := int(r.Pix[i]), int(r.Pix[i+1]), int(r.Pix[i+2])
		if (rv == 0 && gv == 0 && bv == 0) || (rv == 255 && gv == 255 && bv == 255) {
			continue
		}
		sum += int64(reduced(rv-gv, threshold) + reduced(rv-bv, threshold) + reduced(gv-bv, threshold))
		count++
	}

	if count == 0 {
		return false
	}
	return float64(sum)/float64(3*count) <= float64(threshold)/12
}

// reduced returns |d| - threshold saturated at 0.
func reduced(d, threshold int) int {
	if d < 0 {
		d = -d
	}
	d -= threshold
	if d < 0 {
		return 0
	}
	return d
}
