package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
)

func solid(w, h int, rgb [3]uint8) *core.Raster {
	r := core.NewRaster(w, h, 3)
	for i := 0; i < len(r.Pix); i += 3 {
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = rgb[0], rgb[1], rgb[2]
	}
	return r
}

// tinted returns a raster whose pixels drift from gray by up to spread.
func tinted(w, h, spread int) *core.Raster {
	r := core.NewRaster(w, h, 3)
	for i, p := 0, 0; i < len(r.Pix); i, p = i+3, p+1 {
		d := uint8(p % (spread + 1))
		r.Pix[i], r.Pix[i+1], r.Pix[i+2] = 120+d, 120, 120-d
	}
	return r
}

func TestSelect_FirstMatchWins(t *testing.T) {
	img := solid(100, 100, [3]uint8{200, 30, 30})
	r1 := core.Chain{Color: true, ModelPath: "one.pth"}
	r2 := core.Chain{Color: true, Grayscale: true, ModelPath: "two.pth"}

	d := Select(img, core.Geometry{Scale: 2}, []core.Chain{r1, r2}, 12)
	require.True(t, d.Matched())
	assert.Equal(t, 0, d.Index)
	assert.Equal(t, "one.pth", d.Chain.ModelPath)

	d = Select(img, core.Geometry{Scale: 2}, []core.Chain{r2, r1}, 12)
	require.True(t, d.Matched())
	assert.Equal(t, "two.pth", d.Chain.ModelPath)
}

func TestSelect_NoMatch(t *testing.T) {
	img := solid(10, 10, [3]uint8{128, 128, 128})
	d := Select(img, core.Geometry{Scale: 2}, []core.Chain{{Color: true}}, 12)

	assert.False(t, d.Matched())
	assert.Equal(t, -1, d.Index)
	assert.False(t, d.Grayscale)
	assert.Equal(t, 10, d.OriginalWidth)
	assert.Equal(t, 10, d.OriginalHeight)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name  string
		c     core.Chain
		w, h  int
		gray  bool
		scale float64
		want  bool
	}{
		{"unbounded", core.Chain{Color: true}, 500, 500, false, 2, true},
		{"min width", core.Chain{Color: true, MinWidth: 600}, 500, 500, false, 2, false},
		{"min height inclusive", core.Chain{Color: true, MinHeight: 500}, 500, 500, false, 2, true},
		{"max width", core.Chain{Color: true, MaxWidth: 400}, 500, 500, false, 2, false},
		{"max height inclusive", core.Chain{Color: true, MaxHeight: 500}, 500, 500, false, 2, true},
		{"gray rejected", core.Chain{Color: true}, 500, 500, true, 2, false},
		{"color rejected", core.Chain{Grayscale: true}, 500, 500, false, 2, false},
		{"above max scale", core.Chain{Color: true, MaxScale: 1.5}, 500, 500, false, 2, false},
		{"below min scale", core.Chain{Color: true, MinScale: 3}, 500, 500, false, 2, false},
		{"scale in range", core.Chain{Color: true, MinScale: 2, MaxScale: 2}, 500, 500, false, 2, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(&tc.c, tc.w, tc.h, tc.gray, tc.scale))
		})
	}
}

func TestIsGrayscale(t *testing.T) {
	assert.True(t, IsGrayscale(core.NewRaster(4, 4, 1), 0), "single channel")
	assert.True(t, IsGrayscale(solid(8, 8, [3]uint8{90, 90, 90}), 0))
	assert.False(t, IsGrayscale(solid(8, 8, [3]uint8{200, 30, 30}), 12))
	assert.False(t, IsGrayscale(solid(8, 8, [3]uint8{0, 0, 0}), 12), "only pure black")
	assert.False(t, IsGrayscale(solid(8, 8, [3]uint8{255, 255, 255}), 12), "only pure white")
}

func TestIsGrayscale_ThresholdMonotonic(t *testing.T) {
	img := tinted(32, 32, 20)
	seenGray := false
	for th := 0; th <= 255; th++ {
		gray := IsGrayscale(img, th)
		if seenGray {
			require.True(t, gray, "threshold %d flipped back to colour", th)
		}
		seenGray = seenGray || gray
	}
	assert.True(t, seenGray)
}
