package levels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
)

func plateauHistogram() [256]int {
	var h [256]int
	for i := range h {
		h[i] = 5
	}
	h[10] = 40
	h[240] = 60
	return h
}

func TestLevels_Plateaus(t *testing.T) {
	black, white := Levels(plateauHistogram())
	assert.Equal(t, 10, black)
	assert.Equal(t, 240, white)
}

func TestLevels_FlatHistogramKeepsExtremes(t *testing.T) {
	var h [256]int
	for i := range h {
		h[i] = 7
	}
	black, white := Levels(h)
	assert.Equal(t, 0, black)
	assert.Equal(t, 255, white)
}

func TestLevels_ExtendsWhileRising(t *testing.T) {
	h := plateauHistogram()
	h[31], h[32], h[33] = 41, 42, 43
	black, _ := Levels(h)
	assert.Equal(t, 33, black)

	// a single dip does not stop the search
	h[34], h[35] = 1, 44
	black, _ = Levels(h)
	assert.Equal(t, 35, black)
}

func TestStretch_Saturates(t *testing.T) {
	r := core.NewRaster(6, 1, 1)
	copy(r.Pix, []uint8{0, 10, 125, 240, 250, 255})

	out := Stretch(r, 10, 240)
	require.Len(t, out.Data, 6)
	assert.Equal(t, float32(0), out.Data[0])
	assert.Equal(t, float32(0), out.Data[1])
	assert.InDelta(t, 0.5, out.Data[2], 1e-6)
	assert.Equal(t, float32(1), out.Data[3])
	assert.Equal(t, float32(1), out.Data[4])
	assert.Equal(t, float32(1), out.Data[5])
}

func TestStretch_DegenerateLevels(t *testing.T) {
	r := core.NewRaster(1, 1, 1)
	r.Pix[0] = 51
	out := Stretch(r, 100, 100)
	assert.InDelta(t, 0.2, out.Data[0], 1e-6)
}

func TestApply_CollapsesColour(t *testing.T) {
	r := core.NewRaster(4, 4, 3)
	for i := range r.Pix {
		r.Pix[i] = 200
	}
	out, _, _ := Apply(r)
	assert.Equal(t, 1, out.Channels)
	assert.Len(t, out.Data, 16)
}
