package resize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/batch-upscale/core"
)

func gradient(w, h, c int) *core.Raster {
	r := core.NewRaster(w, h, c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for k := 0; k < c; k++ {
				r.Pix[(y*w+x)*c+k] = uint8((x*7 + y*13 + k*50) % 256)
			}
		}
	}
	return r
}

func TestStandard_RoundTripKeepsChannels(t *testing.T) {
	for _, c := range []int{1, 3, 4} {
		src := gradient(37, 23, c)
		if c == 4 {
			for i := 3; i < len(src.Pix); i += 4 {
				src.Pix[i] = 128
			}
		}

		up, err := Standard(src, 80, 50)
		require.NoError(t, err)
		assert.Equal(t, c, up.Channels)
		assert.Equal(t, 80, up.Width)
		assert.Equal(t, 50, up.Height)

		back, err := Standard(up, src.Width, src.Height)
		require.NoError(t, err)
		assert.Equal(t, c, back.Channels, "channels=%d", c)
		assert.Len(t, back.Pix, src.Width*src.Height*c)
	}
}

func TestStandard_InvalidSize(t *testing.T) {
	_, err := Standard(gradient(4, 4, 3), 0, 10)
	assert.Error(t, err)
	_, err = Standard(&core.Raster{}, 10, 10)
	assert.Error(t, err)
}

func TestGammaCorrected_OutputIsGray(t *testing.T) {
	src := gradient(120, 160, 3)
	out, err := GammaCorrected(src, 60, 80)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Channels)
	assert.Equal(t, 60, out.Width)
	assert.Equal(t, 80, out.Height)
}

func TestGammaCorrected_FlatStaysFlat(t *testing.T) {
	src := core.NewRaster(64, 64, 1)
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	out, err := GammaCorrected(src, 32, 32)
	require.NoError(t, err)
	for _, v := range out.Pix {
		require.Equal(t, uint8(255), v)
	}
}

func TestImageResize_Dispatch(t *testing.T) {
	src := gradient(40, 40, 3)

	color, err := ImageResize(src, 20, 20, false)
	require.NoError(t, err)
	assert.Equal(t, 3, color.Channels)

	gray, err := ImageResize(src, 20, 20, true)
	require.NoError(t, err)
	assert.Equal(t, 1, gray.Channels)
}

func TestBlurRadius(t *testing.T) {
	_, ok := BlurRadius(100, 200)
	assert.False(t, ok, "upscale needs no blur")

	_, ok = BlurRadius(100, 100)
	assert.False(t, ok)

	r, ok := BlurRadius(800, 100)
	require.True(t, ok)
	assert.InDelta(t, 2.0, r, 1e-9)

	r, ok = BlurRadius(1_000_000, 1)
	require.True(t, ok)
	assert.Equal(t, float64(MaxBlurRadius), r)
}

func TestDotGainLUTs(t *testing.T) {
	assert.Equal(t, uint8(0), dotGainToLinear[0])
	assert.Equal(t, uint8(255), dotGainToLinear[255])
	for i := 1; i < 256; i++ {
		assert.GreaterOrEqual(t, dotGainToLinear[i], dotGainToLinear[i-1])
	}
	for i := 0; i < 256; i++ {
		back := int(linearToDotGain[dotGainToLinear[i]])
		assert.InDelta(t, i, back, 3, "round trip of %d", i)
	}
}
