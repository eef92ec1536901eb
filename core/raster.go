package core

import (
	"image"
	"image/draw"
	"math"
)

// Raster is a decoded 8-bit image: Channels is 1 (gray), 3 (RGB) or 4 (RGBA),
// samples are interleaved row-major.
type Raster struct {
	Width    int
	Height   int
	Channels int
	Pix      []uint8
}

// NewRaster allocates a zeroed raster.
func NewRaster(w, h, c int) *Raster {
	return &Raster{Width: w, Height: h, Channels: c, Pix: make([]uint8, w*h*c)}
}

// Bytes returns the size of the sample buffer.
func (r *Raster) Bytes() int64 { return int64(len(r.Pix)) }

// RasterFromImage copies img into a Raster.  Gray sources stay single
// channel; colour sources become RGB when fully opaque, RGBA otherwise.
func RasterFromImage(img image.Image) *Raster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch src := img.(type) {
	case *image.Gray:
		out := NewRaster(w, h, 1)
		for y := 0; y < h; y++ {
			off := src.PixOffset(b.Min.X, b.Min.Y+y)
			row := src.Pix[off : off+w]
			copy(out.Pix[y*w:(y+1)*w], row)
		}
		return out
	case *image.Gray16:
		out := NewRaster(w, h, 1)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*w+x] = uint8(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return out
	}

	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = image.NewNRGBA(image.Rect(0, 0, w, h))
		draw.Draw(nrgba, nrgba.Bounds(), img, b.Min, draw.Src)
	}

	opaque := true
	for y := 0; y < h && opaque; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] != 0xff {
				opaque = false
				break
			}
		}
	}

	c := 4
	if opaque {
		c = 3
	}
	out := NewRaster(w, h, c)
	for y := 0; y < h; y++ {
		row := nrgba.Pix[y*nrgba.Stride : y*nrgba.Stride+w*4]
		dst := out.Pix[y*w*c : (y+1)*w*c]
		for x := 0; x < w; x++ {
			copy(dst[x*c:x*c+c], row[x*4:x*4+c])
		}
	}
	return out
}

// Image returns an image.Image view of the raster suitable for encoding.
func (r *Raster) Image() image.Image {
	rect := image.Rect(0, 0, r.Width, r.Height)
	switch r.Channels {
	case 1:
		g := image.NewGray(rect)
		copy(g.Pix, r.Pix)
		return g
	case 3:
		out := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
			out.Pix[j] = r.Pix[i]
			out.Pix[j+1] = r.Pix[i+1]
			out.Pix[j+2] = r.Pix[i+2]
			out.Pix[j+3] = 0xff
		}
		return out
	default:
		out := image.NewNRGBA(rect)
		copy(out.Pix, r.Pix)
		return out
	}
}

// Gray returns the raster as *image.Gray; multi-channel rasters are collapsed.
func (r *Raster) Gray() *image.Gray {
	src := r
	if r.Channels != 1 {
		src = r.ToGray()
	}
	return src.Image().(*image.Gray)
}

// ToGray collapses colour channels to Rec.601 luma; alpha is dropped.
// A single channel raster is returned as is.
func (r *Raster) ToGray() *Raster {
	if r.Channels == 1 {
		return r
	}
	out := NewRaster(r.Width, r.Height, 1)
	c := r.Channels
	for i := range out.Pix {
		p := r.Pix[i*c : i*c+3]
		out.Pix[i] = luma(p[0], p[1], p[2])
	}
	return out
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// Normalize converts the raster to a tensor with samples in [0,1].
func (r *Raster) Normalize() *Tensor {
	t := NewTensor(r.Width, r.Height, r.Channels)
	for i, v := range r.Pix {
		t.Data[i] = float32(v) / 255
	}
	return t
}

// Tensor holds normalised float samples in the same layout as Raster.
type Tensor struct {
	Width    int
	Height   int
	Channels int
	Data     []float32
}

// NewTensor allocates a zeroed tensor.
func NewTensor(w, h, c int) *Tensor {
	return &Tensor{Width: w, Height: h, Channels: c, Data: make([]float32, w*h*c)}
}

// Bytes returns the size of the sample buffer.
func (t *Tensor) Bytes() int64 { return int64(len(t.Data)) * 4 }

// Quantize rounds samples back to 8 bit, clamping to [0,255].
func (t *Tensor) Quantize() *Raster {
	out := NewRaster(t.Width, t.Height, t.Channels)
	for i, v := range t.Data {
		out.Pix[i] = clamp8(math.Round(float64(v) * 255))
	}
	return out
}

// ToGray collapses colour channels to luma, as Raster.ToGray.
func (t *Tensor) ToGray() *Tensor {
	if t.Channels == 1 {
		return t
	}
	out := NewTensor(t.Width, t.Height, 1)
	c := t.Channels
	for i := range out.Data {
		p := t.Data[i*c : i*c+3]
		out.Data[i] = 0.299*p[0] + 0.587*p[1] + 0.114*p[2]
	}
	return out
}

// TensorFromImage converts an 8-bit image into a normalised tensor.
func TensorFromImage(img image.Image) *Tensor {
	return RasterFromImage(img).Normalize()
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}

// RoundHalfEven rounds x to the nearest integer, ties to even.
func RoundHalfEven(x float64) int {
	return int(math.RoundToEven(x))
}
