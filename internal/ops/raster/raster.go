// Package raster implements pixel-level helpers shared by the raster_*
// transform operations: level adjustment, alpha-over flattening, and
// blur-based mask application. It operates on image.Image/draw.Image the
// same way internal/tile's tile-composition code does.
package raster

import (
	"image"
	"image/color"
	"math"
)

// Levels applies out = clamp(((in/255)^(1/gamma) * contrast * 255) +
// brightness, 0, 255) to each of R, G, B — raster_levels. Alpha passes
// through unchanged.
func Levels(img image.Image, brightness, contrast, gamma float64) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	invGamma := 1.0
	if gamma > 0 {
		invGamma = 1.0 / gamma
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			out.SetRGBA(x, y, color.RGBA{
				R: levelChannel(uint8(r>>8), brightness, contrast, invGamma),
				G: levelChannel(uint8(g>>8), brightness, contrast, invGamma),
				B: levelChannel(uint8(bl>>8), brightness, contrast, invGamma),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

func levelChannel(in uint8, brightness, contrast, invGamma float64) uint8 {
	v := math.Pow(float64(in)/255, invGamma) * contrast * 255
	v += brightness
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

// Flatten alpha-composites img onto an opaque background color — raster_flatten.
func Flatten(img image.Image, bg color.RGBA) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	bg.A = 255
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			af := float64(a) / 0xffff
			out.SetRGBA(x, y, color.RGBA{
				R: blendChannel(uint8(r>>8), bg.R, af),
				G: blendChannel(uint8(g>>8), bg.G, af),
				B: blendChannel(uint8(bl>>8), bg.B, af),
				A: 255,
			})
		}
	}
	return out
}

func blendChannel(fg, bg uint8, alpha float64) uint8 {
	v := float64(fg)*alpha + float64(bg)*(1-alpha)
	return uint8(v)
}

// BlurFunction selects the falloff curve used at a mask's edge.
type BlurFunction int

const (
	BlurLinear BlurFunction = iota
	BlurCosine
)

// ApplyMask multiplies img's alpha channel by mask's intensity at the same
// pixel coordinates (the mask's alpha value is used as 0..255 coverage) — raster_mask.
func ApplyMask(img image.Image, mask *image.Alpha) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			m := mask.AlphaAt(x, y).A
			newA := uint16(a>>8) * uint16(m) / 255
			out.SetRGBA(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(bl >> 8), A: uint8(newA)})
		}
	}
	return out
}

// EdgeFalloff evaluates the blur curve at distance d inside a blur band of
// width blurWidth (both in pixels), returning 0..1 coverage.
func EdgeFalloff(d, blurWidth float64, fn BlurFunction) float64 {
	if blurWidth <= 0 {
		if d >= 0 {
			return 1
		}
		return 0
	}
	t := d / blurWidth
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	switch fn {
	case BlurCosine:
		return 0.5 - 0.5*math.Cos(t*math.Pi)
	default:
		return t
	}
}

// Average4 downsamples four same-sized child tiles into one parent tile by
// 2x2 box averaging — raster_overview.
func Average4(topLeft, topRight, bottomLeft, bottomRight image.Image, tileSize int) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, tileSize, tileSize))
	half := tileSize / 2
	quadrants := [4]image.Image{topLeft, topRight, bottomLeft, bottomRight}
	for qy := 0; qy < 2; qy++ {
		for qx := 0; qx < 2; qx++ {
			child := quadrants[qy*2+qx]
			if child == nil {
				continue
			}
			cb := child.Bounds()
			for y := 0; y < half; y++ {
				for x := 0; x < half; x++ {
					sx := cb.Min.X + x*2
					sy := cb.Min.Y + y*2
					var rs, gs, bs, as uint32
					for _, p := range [4][2]int{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
						r, g, b, a := child.At(sx+p[0], sy+p[1]).RGBA()
						rs += r
						gs += g
						bs += b
						as += a
					}
					out.SetRGBA(qx*half+x, qy*half+y, color.RGBA{
						R: uint8(rs / 4 >> 8),
						G: uint8(gs / 4 >> 8),
						B: uint8(bs / 4 >> 8),
						A: uint8(as / 4 >> 8),
					})
				}
			}
		}
	}
	return out
}

// QuantizeElevation zeroes the low bits of each elevation sample's terrarium
// value (elevation+32768 in units of 1/256 m) so that the remaining step, a
// power of two, is no coarser than the stricter of the resolution-ratio
// bound and the max-gradient-error bound, and no finer than 1/256 m —
// dem_quantize. It returns the quantized grid and the effective step used.
func QuantizeElevation(elevations []float32, resolutionRatio, maxGradientError, pixelSizeMeters float64) ([]float32, float64) {
	stepFromResolution := resolutionRatio * pixelSizeMeters * 1000
	stepFromGradient := maxGradientError
	step := stepFromResolution
	if stepFromGradient < step {
		step = stepFromGradient
	}
	if step <= 0 {
		return elevations, 0
	}
	bits := 0
	for bits < 24 && math.Ldexp(1, bits+1)/256 <= step {
		bits++
	}
	mask := int64(1)<<bits - 1
	out := make([]float32, len(elevations))
	for i, e := range elevations {
		v := int64(math.Round((float64(e) + 32768) * 256))
		out[i] = float32(float64(v&^mask)/256 - 32768)
	}
	return out, float64(mask+1) / 256
}
