package ops

import (
	"image"
	"image/color"
)

// glyph3x5 is a minimal 3-wide, 5-tall bitmap font covering the characters
// from_debug needs to render a "z/x/y" label: digits and '/'. Each row is
// packed into the low 3 bits (MSB-first) of a byte.
var glyph3x5 = map[rune][5]byte{
	'0': {0b111, 0b101, 0b101, 0b101, 0b111},
	'1': {0b010, 0b110, 0b010, 0b010, 0b111},
	'2': {0b111, 0b001, 0b111, 0b100, 0b111},
	'3': {0b111, 0b001, 0b111, 0b001, 0b111},
	'4': {0b101, 0b101, 0b111, 0b001, 0b001},
	'5': {0b111, 0b100, 0b111, 0b001, 0b111},
	'6': {0b111, 0b100, 0b111, 0b101, 0b111},
	'7': {0b111, 0b001, 0b010, 0b010, 0b010},
	'8': {0b111, 0b101, 0b111, 0b101, 0b111},
	'9': {0b111, 0b101, 0b111, 0b001, 0b111},
	'/': {0b001, 0b001, 0b010, 0b100, 0b100},
}

const glyphScale = 3

// drawBitmapText draws label at (x0,y0) using glyph3x5, scaled up by
// glyphScale pixels per bit, advancing 4*glyphScale pixels per character:
// three glyph columns plus a one-column gap, each glyphScale pixels wide.
func drawBitmapText(img *image.RGBA, label string, x0, y0 int, c color.Color) {
	cursor := x0
	for _, ch := range label {
		g, ok := glyph3x5[ch]
		if !ok {
			cursor += 4 * glyphScale
			continue
		}
		for row := 0; row < 5; row++ {
			bits := g[row]
			for col := 0; col < 3; col++ {
				if bits&(1<<(2-col)) == 0 {
					continue
				}
				fillBlock(img, cursor+col*glyphScale, y0+row*glyphScale, glyphScale, c)
			}
		}
		cursor += 4 * glyphScale
	}
}

func fillBlock(img *image.RGBA, x, y, size int, c color.Color) {
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			img.Set(x+dx, y+dy, c)
		}
	}
}
