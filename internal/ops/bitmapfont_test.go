package ops

import (
	"image"
	"image/color"
	"testing"
)

func TestDrawBitmapText_SetsGlyphPixelsAndLeavesGapsBlank(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 20, 15))
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	drawBitmapText(img, "1", 0, 0, white)

	// glyph3x5['1'] row 0 is 0b010: only the middle column is set.
	if got := img.RGBAAt(1*glyphScale, 0); got != white {
		t.Fatalf("expected the middle column of row 0 to be drawn, got %v", got)
	}
	if got := img.RGBAAt(0, 0); got != (color.RGBA{}) {
		t.Fatalf("expected the left column of row 0 to stay blank, got %v", got)
	}
	if got := img.RGBAAt(2*glyphScale, 0); got != (color.RGBA{}) {
		t.Fatalf("expected the right column of row 0 to stay blank, got %v", got)
	}

	// row 4 is 0b111: every column in the bottom row is set.
	for col := 0; col < 3; col++ {
		if got := img.RGBAAt(col*glyphScale, 4*glyphScale); got != white {
			t.Fatalf("expected row 4 col %d to be drawn, got %v", col, got)
		}
	}
}

func TestDrawBitmapText_UnknownRuneAdvancesCursorWithoutDrawing(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 40, 10))
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}

	drawBitmapText(img, " 1", 0, 0, white)

	// The space glyph is unknown so nothing should be drawn in its cell...
	for x := 0; x < 4*glyphScale; x++ {
		for y := 0; y < 5*glyphScale; y++ {
			if got := img.RGBAAt(x, y); got != (color.RGBA{}) {
				t.Fatalf("expected the unknown-rune cell to stay blank at (%d,%d), got %v", x, y, got)
			}
		}
	}
	// ...but "1" should still be drawn one glyph-cell over.
	if got := img.RGBAAt(4*glyphScale+1*glyphScale, 0); got != white {
		t.Fatalf("expected '1' to be drawn after the cursor advance, got %v", got)
	}
}

func TestDrawBitmapText_EveryDigitAndSlashIsDefined(t *testing.T) {
	for _, ch := range "0123456789/" {
		if _, ok := glyph3x5[ch]; !ok {
			t.Fatalf("expected a glyph for %q", ch)
		}
	}
}
