package render

import (
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Common system font locations, checked in order. The bitmap fallback keeps
// rendering working on hosts with no TTF fonts installed (containers,
// kiosk images).
var fontSearchPaths = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
	"C:\\Windows\\Fonts\\arial.ttf",
}

var fontSearchPathsBold = []string{
	"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
	"/usr/share/fonts/TTF/DejaVuSans-Bold.ttf",
	"/System/Library/Fonts/Helvetica.ttc",
	"C:\\Windows\\Fonts\\arialbd.ttf",
}

func loadFace(ctx *gg.Context, size float64, bold bool) error {
	paths := fontSearchPaths
	if bold {
		paths = fontSearchPathsBold
	}

	for _, path := range paths {
		if err := ctx.LoadFontFace(path, size); err == nil {
			return nil
		}
	}

	ctx.SetFontFace(basicfont.Face7x13)
	return nil
}
