// Package render rasterizes labels for dialog-based printing and previews
package render

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/prepdeck/label-engine/pkg/labelformat"
)

// Raster output resolution, matching a 203dpi print head
const dotsPerMM = 8

const margin = 12.0

// Raster draws a label onto a white canvas sized for the given stock. The
// result is what the system print dialog receives for local-dialog printers,
// and what previews show.
func Raster(l *labelformat.Label, media labelformat.Media) (image.Image, error) {
	if err := labelformat.Validate(l); err != nil {
		return nil, err
	}
	if err := labelformat.ValidateMedia(&media); err != nil {
		return nil, err
	}

	width := media.WidthMM * dotsPerMM
	height := media.HeightMM * dotsPerMM

	ctx := gg.NewContext(width, height)
	ctx.SetColor(color.White)
	ctx.Clear()
	ctx.SetColor(color.Black)

	y := margin

	y = drawText(ctx, l.ProductName, margin, y, 30, true)
	if l.CategoryName != "" {
		y = drawText(ctx, l.CategoryName, margin, y, 16, false)
	}

	// Rule under the header
	ctx.DrawLine(margin, y+2, float64(width)-margin, y+2)
	ctx.SetLineWidth(2)
	ctx.Stroke()
	y += 8

	if l.Quantity > 0 {
		y = drawText(ctx, fmt.Sprintf("QTY %.4g %s", l.Quantity, l.Unit), margin, y, 20, false)
	}
	if len(l.Allergens) > 0 {
		y = drawText(ctx, "ALLERGENS: "+strings.Join(l.Allergens, ", "), margin, y, 20, true)
	}
	if l.PreparedAt != nil {
		prep := "PREP " + l.PreparedAt.Format("02 Jan 15:04")
		if l.PreparedBy != "" {
			prep += " by " + l.PreparedBy
		}
		y = drawText(ctx, prep, margin, y, 16, false)
	}
	if l.ExpiresAt != nil {
		y = drawText(ctx, "USE BY "+l.ExpiresAt.Format("02 Jan 15:04"), margin, y, 22, true)
	}
	if l.Notes != "" {
		y = drawText(ctx, l.Notes, margin, y, 16, false)
	}

	if l.Barcode != "" {
		code, err := barcodeImage(l.Barcode, width-int(2*margin), 40)
		if err != nil {
			return nil, fmt.Errorf("failed to draw barcode: %w", err)
		}
		ctx.DrawImage(code, int(margin), int(y))
	}

	return toGrayscale(ctx.Image()), nil
}

func drawText(ctx *gg.Context, text string, x, y, size float64, bold bool) float64 {
	if err := loadFace(ctx, size, bold); err == nil {
		ctx.DrawStringAnchored(text, x, y+size/2, 0, 0.35)
	}
	return y + size + 6
}

// toGrayscale flattens the canvas to 8-bit gray so downstream spooling and
// thresholding behave the same on every platform
func toGrayscale(img image.Image) image.Image {
	return imaging.Grayscale(img)
}
