package zpl

import (
	"fmt"
	"strings"

	"github.com/prepdeck/label-engine/pkg/labelformat"
)

const (
	marginDots     = 16
	titleFontDots  = 40
	bodyFontDots   = 24
	detailFontDots = 20
	lineGapDots    = 8
)

// Render converts a structured label into the command stream for the given
// label stock. The result is the payload transmitted verbatim to the device's
// job-submission port.
func Render(l *labelformat.Label, media labelformat.Media) ([]byte, error) {
	if err := labelformat.Validate(l); err != nil {
		return nil, err
	}
	if err := labelformat.ValidateMedia(&media); err != nil {
		return nil, err
	}

	width := media.WidthMM * DotsPerMM
	height := media.HeightMM * DotsPerMM

	e := NewEncoder()
	e.StartLabel()
	e.SetWidth(width)
	e.SetLength(height)
	if media.Darkness > 0 {
		e.SetDarkness(media.Darkness)
	}
	if media.SpeedIPS > 0 {
		e.SetSpeed(media.SpeedIPS)
	}

	y := marginDots
	e.Text(marginDots, y, titleFontDots, l.ProductName)
	y += titleFontDots + lineGapDots

	if l.CategoryName != "" {
		e.Text(marginDots, y, detailFontDots, l.CategoryName)
		y += detailFontDots + lineGapDots
	}

	e.Line(marginDots, y, width-2*marginDots, 2)
	y += 2 + lineGapDots

	if l.Quantity > 0 {
		e.Text(marginDots, y, bodyFontDots, fmt.Sprintf("QTY %s %s", trimFloat(l.Quantity), l.Unit))
		y += bodyFontDots + lineGapDots
	}

	if len(l.Allergens) > 0 {
		e.Text(marginDots, y, bodyFontDots, "ALLERGENS: "+strings.Join(l.Allergens, ", "))
		y += bodyFontDots + lineGapDots
	}

	if l.PreparedAt != nil {
		prep := "PREP " + l.PreparedAt.Format("02 Jan 15:04")
		if l.PreparedBy != "" {
			prep += " by " + l.PreparedBy
		}
		e.Text(marginDots, y, detailFontDots, prep)
		y += detailFontDots + lineGapDots
	}

	if l.ExpiresAt != nil {
		e.Text(marginDots, y, bodyFontDots, "USE BY "+l.ExpiresAt.Format("02 Jan 15:04"))
		y += bodyFontDots + lineGapDots
	}

	if l.Notes != "" {
		e.Text(marginDots, y, detailFontDots, l.Notes)
		y += detailFontDots + lineGapDots
	}

	if l.Barcode != "" {
		e.Barcode(marginDots, y, 48, l.Barcode)
	}

	e.EndLabel()
	return e.Bytes(), nil
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimRight(s, ".")
}
