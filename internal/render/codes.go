package render

import (
	"image"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/skip2/go-qrcode"
)

func barcodeImage(value string, width, height int) (image.Image, error) {
	code, err := code128.Encode(value)
	if err != nil {
		return nil, err
	}

	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, err
	}

	return scaled, nil
}

// QRImage renders a QR code sized to fit a label edge
func QRImage(value string, size int) (image.Image, error) {
	q, err := qrcode.New(value, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return q.Image(size), nil
}
